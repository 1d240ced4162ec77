package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"edugame-service/internal/domain"
	"github.com/gorilla/websocket"
)

func TestWebSocketChatFlow(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.studentToken(t, "alice")
	adminToken := env.adminToken(t)

	alice := dialChat(t, env, aliceToken)
	defer alice.Close()
	admin := dialChat(t, env, adminToken)
	defer admin.Close()
	waitForParticipants(t, env, 2)

	// Sender fields are spoofed; the server must use the token's identity.
	send := map[string]any{
		"type": "sendMessage",
		"payload": map[string]any{
			"sender_name": "mallory",
			"sender_role": "admin",
			"message":     "hello class",
		},
	}
	if err := alice.WriteJSON(send); err != nil {
		t.Fatalf("write message: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"sender": alice, "admin": admin} {
		typ, payload := readNext(conn, t, "receiveMessage")
		var msg domain.ChatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("%s: decode %s: %v", name, typ, err)
		}
		if msg.SenderName != "alice" || msg.SenderRole != domain.RoleStudent || msg.Body != "hello class" || msg.ID == 0 {
			t.Fatalf("%s received unexpected message %+v", name, msg)
		}
		if msg.CreatedAt.IsZero() {
			t.Fatalf("%s expected server timestamp", name)
		}
	}

	var history struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	env.do(t, http.MethodGet, "/community/messages", aliceToken, nil, &history)
	if len(history.Messages) != 1 || history.Messages[0].Body != "hello class" {
		t.Fatalf("unexpected history %+v", history.Messages)
	}
}

func TestWebSocketRejectsInvalidMessages(t *testing.T) {
	env := newTestEnv(t)
	conn := dialChat(t, env, env.studentToken(t, "alice"))
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"type": "sendMessage", "payload": map[string]any{"message": "   "}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readNext(conn, t, "error")

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, payload := readNext(conn, t, "error")
	if !strings.Contains(string(payload), "unsupported") {
		t.Fatalf("unexpected error payload %s", payload)
	}

	// The connection stays usable after errors.
	if err := conn.WriteJSON(map[string]any{"type": "sendMessage", "payload": map[string]any{"message": "still here"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readNext(conn, t, "receiveMessage")
}

func TestWebSocketRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/chat"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial without token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}
}

func TestWebSocketChecksOrigin(t *testing.T) {
	env := newTestEnvWithOrigins(t, "https://play.example.com/")
	token := env.studentToken(t, "alice")
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/chat?token=" + token

	_, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"https://evil.example.net"}})
	if err == nil {
		t.Fatalf("expected dial from foreign origin to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign origin, got %+v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"https://play.example.com"}})
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	conn.Close()
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://play.example.com/", " http://localhost:5173 "})
	cases := map[string]bool{
		"":                          true,
		"https://play.example.com":  true,
		"https://play.example.com/": true,
		"http://localhost:5173":     true,
		"https://evil.example.net":  false,
		"http://play.example.com":   false,
	}
	for origin, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := check(r); got != want {
			t.Fatalf("origin %q: expected %v, got %v", origin, want, got)
		}
	}

	open := originChecker(nil)
	r := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	r.Header.Set("Origin", "https://anything.example")
	if !open(r) {
		t.Fatalf("expected empty allow list to accept any origin")
	}
}

func dialChat(t *testing.T, env *testEnv, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/chat?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

// waitForParticipants blocks until the hub has registered n connections, since the
// handler subscribes after the upgrade response is sent.
func waitForParticipants(t *testing.T, env *testEnv, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Connected() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d participants, have %d", n, env.hub.Connected())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
