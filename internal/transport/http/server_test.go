package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"edugame-service/internal/app"
	"edugame-service/internal/domain"
	"edugame-service/internal/infra/memory"
	"github.com/gin-gonic/gin"
)

type testEnv struct {
	server  *httptest.Server
	auth    *app.AuthService
	hub     *app.Hub
	sources map[domain.Modality]*memory.ResultSource
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithOrigins(t)
}

func newTestEnvWithOrigins(t *testing.T, origins ...string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	students := memory.NewStudentStore()
	sources := memory.NewResultSources()
	appSources := make([]app.ResultSource, 0, len(sources))
	byModality := make(map[domain.Modality]*memory.ResultSource, len(sources))
	for _, src := range sources {
		appSources = append(appSources, src)
		byModality[src.Modality()] = src
	}

	agg := app.NewAggregator(2, appSources...)
	auth := app.NewAuthService(students, memory.NewAdminStore(), nil, nil, app.AuthConfig{Secret: "test-secret", TokenTTL: time.Hour})
	hub := app.NewHub(memory.NewMessageStore(), nil, nil, nil, app.HubConfig{})

	srv := NewServer(Deps{
		Auth:     auth,
		Results:  app.NewResultService(appSources...),
		Agg:      agg,
		Students: app.NewStudentService(students, agg),
		Hub:      hub,

		AllowedOrigins: origins,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, auth: auth, hub: hub, sources: byModality}
}

// studentToken signs up and logs in a student, returning the session token.
func (e *testEnv) studentToken(t *testing.T, name string) string {
	t.Helper()
	ctx := context.Background()
	email := name + "@example.com"
	if err := e.auth.SignupStudent(ctx, app.SignupRequest{Name: name, Email: email, Password: "secret1"}); err != nil {
		t.Fatalf("signup %s: %v", name, err)
	}
	session, err := e.auth.LoginStudent(ctx, app.LoginRequest{Email: email, Password: "secret1"})
	if err != nil {
		t.Fatalf("login %s: %v", name, err)
	}
	return session.Token
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	if err := e.auth.CreateAdmin(ctx, "root", "root@example.com", "hunter22"); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	session, err := e.auth.LoginAdmin(ctx, app.LoginRequest{Email: "root@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	return session.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestSubmitAndCompletionFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.studentToken(t, "alice")

	var result domain.Result
	if code := env.do(t, http.MethodPost, "/games/paragraph/submit", token, map[string]any{"game_id": 3, "score": 40}, &result); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if result.StudentName != "alice" || result.Score != 40 {
		t.Fatalf("unexpected result %+v", result)
	}

	var dup errorEnvelope
	if code := env.do(t, http.MethodPost, "/games/paragraph/submit", token, map[string]any{"game_id": 3, "score": 10}, &dup); code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", code)
	}
	if dup.Error.Message != "already completed" {
		t.Fatalf("unexpected duplicate message %q", dup.Error.Message)
	}

	var status struct {
		Completed bool `json:"completed"`
	}
	env.do(t, http.MethodGet, "/games/paragraph/3/status", token, nil, &status)
	if !status.Completed {
		t.Fatalf("expected game 3 completed")
	}
	env.do(t, http.MethodGet, "/games/paragraph/4/status", token, nil, &status)
	if status.Completed {
		t.Fatalf("expected game 4 not completed")
	}

	if code := env.do(t, http.MethodGet, "/games/paragraph/4/result", token, nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing result, got %d", code)
	}
	if code := env.do(t, http.MethodPost, "/games/chess/submit", token, map[string]any{"game_id": 1, "score": 1}, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown modality, got %d", code)
	}

	var completed struct {
		Completed []int64 `json:"completed"`
	}
	env.do(t, http.MethodGet, "/student/completed/paragraph", token, nil, &completed)
	if len(completed.Completed) != 1 || completed.Completed[0] != 3 {
		t.Fatalf("unexpected completed list %+v", completed)
	}

	var counts domain.ModalityCounts
	env.do(t, http.MethodGet, "/student/chart-data", token, nil, &counts)
	if counts.Paragraph != 1 || counts.Quiz != 0 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestStudentRoutesRequireStudentToken(t *testing.T) {
	env := newTestEnv(t)

	var body errorEnvelope
	if code := env.do(t, http.MethodGet, "/student/achievement", "", nil, &body); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if body.Error.Code != "unauthorized" {
		t.Fatalf("unexpected error code %q", body.Error.Code)
	}
	if code := env.do(t, http.MethodGet, "/student/streak", "not-a-token", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", code)
	}
	admin := env.adminToken(t)
	if code := env.do(t, http.MethodGet, "/student/streak", admin, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for admin on student route, got %d", code)
	}

	var who domain.Identity
	if code := env.do(t, http.MethodGet, "/community/user", admin, nil, &who); code != http.StatusOK || who.Role != domain.RoleAdmin {
		t.Fatalf("expected admin identity, got %d %+v", code, who)
	}
}

func TestLeaderboardAppendsRequesterBeyondCut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token := env.studentToken(t, "dave")

	quiz := env.sources[domain.ModalityQuiz]
	for i, name := range []string{"alice", "bob", "carol"} {
		if err := quiz.Insert(ctx, domain.Result{StudentName: name, GameID: 1, Score: 100 - i*10}); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	if err := quiz.Insert(ctx, domain.Result{StudentName: "dave", GameID: 1, Score: 5}); err != nil {
		t.Fatalf("seed dave: %v", err)
	}

	var anonymous domain.Leaderboard
	env.do(t, http.MethodGet, "/leaderboard", "", nil, &anonymous)
	if len(anonymous.Entries) != 2 {
		t.Fatalf("expected truncated board for anonymous caller, got %+v", anonymous.Entries)
	}

	var own domain.Leaderboard
	env.do(t, http.MethodGet, "/leaderboard", token, nil, &own)
	if len(own.Entries) != 3 {
		t.Fatalf("expected own row appended, got %+v", own.Entries)
	}
	last := own.Entries[2]
	if last.StudentName != "dave" || last.Rank != 4 || last.TotalScore != 5 {
		t.Fatalf("unexpected own row %+v", last)
	}
}

func TestLoginReturnsStreakAndProfile(t *testing.T) {
	env := newTestEnv(t)

	signup := map[string]any{"name": "erin", "email": "erin@example.com", "password": "secret1", "college": "IIT"}
	if code := env.do(t, http.MethodPost, "/auth/student/signup", "", signup, nil); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if code := env.do(t, http.MethodPost, "/auth/student/signup", "", signup, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 for repeated signup, got %d", code)
	}

	var session app.Session
	if code := env.do(t, http.MethodPost, "/auth/student/login", "", map[string]any{"email": "erin@example.com", "password": "secret1"}, &session); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if session.Streak != 1 || session.Token == "" {
		t.Fatalf("unexpected session %+v", session)
	}
	if code := env.do(t, http.MethodPost, "/auth/student/login", "", map[string]any{"email": "erin@example.com", "password": "wrong"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", code)
	}

	var streak struct {
		Streak int `json:"streak"`
	}
	env.do(t, http.MethodGet, "/student/streak", session.Token, nil, &streak)
	if streak.Streak != 1 {
		t.Fatalf("expected streak 1, got %d", streak.Streak)
	}

	var profile domain.Profile
	env.do(t, http.MethodGet, "/student/profile", session.Token, nil, &profile)
	if profile.Name != "erin" || profile.College != "IIT" || profile.TotalGamesPlayed != 0 {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	token := env.studentToken(t, "frank")

	update := map[string]any{"college": "NIT", "place": "Calicut", "district": "Kozhikode", "state": "Kerala"}
	var ok struct {
		Success bool `json:"success"`
	}
	if code := env.do(t, http.MethodPost, "/student/update-profile", token, update, &ok); code != http.StatusOK || !ok.Success {
		t.Fatalf("expected success, got %d %+v", code, ok)
	}

	var profile domain.Profile
	env.do(t, http.MethodGet, "/student/profile", token, nil, &profile)
	if profile.College != "NIT" || profile.Place != "Calicut" || profile.District != "Kozhikode" || profile.State != "Kerala" {
		t.Fatalf("profile not updated: %+v", profile)
	}

	if code := env.do(t, http.MethodPost, "/student/update-profile", "", update, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code := env.do(t, http.MethodPost, "/student/update-profile", env.adminToken(t), update, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for admin, got %d", code)
	}
	tooLong := map[string]any{"state": strings.Repeat("k", 101)}
	if code := env.do(t, http.MethodPost, "/student/update-profile", token, tooLong, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized field, got %d", code)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	env := newTestEnv(t)
	if code := env.do(t, http.MethodGet, "/healthz", "", nil, nil); code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", code)
	}
	// No registry wired in tests.
	if code := env.do(t, http.MethodGet, "/metrics", "", nil, nil); code != http.StatusServiceUnavailable {
		t.Fatalf("expected metrics 503 without registry, got %d", code)
	}
}
