package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"edugame-service/internal/app"
	"edugame-service/internal/domain"
	"edugame-service/internal/infra/memory"
)

var (
	studentAlice = domain.Identity{Name: "alice", Role: domain.RoleStudent}
	adminRoot    = domain.Identity{Name: "root", Role: domain.RoleAdmin}
)

func TestHubBroadcastsPersistedMessageToEveryone(t *testing.T) {
	ctx := context.Background()
	serverTime := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := memory.NewMessageStoreWithClock(func() time.Time { return serverTime })
	hub := app.NewHub(store, nil, nil, nil, app.HubConfig{})

	senderCh, cancelSender := hub.Subscribe(studentAlice)
	defer cancelSender()
	otherCh, cancelOther := hub.Subscribe(adminRoot)
	defer cancelOther()

	sent, err := hub.Send(ctx, studentAlice, "  hello class  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	for name, ch := range map[string]<-chan domain.ChatMessage{"sender": senderCh, "other": otherCh} {
		msg := receive(t, ch)
		if msg.ID != sent.ID || msg.Body != "hello class" || msg.SenderRole != domain.RoleStudent {
			t.Fatalf("%s got unexpected message %+v", name, msg)
		}
		if !msg.CreatedAt.Equal(serverTime) {
			t.Fatalf("%s expected server timestamp %v, got %v", name, serverTime, msg.CreatedAt)
		}
	}

	history, err := hub.History(ctx, 0)
	if err != nil || len(history) != 1 {
		t.Fatalf("expected one persisted message, got %v %v", history, err)
	}
}

func TestHubDropsUnpersistedMessage(t *testing.T) {
	hub := app.NewHub(failingMessageStore{}, nil, nil, nil, app.HubConfig{})
	ch, cancel := hub.Subscribe(studentAlice)
	defer cancel()

	_, err := hub.Send(context.Background(), studentAlice, "lost")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}

	select {
	case msg := <-ch:
		t.Fatalf("unpersisted message was broadcast: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
	if hub.Connected() != 1 {
		t.Fatalf("sender must stay connected after a failed send")
	}
}

func TestHubRejectsInvalidMessages(t *testing.T) {
	hub := app.NewHub(memory.NewMessageStore(), nil, nil, nil, app.HubConfig{MaxLength: 5})
	if _, err := hub.Send(context.Background(), studentAlice, "   "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank message, got %v", err)
	}
	if _, err := hub.Send(context.Background(), studentAlice, "too long"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for long message, got %v", err)
	}
	if _, err := hub.Send(context.Background(), domain.Identity{Name: "x"}, "hi"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized without role, got %v", err)
	}
}

func TestHubPreservesPerSenderOrder(t *testing.T) {
	ctx := context.Background()
	hub := app.NewHub(memory.NewMessageStore(), nil, nil, nil, app.HubConfig{ClientBuffer: 64})
	ch, cancel := hub.Subscribe(adminRoot)
	defer cancel()

	bodies := []string{"one", "two", "three", "four"}
	for _, b := range bodies {
		if _, err := hub.Send(ctx, studentAlice, b); err != nil {
			t.Fatalf("send %s: %v", b, err)
		}
	}
	for _, want := range bodies {
		if got := receive(t, ch); got.Body != want {
			t.Fatalf("expected %q, got %q", want, got.Body)
		}
	}
}

func TestHubEvictsSlowParticipant(t *testing.T) {
	ctx := context.Background()
	hub := app.NewHub(memory.NewMessageStore(), nil, nil, nil, app.HubConfig{ClientBuffer: 1})
	slow, cancelSlow := hub.Subscribe(adminRoot)
	defer cancelSlow()

	if _, err := hub.Send(ctx, studentAlice, "first"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := hub.Send(ctx, studentAlice, "second"); err != nil {
		t.Fatalf("send must not block on a slow reader: %v", err)
	}

	if msg := receive(t, slow); msg.Body != "first" {
		t.Fatalf("expected buffered first message, got %+v", msg)
	}
	if _, ok := <-slow; ok {
		t.Fatalf("expected slow participant channel closed")
	}
	if hub.Connected() != 0 {
		t.Fatalf("expected slow participant removed, got %d connected", hub.Connected())
	}
}

func TestHubCancelRemovesParticipant(t *testing.T) {
	hub := app.NewHub(memory.NewMessageStore(), nil, nil, nil, app.HubConfig{})
	_, cancel := hub.Subscribe(studentAlice)
	if hub.Connected() != 1 {
		t.Fatalf("expected one participant")
	}
	cancel()
	cancel()
	if hub.Connected() != 0 {
		t.Fatalf("expected participant removed")
	}
}

func TestHubDeliversLocallyWhenBusPublishFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := app.NewHub(memory.NewMessageStore(), failingBus{}, nil, nil, app.HubConfig{})
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	senderCh, cancelSender := hub.Subscribe(studentAlice)
	defer cancelSender()
	otherCh, cancelOther := hub.Subscribe(adminRoot)
	defer cancelOther()

	sent, err := hub.Send(ctx, studentAlice, "still here")
	if err != nil {
		t.Fatalf("send should succeed once persisted, got %v", err)
	}
	for name, ch := range map[string]<-chan domain.ChatMessage{"sender": senderCh, "other": otherCh} {
		if msg := receive(t, ch); msg.ID != sent.ID || msg.Body != "still here" {
			t.Fatalf("%s got unexpected message %+v", name, msg)
		}
	}
}

func receive(t *testing.T, ch <-chan domain.ChatMessage) domain.ChatMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
	}
	return domain.ChatMessage{}
}

type failingMessageStore struct{}

func (failingMessageStore) Append(context.Context, domain.ChatMessage) (domain.ChatMessage, error) {
	return domain.ChatMessage{}, errors.New("connection reset by peer")
}

func (failingMessageStore) History(context.Context, int) ([]domain.ChatMessage, error) {
	return nil, errors.New("connection reset by peer")
}

// failingBus accepts subscriptions but never reaches the broker on publish.
type failingBus struct{}

func (failingBus) Publish(context.Context, domain.ChatMessage) error { return errConnRefused }

func (failingBus) Subscribe(context.Context) (<-chan domain.ChatMessage, func(), error) {
	return make(chan domain.ChatMessage), func() {}, nil
}
