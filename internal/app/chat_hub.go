package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"edugame-service/internal/domain"
	"edugame-service/internal/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageStore is the append-only chat log. Append assigns the ID and creation time.
type MessageStore interface {
	Append(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error)
	History(ctx context.Context, limit int) ([]domain.ChatMessage, error)
}

// ChatBus carries persisted messages to every hub instance, including the publisher's own.
type ChatBus interface {
	Publish(ctx context.Context, msg domain.ChatMessage) error
	// Subscribe returns once the subscription is active.
	Subscribe(ctx context.Context) (<-chan domain.ChatMessage, func(), error)
}

// HubConfig tunes the chat hub. Zero values fall back to defaults.
type HubConfig struct {
	ClientBuffer int
	MaxLength    int
	HistoryLimit int
}

// Hub owns the set of connected chat participants. A message is fanned out only
// after the store has accepted it.
type Hub struct {
	store    MessageStore
	bus      ChatBus
	logger   *zap.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate
	cfg      HubConfig

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	id       string
	identity domain.Identity
	ch       chan domain.ChatMessage
}

// NewHub builds a hub. With a nil bus, messages are fanned out in-process.
func NewHub(store MessageStore, bus ChatBus, logger *zap.Logger, m *metrics.Metrics, cfg HubConfig) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 32
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 2000
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}
	return &Hub{
		store:    store,
		bus:      bus,
		logger:   logger,
		metrics:  m,
		validate: validator.New(),
		cfg:      cfg,
		clients:  make(map[*client]struct{}),
	}
}

// Start subscribes to the bus and fans out what it delivers until ctx is done.
// It is a no-op for an in-process hub.
func (h *Hub) Start(ctx context.Context) error {
	if h.bus == nil {
		return nil
	}
	msgs, cancel, err := h.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe chat bus: %w", err)
	}
	go func() {
		defer cancel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				h.fanOut(msg)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Subscribe registers a participant and returns the channel its messages arrive on.
// The channel is closed when the participant is evicted or cancel is called.
func (h *Hub) Subscribe(identity domain.Identity) (<-chan domain.ChatMessage, func()) {
	c := &client{
		id:       uuid.NewString(),
		identity: identity,
		ch:       make(chan domain.ChatMessage, h.cfg.ClientBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.ChatConnected()
	h.logger.Debug("chat participant connected", zap.String("conn", c.id), zap.String("name", identity.Name))

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.ch)
			}
			h.mu.Unlock()
			h.metrics.ChatDisconnected()
			h.logger.Debug("chat participant disconnected", zap.String("conn", c.id))
		})
	}
	return c.ch, cancel
}

// Connected returns the number of registered participants.
func (h *Hub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Send persists a message from sender and then broadcasts the stored record. A message
// that fails to persist is dropped and never broadcast.
func (h *Hub) Send(ctx context.Context, sender domain.Identity, body string) (domain.ChatMessage, error) {
	if sender.Name == "" || !sender.Role.Valid() {
		h.metrics.ChatMessage(metrics.OutcomeRejected)
		return domain.ChatMessage{}, domain.ErrUnauthorized
	}
	body = strings.TrimSpace(body)
	if err := h.validate.Var(body, fmt.Sprintf("required,max=%d", h.cfg.MaxLength)); err != nil {
		h.metrics.ChatMessage(metrics.OutcomeRejected)
		return domain.ChatMessage{}, fmt.Errorf("%w: message must be 1-%d characters", domain.ErrInvalidInput, h.cfg.MaxLength)
	}

	msg, err := h.store.Append(ctx, domain.ChatMessage{
		SenderName: sender.Name,
		SenderRole: sender.Role,
		Body:       body,
	})
	if err != nil {
		h.metrics.ChatMessage(metrics.OutcomeDropped)
		h.logger.Warn("chat message dropped", zap.String("sender", sender.Name), zap.Error(err))
		return domain.ChatMessage{}, storeErr(err)
	}
	h.metrics.ChatMessage(metrics.OutcomePersisted)

	if h.bus == nil {
		h.fanOut(msg)
		return msg, nil
	}
	if err := h.bus.Publish(ctx, msg); err != nil {
		// Other instances miss it until their clients reload History; local clients still get it.
		h.logger.Error("chat publish failed, delivering locally", zap.Int64("id", msg.ID), zap.Error(err))
		h.fanOut(msg)
	}
	return msg, nil
}

// History returns up to limit of the most recent messages, oldest first.
func (h *Hub) History(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 || limit > h.cfg.HistoryLimit {
		limit = h.cfg.HistoryLimit
	}
	msgs, err := h.store.History(ctx, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return msgs, nil
}

// fanOut never blocks: a participant whose buffer is full is evicted.
func (h *Hub) fanOut(msg domain.ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.ch <- msg:
		default:
			delete(h.clients, c)
			close(c.ch)
			h.metrics.ChatEvicted()
			h.logger.Warn("chat participant evicted", zap.String("conn", c.id), zap.String("name", c.identity.Name))
		}
	}
}
