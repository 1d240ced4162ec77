package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"edugame-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChatChannel is the pub/sub channel persisted chat messages travel on.
const DefaultChatChannel = "community:messages"

// ChatBus relays persisted chat messages between service instances over Redis pub/sub.
// Every instance, the publisher included, receives each message once per subscription.
type ChatBus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewChatBus(client *redis.Client, channel string, logger *zap.Logger) *ChatBus {
	if channel == "" {
		channel = DefaultChatChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatBus{client: client, channel: channel, logger: logger}
}

func (b *ChatBus) Publish(ctx context.Context, msg domain.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish chat message: %w", err)
	}
	return nil
}

// Subscribe returns after Redis has confirmed the subscription, so nothing published
// afterwards is missed. The returned channel closes after cancel or when ctx ends.
func (b *ChatBus) Subscribe(ctx context.Context) (<-chan domain.ChatMessage, func(), error) {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	out := make(chan domain.ChatMessage, 64)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)
		in := ps.Channel()
		for {
			select {
			case raw, ok := <-in:
				if !ok {
					return
				}
				var msg domain.ChatMessage
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					b.logger.Warn("discarding malformed chat payload", zap.String("channel", raw.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- msg:
				case <-done:
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				cancel()
				return
			}
		}
	}()
	return out, cancel, nil
}
