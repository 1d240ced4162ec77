package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"edugame-service/internal/app"
	"edugame-service/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	typeSendMessage    = "sendMessage"
	typeReceiveMessage = "receiveMessage"
	typeError          = "error"

	writeWait    = 10 * time.Second
	maxFrameSize = 64 << 10
)

// WSHandler bridges websocket connections to the chat hub.
type WSHandler struct {
	hub      *app.Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler accepts upgrades from allowedOrigins, or from any origin when the list is empty.
func NewWSHandler(hub *app.Hub, logger *zap.Logger, allowedOrigins []string) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker lets requests without an Origin header through; those are not browsers.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(strings.TrimSpace(origin), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// sendPayload mirrors what clients send. Sender fields are ignored in favour of the
// authenticated identity.
type sendPayload struct {
	SenderName string `json:"sender_name"`
	SenderRole string `json:"sender_role"`
	Message    string `json:"message"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Serve upgrades an authenticated request and relays chat traffic until either side closes.
func (h *WSHandler) Serve(c *gin.Context) {
	identity := identityFrom(c)
	if identity == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorEnvelope{Error: apiError{"unauthorized", domain.ErrUnauthorized.Error()}})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	updates, cancel := h.hub.Subscribe(*identity)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// The writer is the only goroutine that writes to conn. After a write error it
	// keeps draining send so producers never block.
	go func() {
		defer close(writerDone)
		failed := false
		for msg := range send {
			if failed {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.String("name", identity.Name), zap.Error(err))
				failed = true
				_ = conn.Close()
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case msg, ok := <-updates:
				if !ok {
					// Evicted by the hub.
					_ = conn.Close()
					return
				}
				select {
				case send <- outboundMessage[any]{Type: typeReceiveMessage, Payload: msg}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	ctx := c.Request.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case typeSendMessage:
			var payload sendPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorEvent("invalid message payload")
				continue
			}
			if _, err := h.hub.Send(ctx, *identity, payload.Message); err != nil {
				_, body := statusFor(err)
				send <- errorEvent(body.Message)
			}
		default:
			send <- errorEvent("unsupported message type")
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func errorEvent(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: typeError, Payload: errorPayload{Message: message}}
}
