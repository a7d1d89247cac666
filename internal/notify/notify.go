package notify

import (
	"sync"
	"time"

	"storefront-gateway/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notification levels
const (
	LevelSuccess = "success"
	LevelError   = "error"
	LevelInfo    = "info"
)

// Notification codes surfaced to the UI as one-line messages.
const (
	CodePaymentCompleted = "payment_completed"
	CodePaymentFailed    = "payment_failed"
	CodeStockLimit       = "stock_limit"
	CodeCartSyncFailed   = "cart_sync_failed"
	CodeAccountConverted = "account_converted"
	CodeWalletDebited    = "wallet_debited"
)

// Notification is a single user-visible message, routed to the device scope
// that triggered it.
type Notification struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Hub fans notifications out to per-scope subscribers. Slow subscribers drop
// messages rather than blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Notification]struct{}
	logger *zap.Logger
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[chan Notification]struct{}),
		logger: util.GetLogger(),
	}
}

// Subscribe returns a channel of notifications for the given device scope and
// a cancel function that must be called when the consumer goes away.
func (h *Hub) Subscribe(scope string) (<-chan Notification, func()) {
	ch := make(chan Notification, 16)

	h.mu.Lock()
	if h.subs[scope] == nil {
		h.subs[scope] = make(map[chan Notification]struct{})
	}
	h.subs[scope][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[scope]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, scope)
			}
		}
		h.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// Publish delivers a notification to every subscriber of the scope.
func (h *Hub) Publish(scope, level, code, message string) {
	n := Notification{
		ID:        uuid.New().String(),
		Level:     level,
		Code:      code,
		Message:   message,
		CreatedAt: time.Now(),
	}

	h.logger.Info("Notification",
		zap.String("scope", scope),
		zap.String("level", level),
		zap.String("code", code),
		zap.String("message", message))

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[scope] {
		select {
		case ch <- n:
		default:
		}
	}
}
