package models

import "time"

// Event types
const (
	EventTypeGuestCreated   = "GUEST_CREATED"
	EventTypeGuestConverted = "GUEST_CONVERTED"
	EventTypePaymentStarted = "PAYMENT_STARTED"
	EventTypeOrderCompleted = "ORDER_COMPLETED"
	EventTypeOrderFailed    = "ORDER_FAILED"
	EventTypeWalletDebited  = "WALLET_DEBITED"
)

// BaseEvent contains common fields for all lifecycle events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// GuestCreatedEvent published when a new guest session is established
type GuestCreatedEvent struct {
	BaseEvent
	AccountID string `json:"account_id"`
	DeviceID  string `json:"device_id"`
}

// GuestConvertedEvent published when a guest upgrades to a credentialed account
type GuestConvertedEvent struct {
	BaseEvent
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// PaymentStartedEvent published when a payment intent is created
type PaymentStartedEvent struct {
	BaseEvent
	AccountID string  `json:"account_id"`
	Method    string  `json:"method"`
	Source    string  `json:"source"`
	Amount    float64 `json:"amount"`
	OrderRef  string  `json:"order_ref,omitempty"`
}

// OrderCompletedEvent published when a tracked order resolves as completed
type OrderCompletedEvent struct {
	BaseEvent
	AccountID string `json:"account_id"`
	OrderRef  string `json:"order_ref"`
}

// OrderFailedEvent published when a tracked order resolves as failed
type OrderFailedEvent struct {
	BaseEvent
	AccountID string `json:"account_id"`
	OrderRef  string `json:"order_ref"`
	Reason    string `json:"reason,omitempty"`
}

// WalletDebitedEvent published after a successful wallet debit
type WalletDebitedEvent struct {
	BaseEvent
	AccountID string  `json:"account_id"`
	Amount    float64 `json:"amount"`
	Balance   float64 `json:"balance"`
}
