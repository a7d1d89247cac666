package broker

import (
	"context"
	"time"

	"storefront-gateway/internal/models"

	"github.com/google/uuid"
)

// EventPublisher emits order lifecycle audit events. When constructed without
// a producer (no brokers configured) every publish is a no-op; the gateway's
// behavior never depends on the stream being up.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates an event publisher. producer may be nil.
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func (ep *EventPublisher) base(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// PublishGuestCreated emits GuestCreated.
func (ep *EventPublisher) PublishGuestCreated(ctx context.Context, accountID, deviceID string) error {
	if ep.producer == nil {
		return nil
	}
	return ep.producer.PublishEvent(ctx, "account-"+accountID, &models.GuestCreatedEvent{
		BaseEvent: ep.base(models.EventTypeGuestCreated),
		AccountID: accountID,
		DeviceID:  deviceID,
	})
}

// PublishGuestConverted emits GuestConverted.
func (ep *EventPublisher) PublishGuestConverted(ctx context.Context, accountID, email string) error {
	if ep.producer == nil {
		return nil
	}
	return ep.producer.PublishEvent(ctx, "account-"+accountID, &models.GuestConvertedEvent{
		BaseEvent: ep.base(models.EventTypeGuestConverted),
		AccountID: accountID,
		Email:     email,
	})
}

// PublishPaymentStarted emits PaymentStarted.
func (ep *EventPublisher) PublishPaymentStarted(ctx context.Context, accountID, method, source string, amount float64, orderRef string) error {
	if ep.producer == nil {
		return nil
	}
	return ep.producer.PublishEvent(ctx, "account-"+accountID, &models.PaymentStartedEvent{
		BaseEvent: ep.base(models.EventTypePaymentStarted),
		AccountID: accountID,
		Method:    method,
		Source:    source,
		Amount:    amount,
		OrderRef:  orderRef,
	})
}

// PublishOrderCompleted emits OrderCompleted.
func (ep *EventPublisher) PublishOrderCompleted(ctx context.Context, accountID, orderRef string) error {
	if ep.producer == nil {
		return nil
	}
	return ep.producer.PublishEvent(ctx, "account-"+accountID, &models.OrderCompletedEvent{
		BaseEvent: ep.base(models.EventTypeOrderCompleted),
		AccountID: accountID,
		OrderRef:  orderRef,
	})
}

// PublishOrderFailed emits OrderFailed.
func (ep *EventPublisher) PublishOrderFailed(ctx context.Context, accountID, orderRef, reason string) error {
	if ep.producer == nil {
		return nil
	}
	return ep.producer.PublishEvent(ctx, "account-"+accountID, &models.OrderFailedEvent{
		BaseEvent: ep.base(models.EventTypeOrderFailed),
		AccountID: accountID,
		OrderRef:  orderRef,
		Reason:    reason,
	})
}

// PublishWalletDebited emits WalletDebited.
func (ep *EventPublisher) PublishWalletDebited(ctx context.Context, accountID string, amount, balance float64) error {
	if ep.producer == nil {
		return nil
	}
	return ep.producer.PublishEvent(ctx, "account-"+accountID, &models.WalletDebitedEvent{
		BaseEvent: ep.base(models.EventTypeWalletDebited),
		AccountID: accountID,
		Amount:    amount,
		Balance:   balance,
	})
}
