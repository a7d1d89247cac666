package service

import (
	"context"
	"errors"
	"regexp"

	"storefront-gateway/internal/backend"
	"storefront-gateway/internal/broker"
	"storefront-gateway/internal/models"
	"storefront-gateway/internal/notify"
	"storefront-gateway/internal/storage"
	"storefront-gateway/internal/util"

	"go.uber.org/zap"
)

// Reconcile outcomes
const (
	ReconcileNone      = "none"
	ReconcileCompleted = "completed"
	ReconcileFailed    = "failed"
	ReconcilePending   = "pending"
	ReconcileStale     = "stale"
)

// An order reference is an opaque token; anything that does not look like one
// (markup fragments, newlines, oversized blobs) is foreign state to be
// discarded, not an error to report.
var orderRefPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Reconciler resolves the single persisted pending payment reference after the
// redirect round-trip. It runs one status check per invocation; a pending
// order stays tracked and is re-checked the next time the UI mounts.
type Reconciler struct {
	store    storage.Store
	backend  *backend.Client
	sessions *SessionService
	cart     *CartService
	events   *broker.EventPublisher
	hub      *notify.Hub
	logger   *zap.Logger
}

func NewReconciler(store storage.Store, client *backend.Client, sessions *SessionService, cart *CartService, events *broker.EventPublisher, hub *notify.Hub) *Reconciler {
	return &Reconciler{
		store:    store,
		backend:  client,
		sessions: sessions,
		cart:     cart,
		events:   events,
		hub:      hub,
		logger:   util.GetLogger(),
	}
}

// Reconcile checks the pending slot once and drives it to a terminal state
// where possible. Completed and failed clear the slot and notify exactly once;
// pending leaves it in place silently; malformed or unrecognized state is
// cleared silently. An empty slot is a no-op.
func (r *Reconciler) Reconcile(ctx context.Context, scope string) (string, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Reconcile")
	defer span.End()

	ref, err := r.store.Get(ctx, scope, storage.KeyPendingOrderRef)
	if errors.Is(err, storage.ErrNotFound) {
		return ReconcileNone, nil
	}
	if err != nil {
		return "", err
	}

	if !orderRefPattern.MatchString(ref) {
		r.logger.Warn("Discarding malformed pending order reference",
			zap.String("scope", scope), zap.Int("ref_len", len(ref)))
		return r.clear(ctx, scope, ReconcileStale)
	}

	token, err := r.sessions.Token(ctx, scope)
	if err != nil {
		return "", err
	}

	status, err := r.backend.OrderStatus(ctx, token, ref)
	if errors.Is(err, backend.ErrNotFound) {
		// The backend has never heard of this reference: foreign state.
		return r.clear(ctx, scope, ReconcileStale)
	}
	if err != nil {
		// Transient failure: the slot stays put so a later mount retries.
		util.ReconcileOutcomesTotal.WithLabelValues("error").Inc()
		return "", err
	}

	account, err := r.sessions.Account(ctx, scope)
	if err != nil {
		return "", err
	}

	switch status {
	case models.OrderStatusCompleted:
		outcome, err := r.clear(ctx, scope, ReconcileCompleted)
		if err != nil {
			return "", err
		}
		r.refreshViews(ctx, scope)
		r.hub.Publish(scope, notify.LevelSuccess, notify.CodePaymentCompleted, "Payment completed")
		util.PaymentsCompletedTotal.Inc()
		if perr := r.events.PublishOrderCompleted(ctx, account.ID, ref); perr != nil {
			r.logger.Error("Failed to publish OrderCompleted event", zap.Error(perr))
		}
		return outcome, nil

	case models.OrderStatusFailed:
		outcome, err := r.clear(ctx, scope, ReconcileFailed)
		if err != nil {
			return "", err
		}
		r.hub.Publish(scope, notify.LevelError, notify.CodePaymentFailed, "Payment failed")
		util.PaymentsFailedTotal.WithLabelValues("gateway_failed").Inc()
		if perr := r.events.PublishOrderFailed(ctx, account.ID, ref, "gateway reported failure"); perr != nil {
			r.logger.Error("Failed to publish OrderFailed event", zap.Error(perr))
		}
		return outcome, nil

	case models.OrderStatusPending:
		// Expected transient state; keep the slot, say nothing.
		util.ReconcileOutcomesTotal.WithLabelValues(ReconcilePending).Inc()
		return ReconcilePending, nil

	default:
		r.logger.Warn("Unrecognized order status, discarding reference",
			zap.String("scope", scope), zap.String("status", status))
		return r.clear(ctx, scope, ReconcileStale)
	}
}

func (r *Reconciler) clear(ctx context.Context, scope, outcome string) (string, error) {
	if err := r.store.Delete(ctx, scope, storage.KeyPendingOrderRef); err != nil {
		return "", err
	}
	util.ReconcileOutcomesTotal.WithLabelValues(outcome).Inc()
	return outcome, nil
}

// refreshViews brings cart and wallet back in line after a completed payment.
func (r *Reconciler) refreshViews(ctx context.Context, scope string) {
	if err := r.cart.Refresh(ctx, scope); err != nil {
		r.logger.Warn("Cart refresh after reconciliation failed",
			zap.String("scope", scope), zap.Error(err))
	}
	token, err := r.sessions.Token(ctx, scope)
	if err != nil {
		return
	}
	if balance, err := r.backend.WalletBalance(ctx, token); err == nil {
		r.sessions.SetWalletBalance(scope, balance)
	}
}
