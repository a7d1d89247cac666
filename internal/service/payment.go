package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-gateway/internal/backend"
	"storefront-gateway/internal/broker"
	"storefront-gateway/internal/models"
	"storefront-gateway/internal/notify"
	"storefront-gateway/internal/storage"
	"storefront-gateway/internal/util"

	"go.uber.org/zap"
)

var (
	// ErrInsufficientFunds rejects a wallet debit before any request is sent.
	ErrInsufficientFunds = errors.New("insufficient wallet balance")

	// ErrInvalidIntent covers malformed payment intents: unknown method or
	// source, missing tier, non-positive deposit.
	ErrInvalidIntent = errors.New("invalid payment intent")
)

// PaymentService builds payment intents for direct purchase, cart checkout,
// wallet deposit and entitlement prolong. Creating an external intent always
// overwrites the single pending reference slot; reconciliation picks the
// newest one up after the redirect round-trip.
type PaymentService struct {
	backend  *backend.Client
	sessions *SessionService
	cart     *CartService
	store    storage.Store
	events   *broker.EventPublisher
	hub      *notify.Hub
	logger   *zap.Logger

	validity time.Duration
	pageSize int
}

func NewPaymentService(client *backend.Client, sessions *SessionService, cart *CartService, store storage.Store, events *broker.EventPublisher, hub *notify.Hub, validity time.Duration, pageSize int) *PaymentService {
	return &PaymentService{
		backend:  client,
		sessions: sessions,
		cart:     cart,
		store:    store,
		events:   events,
		hub:      hub,
		logger:   util.GetLogger(),
		validity: validity,
		pageSize: pageSize,
	}
}

// Pay carries out a payment intent. For the external method the outcome holds
// the redirect URL and the order reference that was persisted before
// returning; for wallet debits the outcome is terminal.
func (ps *PaymentService) Pay(ctx context.Context, scope string, intent models.PaymentIntent) (models.PaymentOutcome, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Pay")
	defer span.End()

	if err := ps.validate(intent); err != nil {
		return models.PaymentOutcome{}, err
	}

	account, err := ps.sessions.Account(ctx, scope)
	if err != nil {
		return models.PaymentOutcome{}, err
	}
	token, err := ps.sessions.Token(ctx, scope)
	if err != nil {
		return models.PaymentOutcome{}, err
	}

	amount, quantity, err := ps.resolveAmount(ctx, scope, intent)
	if err != nil {
		return models.PaymentOutcome{}, err
	}

	util.PaymentsStartedTotal.WithLabelValues(intent.Method, intent.Source).Inc()

	switch intent.Method {
	case models.PaymentMethodExternal:
		return ps.payExternal(ctx, scope, token, account, intent, amount, quantity)
	case models.PaymentMethodWallet:
		return ps.payWallet(ctx, scope, token, account, intent, amount, quantity)
	default:
		return models.PaymentOutcome{}, ErrInvalidIntent
	}
}

func (ps *PaymentService) validate(intent models.PaymentIntent) error {
	switch intent.Source {
	case models.PaymentSourceDirect, models.PaymentSourceProlong:
		if intent.Tier == nil {
			return fmt.Errorf("%w: tier is required for %s purchases", ErrInvalidIntent, intent.Source)
		}
		if intent.Source == models.PaymentSourceProlong && intent.ExistingOrderID == "" {
			return fmt.Errorf("%w: prolong requires an existing order id", ErrInvalidIntent)
		}
	case models.PaymentSourceCart:
	case models.PaymentSourceDeposit:
		if intent.DepositAmount <= 0 {
			return fmt.Errorf("%w: deposit amount must be positive", ErrInvalidIntent)
		}
		if intent.Method == models.PaymentMethodWallet {
			return fmt.Errorf("%w: a wallet cannot fund its own deposit", ErrInvalidIntent)
		}
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidIntent, intent.Source)
	}

	if intent.Method != models.PaymentMethodExternal && intent.Method != models.PaymentMethodWallet {
		return fmt.Errorf("%w: unknown method %q", ErrInvalidIntent, intent.Method)
	}
	return nil
}

// resolveAmount computes the charge for the intent: tier price times clamped
// quantity for purchases, the authoritative cart total for checkout, the given
// amount for deposits.
func (ps *PaymentService) resolveAmount(ctx context.Context, scope string, intent models.PaymentIntent) (float64, int, error) {
	switch intent.Source {
	case models.PaymentSourceDirect, models.PaymentSourceProlong:
		quantity, err := ClampQuantity(*intent.Tier, intent.Quantity)
		if err != nil {
			ps.hub.Publish(scope, notify.LevelError, notify.CodeStockLimit,
				fmt.Sprintf("Only %d of %s available", intent.Tier.AvailableQuantity, intent.Tier.Key()))
			return 0, 0, err
		}
		return intent.Tier.Price * float64(quantity), quantity, nil

	case models.PaymentSourceCart:
		if err := ps.cart.Refresh(ctx, scope); err != nil {
			return 0, 0, err
		}
		total := ps.cart.Total(scope)
		if total <= 0 {
			return 0, 0, fmt.Errorf("%w: cart is empty", ErrInvalidIntent)
		}
		return total, 0, nil

	default: // deposit
		return intent.DepositAmount, 0, nil
	}
}

func (ps *PaymentService) payExternal(ctx context.Context, scope, token string, account models.Account, intent models.PaymentIntent, amount float64, quantity int) (models.PaymentOutcome, error) {
	req := backend.CreatePaymentRequest{
		Method:   intent.Method,
		Source:   intent.Source,
		Quantity: quantity,
		Amount:   amount,
	}
	if intent.Tier != nil {
		req.ProductID = intent.Tier.ProductID
		req.ProviderID = intent.Tier.ProviderID
	}
	if intent.Source == models.PaymentSourceProlong {
		req.IsProlong = true
		req.ExistingOrderID = intent.ExistingOrderID
	}

	url, ref, err := ps.backend.CreatePayment(ctx, token, req)
	if err != nil {
		util.PaymentsFailedTotal.WithLabelValues("create_error").Inc()
		ps.hub.Publish(scope, notify.LevelError, notify.CodePaymentFailed, "Could not start payment")
		return models.PaymentOutcome{}, err
	}

	// The reference must be durable before the browser leaves the page:
	// overwrite whatever the slot held, last writer wins.
	if err := ps.store.Set(ctx, scope, storage.KeyPendingOrderRef, ref); err != nil {
		return models.PaymentOutcome{}, fmt.Errorf("failed to persist pending order reference: %w", err)
	}

	ps.logger.Info("External payment started",
		zap.String("scope", scope),
		zap.String("order_ref", ref),
		zap.String("source", intent.Source))

	if err := ps.events.PublishPaymentStarted(ctx, account.ID, intent.Method, intent.Source, amount, ref); err != nil {
		ps.logger.Error("Failed to publish PaymentStarted event", zap.Error(err))
	}

	return models.PaymentOutcome{
		Status:      models.OutcomeRedirect,
		RedirectURL: url,
		OrderRef:    ref,
	}, nil
}

func (ps *PaymentService) payWallet(ctx context.Context, scope, token string, account models.Account, intent models.PaymentIntent, amount float64, quantity int) (models.PaymentOutcome, error) {
	if account.WalletBalance < amount {
		util.PaymentsFailedTotal.WithLabelValues("insufficient_funds").Inc()
		return models.PaymentOutcome{}, ErrInsufficientFunds
	}

	req := backend.WalletDebitRequest{
		Amount:   amount,
		Quantity: quantity,
	}
	if intent.Tier != nil {
		req.ProductID = intent.Tier.ProductID
		req.ProviderID = intent.Tier.ProviderID
		// The entitlement the backend should grant: additive flow plus a fresh
		// expiry. For prolong the backend extends the existing order with it.
		req.Flow = intent.Tier.FlowBytes() * int64(quantity)
		req.Expire = time.Now().Add(ps.validity).Unix()
	}
	if intent.Source == models.PaymentSourceProlong {
		req.IsProlong = true
		req.ExistingOrderID = intent.ExistingOrderID
	}

	order, balance, err := ps.backend.WalletDebit(ctx, token, req)
	if err != nil {
		util.PaymentsFailedTotal.WithLabelValues("debit_error").Inc()
		ps.hub.Publish(scope, notify.LevelError, notify.CodePaymentFailed, "Wallet payment failed")
		return models.PaymentOutcome{}, err
	}

	ps.sessions.SetWalletBalance(scope, balance)
	if intent.Source == models.PaymentSourceCart {
		if err := ps.cart.Refresh(ctx, scope); err != nil {
			ps.logger.Warn("Cart refresh after checkout failed",
				zap.String("scope", scope), zap.Error(err))
		}
	}

	util.PaymentsCompletedTotal.Inc()
	ps.hub.Publish(scope, notify.LevelSuccess, notify.CodeWalletDebited, "Payment completed")
	if err := ps.events.PublishWalletDebited(ctx, account.ID, amount, balance); err != nil {
		ps.logger.Error("Failed to publish WalletDebited event", zap.Error(err))
	}

	return models.PaymentOutcome{
		Status:  models.OutcomeCompleted,
		Order:   &order,
		Balance: balance,
	}, nil
}

// Orders fetches a page of the account's orders. limit falls back to the
// configured page size.
func (ps *PaymentService) Orders(ctx context.Context, scope string, page, limit int, orderType string) ([]models.Order, error) {
	token, err := ps.sessions.Token(ctx, scope)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = ps.pageSize
	}
	return ps.backend.Orders(ctx, token, page, limit, orderType)
}

// WalletBalance fetches the authoritative balance and refreshes the cached
// session value.
func (ps *PaymentService) WalletBalance(ctx context.Context, scope string) (float64, error) {
	token, err := ps.sessions.Token(ctx, scope)
	if err != nil {
		return 0, err
	}
	balance, err := ps.backend.WalletBalance(ctx, token)
	if err != nil {
		return 0, err
	}
	ps.sessions.SetWalletBalance(scope, balance)
	return balance, nil
}
