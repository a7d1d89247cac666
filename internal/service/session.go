package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"storefront-gateway/internal/backend"
	"storefront-gateway/internal/broker"
	"storefront-gateway/internal/models"
	"storefront-gateway/internal/storage"
	"storefront-gateway/internal/util"

	"go.uber.org/zap"
)

var (
	// ErrNotGuest is returned when conversion is attempted on an account that
	// already has credentials. Conversion is one-way and happens at most once.
	ErrNotGuest = errors.New("account is not a guest")

	// ErrLoggedOut is returned when automatic guest initialization is
	// suppressed by an explicit logout. An explicit guest/login action clears it.
	ErrLoggedOut = errors.New("user has explicitly logged out")
)

// session is the per-scope live state. Its mutex is the concurrency guard for
// initialization: concurrent callers serialize on it, so a second caller finds
// the first one's stored token instead of issuing a duplicate guest create.
type session struct {
	mu      sync.Mutex
	account *models.Account
	token   string
}

// SessionService creates, reuses and revalidates the session bound to a
// device scope, and performs the one-way guest upgrade.
type SessionService struct {
	store   storage.Store
	backend *backend.Client
	devices *DeviceService
	events  *broker.EventPublisher
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewSessionService(store storage.Store, client *backend.Client, devices *DeviceService, events *broker.EventPublisher) *SessionService {
	return &SessionService{
		store:    store,
		backend:  client,
		devices:  devices,
		events:   events,
		logger:   util.GetLogger(),
		sessions: make(map[string]*session),
	}
}

func (ss *SessionService) scopeSession(scope string) *session {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	sess, ok := ss.sessions[scope]
	if !ok {
		sess = &session{}
		ss.sessions[scope] = sess
	}
	return sess
}

// EnsureSession returns the account bound to the scope, establishing a guest
// session when none exists. explicit marks a deliberate user action: it clears
// the logged-out flag, whereas an automatic call is refused while the flag is
// set.
func (ss *SessionService) EnsureSession(ctx context.Context, scope string, explicit bool) (models.Account, error) {
	sess := ss.scopeSession(scope)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return ss.ensureLocked(ctx, scope, sess, explicit)
}

func (ss *SessionService) ensureLocked(ctx context.Context, scope string, sess *session, explicit bool) (models.Account, error) {
	if sess.account != nil {
		return *sess.account, nil
	}

	if explicit {
		if err := ss.store.Delete(ctx, scope, storage.KeyLoggedOut); err != nil {
			return models.Account{}, fmt.Errorf("failed to clear logged-out flag: %w", err)
		}
	} else {
		_, err := ss.store.Get(ctx, scope, storage.KeyLoggedOut)
		if err == nil {
			return models.Account{}, ErrLoggedOut
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return models.Account{}, fmt.Errorf("failed to read logged-out flag: %w", err)
		}
	}

	// Try to reuse a stored token first.
	token, err := ss.store.Get(ctx, scope, storage.KeySessionToken)
	if err == nil {
		account, verr := ss.backend.ValidateSession(ctx, token)
		if verr == nil {
			sess.account = &account
			sess.token = token
			util.SessionReuseTotal.Inc()
			return account, nil
		}
		if !errors.Is(verr, backend.ErrUnauthorized) {
			return models.Account{}, verr
		}
		// Stored token is dead; discard and fall through to the guest flow.
		if derr := ss.store.Delete(ctx, scope, storage.KeySessionToken); derr != nil {
			return models.Account{}, fmt.Errorf("failed to discard stale token: %w", derr)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return models.Account{}, fmt.Errorf("failed to read session token: %w", err)
	}

	deviceID, err := ss.devices.GetOrCreateDeviceID(ctx, scope)
	if err != nil {
		return models.Account{}, err
	}

	account, token, err := ss.backend.CreateOrFetchGuest(ctx, deviceID)
	if err != nil {
		return models.Account{}, err
	}

	if err := ss.store.Set(ctx, scope, storage.KeySessionToken, token); err != nil {
		return models.Account{}, fmt.Errorf("failed to persist session token: %w", err)
	}

	sess.account = &account
	sess.token = token
	util.GuestSessionsCreatedTotal.Inc()
	ss.logger.Info("Guest session established",
		zap.String("scope", scope),
		zap.String("account_id", account.ID))

	if err := ss.events.PublishGuestCreated(ctx, account.ID, deviceID); err != nil {
		ss.logger.Error("Failed to publish GuestCreated event", zap.Error(err))
	}

	return account, nil
}

// Convert upgrades the scope's guest to a credentialed account. The backend
// keeps the account id, cart, orders and wallet balance; only the session
// token and the guest flag change. Callers refresh dependent views afterwards.
func (ss *SessionService) Convert(ctx context.Context, scope, email, password string) (models.Account, error) {
	sess := ss.scopeSession(scope)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	current, err := ss.ensureLocked(ctx, scope, sess, false)
	if err != nil {
		return models.Account{}, err
	}
	if !current.IsGuest {
		return models.Account{}, ErrNotGuest
	}

	account, token, err := ss.backend.ConvertGuest(ctx, sess.token, email, password)
	if err != nil {
		return models.Account{}, err
	}

	if err := ss.store.Set(ctx, scope, storage.KeySessionToken, token); err != nil {
		return models.Account{}, fmt.Errorf("failed to persist session token: %w", err)
	}

	sess.account = &account
	sess.token = token
	util.AccountConversionsTotal.Inc()
	ss.logger.Info("Guest converted",
		zap.String("scope", scope),
		zap.String("account_id", account.ID))

	if err := ss.events.PublishGuestConverted(ctx, account.ID, email); err != nil {
		ss.logger.Error("Failed to publish GuestConverted event", zap.Error(err))
	}

	return account, nil
}

// Logout drops the session and sets the logged-out flag so the guest flow is
// not re-entered automatically. The device id survives.
func (ss *SessionService) Logout(ctx context.Context, scope string) error {
	sess := ss.scopeSession(scope)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := ss.store.Delete(ctx, scope, storage.KeySessionToken); err != nil {
		return fmt.Errorf("failed to clear session token: %w", err)
	}
	if err := ss.store.Set(ctx, scope, storage.KeyLoggedOut, "1"); err != nil {
		return fmt.Errorf("failed to set logged-out flag: %w", err)
	}

	sess.account = nil
	sess.token = ""
	return nil
}

// Token returns the session token for the scope, establishing a session when
// needed.
func (ss *SessionService) Token(ctx context.Context, scope string) (string, error) {
	sess := ss.scopeSession(scope)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, err := ss.ensureLocked(ctx, scope, sess, false); err != nil {
		return "", err
	}
	return sess.token, nil
}

// Account returns the cached account for the scope, establishing a session
// when needed.
func (ss *SessionService) Account(ctx context.Context, scope string) (models.Account, error) {
	return ss.EnsureSession(ctx, scope, false)
}

// SetWalletBalance updates the cached wallet balance after a debit or deposit
// resolved.
func (ss *SessionService) SetWalletBalance(scope string, balance float64) {
	sess := ss.scopeSession(scope)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.account != nil {
		sess.account.WalletBalance = balance
	}
}
