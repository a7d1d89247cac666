package storage

import (
	"context"
	"errors"
	"fmt"

	"storefront-gateway/config"
)

// Well-known client-state keys. One value per key per device scope; writers
// rely on the debounce/flag discipline in the services, not on locks.
const (
	KeyDeviceID        = "device_id"
	KeySessionToken    = "session_token"
	KeyLoggedOut       = "logged_out"
	KeyPendingOrderRef = "pending_order_ref"
)

// ErrNotFound is returned when a key has no value in the given scope.
var ErrNotFound = errors.New("storage: key not found")

// Store is the durable client-state store. It stands in for the browser-local
// storage the UI would otherwise own: small string values scoped per device
// installation.
type Store interface {
	Get(ctx context.Context, scope, key string) (string, error)
	Set(ctx context.Context, scope, key, value string) error
	Delete(ctx context.Context, scope, key string) error
	Close() error
}

// Open constructs the store selected by config. A store that cannot be opened
// is a fatal initialization error for the whole gateway.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	case "postgres":
		return NewPostgresStore(cfg.PostgresURL)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
