package service

import (
	"context"
	"errors"
	"fmt"

	"storefront-gateway/internal/storage"
	"storefront-gateway/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeviceService hands out the stable anonymous device identifier for a scope.
// The id is generated once and persisted before it is ever returned; it only
// disappears when the underlying storage is cleared.
type DeviceService struct {
	store  storage.Store
	logger *zap.Logger
}

func NewDeviceService(store storage.Store) *DeviceService {
	return &DeviceService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// GetOrCreateDeviceID returns the stored device id for the scope, generating
// and persisting a new one on first use. Repeated calls within the same scope
// always return the same id. Storage failures propagate: without a device id
// the guest flow cannot run at all.
func (ds *DeviceService) GetOrCreateDeviceID(ctx context.Context, scope string) (string, error) {
	id, err := ds.store.Get(ctx, scope, storage.KeyDeviceID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	id = uuid.New().String()
	if err := ds.store.Set(ctx, scope, storage.KeyDeviceID, id); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}

	ds.logger.Info("Device id created", zap.String("scope", scope))
	return id, nil
}
