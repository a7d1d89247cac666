package service

import (
	"context"
	"errors"

	"storefront-gateway/internal/backend"
	"storefront-gateway/internal/models"
	"storefront-gateway/internal/util"

	"go.uber.org/zap"
)

// ErrInsufficientStock signals that a requested quantity exceeded a tier's
// available quantity. The quantity is snapped to the cap, never left invalid.
var ErrInsufficientStock = errors.New("insufficient stock")

// PricingService fetches priced tiers and applies the selection rules. Tiers
// are an immutable snapshot for the session viewing them; nothing is mutated
// locally.
type PricingService struct {
	backend  *backend.Client
	sessions *SessionService
	logger   *zap.Logger
}

func NewPricingService(client *backend.Client, sessions *SessionService) *PricingService {
	return &PricingService{
		backend:  client,
		sessions: sessions,
		logger:   util.GetLogger(),
	}
}

// GetTiers fetches the tiers for a (product, provider) pair.
func (ps *PricingService) GetTiers(ctx context.Context, scope, productID, providerID string) ([]models.Tier, error) {
	ctx, span := util.StartSpan(ctx, "PricingService.GetTiers")
	defer span.End()

	token, err := ps.sessions.Token(ctx, scope)
	if err != nil {
		return nil, err
	}
	return ps.backend.GetTiers(ctx, token, productID, providerID)
}

// DefaultTier returns the index of the tier presented as the default
// selection: the first popular tier, otherwise the first tier. Returns -1 for
// an empty list.
func DefaultTier(tiers []models.Tier) int {
	if len(tiers) == 0 {
		return -1
	}
	for i, t := range tiers {
		if t.IsPopular {
			return i
		}
	}
	return 0
}

// ClampQuantity bounds quantity to [1, tier.AvailableQuantity]. When the
// request exceeds the cap the capped value is returned together with
// ErrInsufficientStock so the caller can emit the stock-limit signal.
func ClampQuantity(tier models.Tier, quantity int) (int, error) {
	if quantity < 1 {
		quantity = 1
	}
	if tier.AvailableQuantity > 0 && quantity > tier.AvailableQuantity {
		return tier.AvailableQuantity, ErrInsufficientStock
	}
	return quantity, nil
}
