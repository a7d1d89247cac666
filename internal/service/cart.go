package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront-gateway/internal/backend"
	"storefront-gateway/internal/models"
	"storefront-gateway/internal/notify"
	"storefront-gateway/internal/util"
	"storefront-gateway/internal/worker"

	"go.uber.org/zap"
)

// ErrItemNotFound is returned for cart mutations on an unknown line.
var ErrItemNotFound = errors.New("cart item not found")

// CartService holds the optimistic local cart per scope and reconciles it with
// the backend. Quantity edits are applied locally at once and synced remotely
// through a per-item debounce window, so only the last value within the window
// is ever sent. Every remote failure ends in a notification plus a full
// authoritative re-fetch; local state is never left inconsistent for more than
// one failed round-trip.
type CartService struct {
	backend  *backend.Client
	sessions *SessionService
	hub      *notify.Hub
	logger   *zap.Logger

	syncDebounce *worker.Debouncer
	listDebounce *worker.Debouncer

	mu     sync.Mutex
	carts  map[string][]models.CartItem
	loaded map[string]bool
}

func NewCartService(client *backend.Client, sessions *SessionService, hub *notify.Hub, syncDelay, listDelay time.Duration) *CartService {
	return &CartService{
		backend:      client,
		sessions:     sessions,
		hub:          hub,
		logger:       util.GetLogger(),
		syncDebounce: worker.NewDebouncer(syncDelay),
		listDebounce: worker.NewDebouncer(listDelay),
		carts:        make(map[string][]models.CartItem),
		loaded:       make(map[string]bool),
	}
}

func itemKey(scope, itemID string) string {
	return scope + "/" + itemID
}

// Add puts quantity units of a tier into the cart. A line already holding the
// same (product, provider, tier key) is updated with the summed quantity
// instead of creating a duplicate row. Quantities beyond the tier's available
// stock are snapped to the cap; the returned bool reports that a clamp
// happened and a stock-limit notification has been emitted.
func (cs *CartService) Add(ctx context.Context, scope string, tier models.Tier, quantity int) (models.CartItem, bool, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Add")
	defer span.End()

	token, err := cs.sessions.Token(ctx, scope)
	if err != nil {
		return models.CartItem{}, false, err
	}
	if err := cs.ensureLoaded(ctx, scope, token); err != nil {
		return models.CartItem{}, false, err
	}

	tierKey := tier.Key()

	cs.mu.Lock()
	existing := cs.findLocked(scope, func(it models.CartItem) bool {
		return it.ProductID == tier.ProductID && it.ProviderID == tier.ProviderID && it.TierKey == tierKey
	})
	var current int
	if existing != nil {
		current = existing.Quantity
	}
	cs.mu.Unlock()

	desired, clampErr := ClampQuantity(tier, current+quantity)
	clamped := clampErr != nil
	if clamped {
		cs.hub.Publish(scope, notify.LevelError, notify.CodeStockLimit,
			fmt.Sprintf("Only %d of %s available", tier.AvailableQuantity, tierKey))
	}

	util.CartItemsAddedTotal.Inc()

	if existing != nil {
		if desired == current {
			// Already at the cap; nothing to send.
			return *existing, clamped, nil
		}
		item, err := cs.applyQuantity(ctx, scope, token, existing.ID, desired)
		if err != nil {
			return models.CartItem{}, clamped, err
		}
		return item, clamped, nil
	}

	req := backend.CartItemRequest{
		ProductID:  tier.ProductID,
		ProviderID: tier.ProviderID,
		TierKey:    tierKey,
		Quantity:   desired,
		UnitPrice:  tier.Price,
		Amount:     tier.Price * float64(desired),
	}
	item, err := cs.backend.CreateCartItem(ctx, token, req)
	if err != nil {
		cs.failAndRefetch(scope, "Could not add item to cart")
		return models.CartItem{}, clamped, err
	}

	cs.mu.Lock()
	cs.carts[scope] = append(cs.carts[scope], item)
	cs.mu.Unlock()

	return item, clamped, nil
}

// applyQuantity performs a synchronous remote quantity update (used by the
// merge path of Add, which is not debounced) and mirrors it locally.
func (cs *CartService) applyQuantity(ctx context.Context, scope, token, itemID string, quantity int) (models.CartItem, error) {
	cs.mu.Lock()
	it := cs.findLocked(scope, func(i models.CartItem) bool { return i.ID == itemID })
	if it == nil {
		cs.mu.Unlock()
		return models.CartItem{}, ErrItemNotFound
	}
	it.Quantity = quantity
	it.Recalculate()
	updated := *it
	cs.mu.Unlock()

	if err := cs.backend.UpdateCartItem(ctx, token, itemID, updated.Quantity, updated.Amount); err != nil {
		cs.failAndRefetch(scope, "Could not update cart")
		return models.CartItem{}, err
	}
	return updated, nil
}

// UpdateQuantity applies the new quantity optimistically, recomputing the line
// amount from its own unit price, then schedules a debounced remote sync keyed
// by item. A second edit inside the window replaces the pending one; only the
// latest quantity is ever sent.
func (cs *CartService) UpdateQuantity(ctx context.Context, scope, itemID string, quantity int) (models.CartItem, error) {
	token, err := cs.sessions.Token(ctx, scope)
	if err != nil {
		return models.CartItem{}, err
	}
	if err := cs.ensureLoaded(ctx, scope, token); err != nil {
		return models.CartItem{}, err
	}

	if quantity < 1 {
		quantity = 1
	}

	cs.mu.Lock()
	it := cs.findLocked(scope, func(i models.CartItem) bool { return i.ID == itemID })
	if it == nil {
		cs.mu.Unlock()
		return models.CartItem{}, ErrItemNotFound
	}
	it.Quantity = quantity
	it.Recalculate()
	updated := *it
	cs.mu.Unlock()

	replaced := cs.syncDebounce.Schedule(itemKey(scope, itemID), func() {
		syncCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := cs.backend.UpdateCartItem(syncCtx, token, itemID, updated.Quantity, updated.Amount); err != nil {
			util.CartSyncsTotal.WithLabelValues("error").Inc()
			cs.logger.Warn("Cart sync failed, re-fetching",
				zap.String("scope", scope),
				zap.String("item_id", itemID),
				zap.Error(err))
			cs.failAndRefetch(scope, "Could not sync cart changes")
			return
		}
		util.CartSyncsTotal.WithLabelValues("ok").Inc()
	})
	if replaced {
		util.CartSyncsCoalescedTotal.Inc()
	}

	return updated, nil
}

// Remove deletes a line remotely and, on success, locally. Any pending
// quantity sync for the line is dropped first.
func (cs *CartService) Remove(ctx context.Context, scope, itemID string) error {
	token, err := cs.sessions.Token(ctx, scope)
	if err != nil {
		return err
	}

	cs.syncDebounce.Cancel(itemKey(scope, itemID))

	if err := cs.backend.DeleteCartItem(ctx, token, itemID); err != nil {
		cs.failAndRefetch(scope, "Could not remove item from cart")
		return err
	}

	cs.mu.Lock()
	items := cs.carts[scope]
	for i, it := range items {
		if it.ID == itemID {
			cs.carts[scope] = append(items[:i], items[i+1:]...)
			break
		}
	}
	cs.mu.Unlock()
	return nil
}

// List returns the current cart. Once a cart is loaded, bursts of List calls
// coalesce into a single debounced background refresh; the first call per
// scope fetches synchronously.
func (cs *CartService) List(ctx context.Context, scope string) ([]models.CartItem, error) {
	if _, err := cs.sessions.Token(ctx, scope); err != nil {
		return nil, err
	}

	cs.mu.Lock()
	loaded := cs.loaded[scope]
	cs.mu.Unlock()

	if !loaded {
		if err := cs.Refresh(ctx, scope); err != nil {
			return nil, err
		}
		return cs.snapshot(scope), nil
	}

	cs.listDebounce.Schedule(scope, func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := cs.Refresh(refreshCtx, scope); err != nil {
			cs.logger.Warn("Background cart refresh failed",
				zap.String("scope", scope), zap.Error(err))
		}
	})

	return cs.snapshot(scope), nil
}

// Refresh replaces the local cart with the backend's authoritative state.
func (cs *CartService) Refresh(ctx context.Context, scope string) error {
	token, err := cs.sessions.Token(ctx, scope)
	if err != nil {
		return err
	}

	items, err := cs.backend.GetCart(ctx, token)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	cs.carts[scope] = items
	cs.loaded[scope] = true
	cs.mu.Unlock()
	return nil
}

// Total sums the line amounts of the local cart.
func (cs *CartService) Total(scope string) float64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var total float64
	for _, it := range cs.carts[scope] {
		total += it.Amount
	}
	return total
}

// Invalidate drops the local cart so the next access re-fetches. Used after
// logout and account conversion.
func (cs *CartService) Invalidate(scope string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	delete(cs.carts, scope)
	delete(cs.loaded, scope)
}

func (cs *CartService) ensureLoaded(ctx context.Context, scope, token string) error {
	cs.mu.Lock()
	loaded := cs.loaded[scope]
	cs.mu.Unlock()

	if loaded {
		return nil
	}

	items, err := cs.backend.GetCart(ctx, token)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	cs.carts[scope] = items
	cs.loaded[scope] = true
	cs.mu.Unlock()
	return nil
}

// snapshot returns a copy of the scope's cart so callers never hold a
// reference into the live slice.
func (cs *CartService) snapshot(scope string) []models.CartItem {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	items := cs.carts[scope]
	out := make([]models.CartItem, len(items))
	copy(out, items)
	return out
}

// findLocked returns a pointer into the scope's cart slice; callers hold cs.mu.
func (cs *CartService) findLocked(scope string, match func(models.CartItem) bool) *models.CartItem {
	items := cs.carts[scope]
	for i := range items {
		if match(items[i]) {
			return &items[i]
		}
	}
	return nil
}

// failAndRefetch notifies the user and restores the authoritative cart after
// a failed round-trip.
func (cs *CartService) failAndRefetch(scope, message string) {
	cs.hub.Publish(scope, notify.LevelError, notify.CodeCartSyncFailed, message)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cs.Refresh(ctx, scope); err != nil {
		cs.logger.Error("Cart re-fetch after failure failed",
			zap.String("scope", scope), zap.Error(err))
	}
}
