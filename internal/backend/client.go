package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"storefront-gateway/internal/models"
	"storefront-gateway/internal/util"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized covers 401 and 404 on session validation: both mean the
	// stored token no longer identifies an account.
	ErrUnauthorized = errors.New("backend: unauthorized")
	ErrNotFound     = errors.New("backend: not found")
)

// Client consumes the remote commerce backend REST API. All loosely-shaped
// payloads are normalized here; callers only ever see canonical models.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a backend client with a hard request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	httpc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpc,
		logger: util.GetLogger(),
	}
}

func (c *Client) request(ctx context.Context, token string) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	return req
}

func observe(op string, start time.Time, status int) {
	util.BackendRequestDuration.WithLabelValues(op, strconv.Itoa(status)).
		Observe(time.Since(start).Seconds())
}

func statusErr(op string, resp *resty.Response) error {
	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("backend %s: unexpected status %d", op, resp.StatusCode())
	}
}

/// CreateOrFetchGuest is the idempotent guest bootstrap: the backend creates a
// guest account on the first call per device id and returns the same account
// afterwards. The client cannot tell create from fetch and must not assume either.
func (c *Client) CreateOrFetchGuest(ctx context.Context, deviceID string) (models.Account, string, error) {
	start := time.Now()

	var dto sessionDTO
	resp, err := c.request(ctx, "").
		SetBody(map[string]string{"device_id": deviceID}).
		SetResult(&dto).
		Post("/api/guest")
	if err != nil {
		return models.Account{}, "", fmt.Errorf("create-or-fetch guest: %w", err)
	}
	observe("guest", start, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return models.Account{}, "", statusErr("guest", resp)
	}

	account, token := dto.normalize()
	if token == "" {
		return models.Account{}, "", fmt.Errorf("create-or-fetch guest: response carried no session token")
	}
	return account, token, nil
}

// ValidateSession is the lightweight "who am I" call.
func (c *Client) ValidateSession(ctx context.Context, token string) (models.Account, error) {
	start := time.Now()

	var dto sessionDTO
	resp, err := c.request(ctx, token).
		SetResult(&dto).
		Get("/api/me")
	if err != nil {
		return models.Account{}, fmt.Errorf("validate session: %w", err)
	}
	observe("me", start, resp.StatusCode())

	switch resp.StatusCode() {
	case http.StatusOK:
		account, _ := dto.normalize()
		return account, nil
	case http.StatusUnauthorized, http.StatusNotFound:
		// A vanished account and an expired token look the same from here.
		return models.Account{}, ErrUnauthorized
	default:
		return models.Account{}, statusErr("me", resp)
	}
}

// ConvertGuest upgrades the guest bound to token into a credentialed account.
// The backend preserves account id, cart, orders and wallet balance.
func (c *Client) ConvertGuest(ctx context.Context, token, email, password string) (models.Account, string, error) {
	start := time.Now()

	var dto sessionDTO
	resp, err := c.request(ctx, token).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&dto).
		Post("/api/guest/convert")
	if err != nil {
		return models.Account{}, "", fmt.Errorf("convert guest: %w", err)
	}
	observe("convert", start, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK {
		return models.Account{}, "", statusErr("convert", resp)
	}

	account, newToken := dto.normalize()
	if newToken == "" {
		newToken = token
	}
	return account, newToken, nil
}

// GetTiers fetches the priced tiers for a (product, provider) pair.
func (c *Client) GetTiers(ctx context.Context, token, productID, providerID string) ([]models.Tier, error) {
	start := time.Now()

	var dtos []tierDTO
	resp, err := c.request(ctx, token).
		SetQueryParam("product_id", productID).
		SetQueryParam("provider_id", providerID).
		SetResult(&dtos).
		Get("/api/tiers")
	if err != nil {
		return nil, fmt.Errorf("get tiers: %w", err)
	}
	observe("tiers", start, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK {
		return nil, statusErr("tiers", resp)
	}

	tiers := make([]models.Tier, 0, len(dtos))
	for _, dto := range dtos {
		tiers = append(tiers, dto.normalize(productID, providerID))
	}
	return tiers, nil
}

// GetCart fetches the authoritative cart.
func (c *Client) GetCart(ctx context.Context, token string) ([]models.CartItem, error) {
	start := time.Now()

	var dtos []cartItemDTO
	resp, err := c.request(ctx, token).
		SetResult(&dtos).
		Get("/api/cart")
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	observe("cart_list", start, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK {
		return nil, statusErr("cart", resp)
	}

	items := make([]models.CartItem, 0, len(dtos))
	for _, dto := range dtos {
		items = append(items, dto.normalize())
	}
	return items, nil
}

// CartItemRequest is the write shape for cart create/update calls.
type CartItemRequest struct {
	ProductID  string  `json:"product_id"`
	ProviderID string  `json:"provider_id"`
	TierKey    string  `json:"tier_key"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	Amount     float64 `json:"amount"`
}

// CreateCartItem creates a cart line.
func (c *Client) CreateCartItem(ctx context.Context, token string, req CartItemRequest) (models.CartItem, error) {
	start := time.Now()

	var dto cartItemDTO
	resp, err := c.request(ctx, token).
		SetBody(req).
		SetResult(&dto).
		Post("/api/cart/items")
	if err != nil {
		return models.CartItem{}, fmt.Errorf("create cart item: %w", err)
	}
	observe("cart_create", start, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return models.CartItem{}, statusErr("cart item", resp)
	}
	return dto.normalize(), nil
}

// UpdateCartItem replaces a line's quantity.
func (c *Client) UpdateCartItem(ctx context.Context, token, itemID string, quantity int, amount float64) error {
	start := time.Now()

	resp, err := c.request(ctx, token).
		SetBody(map[string]interface{}{"quantity": quantity, "amount": amount}).
		Put("/api/cart/items/" + itemID)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	observe("cart_update", start, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return statusErr("cart item", resp)
	}
	return nil
}

// DeleteCartItem removes a line.
func (c *Client) DeleteCartItem(ctx context.Context, token, itemID string) error {
	start := time.Now()

	resp, err := c.request(ctx, token).
		Delete("/api/cart/items/" + itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	observe("cart_delete", start, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return statusErr("cart item", resp)
	}
	return nil
}

// CreatePaymentRequest is the write shape for external payment intents.
type CreatePaymentRequest struct {
	ProductID       string  `json:"product_id,omitempty"`
	ProviderID      string  `json:"provider_id,omitempty"`
	Quantity        int     `json:"quantity,omitempty"`
	Method          string  `json:"method"`
	Source          string  `json:"source"`
	IsProlong       bool    `json:"is_prolong,omitempty"`
	ExistingOrderID string  `json:"existing_order_id,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
}

// CreatePayment requests a redirect URL plus an opaque order reference.
func (c *Client) CreatePayment(ctx context.Context, token string, req CreatePaymentRequest) (string, string, error) {
	start := time.Now()

	var dto paymentDTO
	resp, err := c.request(ctx, token).
		SetBody(req).
		SetResult(&dto).
		Post("/api/payments")
	if err != nil {
		return "", "", fmt.Errorf("create payment: %w", err)
	}
	observe("payment_create", start, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return "", "", statusErr("payment", resp)
	}

	url, ref := dto.normalize()
	if url == "" || ref == "" {
		return "", "", fmt.Errorf("create payment: response missing url or order reference")
	}
	return url, ref, nil
}

// WalletDebitRequest is the write shape for the synchronous wallet debit.
type WalletDebitRequest struct {
	ProductID       string  `json:"product_id,omitempty"`
	ProviderID      string  `json:"provider_id,omitempty"`
	Quantity        int     `json:"quantity,omitempty"`
	Amount          float64 `json:"amount"`
	Flow            int64   `json:"flow,omitempty"`
	Expire          int64   `json:"expire,omitempty"`
	IsProlong       bool    `json:"is_prolong,omitempty"`
	ExistingOrderID string  `json:"existing_order_id,omitempty"`
}

// WalletDebit performs the debit synchronously, no redirect involved.
func (c *Client) WalletDebit(ctx context.Context, token string, req WalletDebitRequest) (models.Order, float64, error) {
	start := time.Now()

	var dto walletDebitDTO
	resp, err := c.request(ctx, token).
		SetBody(req).
		SetResult(&dto).
		Post("/api/wallet/debit")
	if err != nil {
		return models.Order{}, 0, fmt.Errorf("wallet debit: %w", err)
	}
	observe("wallet_debit", start, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK {
		return models.Order{}, 0, statusErr("wallet debit", resp)
	}
	return dto.Order.normalize(), dto.balance(), nil
}

// OrderStatus polls the status of an externally paid order.
func (c *Client) OrderStatus(ctx context.Context, token, ref string) (string, error) {
	start := time.Now()

	var dto orderStatusDTO
	resp, err := c.request(ctx, token).
		SetResult(&dto).
		Get("/api/orders/status/" + ref)
	if err != nil {
		return "", fmt.Errorf("order status: %w", err)
	}
	observe("order_status", start, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK {
		return "", statusErr("order status", resp)
	}
	return dto.normalize(), nil
}

// Orders fetches a page of orders. orderType filters by backend order kind and
// may be empty.
func (c *Client) Orders(ctx context.Context, token string, page, limit int, orderType string) ([]models.Order, error) {
	start := time.Now()

	req := c.request(ctx, token).
		SetQueryParam("page", strconv.Itoa(page)).
		SetQueryParam("limit", strconv.Itoa(limit))
	if orderType != "" {
		req.SetQueryParam("type", orderType)
	}

	var dtos []orderDTO
	resp, err := req.SetResult(&dtos).Get("/api/orders")
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	observe("orders", start, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK {
		return nil, statusErr("orders", resp)
	}

	orders := make([]models.Order, 0, len(dtos))
	for _, dto := range dtos {
		orders = append(orders, dto.normalize())
	}
	return orders, nil
}

// WalletBalance fetches the current wallet balance.
func (c *Client) WalletBalance(ctx context.Context, token string) (float64, error) {
	start := time.Now()

	var dto walletDTO
	resp, err := c.request(ctx, token).
		SetResult(&dto).
		Get("/api/wallet")
	if err != nil {
		return 0, fmt.Errorf("wallet balance: %w", err)
	}
	observe("wallet", start, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK {
		return 0, statusErr("wallet", resp)
	}
	return dto.balance(), nil
}
