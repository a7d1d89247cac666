package models

import (
	"fmt"
	"time"
)

// Account represents the backend account bound to the current session.
// Guest accounts have no email; conversion is one-way.
type Account struct {
	ID            string  `json:"id"`
	IsGuest       bool    `json:"is_guest"`
	Email         string  `json:"email,omitempty"`
	WalletBalance float64 `json:"wallet_balance"`
}

// Tier is a priced unit of product entitlement offered by a provider.
// A fetched tier is an immutable snapshot for the session viewing it.
type Tier struct {
	ProductID         string  `json:"product_id"`
	ProviderID        string  `json:"provider_id"`
	UserDataAmount    int     `json:"user_data_amount"`
	Unit              string  `json:"unit"`
	Price             float64 `json:"price"`
	AvailableQuantity int     `json:"available_quantity"`
	IsPopular         bool    `json:"is_popular"`
}

// Key identifies a tier within a provider: amount plus unit, e.g. "5GB".
func (t Tier) Key() string {
	return fmt.Sprintf("%d%s", t.UserDataAmount, t.Unit)
}

// FlowBytes is the entitlement size of one tier unit expressed in bytes.
func (t Tier) FlowBytes() int64 {
	return int64(t.UserDataAmount) * UnitBytes(t.Unit)
}

// UnitBytes maps a data unit to its byte multiplier. Unknown units map to zero
// so a bogus unit never produces a bogus entitlement.
func UnitBytes(unit string) int64 {
	switch unit {
	case "KB":
		return 1 << 10
	case "MB":
		return 1 << 20
	case "GB":
		return 1 << 30
	case "TB":
		return 1 << 40
	default:
		return 0
	}
}

// CartItem is a cart line, unique per (product, provider, tier key).
type CartItem struct {
	ID         string  `json:"id"`
	ProductID  string  `json:"product_id"`
	ProviderID string  `json:"provider_id"`
	TierKey    string  `json:"tier_key"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	Amount     float64 `json:"amount"`
}

// Recalculate recomputes the line amount from its own unit price.
func (ci *CartItem) Recalculate() {
	ci.Amount = ci.UnitPrice * float64(ci.Quantity)
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
)

// Order is a purchase record. Orders are never deleted; a prolong mutates
// flow/expire of an existing order instead of creating a new entitlement.
type Order struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	ProviderID string    `json:"provider_id"`
	Quantity   int       `json:"quantity"`
	Amount     float64   `json:"amount"`
	Status     string    `json:"status"`
	Flow       int64     `json:"flow"`
	Expire     int64     `json:"expire"`
	CreatedAt  time.Time `json:"created_at"`
}

// Payment methods
const (
	PaymentMethodExternal = "external-redirect"
	PaymentMethodWallet   = "wallet-debit"
)

// Payment sources
const (
	PaymentSourceDirect  = "direct"
	PaymentSourceCart    = "cart"
	PaymentSourceProlong = "prolong"
	PaymentSourceDeposit = "deposit"
)

// PaymentIntent describes a payment the orchestrator should carry out.
type PaymentIntent struct {
	Method          string  `json:"method"`
	Source          string  `json:"source"`
	ProductID       string  `json:"product_id,omitempty"`
	ProviderID      string  `json:"provider_id,omitempty"`
	Tier            *Tier   `json:"tier,omitempty"`
	Quantity        int     `json:"quantity,omitempty"`
	ExistingOrderID string  `json:"existing_order_id,omitempty"`
	DepositAmount   float64 `json:"deposit_amount,omitempty"`
}

// Payment outcome statuses
const (
	OutcomeRedirect  = "redirect"
	OutcomeCompleted = "completed"
)

// PaymentOutcome is what the orchestrator hands back to the caller. For the
// external method the client must navigate to RedirectURL; OrderRef has already
// been persisted in the pending slot by then.
type PaymentOutcome struct {
	Status      string  `json:"status"`
	RedirectURL string  `json:"redirect_url,omitempty"`
	OrderRef    string  `json:"order_ref,omitempty"`
	Order       *Order  `json:"order,omitempty"`
	Balance     float64 `json:"balance,omitempty"`
}
