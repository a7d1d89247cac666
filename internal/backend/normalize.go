package backend

import (
	"strings"
	"time"

	"storefront-gateway/internal/models"
)

// The backend emits loosely-shaped payloads: the same fact can arrive under
// different field names depending on the endpoint and backend version. Every
// alternative is resolved in this file, once, so nothing downstream ever
// branches on "maybe this field, maybe that field".

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstFloat(vals ...*float64) float64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstInt(vals ...*int) int {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstBool(vals ...*bool) bool {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return false
}

type accountDTO struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id"`
	IsGuest       *bool    `json:"is_guest"`
	Guest         *bool    `json:"guest"`
	Email         string   `json:"email"`
	Balance       *float64 `json:"balance"`
	WalletBalance *float64 `json:"wallet_balance"`
}

func (d accountDTO) normalize() models.Account {
	return models.Account{
		ID:            firstString(d.ID, d.UserID),
		IsGuest:       firstBool(d.IsGuest, d.Guest),
		Email:         d.Email,
		WalletBalance: firstFloat(d.WalletBalance, d.Balance),
	}
}

// sessionDTO covers the guest bootstrap, validate and convert responses: an
// account either inline or nested, plus a session token under one of several
// names.
type sessionDTO struct {
	accountDTO
	User         *accountDTO `json:"user"`
	Account      *accountDTO `json:"account"`
	Token        string      `json:"token"`
	AccessToken  string      `json:"access_token"`
	SessionToken string      `json:"session_token"`
}

func (d sessionDTO) normalize() (models.Account, string) {
	account := d.accountDTO.normalize()
	if d.User != nil {
		account = d.User.normalize()
	} else if d.Account != nil {
		account = d.Account.normalize()
	}
	return account, firstString(d.Token, d.AccessToken, d.SessionToken)
}

type tierDTO struct {
	UserDataAmount *int     `json:"user_data_amount"`
	DataAmount     *int     `json:"data_amount"`
	Amount         *int     `json:"amount"`
	Unit           string   `json:"unit"`
	DataUnit       string   `json:"data_unit"`
	Price          *float64 `json:"price"`
	Cost           *float64 `json:"cost"`
	AvailableQty   *int     `json:"available_quantity"`
	Stock          *int     `json:"stock"`
	IsPopular      *bool    `json:"is_popular"`
	Popular        *bool    `json:"popular"`
}

func (d tierDTO) normalize(productID, providerID string) models.Tier {
	return models.Tier{
		ProductID:         productID,
		ProviderID:        providerID,
		UserDataAmount:    firstInt(d.UserDataAmount, d.DataAmount, d.Amount),
		Unit:              strings.ToUpper(firstString(d.Unit, d.DataUnit)),
		Price:             firstFloat(d.Price, d.Cost),
		AvailableQuantity: firstInt(d.AvailableQty, d.Stock),
		IsPopular:         firstBool(d.IsPopular, d.Popular),
	}
}

type cartItemDTO struct {
	ID         string   `json:"id"`
	MongoID    string   `json:"_id"`
	ItemID     string   `json:"item_id"`
	ProductID  string   `json:"product_id"`
	ProviderID string   `json:"provider_id"`
	TierKey    string   `json:"tier_key"`
	Quantity   *int     `json:"quantity"`
	Count      *int     `json:"count"`
	UnitPrice  *float64 `json:"unit_price"`
	Price      *float64 `json:"price"`
	Amount     *float64 `json:"amount"`
	Total      *float64 `json:"total"`
}

func (d cartItemDTO) normalize() models.CartItem {
	item := models.CartItem{
		ID:         firstString(d.ID, d.ItemID, d.MongoID),
		ProductID:  d.ProductID,
		ProviderID: d.ProviderID,
		TierKey:    d.TierKey,
		Quantity:   firstInt(d.Quantity, d.Count),
		UnitPrice:  firstFloat(d.UnitPrice, d.Price),
		Amount:     firstFloat(d.Amount, d.Total),
	}
	if item.Amount == 0 && item.UnitPrice > 0 {
		item.Recalculate()
	}
	return item
}

type paymentDTO struct {
	URL         string `json:"url"`
	PaymentURL  string `json:"payment_url"`
	RedirectURL string `json:"redirect_url"`
	OrderRef    string `json:"order_ref"`
	Reference   string `json:"reference"`
	OrderID     string `json:"order_id"`
}

func (d paymentDTO) normalize() (url, ref string) {
	return firstString(d.URL, d.PaymentURL, d.RedirectURL),
		firstString(d.OrderRef, d.Reference, d.OrderID)
}

type orderDTO struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	ProductID  string    `json:"product_id"`
	ProviderID string    `json:"provider_id"`
	Quantity   *int      `json:"quantity"`
	Amount     *float64  `json:"amount"`
	Total      *float64  `json:"total"`
	Status     string    `json:"status"`
	State      string    `json:"state"`
	Flow       int64     `json:"flow"`
	Expire     int64     `json:"expire"`
	CreatedAt  time.Time `json:"created_at"`
}

func (d orderDTO) normalize() models.Order {
	return models.Order{
		ID:         firstString(d.ID, d.OrderID),
		ProductID:  d.ProductID,
		ProviderID: d.ProviderID,
		Quantity:   firstInt(d.Quantity),
		Amount:     firstFloat(d.Amount, d.Total),
		Status:     strings.ToLower(firstString(d.Status, d.State)),
		Flow:       d.Flow,
		Expire:     d.Expire,
		CreatedAt:  d.CreatedAt,
	}
}

type orderStatusDTO struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

func (d orderStatusDTO) normalize() string {
	return strings.ToLower(firstString(d.Status, d.State))
}

type walletDTO struct {
	Balance       *float64 `json:"balance"`
	WalletBalance *float64 `json:"wallet_balance"`
}

func (d walletDTO) balance() float64 {
	return firstFloat(d.Balance, d.WalletBalance)
}

type walletDebitDTO struct {
	Order orderDTO `json:"order"`
	walletDTO
}
