package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionNormalizeNestedUser(t *testing.T) {
	payload := `{
		"user": {"user_id": "u-1", "guest": true, "balance": 12.5},
		"access_token": "tok-1"
	}`

	var dto sessionDTO
	require.NoError(t, json.Unmarshal([]byte(payload), &dto))

	account, token := dto.normalize()
	assert.Equal(t, "u-1", account.ID)
	assert.True(t, account.IsGuest)
	assert.Equal(t, 12.5, account.WalletBalance)
	assert.Equal(t, "tok-1", token)
}

func TestSessionNormalizeInlineAccount(t *testing.T) {
	payload := `{"id": "u-2", "is_guest": false, "email": "a@b.c", "wallet_balance": 3, "token": "tok-2"}`

	var dto sessionDTO
	require.NoError(t, json.Unmarshal([]byte(payload), &dto))

	account, token := dto.normalize()
	assert.Equal(t, "u-2", account.ID)
	assert.False(t, account.IsGuest)
	assert.Equal(t, "a@b.c", account.Email)
	assert.Equal(t, "tok-2", token)
}

func TestTierNormalizeAlternateNames(t *testing.T) {
	payload := `{"data_amount": 10, "data_unit": "gb", "cost": 18, "stock": 4, "popular": true}`

	var dto tierDTO
	require.NoError(t, json.Unmarshal([]byte(payload), &dto))

	tier := dto.normalize("prod-1", "prov-1")
	assert.Equal(t, "10GB", tier.Key())
	assert.Equal(t, 18.0, tier.Price)
	assert.Equal(t, 4, tier.AvailableQuantity)
	assert.True(t, tier.IsPopular)
	assert.Equal(t, "prod-1", tier.ProductID)
}

func TestCartItemNormalizeComputesMissingAmount(t *testing.T) {
	payload := `{"_id": "c-1", "product_id": "p", "count": 3, "price": 10}`

	var dto cartItemDTO
	require.NoError(t, json.Unmarshal([]byte(payload), &dto))

	item := dto.normalize()
	assert.Equal(t, "c-1", item.ID)
	assert.Equal(t, 3, item.Quantity)
	assert.Equal(t, 10.0, item.UnitPrice)
	assert.Equal(t, 30.0, item.Amount, "missing amount is derived from price and quantity")
}

func TestCartItemNormalizeKeepsExplicitAmount(t *testing.T) {
	payload := `{"id": "c-2", "quantity": 2, "unit_price": 10, "total": 15}`

	var dto cartItemDTO
	require.NoError(t, json.Unmarshal([]byte(payload), &dto))

	item := dto.normalize()
	assert.Equal(t, 15.0, item.Amount, "an explicit amount wins over the derived one")
}

func TestPaymentNormalize(t *testing.T) {
	payload := `{"redirect_url": "https://pay/x", "reference": "ref-1"}`

	var dto paymentDTO
	require.NoError(t, json.Unmarshal([]byte(payload), &dto))

	url, ref := dto.normalize()
	assert.Equal(t, "https://pay/x", url)
	assert.Equal(t, "ref-1", ref)
}

func TestOrderNormalizeLowercasesStatus(t *testing.T) {
	payload := `{"order_id": "o-1", "state": "COMPLETED", "total": 42, "flow": 1024, "expire": 1700000000}`

	var dto orderDTO
	require.NoError(t, json.Unmarshal([]byte(payload), &dto))

	order := dto.normalize()
	assert.Equal(t, "o-1", order.ID)
	assert.Equal(t, "completed", order.Status)
	assert.Equal(t, 42.0, order.Amount)
	assert.Equal(t, int64(1024), order.Flow)
}

func TestWalletDebitNormalize(t *testing.T) {
	payload := `{"order": {"id": "o-1", "status": "completed"}, "wallet_balance": 7.5}`

	var dto walletDebitDTO
	require.NoError(t, json.Unmarshal([]byte(payload), &dto))

	assert.Equal(t, "o-1", dto.Order.normalize().ID)
	assert.Equal(t, 7.5, dto.balance())
}
