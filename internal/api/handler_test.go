package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storefront-gateway/internal/backend"
	"storefront-gateway/internal/broker"
	"storefront-gateway/internal/notify"
	"storefront-gateway/internal/service"
	"storefront-gateway/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRouter wires the full handler stack against a minimal fake backend
// that serves the guest bootstrap and an empty cart.
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/guest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"user":         map[string]interface{}{"id": "acc-1", "is_guest": true, "wallet_balance": 50.0},
			"access_token": "tok-1",
		})
	})
	mux.HandleFunc("/api/cart", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	})
	mux.HandleFunc("/api/tiers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"user_data_amount": 5, "unit": "GB", "price": 10, "is_popular": true}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := storage.NewMemoryStore()
	client := backend.NewClient(srv.URL, 5*time.Second)
	events := broker.NewEventPublisher(nil)
	hub := notify.NewHub()

	devices := service.NewDeviceService(store)
	sessions := service.NewSessionService(store, client, devices, events)
	cart := service.NewCartService(client, sessions, hub, 40*time.Millisecond, 20*time.Millisecond)
	payments := service.NewPaymentService(client, sessions, cart, store, events, hub, 30*24*time.Hour, 20)
	reconciler := service.NewReconciler(store, client, sessions, cart, events, hub)

	router := gin.New()
	handler := NewHandler(sessions, service.NewPricingService(client, sessions), cart, payments, reconciler, hub)
	handler.SetupRoutes(router)
	return router
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestStartSessionMintsScope(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/session", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(DeviceScopeHeader), "a missing scope header is minted and echoed")

	var body struct {
		Account struct {
			ID      string `json:"id"`
			IsGuest bool   `json:"is_guest"`
		} `json:"account"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "acc-1", body.Account.ID)
	assert.True(t, body.Account.IsGuest)
}

func TestStartSessionEchoesGivenScope(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", nil)
	req.Header.Set(DeviceScopeHeader, "install-7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "install-7", w.Header().Get(DeviceScopeHeader))
}

func TestGetTiersRequiresParams(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tiers", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTiersReturnsDefaultIndex(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tiers?product_id=p&provider_id=v", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Tiers        []json.RawMessage `json:"tiers"`
		DefaultIndex int               `json:"default_index"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Tiers, 1)
	assert.Equal(t, 0, body.DefaultIndex)
}

func TestConvertRejectsBadBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/convert",
		strings.NewReader(`{"email": "not-an-email", "password": "short"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePaymentRejectsInvalidIntent(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments",
		strings.NewReader(`{"method": "wallet-debit", "source": "direct"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcileWithEmptySlot(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/payments/reconcile", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"outcome": "none"}`, w.Body.String())
}

func TestGetCartEmpty(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(DeviceScopeHeader, "install-7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Items []json.RawMessage `json:"items"`
		Total float64           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Items)
	assert.Equal(t, 0.0, body.Total)
}
