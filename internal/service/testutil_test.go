package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront-gateway/internal/backend"
	"storefront-gateway/internal/broker"
	"storefront-gateway/internal/models"
	"storefront-gateway/internal/notify"
	"storefront-gateway/internal/storage"
)

// fakeBackend is an in-process stand-in for the remote commerce backend. It
// records every call so tests can assert what was (and was not) sent.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	guestCalls    int
	validateCalls int
	cartCreates   int
	cartUpdates   []cartUpdate
	cartDeletes   []string
	debitCalls    int
	paymentCalls  int
	statusCalls   int
	lastDebit     map[string]interface{}
	lastPayment   map[string]interface{}

	failUpdates bool

	account     models.Account
	tokens      map[string]bool
	nextItemID  int
	cartItems   []models.CartItem
	tiers       []map[string]interface{}
	statusByRef map[string]string
	balance     float64
	orders      []map[string]interface{}
}

type cartUpdate struct {
	ID       string
	Quantity int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	fb := &fakeBackend{
		t:           t,
		account:     models.Account{ID: "acc-1", IsGuest: true, WalletBalance: 100},
		tokens:      make(map[string]bool),
		statusByRef: make(map[string]string),
		balance:     100,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/guest", fb.handleGuest)
	mux.HandleFunc("/api/guest/convert", fb.handleConvert)
	mux.HandleFunc("/api/me", fb.handleMe)
	mux.HandleFunc("/api/tiers", fb.handleTiers)
	mux.HandleFunc("/api/cart", fb.handleCart)
	mux.HandleFunc("/api/cart/items", fb.handleCartCreate)
	mux.HandleFunc("/api/cart/items/", fb.handleCartItem)
	mux.HandleFunc("/api/payments", fb.handlePayments)
	mux.HandleFunc("/api/wallet/debit", fb.handleDebit)
	mux.HandleFunc("/api/wallet", fb.handleWallet)
	mux.HandleFunc("/api/orders/status/", fb.handleOrderStatus)
	mux.HandleFunc("/api/orders", fb.handleOrders)

	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (fb *fakeBackend) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.tokens[token]
}

// accountBody mimics the backend's loose payload: account nested under "user",
// token under "access_token".
func (fb *fakeBackend) accountBody(token string) map[string]interface{} {
	body := map[string]interface{}{
		"user": map[string]interface{}{
			"id":             fb.account.ID,
			"is_guest":       fb.account.IsGuest,
			"email":          fb.account.Email,
			"wallet_balance": fb.account.WalletBalance,
		},
	}
	if token != "" {
		body["access_token"] = token
	}
	return body
}

func (fb *fakeBackend) handleGuest(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	fb.guestCalls++
	token := fmt.Sprintf("tok-guest-%d", fb.guestCalls)
	fb.tokens[token] = true
	fb.mu.Unlock()

	fb.writeJSON(w, http.StatusOK, fb.accountBody(token))
}

func (fb *fakeBackend) handleConvert(w http.ResponseWriter, r *http.Request) {
	if !fb.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	fb.mu.Lock()
	fb.account.IsGuest = false
	fb.account.Email = req.Email
	token := "tok-regular-1"
	fb.tokens[token] = true
	fb.mu.Unlock()

	fb.writeJSON(w, http.StatusOK, fb.accountBody(token))
}

func (fb *fakeBackend) handleMe(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	fb.validateCalls++
	fb.mu.Unlock()

	if !fb.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	fb.writeJSON(w, http.StatusOK, fb.accountBody(""))
}

func (fb *fakeBackend) handleTiers(w http.ResponseWriter, r *http.Request) {
	if !fb.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	fb.writeJSON(w, http.StatusOK, fb.tiers)
}

func (fb *fakeBackend) handleCart(w http.ResponseWriter, r *http.Request) {
	if !fb.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	fb.mu.Lock()
	items := make([]models.CartItem, len(fb.cartItems))
	copy(items, fb.cartItems)
	fb.mu.Unlock()
	fb.writeJSON(w, http.StatusOK, items)
}

func (fb *fakeBackend) handleCartCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !fb.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req backend.CartItemRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	fb.mu.Lock()
	fb.cartCreates++
	fb.nextItemID++
	item := models.CartItem{
		ID:         fmt.Sprintf("item-%d", fb.nextItemID),
		ProductID:  req.ProductID,
		ProviderID: req.ProviderID,
		TierKey:    req.TierKey,
		Quantity:   req.Quantity,
		UnitPrice:  req.UnitPrice,
		Amount:     req.Amount,
	}
	fb.cartItems = append(fb.cartItems, item)
	fb.mu.Unlock()

	fb.writeJSON(w, http.StatusCreated, item)
}

func (fb *fakeBackend) handleCartItem(w http.ResponseWriter, r *http.Request) {
	if !fb.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/cart/items/")

	switch r.Method {
	case http.MethodPut:
		fb.mu.Lock()
		fail := fb.failUpdates
		fb.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req struct {
			Quantity int     `json:"quantity"`
			Amount   float64 `json:"amount"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		fb.mu.Lock()
		fb.cartUpdates = append(fb.cartUpdates, cartUpdate{ID: id, Quantity: req.Quantity})
		for i := range fb.cartItems {
			if fb.cartItems[i].ID == id {
				fb.cartItems[i].Quantity = req.Quantity
				fb.cartItems[i].Amount = req.Amount
			}
		}
		fb.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		fb.mu.Lock()
		fb.cartDeletes = append(fb.cartDeletes, id)
		for i := range fb.cartItems {
			if fb.cartItems[i].ID == id {
				fb.cartItems = append(fb.cartItems[:i], fb.cartItems[i+1:]...)
				break
			}
		}
		fb.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (fb *fakeBackend) handlePayments(w http.ResponseWriter, r *http.Request) {
	if !fb.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&req)

	fb.mu.Lock()
	fb.paymentCalls++
	fb.lastPayment = req
	ref := fmt.Sprintf("ref-%d", fb.paymentCalls)
	fb.statusByRef[ref] = models.OrderStatusPending
	fb.mu.Unlock()

	fb.writeJSON(w, http.StatusCreated, map[string]string{
		"payment_url": "https://pay.example.com/" + ref,
		"order_ref":   ref,
	})
}

func (fb *fakeBackend) handleDebit(w http.ResponseWriter, r *http.Request) {
	if !fb.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&req)

	fb.mu.Lock()
	fb.debitCalls++
	fb.lastDebit = req
	amount, _ := req["amount"].(float64)
	fb.balance -= amount
	fb.account.WalletBalance = fb.balance
	balance := fb.balance
	fb.mu.Unlock()

	fb.writeJSON(w, http.StatusOK, map[string]interface{}{
		"order": map[string]interface{}{
			"id":     "order-1",
			"status": models.OrderStatusCompleted,
			"amount": amount,
		},
		"balance": balance,
	})
}

func (fb *fakeBackend) handleWallet(w http.ResponseWriter, r *http.Request) {
	if !fb.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	fb.mu.Lock()
	balance := fb.balance
	fb.mu.Unlock()
	fb.writeJSON(w, http.StatusOK, map[string]float64{"balance": balance})
}

func (fb *fakeBackend) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	if !fb.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	ref := strings.TrimPrefix(r.URL.Path, "/api/orders/status/")

	fb.mu.Lock()
	fb.statusCalls++
	status, ok := fb.statusByRef[ref]
	fb.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	fb.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (fb *fakeBackend) handleOrders(w http.ResponseWriter, r *http.Request) {
	if !fb.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	fb.writeJSON(w, http.StatusOK, fb.orders)
}

func (fb *fakeBackend) statusCallCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.statusCalls
}

// counters returns a consistent snapshot of the recorded call counts.
func (fb *fakeBackend) counters() (guest, validate, creates, updates, debits, payments int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.guestCalls, fb.validateCalls, fb.cartCreates, len(fb.cartUpdates), fb.debitCalls, fb.paymentCalls
}

// testEnv wires the full service stack against a fake backend with an
// in-memory state store and short debounce windows.
type testEnv struct {
	fb         *fakeBackend
	store      *storage.MemoryStore
	hub        *notify.Hub
	sessions   *SessionService
	pricing    *PricingService
	cart       *CartService
	payments   *PaymentService
	reconciler *Reconciler
}

const (
	testSyncDebounce = 40 * time.Millisecond
	testListDebounce = 20 * time.Millisecond
)

func newTestEnv(t *testing.T) *testEnv {
	fb := newFakeBackend(t)
	store := storage.NewMemoryStore()
	client := backend.NewClient(fb.srv.URL, 5*time.Second)
	events := broker.NewEventPublisher(nil)
	hub := notify.NewHub()

	devices := NewDeviceService(store)
	sessions := NewSessionService(store, client, devices, events)
	cart := NewCartService(client, sessions, hub, testSyncDebounce, testListDebounce)
	payments := NewPaymentService(client, sessions, cart, store, events, hub, 30*24*time.Hour, 20)

	return &testEnv{
		fb:         fb,
		store:      store,
		hub:        hub,
		sessions:   sessions,
		pricing:    NewPricingService(client, sessions),
		cart:       cart,
		payments:   payments,
		reconciler: NewReconciler(store, client, sessions, cart, events, hub),
	}
}

// drain collects whatever notifications are currently buffered on ch.
func drain(ch <-chan notify.Notification) []notify.Notification {
	var out []notify.Notification
	for {
		select {
		case n := <-ch:
			out = append(out, n)
		default:
			return out
		}
	}
}

func testTier(avail int) models.Tier {
	return models.Tier{
		ProductID:         "prod-1",
		ProviderID:        "prov-1",
		UserDataAmount:    5,
		Unit:              "GB",
		Price:             10.0,
		AvailableQuantity: avail,
	}
}
