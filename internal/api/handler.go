package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"storefront-gateway/internal/backend"
	"storefront-gateway/internal/models"
	"storefront-gateway/internal/notify"
	"storefront-gateway/internal/service"
	"storefront-gateway/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DeviceScopeHeader carries the UI's device installation scope. When absent
// the gateway mints one and echoes it back; the UI must persist and resend it.
const DeviceScopeHeader = "X-Device-Install"

// Handler contains the HTTP handlers exposed to the UI.
type Handler struct {
	sessions   *service.SessionService
	pricing    *service.PricingService
	cart       *service.CartService
	payments   *service.PaymentService
	reconciler *service.Reconciler
	hub        *notify.Hub
}

func NewHandler(sessions *service.SessionService, pricing *service.PricingService, cart *service.CartService, payments *service.PaymentService, reconciler *service.Reconciler, hub *notify.Hub) *Handler {
	return &Handler{
		sessions:   sessions,
		pricing:    pricing,
		cart:       cart,
		payments:   payments,
		reconciler: reconciler,
		hub:        hub,
	}
}

// SetupRoutes sets up HTTP routes.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/session", h.startSession)
		v1.POST("/session/convert", h.convertSession)
		v1.POST("/session/logout", h.logout)

		v1.GET("/tiers", h.getTiers)

		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PUT("/cart/items/:id", h.updateCartItem)
		v1.DELETE("/cart/items/:id", h.removeCartItem)

		v1.POST("/payments", h.createPayment)
		v1.POST("/payments/reconcile", h.reconcile)

		v1.GET("/orders", h.getOrders)
		v1.GET("/wallet", h.getWallet)

		v1.GET("/notifications", h.streamNotifications)
	}
}

// scope resolves the device installation scope for the request, minting a new
// one when the UI has none yet.
func (h *Handler) scope(c *gin.Context) string {
	scope := c.GetHeader(DeviceScopeHeader)
	if scope == "" {
		scope = uuid.New().String()
	}
	c.Header(DeviceScopeHeader, scope)
	return scope
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrLoggedOut), errors.Is(err, backend.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotGuest), errors.Is(err, service.ErrInvalidIntent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrItemNotFound), errors.Is(err, backend.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().Unix()})
}

// startSession explicitly establishes a session (guest or previously stored),
// clearing any logged-out flag.
func (h *Handler) startSession(c *gin.Context) {
	scope := h.scope(c)

	account, err := h.sessions.EnsureSession(c.Request.Context(), scope, true)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account})
}

type convertRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// convertSession upgrades the guest to a credentialed account and invalidates
// cached views so they re-fetch under the new session.
func (h *Handler) convertSession(c *gin.Context) {
	scope := h.scope(c)

	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	account, err := h.sessions.Convert(c.Request.Context(), scope, req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.cart.Invalidate(scope)
	c.JSON(http.StatusOK, gin.H{"account": account})
}

func (h *Handler) logout(c *gin.Context) {
	scope := h.scope(c)

	if err := h.sessions.Logout(c.Request.Context(), scope); err != nil {
		h.fail(c, err)
		return
	}
	h.cart.Invalidate(scope)
	c.Status(http.StatusNoContent)
}

func (h *Handler) getTiers(c *gin.Context) {
	scope := h.scope(c)

	productID := c.Query("product_id")
	providerID := c.Query("provider_id")
	if productID == "" || providerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_id and provider_id are required"})
		return
	}

	tiers, err := h.pricing.GetTiers(c.Request.Context(), scope, productID, providerID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tiers":         tiers,
		"default_index": service.DefaultTier(tiers),
	})
}

func (h *Handler) getCart(c *gin.Context) {
	scope := h.scope(c)

	items, err := h.cart.List(c.Request.Context(), scope)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": h.cart.Total(scope),
	})
}

type addCartItemRequest struct {
	Tier     models.Tier `json:"tier" binding:"required"`
	Quantity int         `json:"quantity" binding:"required,min=1"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	scope := h.scope(c)

	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	item, clamped, err := h.cart.Add(c.Request.Context(), scope, req.Tier, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item, "clamped": clamped})
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	scope := h.scope(c)

	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	item, err := h.cart.UpdateQuantity(c.Request.Context(), scope, c.Param("id"), req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (h *Handler) removeCartItem(c *gin.Context) {
	scope := h.scope(c)

	if err := h.cart.Remove(c.Request.Context(), scope, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) createPayment(c *gin.Context) {
	scope := h.scope(c)

	var intent models.PaymentIntent
	if err := c.ShouldBindJSON(&intent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	outcome, err := h.payments.Pay(c.Request.Context(), scope, intent)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// reconcile is the return-from-redirect hook: the UI calls it on mount and the
// gateway resolves the pending reference, if any.
func (h *Handler) reconcile(c *gin.Context) {
	scope := h.scope(c)

	outcome, err := h.reconciler.Reconcile(c.Request.Context(), scope)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (h *Handler) getOrders(c *gin.Context) {
	scope := h.scope(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	orderType := c.Query("type")

	orders, err := h.payments.Orders(c.Request.Context(), scope, page, limit, orderType)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getWallet(c *gin.Context) {
	scope := h.scope(c)

	balance, err := h.payments.WalletBalance(c.Request.Context(), scope)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// streamNotifications pushes user-visible notifications over SSE until the
// client disconnects.
func (h *Handler) streamNotifications(c *gin.Context) {
	scope := h.scope(c)

	ch, cancel := h.hub.Subscribe(scope)
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case n, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("notification", n)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// prometheusMiddleware collects HTTP metrics.
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
