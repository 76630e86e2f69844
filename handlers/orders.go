package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"marketplace/middleware"
	"marketplace/models"
	"marketplace/services"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type OrderHandler struct {
	orders *services.OrderService
	logger *zap.Logger
}

func NewOrderHandler(orders *services.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// Register mounts the cart and order routes on an authenticated group.
func (h *OrderHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/cart", h.GetCart)
	rg.POST("/cart/items", h.AddCartItem)
	rg.PUT("/cart/items/:key", h.UpdateCartItem)
	rg.DELETE("/cart/items/:key", h.RemoveCartItem)
	rg.DELETE("/cart", h.ClearCart)

	rg.POST("/orders", h.CreateOrder)
	rg.GET("/orders", h.ListOrders)
	rg.GET("/orders/:id", h.GetOrder)
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := h.orders.Checkout(c.Request.Context(), user.ID, req.ShippingAddress, c.GetHeader(IdempotencyKeyHeader))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	trace.SpanFromContext(c.Request.Context()).SetAttributes(attribute.String("order.id", order.ID))
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	orders, err := h.orders.ListOrders(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	order, err := h.orders.GetOrder(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) GetCart(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	items, err := h.orders.Cart(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *OrderHandler) AddCartItem(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req models.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	item, err := h.orders.AddToCart(c.Request.Context(), user.ID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *OrderHandler) UpdateCartItem(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req models.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.orders.SetCartQuantity(c.Request.Context(), user.ID, c.Param("key"), req.Quantity); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *OrderHandler) RemoveCartItem(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	if err := h.orders.RemoveFromCart(c.Request.Context(), user.ID, c.Param("key")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *OrderHandler) ClearCart(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	if err := h.orders.ClearCart(c.Request.Context(), user.ID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
