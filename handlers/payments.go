package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketplace/middleware"
	"marketplace/services"
)

const (
	StripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes   = 64 << 10
)

type CreateSessionRequest struct {
	OrderID  string `json:"orderId" binding:"required"`
	Currency string `json:"currency"`
}

type VerifyPaymentRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

type PaymentHandler struct {
	payments *services.PaymentService
	logger   *zap.Logger
}

func NewPaymentHandler(payments *services.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// Register mounts the buyer routes on auth and the provider webhook on public.
func (h *PaymentHandler) Register(public, auth *gin.RouterGroup) {
	auth.POST("/payments/session", h.CreateSession)
	auth.POST("/payments/verify", h.Verify)
	public.POST("/payments/webhook", h.Webhook)
}

func (h *PaymentHandler) CreateSession(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.payments.CreatePaymentSession(c.Request.Context(), user.ID, req.OrderID, req.Currency, c.GetHeader("Origin"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *PaymentHandler) Verify(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.payments.VerifyPayment(c.Request.Context(), user.ID, req.SessionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body", "success": false})
		return
	}

	if err := h.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader(StripeSignatureHeader)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
