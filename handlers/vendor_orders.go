package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketplace/middleware"
	"marketplace/models"
	"marketplace/services"
)

type VendorOrderHandler struct {
	vendorOrders *services.VendorOrderService
	splitter     *services.Splitter
	logger       *zap.Logger
}

func NewVendorOrderHandler(vendorOrders *services.VendorOrderService, splitter *services.Splitter, logger *zap.Logger) *VendorOrderHandler {
	return &VendorOrderHandler{vendorOrders: vendorOrders, splitter: splitter, logger: logger}
}

// Register mounts the vendor routes on a group that already requires the
// vendor role, and the splitter trigger on a group restricted to admins.
func (h *VendorOrderHandler) Register(vendor, system *gin.RouterGroup) {
	vendor.GET("/vendor/orders", h.List)
	vendor.GET("/vendor/orders/stats", h.Stats)
	vendor.PATCH("/vendor/orders/:id", h.UpdateStatus)
	vendor.GET("/vendor/orders/:id/history", h.History)

	system.POST("/functions/process-vendor-orders", h.ProcessVendorOrders)
}

func (h *VendorOrderHandler) ProcessVendorOrders(c *gin.Context) {
	var req models.SplitTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.splitter.Split(c.Request.Context(), req.Record.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"vendorOrdersCreated": len(result.Created),
		"skippedVendors":      result.SkippedVendors,
		"unassignedItems":     len(result.Unassigned),
	})
}

func (h *VendorOrderHandler) List(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	views, err := h.vendorOrders.ListVendorOrders(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *VendorOrderHandler) Stats(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	stats, err := h.vendorOrders.Stats(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *VendorOrderHandler) UpdateStatus(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req models.UpdateVendorOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	updated, err := h.vendorOrders.UpdateStatus(c.Request.Context(), user.ID, c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *VendorOrderHandler) History(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	history, err := h.vendorOrders.History(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
