package handlers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketplace/middleware"
	"marketplace/realtime"
)

const streamKeepAlive = 25 * time.Second

type StreamHandler struct {
	hub       *realtime.Hub
	keepAlive time.Duration
	logger    *zap.Logger
}

func NewStreamHandler(hub *realtime.Hub, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, keepAlive: streamKeepAlive, logger: logger}
}

// VendorOrders streams change notifications for the caller's sub-orders as
// server-sent events until the client goes away.
func (h *StreamHandler) VendorOrders(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	sub := h.hub.Subscribe(user.ID)
	defer sub.Close()

	h.logger.Info("Vendor subscribed to order changes",
		zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
		zap.String("vendor_id", user.ID),
	)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"vendorId": user.ID})
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(event.Type, event)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().Unix()})
			return true
		}
	})

	h.logger.Info("Vendor unsubscribed from order changes", zap.String("vendor_id", user.ID))
}
