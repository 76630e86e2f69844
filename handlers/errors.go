package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"marketplace/apperr"
	"marketplace/middleware"
)

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error", "success": false}. Gateway and
// persistence failures are logged and answered with a generic message.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	body := gin.H{"success": false}

	switch kind {
	case apperr.KindGateway, apperr.KindPersistence:
		trace.SpanFromContext(c.Request.Context()).RecordError(err)
		logger.Error("Request failed",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.String("path", c.FullPath()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		if kind == apperr.KindGateway {
			body["error"] = "Upstream service unavailable"
		} else {
			body["error"] = "Internal server error"
		}
	default:
		e, _ := apperr.As(err)
		body["error"] = e.Message
		if len(e.Fields) > 0 {
			body["fields"] = e.Fields
		}
	}

	_ = c.Error(err)
	c.JSON(status, body)
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "success": false})
}
