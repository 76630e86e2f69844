package handlers

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"marketplace/middleware"
)

// NewRouter returns an engine with the middleware chain every service shares
// plus /health and /metrics.
func NewRouter(service string, logger *zap.Logger, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	// otelgin must run before the logger so trace ids are available
	router.Use(otelgin.Middleware(service))
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", HealthCheck(service))
	router.GET("/metrics", middleware.PrometheusHandler())

	return router
}
