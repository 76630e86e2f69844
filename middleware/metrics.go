package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	ordersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created",
		},
	)

	paymentSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_sessions_created_total",
			Help: "Total number of checkout sessions created",
		},
		[]string{"currency"},
	)

	paymentsVerifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_verified_total",
			Help: "Total number of payment verifications by provider status and source",
		},
		[]string{"status", "source"},
	)

	vendorOrdersSplitTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vendor_orders_split_total",
			Help: "Total number of vendor sub-orders created by the splitter",
		},
	)

	splitUnassignedItemsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "split_unassigned_items_total",
			Help: "Total number of order line items whose product resolved to no vendor",
		},
	)

	notificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications sent",
		},
		[]string{"event_type"},
	)

	realtimeSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_subscribers",
			Help: "Number of open vendor order change subscriptions",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(ordersCreatedTotal)
	prometheus.MustRegister(paymentSessionsTotal)
	prometheus.MustRegister(paymentsVerifiedTotal)
	prometheus.MustRegister(vendorOrdersSplitTotal)
	prometheus.MustRegister(splitUnassignedItemsTotal)
	prometheus.MustRegister(notificationsSentTotal)
	prometheus.MustRegister(realtimeSubscribers)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordOrderCreated() {
	ordersCreatedTotal.Inc()
}

func RecordPaymentSession(currency string) {
	paymentSessionsTotal.WithLabelValues(currency).Inc()
}

func RecordPaymentVerified(status, source string) {
	paymentsVerifiedTotal.WithLabelValues(status, source).Inc()
}

func RecordVendorOrdersSplit(n int) {
	vendorOrdersSplitTotal.Add(float64(n))
}

func RecordUnassignedItems(n int) {
	splitUnassignedItemsTotal.Add(float64(n))
}

func RecordNotificationSent(eventType string) {
	notificationsSentTotal.WithLabelValues(eventType).Inc()
}

func SetRealtimeSubscribers(n int) {
	realtimeSubscribers.Set(float64(n))
}
