package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/cache"
	"marketplace/circuitbreaker"
	"marketplace/config"
	"marketplace/database"
	"marketplace/handlers"
	"marketplace/kafka"
	"marketplace/middleware"
	"marketplace/payment"
	"marketplace/repository/postgres"
	"marketplace/services"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load("payment-service", ":8083")

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.StripeSecretKey == "" {
		logger.Fatal("STRIPE_SECRET_KEY is required")
	}
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET is not set, webhook deliveries will be rejected")
	}

	// Initialize database
	db, err := database.InitDB(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis for carts
	redisClient, err := cache.InitRedis(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Initialize Kafka producer
	producer, err := kafka.InitProducer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing(cfg.Service, cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	breaker := circuitbreaker.NewCircuitBreaker(5, 30*time.Second,
		circuitbreaker.WithFailurePredicate(payment.IsProviderFailure))

	paymentService := services.NewPaymentService(
		postgres.NewOrderRepository(db),
		cache.NewCartStore(redisClient),
		payment.NewStripeProvider(cfg.StripeSecretKey, breaker, logger),
		kafka.NewPublisher(producer, logger),
		cfg.OrderEventsTopic,
		cfg.AppBaseURL,
		cfg.StripeWebhookSecret,
		logger,
	)

	router := handlers.NewRouter(cfg.Service, logger, cfg.AllowedOrigins)
	public := router.Group("/")
	auth := router.Group("/", middleware.AuthMiddleware(cfg.JWTSecret))
	handlers.NewPaymentHandler(paymentService, logger).Register(public, auth)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Payment Service started", zap.String("addr", cfg.HTTPAddr))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
