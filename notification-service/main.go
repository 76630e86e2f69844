package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/config"
	"marketplace/handlers"
	"marketplace/kafka"
	"marketplace/middleware"
	"marketplace/notification"
	"marketplace/realtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const subscriberBuffer = 8

func main() {
	cfg := config.Load("notification-service", ":8084")

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing(cfg.Service, cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	// Buyer notifications are shared across instances; the vendor feed is
	// per instance since each one holds its own subscribers.
	orderReader := kafka.NewReader(cfg, cfg.OrderEventsTopic)
	defer orderReader.Close()

	feedCfg := cfg
	if host, err := os.Hostname(); err == nil {
		feedCfg.ConsumerGroup = cfg.ConsumerGroup + "-" + host
	}
	changeReader := kafka.NewReader(feedCfg, cfg.VendorChangesTopic)
	defer changeReader.Close()

	hub := realtime.NewHub(subscriberBuffer, logger)
	buyers := notification.NewBuyerNotifier(notification.NewLogMailer(logger), logger)
	feed := notification.NewVendorFeed(hub, logger)

	router := handlers.NewRouter(cfg.Service, logger, cfg.AllowedOrigins)
	vendor := router.Group("/", middleware.AuthMiddleware(cfg.JWTSecret), middleware.RequireRole(middleware.RoleVendor))
	vendor.GET("/vendor/orders/stream", handlers.NewStreamHandler(hub, logger).VendorOrders)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Open streams end when ctx is cancelled so Shutdown does not wait on them.
	srv := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		logger.Info("Notification Service started", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Kafka reader started", zap.String("topic", cfg.OrderEventsTopic))
		return kafka.ReadLoop(ctx, orderReader, cfg.Service, buyers.HandleOrderEvent, logger)
	})

	g.Go(func() error {
		logger.Info("Kafka reader started", zap.String("topic", cfg.VendorChangesTopic))
		return kafka.ReadLoop(ctx, changeReader, cfg.Service, feed.HandleChange, logger)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Notification Service stopped with error", zap.Error(err))
	}

	logger.Info("Server exited")
}
