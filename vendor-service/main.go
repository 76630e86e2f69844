package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"marketplace/config"
	"marketplace/database"
	"marketplace/handlers"
	"marketplace/kafka"
	"marketplace/middleware"
	"marketplace/productclient"
	"marketplace/repository/postgres"
	"marketplace/services"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load("vendor-service", ":8085")

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database
	db, err := database.InitDB(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Kafka producer
	producer, err := kafka.InitProducer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	// Initialize Kafka consumer group
	group, err := kafka.InitConsumerGroup(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka consumer group", zap.Error(err))
	}
	defer group.Close()

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing(cfg.Service, cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	orders := postgres.NewOrderRepository(db)
	vendorOrders := postgres.NewVendorOrderRepository(db)
	publisher := kafka.NewPublisher(producer, logger)

	splitter := services.NewSplitter(orders, vendorOrders, productclient.New(cfg.ProductServiceURL, logger),
		publisher, cfg.VendorChangesTopic, logger)
	vendorOrderService := services.NewVendorOrderService(vendorOrders, orders, publisher, cfg.VendorChangesTopic, logger)
	reconciler := services.NewReconciler(orders, splitter, cfg.ReconcileInterval, cfg.ReconcileGrace, logger)

	router := handlers.NewRouter(cfg.Service, logger, cfg.AllowedOrigins)
	vendor := router.Group("/", middleware.AuthMiddleware(cfg.JWTSecret), middleware.RequireRole(middleware.RoleVendor))
	system := router.Group("/", middleware.AuthMiddleware(cfg.JWTSecret), middleware.RequireRole(middleware.RoleAdmin))
	handlers.NewVendorOrderHandler(vendorOrderService, splitter, logger).Register(vendor, system)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Vendor Service started", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return kafka.Consume(ctx, group, []string{cfg.OrderEventsTopic}, cfg.Service, splitter.HandleOrderEvent, logger)
	})

	g.Go(func() error {
		logger.Info("Split reconciler started",
			zap.Duration("interval", cfg.ReconcileInterval),
			zap.Duration("grace", cfg.ReconcileGrace),
		)
		return reconciler.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Vendor Service stopped with error", zap.Error(err))
	}

	logger.Info("Server exited")
}
