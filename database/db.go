package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func InitDB(cfg config.Config, logger *zap.Logger) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database connection established",
		zap.String("host", cfg.DBHost),
		zap.String("database", cfg.DBName),
	)
	return db, nil
}

// Migrate creates the schema if it does not exist. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id UUID PRIMARY KEY,
		vendor_id UUID NOT NULL,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price NUMERIC(10, 2) NOT NULL CHECK (price >= 0),
		images TEXT[] NOT NULL DEFAULT '{}',
		category VARCHAR(100) NOT NULL DEFAULT '',
		stock INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_vendor ON products (vendor_id)`,
	`CREATE TABLE IF NOT EXISTS product_variants (
		id UUID PRIMARY KEY,
		product_id UUID NOT NULL REFERENCES products (id) ON DELETE CASCADE,
		name VARCHAR(100) NOT NULL,
		value VARCHAR(100) NOT NULL DEFAULT '',
		price NUMERIC(10, 2),
		stock INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		customer_id UUID NOT NULL,
		customer_email VARCHAR(255) NOT NULL,
		customer_name VARCHAR(255) NOT NULL,
		items JSONB NOT NULL,
		total_amount NUMERIC(12, 2) NOT NULL,
		shipping_address JSONB NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'payment_pending', 'paid', 'cancelled')),
		currency VARCHAR(3),
		payment_session_id VARCHAR(255),
		split_attempted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE orders ADD COLUMN IF NOT EXISTS split_attempted_at TIMESTAMPTZ`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders (customer_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_payment_session ON orders (payment_session_id)`,
	`CREATE TABLE IF NOT EXISTS vendor_orders (
		id UUID PRIMARY KEY,
		vendor_id UUID NOT NULL,
		order_id UUID NOT NULL REFERENCES orders (id),
		items JSONB NOT NULL,
		subtotal NUMERIC(12, 2) NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'processing', 'shipped', 'delivered', 'cancelled')),
		tracking_number VARCHAR(255),
		shipping_carrier VARCHAR(255),
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT vendor_orders_order_vendor_key UNIQUE (order_id, vendor_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vendor_orders_vendor ON vendor_orders (vendor_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_status_history (
		id UUID PRIMARY KEY,
		vendor_order_id UUID NOT NULL REFERENCES vendor_orders (id),
		old_status VARCHAR(32),
		new_status VARCHAR(32) NOT NULL,
		changed_by VARCHAR(255) NOT NULL,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_status_history_vendor_order ON order_status_history (vendor_order_id, created_at DESC)`,
}
