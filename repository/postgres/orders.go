package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketplace/models"
	"marketplace/repository"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const orderColumns = "id, customer_id, customer_email, customer_name, items, total_amount, shipping_address, status, currency, payment_session_id, created_at, updated_at"

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.CustomerEmail, &o.CustomerName, &o.Items, &o.TotalAmount,
		&o.ShippingAddress, &o.Status, &o.Currency, &o.PaymentSessionID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO orders (id, customer_id, customer_email, customer_name, items, total_amount, shipping_address, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		order.ID, order.CustomerID, order.CustomerEmail, order.CustomerName,
		order.Items, order.TotalAmount, order.ShippingAddress, order.Status,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	if !validID(id) {
		return nil, repository.ErrNotFound
	}
	order, err := scanOrder(r.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return order, nil
}

func (r *OrderRepository) GetByPaymentSessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE payment_session_id = $1", sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order by session %s: %w", sessionID, err)
	}
	return order, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	return r.list(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE customer_id = $1 ORDER BY created_at DESC", customerID)
}

func (r *OrderRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Order, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return []models.Order{}, nil
	}
	return r.list(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = ANY($1)", pq.Array(ids))
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (r *OrderRepository) MarkPaymentPending(ctx context.Context, id, sessionID, currency string) error {
	if !validID(id) {
		return repository.ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, payment_session_id = $2, currency = $3, updated_at = NOW()
		WHERE id = $4 AND status IN ($5, $6)`,
		models.OrderStatusPaymentPending, sessionID, currency, id,
		models.OrderStatusPending, models.OrderStatusPaymentPending,
	)
	if err != nil {
		return fmt.Errorf("mark order %s payment pending: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) MarkPaid(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ($3, $4)`,
		models.OrderStatusPaid, id, models.OrderStatusPending, models.OrderStatusPaymentPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark order %s paid: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark order %s paid: %w", id, err)
	}
	return n > 0, nil
}

// ListUnsplit returns orders from the last day, created before createdBefore,
// that have no vendor orders yet and no recorded split attempt.
func (r *OrderRepository) ListUnsplit(ctx context.Context, createdBefore time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT o.id FROM orders o
		WHERE o.created_at < $1
			AND o.created_at > $1 - INTERVAL '24 hours'
			AND o.status <> $2
			AND o.split_attempted_at IS NULL
			AND NOT EXISTS (SELECT 1 FROM vendor_orders v WHERE v.order_id = o.id)
		ORDER BY o.created_at
		LIMIT $3`,
		createdBefore, models.OrderStatusCancelled, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unsplit orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *OrderRepository) MarkSplitAttempted(ctx context.Context, id string) error {
	if !validID(id) {
		return repository.ErrNotFound
	}
	if _, err := r.db.ExecContext(ctx,
		"UPDATE orders SET split_attempted_at = NOW() WHERE id = $1 AND split_attempted_at IS NULL", id,
	); err != nil {
		return fmt.Errorf("mark order %s split attempted: %w", id, err)
	}
	return nil
}

var _ repository.OrderRepository = (*OrderRepository)(nil)
