package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketplace/models"
	"marketplace/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const vendorOrderColumns = "id, vendor_id, order_id, items, subtotal, status, tracking_number, shipping_carrier, notes, created_at, updated_at"

type VendorOrderRepository struct {
	db *sql.DB
}

func NewVendorOrderRepository(db *sql.DB) *VendorOrderRepository {
	return &VendorOrderRepository{db: db}
}

func scanVendorOrder(row scanner) (*models.VendorOrder, error) {
	var vo models.VendorOrder
	err := row.Scan(
		&vo.ID, &vo.VendorID, &vo.OrderID, &vo.Items, &vo.Subtotal, &vo.Status,
		&vo.TrackingNumber, &vo.ShippingCarrier, &vo.Notes, &vo.CreatedAt, &vo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &vo, nil
}

func (r *VendorOrderRepository) ExistingVendorIDs(ctx context.Context, orderID string) ([]string, error) {
	if !validID(orderID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, "SELECT vendor_id FROM vendor_orders WHERE order_id = $1", orderID)
	if err != nil {
		return nil, fmt.Errorf("list vendor ids for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan vendor id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *VendorOrderRepository) CreateBatch(ctx context.Context, drafts []models.VendorOrder, changedBy string) ([]models.VendorOrder, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	created := make([]models.VendorOrder, 0, len(drafts))
	for _, vo := range drafts {
		if vo.ID == "" {
			vo.ID = uuid.NewString()
		}
		if vo.Status == "" {
			vo.Status = models.VendorOrderStatusPending
		}

		err := tx.QueryRowContext(ctx,
			`INSERT INTO vendor_orders (id, vendor_id, order_id, items, subtotal, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (order_id, vendor_id) DO NOTHING
			RETURNING created_at, updated_at`,
			vo.ID, vo.VendorID, vo.OrderID, vo.Items, vo.Subtotal, vo.Status,
		).Scan(&vo.CreatedAt, &vo.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert vendor order for vendor %s: %w", vo.VendorID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_status_history (id, vendor_order_id, old_status, new_status, changed_by, notes)
			VALUES ($1, $2, NULL, $3, $4, NULL)`,
			uuid.NewString(), vo.ID, vo.Status, changedBy,
		); err != nil {
			return nil, fmt.Errorf("insert initial history for vendor order %s: %w", vo.ID, err)
		}

		created = append(created, vo)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit vendor orders: %w", err)
	}
	return created, nil
}

func (r *VendorOrderRepository) GetByID(ctx context.Context, id string) (*models.VendorOrder, error) {
	if !validID(id) {
		return nil, repository.ErrNotFound
	}
	vo, err := scanVendorOrder(r.db.QueryRowContext(ctx,
		"SELECT "+vendorOrderColumns+" FROM vendor_orders WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vendor order %s: %w", id, err)
	}
	return vo, nil
}

func (r *VendorOrderRepository) ListByVendor(ctx context.Context, vendorID string) ([]models.VendorOrder, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+vendorOrderColumns+" FROM vendor_orders WHERE vendor_id = $1 ORDER BY created_at DESC", vendorID)
	if err != nil {
		return nil, fmt.Errorf("list vendor orders: %w", err)
	}
	defer rows.Close()

	orders := []models.VendorOrder{}
	for rows.Next() {
		vo, err := scanVendorOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vendor order: %w", err)
		}
		orders = append(orders, *vo)
	}
	return orders, rows.Err()
}

// UpdateStatus writes the new status and shipping fields, and appends a history
// entry when the status actually changes. Nil shipping fields are left as they are.
func (r *VendorOrderRepository) UpdateStatus(ctx context.Context, u repository.StatusUpdate) (*models.VendorOrder, error) {
	if !validID(u.ID) {
		return nil, repository.ErrNotFound
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	vo, err := scanVendorOrder(tx.QueryRowContext(ctx,
		`UPDATE vendor_orders SET
			status = $1,
			tracking_number = COALESCE($2, tracking_number),
			shipping_carrier = COALESCE($3, shipping_carrier),
			notes = COALESCE($4, notes),
			updated_at = NOW()
		WHERE id = $5 AND vendor_id = $6
		RETURNING `+vendorOrderColumns,
		u.NewStatus, u.TrackingNumber, u.ShippingCarrier, u.Notes, u.ID, u.VendorID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update vendor order %s: %w", u.ID, err)
	}

	if u.OldStatus != u.NewStatus {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_status_history (id, vendor_order_id, old_status, new_status, changed_by, notes)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), u.ID, u.OldStatus, u.NewStatus, u.ChangedBy, u.Notes,
		); err != nil {
			return nil, fmt.Errorf("insert history for vendor order %s: %w", u.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit vendor order update: %w", err)
	}
	return vo, nil
}

func (r *VendorOrderRepository) ListHistory(ctx context.Context, vendorOrderID string) ([]models.StatusHistory, error) {
	if !validID(vendorOrderID) {
		return []models.StatusHistory{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, vendor_order_id, old_status, new_status, changed_by, notes, created_at
		FROM order_status_history WHERE vendor_order_id = $1 ORDER BY created_at DESC`, vendorOrderID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	history := []models.StatusHistory{}
	for rows.Next() {
		var h models.StatusHistory
		if err := rows.Scan(&h.ID, &h.VendorOrderID, &h.OldStatus, &h.NewStatus, &h.ChangedBy, &h.Notes, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// Stats counts sub-orders per status. Revenue is the sum of every subtotal,
// cancelled sub-orders included.
func (r *VendorOrderRepository) Stats(ctx context.Context, vendorID string) (*models.VendorOrderStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(subtotal), 0)
		FROM vendor_orders WHERE vendor_id = $1 GROUP BY status`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("vendor order stats: %w", err)
	}
	defer rows.Close()

	stats := &models.VendorOrderStats{
		ByStatus: make(map[models.VendorOrderStatus]int),
		Revenue:  decimal.Zero,
	}
	for rows.Next() {
		var (
			status models.VendorOrderStatus
			count  int
			sum    decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &sum); err != nil {
			return nil, fmt.Errorf("scan vendor order stats: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
		stats.Revenue = stats.Revenue.Add(sum)
	}
	return stats, rows.Err()
}

var _ repository.VendorOrderRepository = (*VendorOrderRepository)(nil)
