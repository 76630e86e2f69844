package repository

import (
	"context"
	"errors"
	"time"

	"marketplace/models"
)

var ErrNotFound = errors.New("record not found")

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByPaymentSessionID(ctx context.Context, sessionID string) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]models.Order, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Order, error)
	MarkPaymentPending(ctx context.Context, id, sessionID, currency string) error
	// MarkPaid reports whether this call moved the order to paid.
	MarkPaid(ctx context.Context, id string) (bool, error)
	ListUnsplit(ctx context.Context, createdBefore time.Time, limit int) ([]string, error)
	// MarkSplitAttempted records that a split ran for the order and found
	// nothing to create, so the reconciler stops selecting it.
	MarkSplitAttempted(ctx context.Context, id string) error
}

type StatusUpdate struct {
	ID              string
	VendorID        string
	OldStatus       models.VendorOrderStatus
	NewStatus       models.VendorOrderStatus
	TrackingNumber  *string
	ShippingCarrier *string
	Notes           *string
	ChangedBy       string
}

type VendorOrderRepository interface {
	ExistingVendorIDs(ctx context.Context, orderID string) ([]string, error)
	// CreateBatch inserts the drafts in one transaction and returns only the rows
	// actually written; a draft whose (order_id, vendor_id) already exists is skipped.
	CreateBatch(ctx context.Context, drafts []models.VendorOrder, changedBy string) ([]models.VendorOrder, error)
	GetByID(ctx context.Context, id string) (*models.VendorOrder, error)
	ListByVendor(ctx context.Context, vendorID string) ([]models.VendorOrder, error)
	UpdateStatus(ctx context.Context, update StatusUpdate) (*models.VendorOrder, error)
	ListHistory(ctx context.Context, vendorOrderID string) ([]models.StatusHistory, error)
	Stats(ctx context.Context, vendorID string) (*models.VendorOrderStats, error)
}

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id string) (*models.Product, error)
	ListByVendor(ctx context.Context, vendorID string) ([]models.Product, error)
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id, vendorID string) error
	OwnersByIDs(ctx context.Context, ids []string) (map[string]string, error)
}
