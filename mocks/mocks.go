package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"marketplace/models"
	"marketplace/payment"
	"marketplace/repository"
)

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByPaymentSessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockOrderRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Order, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockOrderRepository) MarkPaymentPending(ctx context.Context, id, sessionID, currency string) error {
	args := m.Called(ctx, id, sessionID, currency)
	return args.Error(0)
}

func (m *MockOrderRepository) MarkPaid(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) ListUnsplit(ctx context.Context, createdBefore time.Time, limit int) ([]string, error) {
	args := m.Called(ctx, createdBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockOrderRepository) MarkSplitAttempted(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockVendorOrderRepository struct {
	mock.Mock
}

func (m *MockVendorOrderRepository) ExistingVendorIDs(ctx context.Context, orderID string) ([]string, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockVendorOrderRepository) CreateBatch(ctx context.Context, drafts []models.VendorOrder, changedBy string) ([]models.VendorOrder, error) {
	args := m.Called(ctx, drafts, changedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.VendorOrder), args.Error(1)
}

func (m *MockVendorOrderRepository) GetByID(ctx context.Context, id string) (*models.VendorOrder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VendorOrder), args.Error(1)
}

func (m *MockVendorOrderRepository) ListByVendor(ctx context.Context, vendorID string) ([]models.VendorOrder, error) {
	args := m.Called(ctx, vendorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.VendorOrder), args.Error(1)
}

func (m *MockVendorOrderRepository) UpdateStatus(ctx context.Context, update repository.StatusUpdate) (*models.VendorOrder, error) {
	args := m.Called(ctx, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VendorOrder), args.Error(1)
}

func (m *MockVendorOrderRepository) ListHistory(ctx context.Context, vendorOrderID string) ([]models.StatusHistory, error) {
	args := m.Called(ctx, vendorOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StatusHistory), args.Error(1)
}

func (m *MockVendorOrderRepository) Stats(ctx context.Context, vendorID string) (*models.VendorOrderStats, error) {
	args := m.Called(ctx, vendorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VendorOrderStats), args.Error(1)
}

type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) Create(ctx context.Context, product *models.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductRepository) ListByVendor(ctx context.Context, vendorID string) ([]models.Product, error) {
	args := m.Called(ctx, vendorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductRepository) Update(ctx context.Context, product *models.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductRepository) Delete(ctx context.Context, id, vendorID string) error {
	args := m.Called(ctx, id, vendorID)
	return args.Error(0)
}

func (m *MockProductRepository) OwnersByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

type MockCartStore struct {
	mock.Mock
}

func (m *MockCartStore) Items(ctx context.Context, buyerID string) ([]models.CartItem, error) {
	args := m.Called(ctx, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CartItem), args.Error(1)
}

func (m *MockCartStore) Add(ctx context.Context, buyerID, productID, variantID string, quantity int) (models.CartItem, error) {
	args := m.Called(ctx, buyerID, productID, variantID, quantity)
	return args.Get(0).(models.CartItem), args.Error(1)
}

func (m *MockCartStore) SetQuantity(ctx context.Context, buyerID, key string, quantity int) error {
	args := m.Called(ctx, buyerID, key, quantity)
	return args.Error(0)
}

func (m *MockCartStore) Remove(ctx context.Context, buyerID, key string) error {
	args := m.Called(ctx, buyerID, key)
	return args.Error(0)
}

func (m *MockCartStore) Clear(ctx context.Context, buyerID string) error {
	args := m.Called(ctx, buyerID)
	return args.Error(0)
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

type MockOwnerResolver struct {
	mock.Mock
}

func (m *MockOwnerResolver) ProductOwners(ctx context.Context, productIDs []string) (map[string]string, error) {
	args := m.Called(ctx, productIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	args := m.Called(ctx, topic, key, event)
	return args.Error(0)
}

type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) Claim(ctx context.Context, scope, key string) (string, bool, error) {
	args := m.Called(ctx, scope, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockIdempotencyStore) Complete(ctx context.Context, scope, key, result string) error {
	args := m.Called(ctx, scope, key, result)
	return args.Error(0)
}

func (m *MockIdempotencyStore) Release(ctx context.Context, scope, key string) error {
	args := m.Called(ctx, scope, key)
	return args.Error(0)
}

type MockPaymentProvider struct {
	mock.Mock
}

func (m *MockPaymentProvider) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.CheckoutSession), args.Error(1)
}

func (m *MockPaymentProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*payment.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.CheckoutSession), args.Error(1)
}
