package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"marketplace/mocks"
	"marketplace/middleware"
	"marketplace/models"
	"marketplace/repository"
	"marketplace/services"
)

type vendorDeps struct {
	orders       *mocks.MockOrderRepository
	vendorOrders *mocks.MockVendorOrderRepository
	owners       *mocks.MockOwnerResolver
	publisher    *mocks.MockPublisher
}

func setupVendorTest(t *testing.T) (*gin.Engine, *vendorDeps) {
	deps := &vendorDeps{
		orders:       new(mocks.MockOrderRepository),
		vendorOrders: new(mocks.MockVendorOrderRepository),
		owners:       new(mocks.MockOwnerResolver),
		publisher:    new(mocks.MockPublisher),
	}
	logger := testLogger(t)
	splitter := services.NewSplitter(deps.orders, deps.vendorOrders, deps.owners, deps.publisher, "vendor_order_changes", logger)
	vendorOrders := services.NewVendorOrderService(deps.vendorOrders, deps.orders, deps.publisher, "vendor_order_changes", logger)

	router := gin.New()
	vendor := router.Group("/", middleware.AuthMiddleware(testSecret), middleware.RequireRole(middleware.RoleVendor))
	system := router.Group("/", middleware.AuthMiddleware(testSecret), middleware.RequireRole(middleware.RoleAdmin))
	NewVendorOrderHandler(vendorOrders, splitter, logger).Register(vendor, system)
	return router, deps
}

func splitTrigger(orderID string) gin.H {
	return gin.H{"type": "INSERT", "table": "orders", "record": gin.H{"id": orderID}}
}

func TestVendorOrderHandler_ProcessVendorOrders(t *testing.T) {
	router, deps := setupVendorTest(t)
	order := &models.Order{ID: "order-1", Items: models.LineItems{
		{ProductID: "prod-a", Price: decimal.NewFromInt(20), Quantity: 2},
		{ProductID: "prod-b", Price: decimal.NewFromInt(15), Quantity: 1},
	}}
	deps.orders.On("GetByID", mock.Anything, "order-1").Return(order, nil)
	deps.owners.On("ProductOwners", mock.Anything, []string{"prod-a", "prod-b"}).
		Return(map[string]string{"prod-a": "vendor-1", "prod-b": "vendor-2"}, nil)
	deps.vendorOrders.On("ExistingVendorIDs", mock.Anything, "order-1").Return([]string{}, nil)
	deps.vendorOrders.On("CreateBatch", mock.Anything, mock.Anything, services.ActorSystem).Return([]models.VendorOrder{
		{ID: "vo-1", VendorID: "vendor-1", OrderID: "order-1"},
		{ID: "vo-2", VendorID: "vendor-2", OrderID: "order-1"},
	}, nil)
	deps.publisher.On("Publish", mock.Anything, "vendor_order_changes", mock.Anything, mock.Anything).Return(nil)

	w := doRequest(t, router, http.MethodPost, "/functions/process-vendor-orders", tokenFor(t, "system", middleware.RoleAdmin), splitTrigger("order-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["vendorOrdersCreated"])
}

func TestVendorOrderHandler_ProcessVendorOrders_Errors(t *testing.T) {
	router, deps := setupVendorTest(t)
	deps.orders.On("GetByID", mock.Anything, "order-x").Return(nil, repository.ErrNotFound)
	admin := tokenFor(t, "system", middleware.RoleAdmin)

	w := doRequest(t, router, http.MethodPost, "/functions/process-vendor-orders", admin, splitTrigger("order-x"))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	w = doRequest(t, router, http.MethodPost, "/functions/process-vendor-orders", admin, gin.H{"record": gin.H{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	w = doRequest(t, router, http.MethodPost, "/functions/process-vendor-orders", tokenFor(t, "vendor-1", middleware.RoleVendor), splitTrigger("order-1"))
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestVendorOrderHandler_List(t *testing.T) {
	router, deps := setupVendorTest(t)
	deps.vendorOrders.On("ListByVendor", mock.Anything, "vendor-1").Return([]models.VendorOrder{
		{ID: "vo-1", VendorID: "vendor-1", OrderID: "order-1", Status: models.VendorOrderStatusPending},
	}, nil)
	deps.orders.On("ListByIDs", mock.Anything, []string{"order-1"}).Return([]models.Order{
		{ID: "order-1", CustomerName: "Jane Doe", CustomerEmail: "jane@example.com"},
	}, nil)

	w := doRequest(t, router, http.MethodGet, "/vendor/orders", tokenFor(t, "vendor-1", middleware.RoleVendor), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	assert.Contains(t, w.Body.String(), `"customer_name":"Jane Doe"`)

	w = doRequest(t, router, http.MethodGet, "/vendor/orders", tokenFor(t, "buyer-1", middleware.RoleCustomer), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestVendorOrderHandler_UpdateStatus(t *testing.T) {
	router, deps := setupVendorTest(t)
	current := &models.VendorOrder{ID: "vo-1", VendorID: "vendor-1", Status: models.VendorOrderStatusPending}
	updated := *current
	updated.Status = models.VendorOrderStatusProcessing
	deps.vendorOrders.On("GetByID", mock.Anything, "vo-1").Return(current, nil)
	deps.vendorOrders.On("UpdateStatus", mock.Anything, mock.AnythingOfType("repository.StatusUpdate")).Return(&updated, nil)
	deps.publisher.On("Publish", mock.Anything, "vendor_order_changes", "vendor-1", mock.Anything).Return(nil)

	w := doRequest(t, router, http.MethodPatch, "/vendor/orders/vo-1", tokenFor(t, "vendor-1", middleware.RoleVendor),
		gin.H{"status": "processing"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	assert.Equal(t, "processing", decode(t, w)["status"])

	w = doRequest(t, router, http.MethodPatch, "/vendor/orders/vo-1", tokenFor(t, "vendor-2", middleware.RoleVendor),
		gin.H{"status": "processing"})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}

	w = doRequest(t, router, http.MethodPatch, "/vendor/orders/vo-1", tokenFor(t, "vendor-1", middleware.RoleVendor),
		gin.H{"status": "delivered"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestVendorOrderHandler_StatsAndHistory(t *testing.T) {
	router, deps := setupVendorTest(t)
	token := tokenFor(t, "vendor-1", middleware.RoleVendor)
	deps.vendorOrders.On("Stats", mock.Anything, "vendor-1").Return(&models.VendorOrderStats{
		Total:    1,
		ByStatus: map[models.VendorOrderStatus]int{models.VendorOrderStatusPending: 1},
		Revenue:  decimal.NewFromInt(40),
	}, nil)
	deps.vendorOrders.On("GetByID", mock.Anything, "vo-1").Return(&models.VendorOrder{ID: "vo-1", VendorID: "vendor-1"}, nil)
	deps.vendorOrders.On("ListHistory", mock.Anything, "vo-1").Return([]models.StatusHistory{
		{ID: "h1", VendorOrderID: "vo-1", NewStatus: models.VendorOrderStatusPending, ChangedBy: services.ActorSystem},
	}, nil)

	w := doRequest(t, router, http.MethodGet, "/vendor/orders/stats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	assert.Equal(t, float64(40), decode(t, w)["revenue"])

	w = doRequest(t, router, http.MethodGet, "/vendor/orders/vo-1/history", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	assert.Contains(t, w.Body.String(), `"changed_by":"system"`)
}
