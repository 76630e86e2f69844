package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketplace/middleware"
	"marketplace/models"
	"marketplace/productclient"
	"marketplace/services"
)

type ProductHandler struct {
	products *services.ProductService
	logger   *zap.Logger
}

func NewProductHandler(products *services.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{products: products, logger: logger}
}

// Register mounts the public catalog lookups and the vendor listing routes.
func (h *ProductHandler) Register(public, vendor *gin.RouterGroup) {
	public.GET("/products/owners", h.GetOwners)
	public.GET("/products/:id", h.GetProduct)

	vendor.GET("/vendor/products", h.ListVendorProducts)
	vendor.POST("/vendor/products", h.CreateProduct)
	vendor.PUT("/vendor/products/:id", h.UpdateProduct)
	vendor.DELETE("/vendor/products/:id", h.DeleteProduct)
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	product, err := h.products.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetOwners(c *gin.Context) {
	var ids []string
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	owners, err := h.products.Owners(c.Request.Context(), ids)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, productclient.OwnersResponse{Owners: owners})
}

func (h *ProductHandler) ListVendorProducts(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	products, err := h.products.ListVendorProducts(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req models.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	product, err := h.products.CreateProduct(c.Request.Context(), user.ID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	product, err := h.products.UpdateProduct(c.Request.Context(), user.ID, c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	if err := h.products.DeleteProduct(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully", "success": true})
}
