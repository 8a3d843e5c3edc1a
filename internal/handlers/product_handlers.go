package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/repo"
)

// --- Inputs ---

type CreateProductInput struct {
	Name         string  `json:"name" binding:"required"`
	Description  string  `json:"description"`
	Category     string  `json:"category"`
	Price        float64 `json:"price" binding:"gt=0"`
	Image        string  `json:"image"`
	Weight       float64 `json:"weight" binding:"gte=0"`
	CountInStock int     `json:"countInStock" binding:"gte=0"`
}

// CreateProduct is the admin handler for POST /api/products
func (h *Handlers) CreateProduct(c *gin.Context) {
	var input CreateProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// --- 1. Build Slug ---
	base := slug.Make(input.Name)
	if base == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name must contain letters or digits"})
		return
	}

	product := &models.Product{
		Name:         strings.TrimSpace(input.Name),
		Slug:         base,
		Description:  input.Description,
		Category:     strings.TrimSpace(input.Category),
		Price:        input.Price,
		Image:        input.Image,
		Weight:       input.Weight,
		CountInStock: input.CountInStock,
	}

	// --- 2. Save, suffixing the slug on collision ---
	err := h.Products.Create(c.Request.Context(), product)
	if errors.Is(err, repo.ErrDuplicate) {
		product.Slug = base + "-" + uuid.NewString()[:6]
		err = h.Products.Create(c.Request.Context(), product)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, product)
}

// ListProducts is the handler for GET /api/products
// Query: category, page, limit
func (h *Handlers) ListProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	products, total, err := h.Products.List(c.Request.Context(), c.Query("category"), limit, (page-1)*limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"page":     page,
		"pages":    (total + limit - 1) / limit,
		"total":    total,
	})
}

// GetProduct is the handler for GET /api/products/:slug
func (h *Handlers) GetProduct(c *gin.Context) {
	product, err := h.Products.FindBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}
