package api

import (
	"net/http"

	"pharmacy-api/internal/service"

	"github.com/gin-gonic/gin"
)

// listProducts handles GET /api/products?keyword=&category=&subCategory=
func (h *Handler) listProducts(c *gin.Context) {
	var req service.ListProductsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid query"})
		return
	}

	products, err := h.productService.ListProducts(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err, msgServerError)
		return
	}

	c.JSON(http.StatusOK, products)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.productService.Categories(c.Request.Context())
	if err != nil {
		h.respondError(c, err, msgServerError)
		return
	}

	c.JSON(http.StatusOK, categories)
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.productService.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, msgServerError)
		return
	}

	c.JSON(http.StatusOK, product)
}
