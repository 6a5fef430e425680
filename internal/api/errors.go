package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"pharmacy-api/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	msgServerError = "Server Error"
	msgOrderFailed = "Order failed"
)

// respondError writes the JSON error for err. Errors the caller cannot act on
// are logged and answered with fallback only.
func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	var (
		productMissing *service.ProductNotFoundError
		insufficient   *service.InsufficientStockError
	)

	switch {
	case errors.As(err, &productMissing):
		c.JSON(http.StatusNotFound, gin.H{"message": productMissing.Message()})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusBadRequest, gin.H{"message": insufficient.Message()})
	case errors.Is(err, service.ErrEmptyOrder):
		c.JSON(http.StatusBadRequest, gin.H{"message": "No items in order"})
	case errors.Is(err, service.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Product not found"})
	case errors.Is(err, service.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Order not found"})
	case errors.Is(err, service.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid order status"})
	case errors.Is(err, service.ErrRequestInProgress):
		c.JSON(http.StatusConflict, gin.H{"message": "A request with this Idempotency-Key is already in progress"})
	default:
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": fallback})
	}
}

// validationMessage turns a binding error into a short message naming the
// offending fields.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request body"
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return "Invalid fields: " + strings.Join(fields, ", ")
}
