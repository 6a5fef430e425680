package api

import (
	"net/http"

	"pharmacy-api/internal/service"

	"github.com/gin-gonic/gin"
)

const idempotencyHeader = "Idempotency-Key"

// placeOrder handles order creation
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.PlaceOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		if len(req.OrderItems) == 0 {
			h.respondError(c, service.ErrEmptyOrder, msgOrderFailed)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": validationMessage(err)})
		return
	}

	order, replayed, err := h.orderService.PlaceOrder(c.Request.Context(), &req, c.GetHeader(idempotencyHeader))
	if err != nil {
		h.respondError(c, err, msgOrderFailed)
		return
	}

	if replayed {
		c.JSON(http.StatusOK, order)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context())
	if err != nil {
		h.respondError(c, err, msgServerError)
		return
	}

	c.JSON(http.StatusOK, orders)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, msgServerError)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req service.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": validationMessage(err)})
		return
	}

	order, err := h.orderService.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, err, msgServerError)
		return
	}

	c.JSON(http.StatusOK, order)
}
