package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"turnstile/internal/models"
)

// GetOrder - GET /api/orders/:id
// Read model for collaborators: the order plus its seats.
func (h *Handlers) GetOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := h.repos.Orders.GetByID(c.Request.Context(), orderID)
	if err != nil {
		slog.Error("Failed to get order", "error", err, "order_id", orderID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get order"})
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	seats, err := h.repos.Seats.GetByOrderID(c.Request.Context(), orderID)
	if err != nil {
		slog.Error("Failed to get order seats", "error", err, "order_id", orderID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get order"})
		return
	}

	c.JSON(http.StatusOK, models.GetOrderResponse{
		ID:          order.ID,
		OrderNo:     order.OrderNo,
		EventID:     order.EventID,
		UserID:      order.UserID,
		SeatCount:   order.SeatCount,
		TotalAmount: order.TotalAmount,
		Status:      order.Status,
		ExpireTime:  order.ExpireTime,
		PayTime:     order.PayTime,
		Seats:       seats,
	})
}
