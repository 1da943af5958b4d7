package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"turnstile/internal/models"
)

// OnPaymentUpdates - POST /api/payments/notifications
// Accepts payment-result callbacks from the payment gateway. The gateway
// retries until it sees 200, so the path is idempotent end to end.
func (h *Handlers) OnPaymentUpdates(c *gin.Context) {
	var notification models.PaymentNotificationPayload
	if err := c.ShouldBindJSON(&notification); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.services.Payments.HandleNotification(c.Request.Context(), &notification)
	if err != nil {
		slog.Error("Failed to handle payment notification",
			"error", err, "order_id", notification.OrderID)
		respondError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

// CancelOrder - PATCH /api/orders/cancel
// Cancels a pending order on user request and releases its seats.
func (h *Handlers) CancelOrder(c *gin.Context) {
	var req models.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.services.Payments.Cancel(c.Request.Context(), req.OrderID); err != nil {
		slog.Error("Failed to cancel order", "error", err, "order_id", req.OrderID)
		respondError(c, err)
		return
	}

	c.Status(http.StatusOK)
}
