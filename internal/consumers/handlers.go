package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nats-io/stan.go"

	"turnstile/internal/apperr"
	"turnstile/internal/logger"
	"turnstile/internal/models"
	"turnstile/internal/service"
)

type Handlers struct {
	services *service.Services
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{services: services}
}

// HandlePurchaseRequested consumes one purchase-intent message. The queue
// delivers at-least-once and the coordinator's idempotency key absorbs
// duplicates, so acking only after a definitive outcome is safe.
func (h *Handlers) HandlePurchaseRequested(m *stan.Msg) {
	var req models.ReserveSeatsRequest
	if err := json.Unmarshal(m.Data, &req); err != nil {
		slog.Error("Failed to unmarshal purchase request", "error", err)
		m.Ack() // malformed payloads never become valid on redelivery
		return
	}

	if req.RequestID == "" {
		req.RequestID = logger.NewRequestID()
	}
	ctx := context.WithValue(context.Background(), "request_id", req.RequestID)
	log := logger.WithRequestID(req.RequestID)

	resp, err := h.services.Reservations.Reserve(ctx, &req)
	if err != nil {
		if rejected(err) {
			log.Info("Purchase request rejected",
				"reason", err.Error(),
				"user_id", req.UserID,
				"event_id", req.EventID,
				"seats", len(req.SeatIDs))
			m.Ack()
			return
		}

		// Transient (lock held, storage trouble): leave unacked so the
		// queue redelivers after AckWait.
		log.Warn("Purchase request deferred for redelivery",
			"error", err,
			"user_id", req.UserID,
			"event_id", req.EventID)
		return
	}

	log.Info("Purchase request reserved",
		"order_id", resp.OrderID,
		"user_id", req.UserID,
		"event_id", req.EventID,
		"seats", resp.SeatCount,
		"expire_time", resp.ExpireTime)

	m.Ack()
}

// rejected reports whether the failure is a definitive business outcome
// that redelivery cannot change.
func rejected(err error) bool {
	return errors.Is(err, apperr.ErrSoldOut) ||
		errors.Is(err, apperr.ErrOverLimit) ||
		errors.Is(err, apperr.ErrContention) ||
		errors.Is(err, apperr.ErrPartialReservation) ||
		errors.Is(err, apperr.ErrEventNotFound) ||
		errors.Is(err, apperr.ErrEventNotOnSale) ||
		errors.Is(err, apperr.ErrSeatNotFound)
}
