package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"turnstile/internal/apperr"
)

func testRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/payments/notifications", h.OnPaymentUpdates)
	router.PATCH("/api/orders/cancel", h.CancelOrder)
	router.GET("/api/orders/:id", h.GetOrder)
	router.GET("/api/events/:id/availability", h.GetAvailability)
	return router
}

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"order not found", apperr.ErrOrderNotFound, http.StatusNotFound},
		{"event not found", apperr.ErrEventNotFound, http.StatusNotFound},
		{"seat not found", apperr.ErrSeatNotFound, http.StatusNotFound},
		{"sold out", apperr.ErrSoldOut, http.StatusConflict},
		{"over limit", apperr.ErrOverLimit, http.StatusConflict},
		{"contention", apperr.ErrContention, http.StatusConflict},
		{"partial reservation", apperr.ErrPartialReservation, http.StatusConflict},
		{"not on sale", apperr.ErrEventNotOnSale, http.StatusConflict},
		{"lock unavailable", apperr.ErrLockUnavailable, http.StatusTooManyRequests},
		{"storage failure", assert.AnError, http.StatusInternalServerError},
	}

	gin.SetMode(gin.TestMode)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tc.err)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestOnPaymentUpdatesRejectsBadBody(t *testing.T) {
	router := testRouter(NewHandlers(nil, nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/payments/notifications",
		bytes.NewBufferString(`{"orderId": "not-a-number"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelOrderRejectsMissingOrderID(t *testing.T) {
	router := testRouter(NewHandlers(nil, nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/orders/cancel",
		bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrderRejectsBadID(t *testing.T) {
	router := testRouter(NewHandlers(nil, nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders/not-a-number", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAvailabilityRejectsBadID(t *testing.T) {
	router := testRouter(NewHandlers(nil, nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/events/0/availability", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
