package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"turnstile/internal/models"
)

const defaultPerUserLimit = 4

// CreateEvent - POST /api/events
// Catalog setup: creates the event and its seat map before selling opens.
func (h *Handlers) CreateEvent(c *gin.Context) {
	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := req.PerUserLimit
	if limit <= 0 {
		limit = defaultPerUserLimit
	}

	event := &models.Event{
		Title:        req.Title,
		Status:       models.EventSelling,
		SaleStart:    req.SaleStart,
		SaleEnd:      req.SaleEnd,
		PerUserLimit: limit,
	}
	if err := h.repos.Events.Create(c.Request.Context(), event); err != nil {
		slog.Error("Failed to create event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create event"})
		return
	}

	if err := h.repos.Seats.CreateSeatsForEvent(c.Request.Context(),
		event.ID, req.Zone, req.Rows, req.SeatsPerRow, req.Price); err != nil {
		slog.Error("Failed to create seats", "error", err, "event_id", event.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create seats"})
		return
	}

	c.JSON(http.StatusCreated, models.CreateEventResponse{
		ID:         event.ID,
		Title:      event.Title,
		TotalSeats: req.Rows * req.SeatsPerRow,
		Status:     event.Status,
	})
}

// GetAvailability - GET /api/events/:id/availability
// Aggregate counters straight off the event row; no seat scan.
func (h *Handlers) GetAvailability(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || eventID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	event, err := h.repos.Events.GetByID(c.Request.Context(), eventID)
	if err != nil {
		slog.Error("Failed to get event", "error", err, "event_id", eventID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get event"})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}

	c.JSON(http.StatusOK, models.EventAvailabilityResponse{
		EventID:        event.ID,
		Status:         event.Status,
		TotalSeats:     event.TotalSeats,
		AvailableSeats: event.AvailableSeats,
		LockedSeats:    event.LockedSeats,
		SoldSeats:      event.SoldSeats,
	})
}
