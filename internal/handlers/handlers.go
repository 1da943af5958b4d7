package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"turnstile/internal/apperr"
	"turnstile/internal/repository"
	"turnstile/internal/service"
)

type Handlers struct {
	services *service.Services
	repos    *repository.Repositories
}

func NewHandlers(services *service.Services, repos *repository.Repositories) *Handlers {
	return &Handlers{
		services: services,
		repos:    repos,
	}
}

// respondError maps the error taxonomy onto HTTP statuses. Contention-class
// failures are 409: the request was well-formed, the state disagreed.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrOrderNotFound),
		errors.Is(err, apperr.ErrEventNotFound),
		errors.Is(err, apperr.ErrSeatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrSoldOut),
		errors.Is(err, apperr.ErrOverLimit),
		errors.Is(err, apperr.ErrContention),
		errors.Is(err, apperr.ErrPartialReservation),
		errors.Is(err, apperr.ErrEventNotOnSale):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrLockUnavailable):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
