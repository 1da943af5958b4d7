package api

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"turnstile/internal/config"
	"turnstile/internal/database"
	"turnstile/internal/handlers"
	"turnstile/internal/lock"
	"turnstile/internal/messaging"
	"turnstile/internal/middleware"
	"turnstile/internal/repository"
	"turnstile/internal/service"
)

// Server is the HTTP side of the engine: payment callbacks and read models.
// Purchase intents come in through the consumers binary, not here.
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	services *service.Services
	repos    *repository.Repositories
}

// NewServer wires storage, lock, messaging and routes.
func NewServer(cfg *config.Config) *Server {
	gin.SetMode(cfg.GinMode)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.RunMigrations(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient, err := lock.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}

	repos := repository.NewRepositories(db)
	stores := service.Stores{
		Seats:     repos.Seats,
		Events:    repos.Events,
		Orders:    repos.Orders,
		Purchases: repos.Purchases,
	}
	services := service.NewServices(stores, lock.NewRedisLocker(redisClient), natsClient, cfg.Reservation)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())

	server := &Server{
		router:   router,
		config:   cfg,
		db:       db,
		nats:     natsClient,
		services: services,
		repos:    repos,
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	h := handlers.NewHandlers(s.services, s.repos)

	api := s.router.Group("/api")
	{
		events := api.Group("/events")
		{
			events.POST("", h.CreateEvent)
			events.GET("/:id/availability", h.GetAvailability)
		}

		orders := api.Group("/orders")
		{
			orders.GET("/:id", h.GetOrder)
			orders.PATCH("/cancel", h.CancelOrder)
		}

		payments := api.Group("/payments")
		{
			payments.POST("/notifications", h.OnPaymentUpdates)
		}
	}

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) healthCheck(c *gin.Context) {
	check := s.db.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if check.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":   check.Status,
		"service":  "turnstile-api",
		"database": check,
	})
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.config.Port)
	return s.router.Run(addr)
}

// GetRouter returns the router for testing.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Cleanup closes connections.
func (s *Server) Cleanup() error {
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			log.Printf("Error closing NATS connection: %v", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Printf("Error closing database connection: %v", err)
			return err
		}
	}

	return nil
}
