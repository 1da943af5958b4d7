package consumers

import (
	"context"
	"log/slog"

	"turnstile/internal/config"
	"turnstile/internal/database"
	"turnstile/internal/lock"
	"turnstile/internal/messaging"
	"turnstile/internal/models"
	"turnstile/internal/repository"
	"turnstile/internal/service"
	"turnstile/internal/sweeper"
)

// ConsumerService owns the purchase-intent queue subscription and the expiry
// sweeper. It is the engine's write-side entry point; the API binary only
// serves callbacks and reads.
type ConsumerService struct {
	db       *database.DB
	nats     *messaging.NATSClient
	repos    *repository.Repositories
	handlers *Handlers
	sweeper  *sweeper.Sweeper
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(); err != nil {
		return nil, err
	}

	redisClient, err := lock.NewClient(cfg.Redis)
	if err != nil {
		return nil, err
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		return nil, err
	}

	repos := repository.NewRepositories(db)
	stores := service.Stores{
		Seats:     repos.Seats,
		Events:    repos.Events,
		Orders:    repos.Orders,
		Purchases: repos.Purchases,
	}

	locker := lock.NewRedisLocker(redisClient)
	services := service.NewServices(stores, locker, natsClient, cfg.Reservation)

	return &ConsumerService{
		db:       db,
		nats:     natsClient,
		repos:    repos,
		handlers: NewHandlers(services),
		sweeper:  sweeper.New(stores, natsClient, cfg.Sweeper),
	}, nil
}

func (cs *ConsumerService) Start(ctx context.Context) error {
	slog.Info("Starting purchase intake consumers...")

	_, err := cs.nats.SubscribeQueue(models.SubjectPurchaseRequested, "engine", cs.handlers.HandlePurchaseRequested)
	if err != nil {
		return err
	}

	cs.sweeper.Start(ctx)

	slog.Info("All consumers started successfully")
	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	cs.sweeper.Stop()

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if cs.db != nil {
		if err := cs.db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
