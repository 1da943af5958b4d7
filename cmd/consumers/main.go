package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"turnstile/internal/config"
	"turnstile/internal/consumers"
	"turnstile/internal/logger"
)

func main() {
	log.Println("Starting consumers service...")

	cfg := config.Load()
	cfg.NATS.ClientID = "turnstile-consumers"

	logger.Init(cfg.LogLevel, cfg.LogFormat)

	consumerService, err := consumers.NewConsumerService(cfg)
	if err != nil {
		log.Fatalf("Failed to create consumer service: %v", err)
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	if err := consumerService.Start(runCtx); err != nil {
		log.Fatalf("Failed to start consumers: %v", err)
	}

	log.Println("Consumers service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down consumers service...")
	cancelRun()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumerService.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Consumers service stopped")
}
