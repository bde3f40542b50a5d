package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"reachpoint/internal/config"
	"reachpoint/internal/queue"
	"reachpoint/internal/repository"
	"reachpoint/internal/service"
)

func main() {
	// Load .env file (ignore error in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	campaignRepo := repository.NewCampaignRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	statsSvc := service.NewStatsService(campaignRepo, messageRepo)
	receiptSvc := service.NewReceiptService(messageRepo, statsSvc, cfg.Webhook.Secret)

	conn, err := queue.NewConnection(cfg.GetRabbitMQURL())
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()

	consumer, err := queue.NewConsumer(conn, cfg.RabbitMQ.QueueName, receiptHandler(receiptSvc))
	if err != nil {
		log.Fatalf("Failed to create consumer: %v", err)
	}

	if err := consumer.Start(); err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}
	log.Printf("Worker started, consuming receipts from queue: %s", cfg.RabbitMQ.QueueName)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	if err := consumer.Stop(); err != nil {
		log.Printf("Error stopping consumer: %v", err)
	}

	log.Println("Worker stopped")
}

// receiptHandler applies one queued receipt. Receipts that can never
// succeed (unknown message, bad signature, malformed payload) are dropped
// with a log line; transient errors are returned so the delivery is
// requeued.
func receiptHandler(receiptSvc *service.ReceiptService) queue.ReceiptHandler {
	return func(body []byte, signature string) error {
		var receipt service.Receipt
		if err := json.Unmarshal(body, &receipt); err != nil {
			log.Printf("Dropping malformed receipt: %v", err)
			return nil
		}

		err := receiptSvc.Process(context.Background(), &receipt, body, signature)
		if err == nil {
			return nil
		}

		var notFound *service.NotFoundError
		var authErr *service.AuthenticationError
		var valErr *service.ValidationError
		if errors.As(err, &notFound) || errors.As(err, &authErr) || errors.As(err, &valErr) {
			log.Printf("Dropping receipt for %s: %v", receipt.MessageID, err)
			return nil
		}

		return err
	}
}
