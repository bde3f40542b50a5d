package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"reachpoint/internal/config"
	"reachpoint/internal/handler"
	"reachpoint/internal/middleware"
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

	// The queue is only needed when vendor callbacks go through AMQP
	var conn *queue.Connection
	var publisher *queue.Publisher
	if cfg.Vendor.CallbackMode == "amqp" {
		conn, err = queue.NewConnection(cfg.GetRabbitMQURL())
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer conn.Close()

		publisher, err = queue.NewPublisher(conn, cfg.RabbitMQ.QueueName)
		if err != nil {
			log.Fatalf("Failed to create receipt publisher: %v", err)
		}
	}

	// Repositories
	campaignRepo := repository.NewCampaignRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// Services
	audienceStore := service.NewAudienceStore(customerRepo)
	templateSvc := service.NewTemplateService()
	statsSvc := service.NewStatsService(campaignRepo, messageRepo)
	receiptSvc := service.NewReceiptService(messageRepo, statsSvc, cfg.Webhook.Secret)

	var receiptPublisher service.ReceiptPublisher
	if publisher != nil {
		receiptPublisher = publisher
	}
	vendorSvc := service.NewVendorService(messageRepo, statsSvc, cfg.Vendor, cfg.Webhook.Secret, receiptPublisher)
	campaignSvc := service.NewCampaignService(campaignRepo, messageRepo, audienceStore, templateSvc, vendorSvc, cfg.Delivery.PacingDelay)

	// Handlers
	campaignHandler := handler.NewCampaignHandler(campaignSvc, vendorSvc)
	webhookHandler := handler.NewWebhookHandler(receiptSvc)

	var queueChecker handler.QueueChecker
	if conn != nil {
		queueChecker = conn
	}
	healthHandler := handler.NewHealthHandler(db, queueChecker)

	router := mux.NewRouter()
	router.Use(middleware.Recovery)

	router.HandleFunc("/health", healthHandler.Check).Methods("GET")
	router.HandleFunc("/campaigns", campaignHandler.Create).Methods("POST")
	router.HandleFunc("/campaigns", campaignHandler.List).Methods("GET")
	router.HandleFunc("/campaigns/preview", campaignHandler.Preview).Methods("POST")
	router.HandleFunc("/campaigns/{id}", campaignHandler.GetByID).Methods("GET")
	router.HandleFunc("/campaigns/{id}/send", campaignHandler.Send).Methods("POST")
	router.HandleFunc("/campaigns/{id}/pause", campaignHandler.Pause).Methods("POST")
	router.HandleFunc("/campaigns/{id}/retry", campaignHandler.Retry).Methods("POST")
	router.HandleFunc("/webhooks/delivery-receipt", webhookHandler.DeliveryReceipt).Methods("POST")
	router.HandleFunc("/webhooks/batch-delivery-receipt", webhookHandler.BatchDeliveryReceipt).Methods("POST")

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Printf("API server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown: stop accepting requests, then wait for running
	// delivery loops and pending vendor resolutions
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}

	campaignSvc.Close()
	vendorSvc.Close()

	log.Println("API server stopped")
}
