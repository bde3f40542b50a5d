package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Vendor   VendorConfig
	Webhook  WebhookConfig
	Delivery DeliveryConfig
	Env      string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// RabbitMQConfig holds RabbitMQ configuration
type RabbitMQConfig struct {
	Host      string
	Port      string
	User      string
	Password  string
	QueueName string
}

// VendorConfig holds the simulated vendor settings
type VendorConfig struct {
	SuccessRate  float64
	MinDelay     time.Duration
	MaxDelay     time.Duration
	CallbackMode string // "http" or "amqp"
	CallbackURL  string
}

// WebhookConfig holds the receipt signing settings
type WebhookConfig struct {
	Secret string
}

// DeliveryConfig holds the delivery loop settings
type DeliveryConfig struct {
	PacingDelay time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     getEnv("POSTGRES_USER", "reachpoint"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			DBName:   getEnv("POSTGRES_DB", "reachpoint_db"),
		},
		RabbitMQ: RabbitMQConfig{
			Host:      getEnv("RABBITMQ_HOST", "localhost"),
			Port:      getEnv("RABBITMQ_PORT", "5672"),
			User:      getEnv("RABBITMQ_DEFAULT_USER", "guest"),
			Password:  getEnv("RABBITMQ_DEFAULT_PASS", "guest"),
			QueueName: getEnv("RABBITMQ_RECEIPT_QUEUE", "delivery_receipts"),
		},
		Vendor: VendorConfig{
			SuccessRate:  getEnvAsFloat("VENDOR_SUCCESS_RATE", 0.9),
			MinDelay:     time.Duration(getEnvAsInt("VENDOR_MIN_DELAY_MS", 500)) * time.Millisecond,
			MaxDelay:     time.Duration(getEnvAsInt("VENDOR_MAX_DELAY_MS", 3000)) * time.Millisecond,
			CallbackMode: getEnv("VENDOR_CALLBACK_MODE", "http"),
			CallbackURL:  getEnv("VENDOR_CALLBACK_URL", "http://localhost:8080/webhooks/delivery-receipt"),
		},
		Webhook: WebhookConfig{
			Secret: getEnv("WEBHOOK_SECRET", ""),
		},
		Delivery: DeliveryConfig{
			PacingDelay: time.Duration(getEnvAsInt("SEND_PACING_MS", 100)) * time.Millisecond,
		},
		Env: getEnv("ENV", "development"),
	}

	// Validate required fields
	if config.Database.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD is required")
	}
	if config.Vendor.CallbackMode != "http" && config.Vendor.CallbackMode != "amqp" {
		return nil, fmt.Errorf("VENDOR_CALLBACK_MODE must be 'http' or 'amqp'")
	}
	if config.Vendor.MaxDelay < config.Vendor.MinDelay {
		return nil, fmt.Errorf("VENDOR_MAX_DELAY_MS must be >= VENDOR_MIN_DELAY_MS")
	}

	return config, nil
}

// GetDatabaseDSN returns PostgreSQL connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// GetRabbitMQURL returns RabbitMQ connection URL
func (c *Config) GetRabbitMQURL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		c.RabbitMQ.User,
		c.RabbitMQ.Password,
		c.RabbitMQ.Host,
		c.RabbitMQ.Port,
	)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// getEnv gets environment variable or returns default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets environment variable as integer or returns default
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets environment variable as float or returns default
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
