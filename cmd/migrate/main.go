package main

import (
	"database/sql"
	"log"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"reachpoint/internal/config"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		total_spending DOUBLE PRECISION NOT NULL DEFAULT 0,
		visit_count INTEGER NOT NULL DEFAULT 0,
		last_visit TIMESTAMPTZ,
		registration_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		segment TEXT NOT NULL DEFAULT 'new',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		tags TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS campaigns (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		audience_rules JSONB NOT NULL DEFAULT '[]',
		audience_size INTEGER NOT NULL DEFAULT 0,
		message_template TEXT NOT NULL,
		message_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		total_sent INTEGER NOT NULL DEFAULT 0,
		total_failed INTEGER NOT NULL DEFAULT 0,
		total_delivered INTEGER NOT NULL DEFAULT 0,
		delivery_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		scheduled_at TIMESTAMPTZ,
		sent_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS message_records (
		id SERIAL PRIMARY KEY,
		message_id TEXT NOT NULL UNIQUE,
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id),
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		recipient TEXT NOT NULL,
		content TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		vendor_message_id TEXT,
		receipt_status TEXT,
		receipt_time TIMESTAMPTZ,
		error_code TEXT,
		error_description TEXT,
		last_error TEXT,
		sent_at TIMESTAMPTZ,
		delivered_at TIMESTAMPTZ,
		failed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_message_records_campaign_id ON message_records(campaign_id)`,
	`CREATE INDEX IF NOT EXISTS idx_message_records_status ON message_records(status)`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status)`,
}

func main() {
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

	for i, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("Migration statement %d failed: %v", i+1, err)
		}
	}

	log.Println("Migrations applied successfully")
}
