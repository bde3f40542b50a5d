package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"reachpoint/internal/config"
	"reachpoint/internal/models"
	"reachpoint/internal/repository"
	"reachpoint/internal/service"
)

var clearData = flag.Bool("clear", false, "Clear existing data before seeding")

// Sample customers spanning every segment tier, with and without recent
// visits, so rule previews have something to chew on.
func sampleCustomers(now time.Time) []*models.Customer {
	daysAgo := func(n int) *time.Time {
		t := now.AddDate(0, 0, -n)
		return &t
	}

	specs := []struct {
		name     string
		spending float64
		visits   int
		last     *time.Time
		regDays  int
		active   bool
		tags     []string
	}{
		{"Aarav Sharma", 72000, 48, daysAgo(3), 900, true, []string{"loyal", "newsletter"}},
		{"Priya Patel", 51000, 30, daysAgo(12), 650, true, []string{"newsletter"}},
		{"Jane Doe", 34000, 22, daysAgo(8), 400, true, []string{"loyal"}},
		{"Rohan Mehta", 21000, 15, daysAgo(45), 380, true, nil},
		{"Sara Khan", 12000, 9, daysAgo(20), 200, true, []string{"newsletter", "sale-alerts"}},
		{"Vikram Singh", 8000, 6, daysAgo(95), 150, false, nil},
		{"Ananya Iyer", 4200, 3, daysAgo(60), 90, true, []string{"sale-alerts"}},
		{"Kabir Das", 1500, 2, nil, 30, true, nil},
		{"Meera Nair", 600, 1, daysAgo(7), 14, true, []string{"newsletter"}},
		{"Arjun Rao", 0, 0, nil, 5, true, nil},
	}

	customers := make([]*models.Customer, 0, len(specs))
	for i, s := range specs {
		customers = append(customers, &models.Customer{
			Name:             s.name,
			Email:            fmt.Sprintf("customer%d@example.com", i+1),
			Phone:            fmt.Sprintf("+9198000000%02d", i+1),
			TotalSpending:    s.spending,
			VisitCount:       s.visits,
			LastVisit:        s.last,
			RegistrationDate: now.AddDate(0, 0, -s.regDays),
			Segment:          segmentFor(s.spending),
			IsActive:         s.active,
			Tags:             s.tags,
		})
	}
	return customers
}

func segmentFor(spending float64) string {
	switch service.DeriveSegment(spending) {
	case "VIP":
		return "vip"
	case "Premium":
		return "premium"
	case "Regular":
		return "regular"
	default:
		return "new"
	}
}

func main() {
	flag.Parse()
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

	if *clearData {
		for _, table := range []string{"message_records", "campaigns", "customers"} {
			if _, err := db.Exec("DELETE FROM " + table); err != nil {
				log.Fatalf("Failed to clear %s: %v", table, err)
			}
		}
		log.Println("Cleared existing data")
	}

	ctx := context.Background()
	customerRepo := repository.NewCustomerRepository(db)

	customers := sampleCustomers(time.Now())
	for _, c := range customers {
		if err := customerRepo.Create(ctx, c); err != nil {
			log.Fatalf("Failed to create customer %s: %v", c.Name, err)
		}
	}

	log.Printf("Seeded %d customers", len(customers))
}
