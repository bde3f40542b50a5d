package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"reachpoint/internal/models"
)

type customerRepository struct {
	db *sql.DB
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *sql.DB) CustomerRepository {
	return &customerRepository{db: db}
}

const customerColumns = `
	id, name, email, phone, total_spending, visit_count, last_visit,
	registration_date, segment, is_active, tags, created_at
`

// Create creates a new customer
func (r *customerRepository) Create(ctx context.Context, customer *models.Customer) error {
	query := `
		INSERT INTO customers (name, email, phone, total_spending, visit_count, last_visit, registration_date, segment, is_active, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		customer.Name,
		customer.Email,
		customer.Phone,
		customer.TotalSpending,
		customer.VisitCount,
		customer.LastVisit,
		customer.RegistrationDate,
		customer.Segment,
		customer.IsActive,
		pq.Array(customer.Tags),
	).Scan(&customer.ID, &customer.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}

	return nil
}

// GetByID retrieves a customer by ID
func (r *customerRepository) GetByID(ctx context.Context, id int) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	customer, err := scanCustomer(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return customer, nil
}

// ListAll retrieves every customer. The audience store filters the full set
// through a compiled predicate, so there is no SQL-side filtering here.
func (r *customerRepository) ListAll(ctx context.Context) ([]*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	return collectCustomers(rows)
}

// List retrieves a page of customers
func (r *customerRepository) List(ctx context.Context, limit, offset int) ([]*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers ORDER BY id ASC LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	return collectCustomers(rows)
}

func collectCustomers(rows *sql.Rows) ([]*models.Customer, error) {
	customers := []*models.Customer{}
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, customer)
	}
	return customers, nil
}

func scanCustomer(s scanner) (*models.Customer, error) {
	customer := &models.Customer{}
	var tags pq.StringArray

	err := s.Scan(
		&customer.ID,
		&customer.Name,
		&customer.Email,
		&customer.Phone,
		&customer.TotalSpending,
		&customer.VisitCount,
		&customer.LastVisit,
		&customer.RegistrationDate,
		&customer.Segment,
		&customer.IsActive,
		&tags,
		&customer.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	customer.Tags = []string(tags)
	return customer, nil
}
