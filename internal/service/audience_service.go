package service

import (
	"context"
	"fmt"
	"time"

	"reachpoint/internal/models"
	"reachpoint/internal/repository"
	"reachpoint/internal/rules"
)

// AudienceStore resolves a compiled predicate into matching customers.
// It is the boundary a real customer platform would implement.
type AudienceStore interface {
	CountMatching(ctx context.Context, cond rules.Condition) (int, error)
	// FindMatching returns matching customers; limit <= 0 means no limit.
	FindMatching(ctx context.Context, cond rules.Condition, limit int) ([]*models.Customer, error)
}

type audienceStore struct {
	customerRepo repository.CustomerRepository
	now          func() time.Time
}

// NewAudienceStore creates an audience store over the customer repository
func NewAudienceStore(customerRepo repository.CustomerRepository) AudienceStore {
	return &audienceStore{
		customerRepo: customerRepo,
		now:          time.Now,
	}
}

// CountMatching counts customers matching the predicate
func (s *audienceStore) CountMatching(ctx context.Context, cond rules.Condition) (int, error) {
	customers, err := s.FindMatching(ctx, cond, 0)
	if err != nil {
		return 0, err
	}
	return len(customers), nil
}

// FindMatching evaluates the predicate against every customer. All recency
// rules in one call share a single evaluation time.
func (s *audienceStore) FindMatching(ctx context.Context, cond rules.Condition, limit int) ([]*models.Customer, error) {
	customers, err := s.customerRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load customers: %w", err)
	}

	now := s.now()
	matched := []*models.Customer{}
	for _, c := range customers {
		if cond.Matches(c, now) {
			matched = append(matched, c)
			if limit > 0 && len(matched) >= limit {
				break
			}
		}
	}

	return matched, nil
}
