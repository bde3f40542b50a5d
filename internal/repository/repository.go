package repository

import (
	"context"
	"errors"
	"time"

	"reachpoint/internal/models"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// CustomerRepository defines customer data access operations
type CustomerRepository interface {
	Create(ctx context.Context, customer *models.Customer) error
	GetByID(ctx context.Context, id int) (*models.Customer, error)
	ListAll(ctx context.Context) ([]*models.Customer, error)
	List(ctx context.Context, limit, offset int) ([]*models.Customer, error)
}

// CampaignRepository defines campaign data access operations
type CampaignRepository interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, id int) (*models.Campaign, error)
	List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error)
	UpdateStatus(ctx context.Context, id int, status models.CampaignStatus) error
	MarkSending(ctx context.Context, id int, sentAt time.Time) error
	MarkCompleted(ctx context.Context, id int, completedAt time.Time) error
	UpdateStats(ctx context.Context, id int, stats models.CampaignStats) error
}

// CampaignFilters defines filters for listing campaigns
type CampaignFilters struct {
	Page     int
	PageSize int
	Status   *models.CampaignStatus
}

// MessageRepository defines message record data access operations.
// Records are never deleted; retries reuse the same row.
type MessageRepository interface {
	Create(ctx context.Context, message *models.MessageRecord) error
	GetByMessageID(ctx context.Context, messageID string) (*models.MessageRecord, error)
	GetByCampaignID(ctx context.Context, campaignID int) ([]*models.MessageRecord, error)
	MarkSent(ctx context.Context, messageID, vendorMessageID string) error
	MarkDelivered(ctx context.Context, messageID string, receipt models.DeliveryReceipt, at time.Time) error
	MarkFailed(ctx context.Context, messageID string, receipt models.DeliveryReceipt, lastError string, at time.Time) error
	MarkBounced(ctx context.Context, messageID string, receipt models.DeliveryReceipt) error
	GetFailedForRetry(ctx context.Context, campaignID, maxRetries int) ([]*models.MessageRecord, error)
	ResetForRetry(ctx context.Context, messageID string) error
}
