package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"reachpoint/internal/models"
)

type campaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *sql.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

// Create creates a new campaign
func (r *campaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	rulesJSON, err := json.Marshal(campaign.AudienceRules)
	if err != nil {
		return fmt.Errorf("failed to marshal audience rules: %w", err)
	}

	query := `
		INSERT INTO campaigns (name, audience_rules, audience_size, message_template, message_type, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRowContext(
		ctx,
		query,
		campaign.Name,
		rulesJSON,
		campaign.AudienceSize,
		campaign.MessageTemplate,
		campaign.MessageType,
		campaign.Status,
		campaign.ScheduledAt,
	).Scan(&campaign.ID, &campaign.CreatedAt, &campaign.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

const campaignColumns = `
	id, name, audience_rules, audience_size, message_template, message_type, status,
	total_sent, total_failed, total_delivered, delivery_rate,
	scheduled_at, sent_at, completed_at, created_at, updated_at
`

// GetByID retrieves a campaign by ID
func (r *campaignRepository) GetByID(ctx context.Context, id int) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return campaign, nil
}

// List lists campaigns with optional status filter and pagination
func (r *campaignRepository) List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error) {
	where := ""
	args := []any{}
	if filters.Status != nil {
		where = "WHERE status = $1"
		args = append(args, *filters.Status)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM campaigns " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	query := fmt.Sprintf(
		"SELECT %s FROM campaigns %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		campaignColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*models.Campaign{}
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}

	return campaigns, total, nil
}

// UpdateStatus updates the campaign status
func (r *campaignRepository) UpdateStatus(ctx context.Context, id int, status models.CampaignStatus) error {
	query := `UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}

	return requireRow(result)
}

// MarkSending sets the campaign sending with its send timestamp
func (r *campaignRepository) MarkSending(ctx context.Context, id int, sentAt time.Time) error {
	query := `UPDATE campaigns SET status = 'sending', sent_at = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark campaign sending: %w", err)
	}

	return requireRow(result)
}

// MarkCompleted sets the campaign completed with its completion timestamp
func (r *campaignRepository) MarkCompleted(ctx context.Context, id int, completedAt time.Time) error {
	query := `UPDATE campaigns SET status = 'completed', completed_at = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark campaign completed: %w", err)
	}

	return requireRow(result)
}

// UpdateStats writes the recomputed counters back onto the campaign
func (r *campaignRepository) UpdateStats(ctx context.Context, id int, stats models.CampaignStats) error {
	query := `
		UPDATE campaigns
		SET total_sent = $1, total_failed = $2, total_delivered = $3, delivery_rate = $4, updated_at = NOW()
		WHERE id = $5
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		stats.TotalSent,
		stats.TotalFailed,
		stats.TotalDelivered,
		stats.DeliveryRate,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign stats: %w", err)
	}

	return requireRow(result)
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanCampaign(s scanner) (*models.Campaign, error) {
	campaign := &models.Campaign{}
	var rulesJSON []byte

	err := s.Scan(
		&campaign.ID,
		&campaign.Name,
		&rulesJSON,
		&campaign.AudienceSize,
		&campaign.MessageTemplate,
		&campaign.MessageType,
		&campaign.Status,
		&campaign.Stats.TotalSent,
		&campaign.Stats.TotalFailed,
		&campaign.Stats.TotalDelivered,
		&campaign.Stats.DeliveryRate,
		&campaign.ScheduledAt,
		&campaign.SentAt,
		&campaign.CompletedAt,
		&campaign.CreatedAt,
		&campaign.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(rulesJSON) > 0 {
		if err := json.Unmarshal(rulesJSON, &campaign.AudienceRules); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audience rules: %w", err)
		}
	}

	return campaign, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
