package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reachpoint/internal/models"
)

type messageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *sql.DB) MessageRepository {
	return &messageRepository{db: db}
}

const messageColumns = `
	id, message_id, campaign_id, customer_id, recipient, content, status, retry_count,
	vendor_message_id, receipt_status, receipt_time, error_code, error_description,
	last_error, sent_at, delivered_at, failed_at, created_at, updated_at
`

// Create creates a new message record
func (r *messageRepository) Create(ctx context.Context, message *models.MessageRecord) error {
	query := `
		INSERT INTO message_records (message_id, campaign_id, customer_id, recipient, content, status, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		message.MessageID,
		message.CampaignID,
		message.CustomerID,
		message.Recipient,
		message.Content,
		message.Status,
		message.RetryCount,
	).Scan(&message.ID, &message.CreatedAt, &message.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create message record: %w", err)
	}

	return nil
}

// GetByMessageID retrieves a message record by its message id
func (r *messageRepository) GetByMessageID(ctx context.Context, messageID string) (*models.MessageRecord, error) {
	query := `SELECT ` + messageColumns + ` FROM message_records WHERE message_id = $1`

	message, err := scanMessage(r.db.QueryRowContext(ctx, query, messageID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message record: %w", err)
	}

	return message, nil
}

// GetByCampaignID retrieves all message records for a campaign
func (r *messageRepository) GetByCampaignID(ctx context.Context, campaignID int) ([]*models.MessageRecord, error) {
	query := `SELECT ` + messageColumns + ` FROM message_records WHERE campaign_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages by campaign: %w", err)
	}
	defer rows.Close()

	messages := []*models.MessageRecord{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message record: %w", err)
		}
		messages = append(messages, message)
	}

	return messages, nil
}

// MarkSent records vendor acceptance of the message
func (r *messageRepository) MarkSent(ctx context.Context, messageID, vendorMessageID string) error {
	query := `
		UPDATE message_records
		SET status = 'sent', vendor_message_id = $1, sent_at = NOW(), updated_at = NOW()
		WHERE message_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, vendorMessageID, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}

	return requireRow(result)
}

// MarkDelivered applies a delivered outcome with its receipt fields
func (r *messageRepository) MarkDelivered(ctx context.Context, messageID string, receipt models.DeliveryReceipt, at time.Time) error {
	query := `
		UPDATE message_records
		SET status = 'delivered',
			vendor_message_id = COALESCE(NULLIF($1, ''), vendor_message_id),
			receipt_status = $2,
			receipt_time = $3,
			delivered_at = $4,
			updated_at = NOW()
		WHERE message_id = $5
	`

	result, err := r.db.ExecContext(ctx, query, receipt.VendorMessageID, receipt.Status, receipt.Timestamp, at, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark message delivered: %w", err)
	}

	return requireRow(result)
}

// MarkFailed applies a failed outcome with its receipt fields and error
func (r *messageRepository) MarkFailed(ctx context.Context, messageID string, receipt models.DeliveryReceipt, lastError string, at time.Time) error {
	query := `
		UPDATE message_records
		SET status = 'failed',
			vendor_message_id = COALESCE(NULLIF($1, ''), vendor_message_id),
			receipt_status = $2,
			receipt_time = $3,
			error_code = $4,
			error_description = $5,
			last_error = $6,
			failed_at = $7,
			updated_at = NOW()
		WHERE message_id = $8
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		receipt.VendorMessageID,
		receipt.Status,
		receipt.Timestamp,
		receipt.ErrorCode,
		receipt.ErrorDescription,
		lastError,
		at,
		messageID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}

	return requireRow(result)
}

// MarkBounced applies a bounce reported after delivery
func (r *messageRepository) MarkBounced(ctx context.Context, messageID string, receipt models.DeliveryReceipt) error {
	query := `
		UPDATE message_records
		SET status = 'bounced',
			receipt_status = $1,
			receipt_time = $2,
			updated_at = NOW()
		WHERE message_id = $3
	`

	result, err := r.db.ExecContext(ctx, query, receipt.Status, receipt.Timestamp, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark message bounced: %w", err)
	}

	return requireRow(result)
}

// GetFailedForRetry selects failed messages below the retry ceiling
func (r *messageRepository) GetFailedForRetry(ctx context.Context, campaignID, maxRetries int) ([]*models.MessageRecord, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM message_records
		WHERE campaign_id = $1 AND status = 'failed' AND retry_count < $2
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, campaignID, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.MessageRecord{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message record: %w", err)
		}
		messages = append(messages, message)
	}

	return messages, nil
}

// ResetForRetry puts a failed message back to pending for a new attempt on
// the same row: status reset, retry count incremented, error cleared
func (r *messageRepository) ResetForRetry(ctx context.Context, messageID string) error {
	query := `
		UPDATE message_records
		SET status = 'pending',
			retry_count = retry_count + 1,
			last_error = NULL,
			error_code = NULL,
			error_description = NULL,
			failed_at = NULL,
			updated_at = NOW()
		WHERE message_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, messageID)
	if err != nil {
		return fmt.Errorf("failed to reset message for retry: %w", err)
	}

	return requireRow(result)
}

func scanMessage(s scanner) (*models.MessageRecord, error) {
	message := &models.MessageRecord{}
	var vendorID, receiptStatus, errorCode, errorDesc sql.NullString
	var receiptTime sql.NullTime

	err := s.Scan(
		&message.ID,
		&message.MessageID,
		&message.CampaignID,
		&message.CustomerID,
		&message.Recipient,
		&message.Content,
		&message.Status,
		&message.RetryCount,
		&vendorID,
		&receiptStatus,
		&receiptTime,
		&errorCode,
		&errorDesc,
		&message.LastError,
		&message.SentAt,
		&message.DeliveredAt,
		&message.FailedAt,
		&message.CreatedAt,
		&message.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	message.Receipt.VendorMessageID = vendorID.String
	message.Receipt.Status = receiptStatus.String
	if receiptTime.Valid {
		t := receiptTime.Time
		message.Receipt.Timestamp = &t
	}
	message.Receipt.ErrorCode = errorCode.String
	message.Receipt.ErrorDescription = errorDesc.String

	return message, nil
}
