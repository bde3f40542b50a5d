package models

import "time"

// MessageStatus represents valid message statuses
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusBounced   MessageStatus = "bounced"
)

// MaxRetries is the retry ceiling for a message record
const MaxRetries = 3

// DeliveryReceipt holds the vendor-reported outcome for a message
type DeliveryReceipt struct {
	VendorMessageID  string     `json:"vendor_message_id" db:"vendor_message_id"`
	Status           string     `json:"status" db:"receipt_status"`
	Timestamp        *time.Time `json:"timestamp,omitempty" db:"receipt_time"`
	ErrorCode        string     `json:"error_code,omitempty" db:"error_code"`
	ErrorDescription string     `json:"error_description,omitempty" db:"error_description"`
}

// MessageRecord represents one per-recipient delivery attempt. Records are
// append-only: retries reset the same row back to pending and bump
// retry_count, they never create a new row.
type MessageRecord struct {
	ID          int             `json:"id" db:"id"`
	MessageID   string          `json:"message_id" db:"message_id"`
	CampaignID  int             `json:"campaign_id" db:"campaign_id"`
	CustomerID  int             `json:"customer_id" db:"customer_id"`
	Recipient   string          `json:"recipient" db:"recipient"`
	Content     string          `json:"content" db:"content"`
	Status      MessageStatus   `json:"status" db:"status"`
	RetryCount  int             `json:"retry_count" db:"retry_count"`
	Receipt     DeliveryReceipt `json:"receipt"`
	LastError   *string         `json:"last_error,omitempty" db:"last_error"`
	SentAt      *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty" db:"delivered_at"`
	FailedAt    *time.Time      `json:"failed_at,omitempty" db:"failed_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// CanRetry checks if message can be retried
func (m *MessageRecord) CanRetry() bool {
	return m.Status == MessageStatusFailed && m.RetryCount < MaxRetries
}

// IsTerminal reports whether the message reached a final state
func (m *MessageRecord) IsTerminal() bool {
	switch m.Status {
	case MessageStatusDelivered, MessageStatusFailed, MessageStatusBounced:
		return true
	}
	return false
}
