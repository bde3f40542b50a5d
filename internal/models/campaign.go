package models

import (
	"fmt"
	"time"
)

// CampaignStatus represents valid campaign statuses
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// MessageType represents valid outbound message types
type MessageType string

const (
	MessageTypeEmail MessageType = "email"
	MessageTypeSMS   MessageType = "sms"
)

// CampaignStats holds the aggregated delivery counters for a campaign.
// They are always recomputed from the full message-record set, never
// incremented in place.
type CampaignStats struct {
	TotalSent      int     `json:"total_sent" db:"total_sent"`
	TotalFailed    int     `json:"total_failed" db:"total_failed"`
	TotalDelivered int     `json:"total_delivered" db:"total_delivered"`
	DeliveryRate   float64 `json:"delivery_rate" db:"delivery_rate"`
}

// Campaign represents a configured outbound messaging job
type Campaign struct {
	ID              int            `json:"id" db:"id"`
	Name            string         `json:"name" db:"name"`
	AudienceRules   []AudienceRule `json:"audience_rules" db:"audience_rules"`
	AudienceSize    int            `json:"audience_size" db:"audience_size"`
	MessageTemplate string         `json:"message_template" db:"message_template"`
	MessageType     MessageType    `json:"message_type" db:"message_type"`
	Status          CampaignStatus `json:"status" db:"status"`
	Stats           CampaignStats  `json:"stats"`
	ScheduledAt     *time.Time     `json:"scheduled_at,omitempty" db:"scheduled_at"`
	SentAt          *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// Validate checks if the campaign fields are valid
func (c *Campaign) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if c.MessageType != MessageTypeEmail && c.MessageType != MessageTypeSMS {
		return fmt.Errorf("invalid message type: must be 'email' or 'sms'")
	}
	if c.MessageTemplate == "" {
		return fmt.Errorf("message template is required")
	}
	if len(c.AudienceRules) == 0 {
		return fmt.Errorf("at least one audience rule is required")
	}
	return nil
}

// IsScheduled checks if campaign is scheduled for the future
func (c *Campaign) IsScheduled() bool {
	return c.ScheduledAt != nil && c.ScheduledAt.After(time.Now())
}

// CanSend checks if campaign can start a delivery loop.
// Scheduled is a pre-sending state equivalent to draft; a paused campaign
// may be resumed with another send call.
func (c *Campaign) CanSend() bool {
	switch c.Status {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusPaused:
		return true
	}
	return false
}

// CanPause checks if campaign can be paused
func (c *Campaign) CanPause() bool {
	return c.Status == CampaignStatusSending
}

// RulesMutable reports whether audience rules may still be edited.
// Rules are frozen once the campaign leaves the draft/scheduled states.
func (c *Campaign) RulesMutable() bool {
	return c.Status == CampaignStatusDraft || c.Status == CampaignStatusScheduled
}
