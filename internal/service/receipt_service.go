package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"reachpoint/internal/models"
	"reachpoint/internal/repository"
)

// Receipt is the delivery outcome a vendor reports back for a message
type Receipt struct {
	MessageID       string          `json:"message_id"`
	Status          string          `json:"status"`
	Timestamp       *time.Time      `json:"timestamp,omitempty"`
	VendorMessageID string          `json:"vendor_message_id,omitempty"`
	Metadata        ReceiptMetadata `json:"metadata,omitempty"`
}

// ReceiptMetadata carries optional failure details
type ReceiptMetadata struct {
	Error            string `json:"error,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// BatchReceiptResult is the per-item outcome of a batch application
type BatchReceiptResult struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// ReceiptService validates and applies inbound delivery receipts
type ReceiptService struct {
	messageRepo repository.MessageRepository
	statsSvc    *StatsService
	secret      string
}

// NewReceiptService creates a new receipt service
func NewReceiptService(messageRepo repository.MessageRepository, statsSvc *StatsService, secret string) *ReceiptService {
	return &ReceiptService{
		messageRepo: messageRepo,
		statsSvc:    statsSvc,
		secret:      secret,
	}
}

// Sign computes the hex HMAC-SHA256 of a payload with the shared secret
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC against the raw payload
func (s *ReceiptService) VerifySignature(payload []byte, signature string) bool {
	expected := Sign(payload, s.secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Process validates and applies one receipt. A present signature must
// verify against the raw payload; a missing signature is accepted as-is.
// Applying the same terminal receipt twice is a no-op in effect.
func (s *ReceiptService) Process(ctx context.Context, receipt *Receipt, rawPayload []byte, signature string) error {
	if signature != "" && !s.VerifySignature(rawPayload, signature) {
		return &AuthenticationError{Message: "invalid receipt signature"}
	}

	if err := s.apply(ctx, receipt); err != nil {
		return err
	}

	return nil
}

// ProcessBatch applies receipts independently, collecting per-item results
// instead of aborting the batch on the first bad item
func (s *ReceiptService) ProcessBatch(ctx context.Context, receipts []Receipt) []BatchReceiptResult {
	results := make([]BatchReceiptResult, 0, len(receipts))

	for i := range receipts {
		result := BatchReceiptResult{MessageID: receipts[i].MessageID, Success: true}
		if err := s.apply(ctx, &receipts[i]); err != nil {
			result.Success = false
			result.Error = err.Error()
		}
		results = append(results, result)
	}

	return results
}

// apply looks up the message record and applies the reported status, then
// recomputes the campaign counters. The stats call is deliberate and
// explicit here rather than hidden behind a persistence hook.
func (s *ReceiptService) apply(ctx context.Context, receipt *Receipt) error {
	if receipt.MessageID == "" {
		return &ValidationError{Message: "message_id is required"}
	}

	record, err := s.messageRepo.GetByMessageID(ctx, receipt.MessageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Resource: "message", ID: receipt.MessageID}
		}
		return fmt.Errorf("failed to look up message record: %w", err)
	}

	at := time.Now()
	if receipt.Timestamp != nil {
		at = *receipt.Timestamp
	}

	dr := models.DeliveryReceipt{
		VendorMessageID:  receipt.VendorMessageID,
		Status:           receipt.Status,
		Timestamp:        receipt.Timestamp,
		ErrorCode:        receipt.Metadata.ErrorCode,
		ErrorDescription: receipt.Metadata.ErrorDescription,
	}

	switch receipt.Status {
	case string(models.MessageStatusDelivered):
		err = s.messageRepo.MarkDelivered(ctx, receipt.MessageID, dr, at)
	case string(models.MessageStatusFailed):
		lastError := receipt.Metadata.Error
		if lastError == "" {
			lastError = receipt.Metadata.ErrorDescription
		}
		err = s.messageRepo.MarkFailed(ctx, receipt.MessageID, dr, lastError, at)
	case string(models.MessageStatusBounced):
		err = s.messageRepo.MarkBounced(ctx, receipt.MessageID, dr)
	default:
		return &ValidationError{Message: fmt.Sprintf("unknown receipt status %q", receipt.Status)}
	}
	if err != nil {
		return fmt.Errorf("failed to apply receipt: %w", err)
	}

	if _, err := s.statsSvc.Recompute(ctx, record.CampaignID); err != nil {
		return fmt.Errorf("failed to recompute stats: %w", err)
	}

	return nil
}
