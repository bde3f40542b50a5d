package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"reachpoint/internal/config"
	"reachpoint/internal/models"
	"reachpoint/internal/repository"
)

// signatureHTTPHeader carries the hex HMAC of the callback body
const signatureHTTPHeader = "X-Receipt-Signature"

// callbackTimeout bounds a single webhook callback post
const callbackTimeout = 5 * time.Second

// errorCodes is the fixed failure taxonomy of the simulated vendor
var errorCodes = []string{
	"invalid-address",
	"bounced",
	"spam-filtered",
	"rate-limited",
	"transient-failure",
}

var errorDescriptions = map[string]string{
	"invalid-address":   "The recipient address does not exist or is malformed",
	"bounced":           "The message was rejected by the receiving server",
	"spam-filtered":     "The message was classified as spam and dropped",
	"rate-limited":      "The vendor throttled the message due to rate limits",
	"transient-failure": "A temporary delivery failure occurred, retry may succeed",
}

// ReceiptPublisher publishes a signed receipt to a queue
type ReceiptPublisher interface {
	PublishReceipt(body []byte, signature string) error
}

// VendorService simulates an outbound transport. Send only means
// "accepted": the delivery outcome resolves later on an independent timer
// per message, and the result comes back through the receipt boundary the
// same way a real vendor would report it. Swap this for a real provider
// behind the same contract in production.
type VendorService struct {
	messageRepo repository.MessageRepository
	statsSvc    *StatsService
	cfg         config.VendorConfig
	secret      string
	publisher   ReceiptPublisher
	client      *http.Client

	mu   sync.Mutex
	rand *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewVendorService creates a new vendor simulator. publisher may be nil
// when the callback mode is http.
func NewVendorService(
	messageRepo repository.MessageRepository,
	statsSvc *StatsService,
	cfg config.VendorConfig,
	secret string,
	publisher ReceiptPublisher,
) *VendorService {
	if cfg.SuccessRate < 0.0 {
		cfg.SuccessRate = 0.0
	}
	if cfg.SuccessRate > 1.0 {
		cfg.SuccessRate = 1.0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &VendorService{
		messageRepo: messageRepo,
		statsSvc:    statsSvc,
		cfg:         cfg,
		secret:      secret,
		publisher:   publisher,
		client:      &http.Client{Timeout: callbackTimeout},
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Send hands a message to the vendor. It marks the record sent with a
// synthetic vendor id and schedules the deferred outcome resolution; the
// return only acknowledges acceptance, never the final status.
func (s *VendorService) Send(ctx context.Context, msg *models.MessageRecord) error {
	vendorID := "vnd_" + uuid.NewString()

	if err := s.messageRepo.MarkSent(ctx, msg.MessageID, vendorID); err != nil {
		return fmt.Errorf("failed to accept message: %w", err)
	}

	delay := s.resolutionDelay()
	s.wg.Add(1)
	go s.resolveAfter(msg.MessageID, msg.CampaignID, vendorID, delay)

	return nil
}

// RetryFailedMessages re-sends failed messages below the retry ceiling.
// Each retry reuses the same record: status back to pending, retry count
// incremented, error cleared. Rows at the ceiling are never touched, so
// the call is idempotent and safe to repeat.
func (s *VendorService) RetryFailedMessages(ctx context.Context, campaignID, maxRetries int) (int, error) {
	if maxRetries <= 0 {
		maxRetries = models.MaxRetries
	}

	failed, err := s.messageRepo.GetFailedForRetry(ctx, campaignID, maxRetries)
	if err != nil {
		return 0, fmt.Errorf("failed to select retryable messages: %w", err)
	}

	retried := 0
	for _, msg := range failed {
		if err := s.messageRepo.ResetForRetry(ctx, msg.MessageID); err != nil {
			log.Printf("Failed to reset message %s for retry: %v", msg.MessageID, err)
			continue
		}
		if err := s.Send(ctx, msg); err != nil {
			log.Printf("Failed to re-send message %s: %v", msg.MessageID, err)
			continue
		}
		retried++
	}

	return retried, nil
}

// Close cancels pending resolutions and waits for in-flight ones
func (s *VendorService) Close() {
	s.cancel()
	s.wg.Wait()
}

// resolveAfter waits out the vendor delay and resolves the outcome. Many
// resolutions run concurrently with each other and with the delivery loop;
// there is no ordering guarantee across messages.
func (s *VendorService) resolveAfter(messageID string, campaignID int, vendorID string, delay time.Duration) {
	defer s.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return
	case <-timer.C:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	receipt := s.resolve(ctx, messageID, vendorID)
	if receipt == nil {
		return
	}

	if _, err := s.statsSvc.Recompute(ctx, campaignID); err != nil {
		log.Printf("Failed to recompute stats for campaign %d: %v", campaignID, err)
	}

	s.postCallback(ctx, receipt)
}

// resolve draws the outcome and applies it to the message record
func (s *VendorService) resolve(ctx context.Context, messageID, vendorID string) *Receipt {
	now := time.Now()
	receipt := &Receipt{
		MessageID:       messageID,
		VendorMessageID: vendorID,
		Timestamp:       &now,
	}

	if s.roll() < s.cfg.SuccessRate {
		receipt.Status = string(models.MessageStatusDelivered)
		dr := models.DeliveryReceipt{VendorMessageID: vendorID, Status: receipt.Status, Timestamp: &now}
		if err := s.messageRepo.MarkDelivered(ctx, messageID, dr, now); err != nil {
			log.Printf("Failed to mark message %s delivered: %v", messageID, err)
			return nil
		}
		return receipt
	}

	code := errorCodes[s.intn(len(errorCodes))]
	receipt.Status = string(models.MessageStatusFailed)
	receipt.Metadata = ReceiptMetadata{
		Error:            errorDescriptions[code],
		ErrorCode:        code,
		ErrorDescription: errorDescriptions[code],
	}
	dr := models.DeliveryReceipt{
		VendorMessageID:  vendorID,
		Status:           receipt.Status,
		Timestamp:        &now,
		ErrorCode:        code,
		ErrorDescription: errorDescriptions[code],
	}
	if err := s.messageRepo.MarkFailed(ctx, messageID, dr, errorDescriptions[code], now); err != nil {
		log.Printf("Failed to mark message %s failed: %v", messageID, err)
		return nil
	}
	return receipt
}

// postCallback delivers the signed receipt to the configured boundary.
// Callback failures are logged and swallowed; they never propagate.
func (s *VendorService) postCallback(ctx context.Context, receipt *Receipt) {
	body, err := json.Marshal(receipt)
	if err != nil {
		log.Printf("Failed to marshal receipt for %s: %v", receipt.MessageID, err)
		return
	}
	signature := Sign(body, s.secret)

	if s.cfg.CallbackMode == "amqp" {
		if s.publisher == nil {
			log.Printf("No receipt publisher configured, dropping callback for %s", receipt.MessageID)
			return
		}
		if err := s.publisher.PublishReceipt(body, signature); err != nil {
			log.Printf("Failed to publish receipt for %s: %v", receipt.MessageID, err)
		}
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.CallbackURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("Failed to build callback request for %s: %v", receipt.MessageID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHTTPHeader, signature)

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("Failed to post callback for %s: %v", receipt.MessageID, err)
		return
	}
	resp.Body.Close()
}

func (s *VendorService) resolutionDelay() time.Duration {
	spread := s.cfg.MaxDelay - s.cfg.MinDelay
	if spread <= 0 {
		return s.cfg.MinDelay
	}
	s.mu.Lock()
	d := time.Duration(s.rand.Int63n(int64(spread)))
	s.mu.Unlock()
	return s.cfg.MinDelay + d
}

func (s *VendorService) roll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

func (s *VendorService) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Intn(n)
}
