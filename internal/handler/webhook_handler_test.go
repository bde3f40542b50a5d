package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"reachpoint/internal/models"
	"reachpoint/internal/repository"
	"reachpoint/internal/service"
)

const webhookTestSecret = "webhook-test-secret"

// stubMessageRepo is the minimal in-memory MessageRepository the receipt
// flow touches
type stubMessageRepo struct {
	mu   sync.Mutex
	byID map[string]*models.MessageRecord
}

func newStubMessageRepo() *stubMessageRepo {
	return &stubMessageRepo{byID: make(map[string]*models.MessageRecord)}
}

func (s *stubMessageRepo) add(m *models.MessageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[m.MessageID] = m
}

func (s *stubMessageRepo) status(messageID string) models.MessageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byID[messageID]; ok {
		return m.Status
	}
	return ""
}

func (s *stubMessageRepo) Create(ctx context.Context, m *models.MessageRecord) error {
	s.add(m)
	return nil
}

func (s *stubMessageRepo) GetByMessageID(ctx context.Context, messageID string) (*models.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[messageID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *stubMessageRepo) GetByCampaignID(ctx context.Context, campaignID int) ([]*models.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.MessageRecord{}
	for _, m := range s.byID {
		if m.CampaignID == campaignID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubMessageRepo) MarkSent(ctx context.Context, messageID, vendorMessageID string) error {
	return s.setStatus(messageID, models.MessageStatusSent)
}

func (s *stubMessageRepo) MarkDelivered(ctx context.Context, messageID string, receipt models.DeliveryReceipt, at time.Time) error {
	return s.setStatus(messageID, models.MessageStatusDelivered)
}

func (s *stubMessageRepo) MarkFailed(ctx context.Context, messageID string, receipt models.DeliveryReceipt, lastError string, at time.Time) error {
	return s.setStatus(messageID, models.MessageStatusFailed)
}

func (s *stubMessageRepo) MarkBounced(ctx context.Context, messageID string, receipt models.DeliveryReceipt) error {
	return s.setStatus(messageID, models.MessageStatusBounced)
}

func (s *stubMessageRepo) GetFailedForRetry(ctx context.Context, campaignID, maxRetries int) ([]*models.MessageRecord, error) {
	return nil, nil
}

func (s *stubMessageRepo) ResetForRetry(ctx context.Context, messageID string) error {
	return s.setStatus(messageID, models.MessageStatusPending)
}

func (s *stubMessageRepo) setStatus(messageID string, status models.MessageStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[messageID]
	if !ok {
		return repository.ErrNotFound
	}
	m.Status = status
	return nil
}

// stubCampaignRepo only needs to absorb the stats write
type stubCampaignRepo struct {
	mu    sync.Mutex
	stats map[int]models.CampaignStats
}

func newStubCampaignRepo() *stubCampaignRepo {
	return &stubCampaignRepo{stats: make(map[int]models.CampaignStats)}
}

func (s *stubCampaignRepo) Create(ctx context.Context, campaign *models.Campaign) error {
	return nil
}

func (s *stubCampaignRepo) GetByID(ctx context.Context, id int) (*models.Campaign, error) {
	return nil, repository.ErrNotFound
}

func (s *stubCampaignRepo) List(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, int, error) {
	return nil, 0, nil
}

func (s *stubCampaignRepo) UpdateStatus(ctx context.Context, id int, status models.CampaignStatus) error {
	return nil
}

func (s *stubCampaignRepo) MarkSending(ctx context.Context, id int, sentAt time.Time) error {
	return nil
}

func (s *stubCampaignRepo) MarkCompleted(ctx context.Context, id int, completedAt time.Time) error {
	return nil
}

func (s *stubCampaignRepo) UpdateStats(ctx context.Context, id int, stats models.CampaignStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[id] = stats
	return nil
}

func newWebhookFixture(t *testing.T) (*WebhookHandler, *stubMessageRepo) {
	t.Helper()
	messageRepo := newStubMessageRepo()
	messageRepo.add(&models.MessageRecord{
		MessageID:  "msg_1",
		CampaignID: 1,
		Status:     models.MessageStatusSent,
	})
	statsSvc := service.NewStatsService(newStubCampaignRepo(), messageRepo)
	receiptSvc := service.NewReceiptService(messageRepo, statsSvc, webhookTestSecret)
	return NewWebhookHandler(receiptSvc), messageRepo
}

func postReceipt(t *testing.T, h http.HandlerFunc, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/delivery-receipt", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Receipt-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Error.Code
}

func TestDeliveryReceipt_SignedAndAccepted(t *testing.T) {
	h, messageRepo := newWebhookFixture(t)

	body, _ := json.Marshal(service.Receipt{MessageID: "msg_1", Status: "delivered"})
	rec := postReceipt(t, h.DeliveryReceipt, body, service.Sign(body, webhookTestSecret))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp ReceiptResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.MessageID != "msg_1" || !resp.Success {
		t.Errorf("unexpected response: %+v", resp)
	}
	if got := messageRepo.status("msg_1"); got != models.MessageStatusDelivered {
		t.Errorf("message status = %s, want delivered", got)
	}
}

func TestDeliveryReceipt_MissingSignatureAccepted(t *testing.T) {
	h, messageRepo := newWebhookFixture(t)

	body, _ := json.Marshal(service.Receipt{MessageID: "msg_1", Status: "delivered"})
	rec := postReceipt(t, h.DeliveryReceipt, body, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := messageRepo.status("msg_1"); got != models.MessageStatusDelivered {
		t.Errorf("message status = %s, want delivered", got)
	}
}

func TestDeliveryReceipt_BadSignatureRejected(t *testing.T) {
	h, messageRepo := newWebhookFixture(t)

	body, _ := json.Marshal(service.Receipt{MessageID: "msg_1", Status: "delivered"})
	rec := postReceipt(t, h.DeliveryReceipt, body, "deadbeef")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := decodeErrorCode(t, rec); got != "AUTHENTICATION_ERROR" {
		t.Errorf("error code = %q", got)
	}
	if got := messageRepo.status("msg_1"); got != models.MessageStatusSent {
		t.Errorf("record mutated despite rejected signature: %s", got)
	}
}

func TestDeliveryReceipt_UnknownMessage(t *testing.T) {
	h, _ := newWebhookFixture(t)

	body, _ := json.Marshal(service.Receipt{MessageID: "msg_unknown", Status: "delivered"})
	rec := postReceipt(t, h.DeliveryReceipt, body, "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := decodeErrorCode(t, rec); got != "RESOURCE_NOT_FOUND" {
		t.Errorf("error code = %q", got)
	}
}

func TestDeliveryReceipt_MalformedBody(t *testing.T) {
	h, _ := newWebhookFixture(t)

	rec := postReceipt(t, h.DeliveryReceipt, []byte("{not json"), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = postReceipt(t, h.DeliveryReceipt, nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status for empty body = %d, want 400", rec.Code)
	}
}

func TestBatchDeliveryReceipt_MixedResults(t *testing.T) {
	h, messageRepo := newWebhookFixture(t)

	body, _ := json.Marshal(BatchReceiptRequest{Receipts: []service.Receipt{
		{MessageID: "msg_1", Status: "delivered"},
		{MessageID: "msg_unknown", Status: "delivered"},
	}})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/batch-delivery-receipt", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.BatchDeliveryReceipt(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp BatchReceiptResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	if !resp.Results[0].Success || resp.Results[1].Success {
		t.Errorf("unexpected result pattern: %+v", resp.Results)
	}
	if got := messageRepo.status("msg_1"); got != models.MessageStatusDelivered {
		t.Errorf("message status = %s, want delivered", got)
	}
}

func TestBatchDeliveryReceipt_BadBatchSignature(t *testing.T) {
	h, _ := newWebhookFixture(t)

	body, _ := json.Marshal(BatchReceiptRequest{Receipts: []service.Receipt{
		{MessageID: "msg_1", Status: "delivered"},
	}})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/batch-delivery-receipt", bytes.NewReader(body))
	req.Header.Set("X-Receipt-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	h.BatchDeliveryReceipt(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBatchDeliveryReceipt_EmptyBatch(t *testing.T) {
	h, _ := newWebhookFixture(t)

	body, _ := json.Marshal(BatchReceiptRequest{})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/batch-delivery-receipt", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.BatchDeliveryReceipt(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeErrorCode(t, rec); got != "VALIDATION_ERROR" {
		t.Errorf("error code = %q", got)
	}
}
