package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"reachpoint/internal/config"
	"reachpoint/internal/models"
)

type capturedCallback struct {
	body      []byte
	signature string
}

// callbackRecorder is an httptest handler capturing vendor callbacks
type callbackRecorder struct {
	mu    sync.Mutex
	calls []capturedCallback
}

func (r *callbackRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.calls = append(r.calls, capturedCallback{
		body:      body,
		signature: req.Header.Get("X-Receipt-Signature"),
	})
	r.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (r *callbackRecorder) received() []capturedCallback {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]capturedCallback, len(r.calls))
	copy(out, r.calls)
	return out
}

// mockPublisher records queued receipts
type mockPublisher struct {
	mu         sync.Mutex
	bodies     [][]byte
	signatures []string
}

func (m *mockPublisher) PublishReceipt(body []byte, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies = append(m.bodies, body)
	m.signatures = append(m.signatures, signature)
	return nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bodies)
}

func newVendorFixture(t *testing.T, successRate float64, callbackURL string, publisher ReceiptPublisher) (*VendorService, *fakeCampaignRepo, *fakeMessageRepo) {
	t.Helper()
	campaignRepo := newFakeCampaignRepo()
	messageRepo := newFakeMessageRepo()
	statsSvc := NewStatsService(campaignRepo, messageRepo)

	mode := "http"
	if publisher != nil {
		mode = "amqp"
	}
	cfg := config.VendorConfig{
		SuccessRate:  successRate,
		MinDelay:     0,
		MaxDelay:     0,
		CallbackMode: mode,
		CallbackURL:  callbackURL,
	}

	svc := NewVendorService(messageRepo, statsSvc, cfg, testSecret, publisher)
	t.Cleanup(svc.Close)
	return svc, campaignRepo, messageRepo
}

func seedSentCampaign(campaignRepo *fakeCampaignRepo, messageRepo *fakeMessageRepo, messageIDs ...string) *models.Campaign {
	campaign := campaignRepo.add(&models.Campaign{Status: models.CampaignStatusSending})
	for _, id := range messageIDs {
		messageRepo.add(&models.MessageRecord{
			MessageID:  id,
			CampaignID: campaign.ID,
			Status:     models.MessageStatusPending,
		})
	}
	return campaign
}

func TestVendorSend_ResolvesDelivered(t *testing.T) {
	recorder := &callbackRecorder{}
	server := httptest.NewServer(recorder)
	defer server.Close()

	svc, campaignRepo, messageRepo := newVendorFixture(t, 1.0, server.URL, nil)
	campaign := seedSentCampaign(campaignRepo, messageRepo, "msg_1")

	msg := messageRepo.get("msg_1")
	if err := svc.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return messageRepo.get("msg_1").Status == models.MessageStatusDelivered
	}, "message never resolved to delivered")

	record := messageRepo.get("msg_1")
	if !strings.HasPrefix(record.Receipt.VendorMessageID, "vnd_") {
		t.Errorf("vendor message id = %q, want vnd_ prefix", record.Receipt.VendorMessageID)
	}
	if record.DeliveredAt == nil {
		t.Error("DeliveredAt not set")
	}

	waitFor(t, 2*time.Second, func() bool {
		return campaignRepo.stats(campaign.ID).TotalDelivered == 1
	}, "campaign stats never recomputed")

	waitFor(t, 2*time.Second, func() bool {
		return len(recorder.received()) == 1
	}, "callback never posted")

	cb := recorder.received()[0]
	if got := Sign(cb.body, testSecret); got != cb.signature {
		t.Error("callback signature does not verify against the body")
	}

	var receipt Receipt
	if err := json.Unmarshal(cb.body, &receipt); err != nil {
		t.Fatalf("callback body is not a receipt: %v", err)
	}
	if receipt.MessageID != "msg_1" || receipt.Status != "delivered" {
		t.Errorf("unexpected callback receipt: %+v", receipt)
	}
}

func TestVendorSend_ResolvesFailedWithTaxonomyCode(t *testing.T) {
	server := httptest.NewServer(&callbackRecorder{})
	defer server.Close()

	svc, campaignRepo, messageRepo := newVendorFixture(t, 0.0, server.URL, nil)
	campaign := seedSentCampaign(campaignRepo, messageRepo, "msg_1")

	if err := svc.Send(context.Background(), messageRepo.get("msg_1")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return messageRepo.get("msg_1").Status == models.MessageStatusFailed
	}, "message never resolved to failed")

	record := messageRepo.get("msg_1")
	known := false
	for _, code := range errorCodes {
		if record.Receipt.ErrorCode == code {
			known = true
			break
		}
	}
	if !known {
		t.Errorf("error code %q is not in the vendor taxonomy", record.Receipt.ErrorCode)
	}
	if record.LastError == nil || *record.LastError != errorDescriptions[record.Receipt.ErrorCode] {
		t.Errorf("LastError = %v, want the code description", record.LastError)
	}

	waitFor(t, 2*time.Second, func() bool {
		return campaignRepo.stats(campaign.ID).TotalFailed == 1
	}, "campaign stats never recomputed")
}

func TestVendorSend_AcceptErrorPropagates(t *testing.T) {
	svc, campaignRepo, messageRepo := newVendorFixture(t, 1.0, "http://localhost:0", nil)
	seedSentCampaign(campaignRepo, messageRepo, "msg_1")

	messageRepo.sendErr = errors.New("connection reset")

	err := svc.Send(context.Background(), messageRepo.get("msg_1"))
	if err == nil {
		t.Fatal("expected Send to propagate the accept error")
	}
	if got := messageRepo.get("msg_1").Status; got != models.MessageStatusPending {
		t.Errorf("status = %s, want pending", got)
	}
}

func TestVendorCallback_AmqpModePublishes(t *testing.T) {
	publisher := &mockPublisher{}
	svc, campaignRepo, messageRepo := newVendorFixture(t, 1.0, "", publisher)
	seedSentCampaign(campaignRepo, messageRepo, "msg_1")

	if err := svc.Send(context.Background(), messageRepo.get("msg_1")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return publisher.count() == 1
	}, "receipt never published")

	publisher.mu.Lock()
	body, signature := publisher.bodies[0], publisher.signatures[0]
	publisher.mu.Unlock()

	if Sign(body, testSecret) != signature {
		t.Error("published signature does not verify against the body")
	}
}

func TestRetryFailedMessages_RespectsCeiling(t *testing.T) {
	server := httptest.NewServer(&callbackRecorder{})
	defer server.Close()

	svc, campaignRepo, messageRepo := newVendorFixture(t, 1.0, server.URL, nil)
	campaign := campaignRepo.add(&models.Campaign{Status: models.CampaignStatusSending})

	lastError := "The message was rejected by the receiving server"
	failed := func(id string, retries int) {
		messageRepo.add(&models.MessageRecord{
			MessageID:  id,
			CampaignID: campaign.ID,
			Status:     models.MessageStatusFailed,
			RetryCount: retries,
			LastError:  &lastError,
		})
	}
	failed("msg_fresh", 0)
	failed("msg_retried", 2)
	failed("msg_exhausted", 3)
	messageRepo.add(&models.MessageRecord{
		MessageID:  "msg_ok",
		CampaignID: campaign.ID,
		Status:     models.MessageStatusDelivered,
	})

	retried, err := svc.RetryFailedMessages(context.Background(), campaign.ID, 0)
	if err != nil {
		t.Fatalf("RetryFailedMessages failed: %v", err)
	}
	if retried != 2 {
		t.Errorf("retried = %d, want 2", retried)
	}

	// Retry reuses the row: count up, error cleared
	if got := messageRepo.get("msg_fresh").RetryCount; got != 1 {
		t.Errorf("msg_fresh retry count = %d, want 1", got)
	}
	if got := messageRepo.get("msg_retried").RetryCount; got != 3 {
		t.Errorf("msg_retried retry count = %d, want 3", got)
	}

	exhausted := messageRepo.get("msg_exhausted")
	if exhausted.Status != models.MessageStatusFailed || exhausted.RetryCount != 3 {
		t.Errorf("message at the ceiling was touched: %+v", exhausted)
	}
	if got := messageRepo.get("msg_ok").Status; got != models.MessageStatusDelivered {
		t.Errorf("delivered message was touched: %s", got)
	}

	waitFor(t, 2*time.Second, func() bool {
		return messageRepo.get("msg_fresh").Status == models.MessageStatusDelivered &&
			messageRepo.get("msg_retried").Status == models.MessageStatusDelivered
	}, "retried messages never resolved")
}

func TestRetryFailedMessages_CustomCeiling(t *testing.T) {
	server := httptest.NewServer(&callbackRecorder{})
	defer server.Close()

	svc, campaignRepo, messageRepo := newVendorFixture(t, 1.0, server.URL, nil)
	campaign := campaignRepo.add(&models.Campaign{Status: models.CampaignStatusSending})

	messageRepo.add(&models.MessageRecord{
		MessageID:  "msg_1",
		CampaignID: campaign.ID,
		Status:     models.MessageStatusFailed,
		RetryCount: 1,
	})

	retried, err := svc.RetryFailedMessages(context.Background(), campaign.ID, 1)
	if err != nil {
		t.Fatalf("RetryFailedMessages failed: %v", err)
	}
	if retried != 0 {
		t.Errorf("retried = %d, want 0 with ceiling 1", retried)
	}
}
