package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"reachpoint/internal/models"
	"reachpoint/internal/repository"
	"reachpoint/internal/rules"
)

// fakeCampaignRepo is an in-memory CampaignRepository. Stateful on purpose:
// the orchestration tests assert on status transitions, not on call counts
// alone.
type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*models.Campaign
	nextID    int
	Calls     map[string]int
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaigns: make(map[int]*models.Campaign),
		nextID:    1,
		Calls:     make(map[string]int),
	}
}

func (f *fakeCampaignRepo) add(c *models.Campaign) *models.Campaign {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == 0 {
		c.ID = f.nextID
		f.nextID++
	}
	cp := *c
	f.campaigns[c.ID] = &cp
	return c
}

func (f *fakeCampaignRepo) status(id int) models.CampaignStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.campaigns[id]; ok {
		return c.Status
	}
	return ""
}

func (f *fakeCampaignRepo) stats(id int) models.CampaignStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.campaigns[id]; ok {
		return c.Stats
	}
	return models.CampaignStats{}
}

func (f *fakeCampaignRepo) record(method string) {
	f.Calls[method]++
}

func (f *fakeCampaignRepo) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[method]
}

func (f *fakeCampaignRepo) Create(ctx context.Context, campaign *models.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Create")
	campaign.ID = f.nextID
	f.nextID++
	campaign.CreatedAt = time.Now()
	campaign.UpdatedAt = campaign.CreatedAt
	cp := *campaign
	f.campaigns[campaign.ID] = &cp
	return nil
}

func (f *fakeCampaignRepo) GetByID(ctx context.Context, id int) (*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetByID")
	c, ok := f.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaignRepo) List(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("List")
	out := make([]*models.Campaign, 0, len(f.campaigns))
	for _, c := range f.campaigns {
		if filters.Status != nil && c.Status != *filters.Status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (f *fakeCampaignRepo) UpdateStatus(ctx context.Context, id int, status models.CampaignStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateStatus")
	c, ok := f.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = status
	return nil
}

func (f *fakeCampaignRepo) MarkSending(ctx context.Context, id int, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MarkSending")
	c, ok := f.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = models.CampaignStatusSending
	c.SentAt = &sentAt
	return nil
}

func (f *fakeCampaignRepo) MarkCompleted(ctx context.Context, id int, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MarkCompleted")
	c, ok := f.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = models.CampaignStatusCompleted
	c.CompletedAt = &completedAt
	return nil
}

func (f *fakeCampaignRepo) UpdateStats(ctx context.Context, id int, stats models.CampaignStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateStats")
	c, ok := f.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Stats = stats
	return nil
}

// fakeMessageRepo is an in-memory MessageRepository mirroring the SQL
// implementation's semantics: retries reuse the row, terminal marks just
// overwrite columns.
type fakeMessageRepo struct {
	mu      sync.Mutex
	byID    map[string]*models.MessageRecord
	order   []string
	nextID  int
	Calls   map[string]int
	sendErr error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		byID:   make(map[string]*models.MessageRecord),
		nextID: 1,
		Calls:  make(map[string]int),
	}
}

func (f *fakeMessageRepo) add(m *models.MessageRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID == 0 {
		m.ID = f.nextID
		f.nextID++
	}
	cp := *m
	f.byID[m.MessageID] = &cp
	f.order = append(f.order, m.MessageID)
}

func (f *fakeMessageRepo) get(messageID string) *models.MessageRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.byID[messageID]; ok {
		cp := *m
		return &cp
	}
	return nil
}

func (f *fakeMessageRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

func (f *fakeMessageRepo) record(method string) {
	f.Calls[method]++
}

func (f *fakeMessageRepo) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[method]
}

func (f *fakeMessageRepo) Create(ctx context.Context, message *models.MessageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Create")
	message.ID = f.nextID
	f.nextID++
	message.CreatedAt = time.Now()
	message.UpdatedAt = message.CreatedAt
	cp := *message
	f.byID[message.MessageID] = &cp
	f.order = append(f.order, message.MessageID)
	return nil
}

func (f *fakeMessageRepo) GetByMessageID(ctx context.Context, messageID string) (*models.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetByMessageID")
	m, ok := f.byID[messageID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessageRepo) GetByCampaignID(ctx context.Context, campaignID int) ([]*models.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetByCampaignID")
	out := []*models.MessageRecord{}
	for _, id := range f.order {
		m := f.byID[id]
		if m.CampaignID == campaignID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) MarkSent(ctx context.Context, messageID, vendorMessageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MarkSent")
	if f.sendErr != nil {
		return f.sendErr
	}
	m, ok := f.byID[messageID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	m.Status = models.MessageStatusSent
	m.Receipt.VendorMessageID = vendorMessageID
	m.SentAt = &now
	return nil
}

func (f *fakeMessageRepo) MarkDelivered(ctx context.Context, messageID string, receipt models.DeliveryReceipt, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MarkDelivered")
	m, ok := f.byID[messageID]
	if !ok {
		return repository.ErrNotFound
	}
	m.Status = models.MessageStatusDelivered
	if receipt.VendorMessageID != "" {
		m.Receipt.VendorMessageID = receipt.VendorMessageID
	}
	m.Receipt.Status = receipt.Status
	m.Receipt.Timestamp = receipt.Timestamp
	m.DeliveredAt = &at
	return nil
}

func (f *fakeMessageRepo) MarkFailed(ctx context.Context, messageID string, receipt models.DeliveryReceipt, lastError string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MarkFailed")
	m, ok := f.byID[messageID]
	if !ok {
		return repository.ErrNotFound
	}
	m.Status = models.MessageStatusFailed
	if receipt.VendorMessageID != "" {
		m.Receipt.VendorMessageID = receipt.VendorMessageID
	}
	m.Receipt.Status = receipt.Status
	m.Receipt.Timestamp = receipt.Timestamp
	m.Receipt.ErrorCode = receipt.ErrorCode
	m.Receipt.ErrorDescription = receipt.ErrorDescription
	m.LastError = &lastError
	m.FailedAt = &at
	return nil
}

func (f *fakeMessageRepo) MarkBounced(ctx context.Context, messageID string, receipt models.DeliveryReceipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MarkBounced")
	m, ok := f.byID[messageID]
	if !ok {
		return repository.ErrNotFound
	}
	m.Status = models.MessageStatusBounced
	m.Receipt.Status = receipt.Status
	m.Receipt.ErrorCode = receipt.ErrorCode
	m.Receipt.ErrorDescription = receipt.ErrorDescription
	return nil
}

func (f *fakeMessageRepo) GetFailedForRetry(ctx context.Context, campaignID, maxRetries int) ([]*models.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetFailedForRetry")
	out := []*models.MessageRecord{}
	for _, id := range f.order {
		m := f.byID[id]
		if m.CampaignID == campaignID && m.Status == models.MessageStatusFailed && m.RetryCount < maxRetries {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) ResetForRetry(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ResetForRetry")
	m, ok := f.byID[messageID]
	if !ok {
		return repository.ErrNotFound
	}
	m.Status = models.MessageStatusPending
	m.RetryCount++
	m.LastError = nil
	m.Receipt.ErrorCode = ""
	m.Receipt.ErrorDescription = ""
	m.FailedAt = nil
	return nil
}

// mockAudienceStore is a function-field AudienceStore
type mockAudienceStore struct {
	CountFunc func(ctx context.Context, cond rules.Condition) (int, error)
	FindFunc  func(ctx context.Context, cond rules.Condition, limit int) ([]*models.Customer, error)
}

func (m *mockAudienceStore) CountMatching(ctx context.Context, cond rules.Condition) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, cond)
	}
	return 0, nil
}

func (m *mockAudienceStore) FindMatching(ctx context.Context, cond rules.Condition, limit int) ([]*models.Customer, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, cond, limit)
	}
	return nil, nil
}

// mockVendor records accepted messages
type mockVendor struct {
	mu       sync.Mutex
	accepted []*models.MessageRecord
	SendFunc func(ctx context.Context, msg *models.MessageRecord) error
}

func (m *mockVendor) Send(ctx context.Context, msg *models.MessageRecord) error {
	m.mu.Lock()
	cp := *msg
	m.accepted = append(m.accepted, &cp)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	return nil
}

func (m *mockVendor) sent() []*models.MessageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.MessageRecord, len(m.accepted))
	copy(out, m.accepted)
	return out
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
