package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"reachpoint/internal/models"
	"reachpoint/internal/repository"
	"reachpoint/internal/rules"
)

// VendorSender is the outbound transport contract the delivery loop uses
type VendorSender interface {
	Send(ctx context.Context, msg *models.MessageRecord) error
}

// CampaignService owns the campaign state machine and the per-recipient
// delivery loop
type CampaignService struct {
	campaignRepo repository.CampaignRepository
	messageRepo  repository.MessageRepository
	audience     AudienceStore
	templateSvc  *TemplateService
	vendor       VendorSender
	pacing       time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCampaignService creates a new campaign service
func NewCampaignService(
	campaignRepo repository.CampaignRepository,
	messageRepo repository.MessageRepository,
	audience AudienceStore,
	templateSvc *TemplateService,
	vendor VendorSender,
	pacing time.Duration,
) *CampaignService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CampaignService{
		campaignRepo: campaignRepo,
		messageRepo:  messageRepo,
		audience:     audience,
		templateSvc:  templateSvc,
		vendor:       vendor,
		pacing:       pacing,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// CreateCampaignRequest represents a request to create a campaign
type CreateCampaignRequest struct {
	Name            string                `json:"name"`
	AudienceRules   []models.AudienceRule `json:"audience_rules"`
	MessageTemplate string                `json:"message_template"`
	MessageType     models.MessageType    `json:"message_type"`
	ScheduledAt     *time.Time            `json:"scheduled_at,omitempty"`
}

// SendCampaignResult represents the result of starting a campaign send
type SendCampaignResult struct {
	CampaignID   int                   `json:"campaign_id"`
	AudienceSize int                   `json:"audience_size"`
	Status       models.CampaignStatus `json:"status"`
}

// AudiencePreview represents the audience a rule list resolves to
type AudiencePreview struct {
	AudienceSize int                `json:"audience_size"`
	Sample       []*models.Customer `json:"sample"`
}

// PaginationInfo represents pagination metadata
type PaginationInfo struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// CreateCampaign validates the rules and template, snapshots the audience
// size, and persists the campaign. The snapshot is a point-in-time count:
// the live audience may differ by send time.
func (s *CampaignService) CreateCampaign(ctx context.Context, req *CreateCampaignRequest) (*models.Campaign, error) {
	if req.Name == "" {
		return nil, &ValidationError{Message: "name is required"}
	}
	if req.MessageType != models.MessageTypeEmail && req.MessageType != models.MessageTypeSMS {
		return nil, &ValidationError{Message: "message_type must be 'email' or 'sms'"}
	}
	if len(req.AudienceRules) == 0 {
		return nil, &ValidationError{Message: "at least one audience rule is required"}
	}
	if err := s.templateSvc.ValidateTemplate(req.MessageTemplate); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid template: %v", err)}
	}

	normalized, err := rules.Validate(req.AudienceRules)
	if err != nil {
		return nil, err
	}
	cond, err := rules.Compile(normalized)
	if err != nil {
		return nil, err
	}

	size, err := s.audience.CountMatching(ctx, cond)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audience: %w", err)
	}

	campaign := &models.Campaign{
		Name:            req.Name,
		AudienceRules:   normalized,
		AudienceSize:    size,
		MessageTemplate: req.MessageTemplate,
		MessageType:     req.MessageType,
		Status:          models.CampaignStatusDraft,
		ScheduledAt:     req.ScheduledAt,
	}
	if campaign.IsScheduled() {
		campaign.Status = models.CampaignStatusScheduled
	}

	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	return campaign, nil
}

// PreviewAudience resolves a rule list into a count and a bounded sample
// without creating anything
func (s *CampaignService) PreviewAudience(ctx context.Context, rs []models.AudienceRule) (*AudiencePreview, error) {
	cond, err := rules.Compile(rs)
	if err != nil {
		return nil, err
	}

	size, err := s.audience.CountMatching(ctx, cond)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audience: %w", err)
	}
	sample, err := s.audience.FindMatching(ctx, cond, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audience sample: %w", err)
	}

	return &AudiencePreview{AudienceSize: size, Sample: sample}, nil
}

// GetCampaign retrieves a campaign by ID
func (s *CampaignService) GetCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "campaign", ID: strconv.Itoa(id)}
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

// ListCampaigns lists campaigns with filters
func (s *CampaignService) ListCampaigns(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, *PaginationInfo, error) {
	campaigns, total, err := s.campaignRepo.List(ctx, filters)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	pagination := &PaginationInfo{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}

	return campaigns, pagination, nil
}

// Send starts the delivery loop for a campaign. The loop runs in the
// background: the caller gets the sending acknowledgement immediately and
// delivery outcomes arrive later through the receipt boundary.
func (s *CampaignService) Send(ctx context.Context, campaignID int) (*SendCampaignResult, error) {
	campaign, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if !campaign.CanSend() {
		return nil, &BusinessLogicError{
			Message: fmt.Sprintf("campaign cannot be sent: status is %s", campaign.Status),
		}
	}
	if len(campaign.AudienceRules) == 0 {
		return nil, &BusinessLogicError{Message: "campaign has no audience rules"}
	}
	if campaign.MessageTemplate == "" {
		return nil, &BusinessLogicError{Message: "campaign has no message template"}
	}

	// Compile before any state change so rule errors leave the campaign
	// untouched.
	cond, err := rules.Compile(campaign.AudienceRules)
	if err != nil {
		return nil, err
	}

	if err := s.campaignRepo.MarkSending(ctx, campaign.ID, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to mark campaign sending: %w", err)
	}

	s.wg.Add(1)
	go s.runDeliveryLoop(campaign, cond)

	return &SendCampaignResult{
		CampaignID:   campaign.ID,
		AudienceSize: campaign.AudienceSize,
		Status:       models.CampaignStatusSending,
	}, nil
}

// Pause stops future sends for a sending campaign. It does not cancel an
// in-flight delivery loop; that loop runs to completion, pause only gates
// the next send call.
func (s *CampaignService) Pause(ctx context.Context, campaignID int) (*models.Campaign, error) {
	campaign, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if !campaign.CanPause() {
		return nil, &BusinessLogicError{
			Message: fmt.Sprintf("campaign cannot be paused: status is %s", campaign.Status),
		}
	}

	if err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusPaused); err != nil {
		return nil, fmt.Errorf("failed to pause campaign: %w", err)
	}

	campaign.Status = models.CampaignStatusPaused
	return campaign, nil
}

// Close cancels running delivery loops and waits for them to return
func (s *CampaignService) Close() {
	s.cancel()
	s.wg.Wait()
}

// runDeliveryLoop processes recipients strictly sequentially with a fixed
// pacing delay between sends. Per-recipient failures are logged and
// skipped; only a loop-level failure marks the whole campaign failed.
func (s *CampaignService) runDeliveryLoop(campaign *models.Campaign, cond rules.Condition) {
	defer s.wg.Done()

	ctx := s.ctx

	customers, err := s.audience.FindMatching(ctx, cond, 0)
	if err != nil {
		log.Printf("Campaign %d: audience resolution failed: %v", campaign.ID, err)
		if err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusFailed); err != nil {
			log.Printf("Campaign %d: failed to mark campaign failed: %v", campaign.ID, err)
		}
		return
	}

	if len(customers) == 0 {
		log.Printf("Campaign %d: audience is empty, nothing to send", campaign.ID)
		s.complete(ctx, campaign.ID)
		return
	}

	log.Printf("Campaign %d: delivering to %d recipients", campaign.ID, len(customers))

	for i, customer := range customers {
		if i > 0 && !s.pace(ctx) {
			log.Printf("Campaign %d: delivery loop canceled", campaign.ID)
			return
		}
		s.deliverOne(ctx, campaign, customer)
	}

	s.complete(ctx, campaign.ID)
}

// deliverOne renders, records and hands one message to the vendor.
// Best-effort: an error here never aborts the loop.
func (s *CampaignService) deliverOne(ctx context.Context, campaign *models.Campaign, customer *models.Customer) {
	content, err := s.templateSvc.Render(campaign.MessageTemplate, customer)
	if err != nil {
		log.Printf("Campaign %d: failed to render message for customer %d: %v", campaign.ID, customer.ID, err)
		return
	}

	msg := &models.MessageRecord{
		MessageID:  "msg_" + uuid.NewString(),
		CampaignID: campaign.ID,
		CustomerID: customer.ID,
		Recipient:  customer.Recipient(campaign.MessageType),
		Content:    content,
		Status:     models.MessageStatusPending,
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		log.Printf("Campaign %d: failed to create message record for customer %d: %v", campaign.ID, customer.ID, err)
		return
	}

	if err := s.vendor.Send(ctx, msg); err != nil {
		log.Printf("Campaign %d: vendor rejected message %s: %v", campaign.ID, msg.MessageID, err)
	}
}

func (s *CampaignService) complete(ctx context.Context, campaignID int) {
	if err := s.campaignRepo.MarkCompleted(ctx, campaignID, time.Now()); err != nil {
		log.Printf("Campaign %d: failed to mark campaign completed: %v", campaignID, err)
		return
	}
	log.Printf("Campaign %d: delivery loop completed", campaignID)
}

// pace waits out the pacing delay; returns false when the service is
// shutting down
func (s *CampaignService) pace(ctx context.Context) bool {
	if s.pacing <= 0 {
		return true
	}
	timer := time.NewTimer(s.pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
