package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"reachpoint/internal/models"
	"reachpoint/internal/repository"
	"reachpoint/internal/service"
)

// CampaignHandler handles HTTP requests for campaign operations
type CampaignHandler struct {
	campaignService *service.CampaignService
	vendorService   *service.VendorService
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignService *service.CampaignService, vendorService *service.VendorService) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignService,
		vendorService:   vendorService,
	}
}

// Create handles POST /campaigns
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateCampaignRequest
	if !decodeBody(w, r, &req) {
		return
	}

	campaign, err := h.campaignService.CreateCampaign(r.Context(), &req)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteCreated(w, campaign)
}

// List handles GET /campaigns
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := 1
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	perPage := 20
	if perPageStr := query.Get("per_page"); perPageStr != "" {
		if pp, err := strconv.Atoi(perPageStr); err == nil && pp > 0 {
			perPage = pp
		}
	}
	if perPage > 100 {
		perPage = 100
	}

	filters := repository.CampaignFilters{
		Page:     page,
		PageSize: perPage,
	}

	if statusStr := query.Get("status"); statusStr != "" {
		validStatuses := map[string]models.CampaignStatus{
			"draft":     models.CampaignStatusDraft,
			"scheduled": models.CampaignStatusScheduled,
			"sending":   models.CampaignStatusSending,
			"paused":    models.CampaignStatusPaused,
			"completed": models.CampaignStatusCompleted,
			"failed":    models.CampaignStatusFailed,
		}
		status, ok := validStatuses[statusStr]
		if !ok {
			WriteValidationError(w, "invalid status: must be one of draft, scheduled, sending, paused, completed, failed")
			return
		}
		filters.Status = &status
	}

	campaigns, pagination, err := h.campaignService.ListCampaigns(r.Context(), filters)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, ListCampaignsResponse{
		Campaigns:  campaigns,
		Pagination: pagination,
	})
}

// GetByID handles GET /campaigns/{id}
func (h *CampaignHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	campaign, err := h.campaignService.GetCampaign(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, campaign)
}

// Preview handles POST /campaigns/preview — resolves a rule list into an
// audience count and sample without creating a campaign
func (h *CampaignHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewAudienceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if len(req.AudienceRules) == 0 {
		WriteValidationError(w, "audience_rules cannot be empty")
		return
	}

	preview, err := h.campaignService.PreviewAudience(r.Context(), req.AudienceRules)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, preview)
}

// Send handles POST /campaigns/{id}/send. The response acknowledges the
// send has started; delivery happens in the background.
func (h *CampaignHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	result, err := h.campaignService.Send(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, result)
}

// Pause handles POST /campaigns/{id}/pause
func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	campaign, err := h.campaignService.Pause(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, campaign)
}

// Retry handles POST /campaigns/{id}/retry — re-sends failed messages
// below the retry ceiling
func (h *CampaignHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	retried, err := h.vendorService.RetryFailedMessages(r.Context(), id, models.MaxRetries)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, RetryResult{CampaignID: id, Retried: retried})
}

// campaignID extracts and validates the campaign ID path variable
func campaignID(w http.ResponseWriter, r *http.Request) (int, bool) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		WriteValidationError(w, "invalid campaign ID format")
		return 0, false
	}
	if id <= 0 {
		WriteValidationError(w, "campaign ID must be greater than 0")
		return 0, false
	}
	return id, true
}

// decodeBody parses a JSON request body, writing the error response itself
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if err == io.EOF {
			WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Request body is empty")
			return false
		}
		WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return false
	}
	return true
}

// Request/Response types

// ListCampaignsResponse represents the response for listing campaigns
type ListCampaignsResponse struct {
	Campaigns  []*models.Campaign      `json:"campaigns"`
	Pagination *service.PaginationInfo `json:"pagination"`
}

// PreviewAudienceRequest represents the request to preview an audience
type PreviewAudienceRequest struct {
	AudienceRules []models.AudienceRule `json:"audience_rules"`
}

// RetryResult represents the result of a retry request
type RetryResult struct {
	CampaignID int `json:"campaign_id"`
	Retried    int `json:"retried"`
}
