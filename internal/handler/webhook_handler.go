package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"reachpoint/internal/service"
)

// signatureHeader carries the hex HMAC of the raw request body
const signatureHeader = "X-Receipt-Signature"

// WebhookHandler handles inbound delivery receipt callbacks
type WebhookHandler struct {
	receiptService *service.ReceiptService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(receiptService *service.ReceiptService) *WebhookHandler {
	return &WebhookHandler{
		receiptService: receiptService,
	}
}

// DeliveryReceipt handles POST /webhooks/delivery-receipt.
// 200 on success, 401 on a bad signature, 404 on an unknown message id.
func (h *WebhookHandler) DeliveryReceipt(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Request body is empty")
		return
	}

	var receipt service.Receipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	signature := r.Header.Get(signatureHeader)
	if err := h.receiptService.Process(r.Context(), &receipt, body, signature); err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, ReceiptResponse{MessageID: receipt.MessageID, Success: true})
}

// BatchDeliveryReceipt handles POST /webhooks/batch-delivery-receipt.
// Items are applied independently; one bad receipt never aborts the batch.
func (h *WebhookHandler) BatchDeliveryReceipt(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Request body is empty")
		return
	}

	var req BatchReceiptRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	// Same optional-signature rule as the single endpoint, computed over
	// the whole batch body.
	if signature := r.Header.Get(signatureHeader); signature != "" {
		if !h.receiptService.VerifySignature(body, signature) {
			WriteAuthenticationError(w, "invalid receipt signature")
			return
		}
	}

	if len(req.Receipts) == 0 {
		WriteValidationError(w, "receipts cannot be empty")
		return
	}

	results := h.receiptService.ProcessBatch(r.Context(), req.Receipts)
	WriteOK(w, BatchReceiptResponse{Results: results})
}

// Request/Response types

// ReceiptResponse acknowledges one applied receipt
type ReceiptResponse struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
}

// BatchReceiptRequest represents a batch of receipts
type BatchReceiptRequest struct {
	Receipts []service.Receipt `json:"receipts"`
}

// BatchReceiptResponse carries per-item results
type BatchReceiptResponse struct {
	Results []service.BatchReceiptResult `json:"results"`
}
