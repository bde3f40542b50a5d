package handler

import (
	"database/sql"
	"net/http"
)

// QueueChecker reports whether the queue connection is alive
type QueueChecker interface {
	IsConnected() bool
}

// HealthHandler handles GET /health
type HealthHandler struct {
	db    *sql.DB
	queue QueueChecker
}

// NewHealthHandler creates a new health handler. queue may be nil when the
// service runs without a queue connection.
func NewHealthHandler(db *sql.DB, queue QueueChecker) *HealthHandler {
	return &HealthHandler{db: db, queue: queue}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Queue    string `json:"queue,omitempty"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Database: "connected"}
	status := http.StatusOK

	if err := h.db.PingContext(r.Context()); err != nil {
		resp.Status = "unhealthy"
		resp.Database = "disconnected"
		status = http.StatusServiceUnavailable
	}

	if h.queue != nil {
		resp.Queue = "connected"
		if !h.queue.IsConnected() {
			resp.Status = "unhealthy"
			resp.Queue = "disconnected"
			status = http.StatusServiceUnavailable
		}
	}

	WriteJSON(w, status, resp)
}
