package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/services/audit"
	"github.com/fieldbeam/fieldbeam/backend/utils"
	"go.uber.org/zap"
)

const readinessTimeout = 5 * time.Second

// HealthHandler serves the liveness and readiness probes
type HealthHandler struct {
	db      *sql.DB
	auditor *audit.Service
	logger  *zap.Logger
}

// HealthResponse is the probe payload
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthHandler creates a new HealthHandler. db and auditor may be nil;
// their checks are then skipped.
func NewHealthHandler(db *sql.DB, auditor *audit.Service, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		auditor: auditor,
		logger:  logger,
	}
}

// HandleHealth handles GET /healthz. Liveness only: a running process
// always answers 200.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz. The database must answer within
// the deadline; the audit queue depth is reported as information, a
// backed-up queue does not fail the probe.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Warn("readiness probe: database unreachable", zap.Error(err))
			checks["database"] = "unreachable"
			ready = false
		} else {
			checks["database"] = "ok"
		}
	}

	if h.auditor != nil {
		stats := h.auditor.GetStats()
		checks["audit_queue"] = fmt.Sprintf("%d/%d", stats.PendingEvents, stats.BufferSize)
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !ready {
		status = "unavailable"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
