package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/fieldbeam/fieldbeam/backend/services/audit"
	"github.com/fieldbeam/fieldbeam/backend/services/scoped"
	"github.com/fieldbeam/fieldbeam/backend/utils"
	"go.uber.org/zap"
)

// AuditHandler handles audit trail HTTP requests. Reading the trail is
// admin-only: it exposes actor activity across the whole tenant.
type AuditHandler struct {
	svc    *audit.Service
	base   *scoped.Service
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(svc *audit.Service, base *scoped.Service, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		svc:    svc,
		base:   base,
		logger: logger,
	}
}

// requireAuditAccess checks that the caller is an active admin or owner of
// the tenant
func (h *AuditHandler) requireAuditAccess(w http.ResponseWriter, r *http.Request) (userID, companyID string, ok bool) {
	userID, companyID, ok = requestScope(w, r)
	if !ok {
		return "", "", false
	}
	m, err := h.base.RequireMember(r.Context(), userID, companyID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return "", "", false
	}
	if m.Role != models.MembershipRoleOwner && m.Role != models.MembershipRoleAdmin {
		HandleServiceError(w, services.ErrForbidden, h.logger)
		return "", "", false
	}
	return userID, companyID, true
}

// auditFilter builds an AuditFilter from query parameters, pinned to the
// caller's tenant
func auditFilter(r *http.Request, companyID string) (repositories.AuditFilter, error) {
	filter := repositories.AuditFilter{
		CompanyID:    companyID,
		ActorID:      r.URL.Query().Get("actor_id"),
		Action:       r.URL.Query().Get("action"),
		ResourceType: r.URL.Query().Get("resource_type"),
		ResourceID:   r.URL.Query().Get("resource_id"),
	}

	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return filter, fmt.Errorf("invalid since timestamp: %s", since)
		}
		filter.Since = &t
	}
	if until := r.URL.Query().Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return filter, fmt.Errorf("invalid until timestamp: %s", until)
		}
		filter.Until = &t
	}

	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	} else {
		filter.Limit = 100
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	return filter, nil
}

// HandleListAuditLogs handles GET /api/v1/audit-logs
func (h *AuditHandler) HandleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	_, companyID, ok := h.requireAuditAccess(w, r)
	if !ok {
		return
	}

	filter, err := auditFilter(r, companyID)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	logs, err := h.svc.GetAuditLogs(r.Context(), filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}

	_ = utils.WriteOK(w, logs)
}

// HandleCountAuditLogs handles GET /api/v1/audit-logs/count
func (h *AuditHandler) HandleCountAuditLogs(w http.ResponseWriter, r *http.Request) {
	_, companyID, ok := h.requireAuditAccess(w, r)
	if !ok {
		return
	}

	filter, err := auditFilter(r, companyID)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	count, err := h.svc.GetAuditLogCount(r.Context(), filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, map[string]int64{"count": count})
}

// HandleExportAuditLogs handles GET /api/v1/audit-logs/export
func (h *AuditHandler) HandleExportAuditLogs(w http.ResponseWriter, r *http.Request) {
	_, companyID, ok := h.requireAuditAccess(w, r)
	if !ok {
		return
	}

	filter, err := auditFilter(r, companyID)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	// Export takes the service cap, not the listing default.
	filter.Limit = 0

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-logs.csv"`)

	rows, err := h.svc.ExportCSV(r.Context(), filter, w)
	if err != nil {
		// Headers may be gone already; log instead of double-writing.
		h.logger.Error("audit export failed", zap.Error(err))
		return
	}

	h.logger.Info("audit export served",
		zap.String("company_id", companyID),
		zap.Int("rows", rows))
}

// RetentionRequest is the body for applying audit retention
type RetentionRequest struct {
	RetentionDays int `json:"retention_days"`
}

// HandleApplyRetention handles POST /api/v1/audit-logs/retention
func (h *AuditHandler) HandleApplyRetention(w http.ResponseWriter, r *http.Request) {
	_, companyID, ok := h.requireAuditAccess(w, r)
	if !ok {
		return
	}

	var req RetentionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	// Retention is scoped to the caller's tenant; other tenants' trails
	// are untouchable from here.
	deleted, err := h.svc.DeleteOldLogs(r.Context(), companyID, req.RetentionDays)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("audit retention applied via API",
		zap.String("company_id", companyID),
		zap.Int64("deleted", deleted))

	_ = utils.WriteOK(w, map[string]int64{"deleted": deleted})
}
