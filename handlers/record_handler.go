package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/services/scoped"
	"github.com/fieldbeam/fieldbeam/backend/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// exposedResources maps the URL resource segment to its table. Only tables
// listed here are reachable through the generic record API; projects and
// tasks have their own typed handlers.
var exposedResources = map[string]string{
	"rfis":             "rfis",
	"daily-logs":       "daily_logs",
	"safety-incidents": "safety_incidents",
	"invoices":         "invoices",
	"comments":         "comments",
}

// reservedQueryParams are interpreted as pagination and ordering, not as
// filters
var reservedQueryParams = map[string]bool{
	"limit":    true,
	"offset":   true,
	"order_by": true,
	"order":    true,
}

// RecordHandler serves the generic scoped CRUD API over the exposed tables
type RecordHandler struct {
	svc    *scoped.Service
	logger *zap.Logger
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(svc *scoped.Service, logger *zap.Logger) *RecordHandler {
	return &RecordHandler{
		svc:    svc,
		logger: logger,
	}
}

// resourceTable resolves the URL resource segment, writing 404 for unknown
// resources
func (h *RecordHandler) resourceTable(w http.ResponseWriter, r *http.Request) (string, bool) {
	resource := chi.URLParam(r, "resource")
	table, ok := exposedResources[resource]
	if !ok {
		_ = utils.WriteNotFound(w, "Unknown resource")
		return "", false
	}
	return table, true
}

// recordFilters builds equality filters from the non-reserved query
// parameters. Unknown columns are rejected by the store.
func recordFilters(r *http.Request) repositories.Record {
	filters := repositories.Record{}
	for key, values := range r.URL.Query() {
		if reservedQueryParams[key] || len(values) == 0 || values[0] == "" {
			continue
		}
		filters[key] = values[0]
	}
	return filters
}

// HandleList handles GET /api/v1/records/{resource}
func (h *RecordHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}
	table, ok := h.resourceTable(w, r)
	if !ok {
		return
	}

	records, err := h.svc.List(r.Context(), userID, companyID, table, recordFilters(r), queryOptions(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if records == nil {
		records = []repositories.Record{}
	}

	_ = utils.WriteOK(w, records)
}

// HandleCount handles GET /api/v1/records/{resource}/count
func (h *RecordHandler) HandleCount(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}
	table, ok := h.resourceTable(w, r)
	if !ok {
		return
	}

	count, err := h.svc.Count(r.Context(), userID, companyID, table, recordFilters(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, map[string]int64{"count": count})
}

// HandleCreate handles POST /api/v1/records/{resource}
func (h *RecordHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}
	table, ok := h.resourceTable(w, r)
	if !ok {
		return
	}

	var data repositories.Record
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	created, err := h.svc.Create(r.Context(), userID, companyID, table, data)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("record created",
		zap.String("table", table),
		zap.String("company_id", companyID))

	_ = utils.WriteCreated(w, created)
}

// HandleGet handles GET /api/v1/records/{resource}/{recordID}
func (h *RecordHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}
	table, ok := h.resourceTable(w, r)
	if !ok {
		return
	}

	rec, err := h.svc.Get(r.Context(), userID, companyID, table, chi.URLParam(r, "recordID"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, rec)
}

// HandleUpdate handles PUT /api/v1/records/{resource}/{recordID}
func (h *RecordHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}
	table, ok := h.resourceTable(w, r)
	if !ok {
		return
	}

	var updates repositories.Record
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	updated, err := h.svc.Update(r.Context(), userID, companyID, table, chi.URLParam(r, "recordID"), updates)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, updated)
}

// HandleDelete handles DELETE /api/v1/records/{resource}/{recordID}
func (h *RecordHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}
	table, ok := h.resourceTable(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), userID, companyID, table, chi.URLParam(r, "recordID")); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}
