package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fieldbeam/fieldbeam/backend/middleware"
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/services/project"
	"github.com/fieldbeam/fieldbeam/backend/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ProjectHandler handles project-related HTTP requests
type ProjectHandler struct {
	svc    *project.Service
	logger *zap.Logger
}

// NewProjectHandler creates a new ProjectHandler
func NewProjectHandler(svc *project.Service, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{
		svc:    svc,
		logger: logger,
	}
}

// requestScope extracts the authenticated user and tenant from the request
// context. Both come from the session token, never from the request body.
func requestScope(w http.ResponseWriter, r *http.Request) (userID, companyID string, ok bool) {
	ctx := r.Context()
	userID = middleware.GetUserIDFromContext(ctx)
	companyID = middleware.GetCompanyIDFromContext(ctx)
	if userID == "" || companyID == "" {
		_ = utils.WriteUnauthorized(w, "Missing tenant information")
		return "", "", false
	}
	return userID, companyID, true
}

// queryOptions builds pagination and ordering options from query parameters
func queryOptions(r *http.Request) *repositories.QueryOptions {
	opts := &repositories.QueryOptions{
		OrderBy:    r.URL.Query().Get("order_by"),
		Descending: r.URL.Query().Get("order") == "desc",
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		opts.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && offset > 0 {
		opts.Offset = offset
	}
	return opts
}

// HandleListProjects handles GET /api/v1/projects
func (h *ProjectHandler) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	projects, err := h.svc.ListProjects(r.Context(), userID, companyID,
		r.URL.Query().Get("status"), queryOptions(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, projects)
}

// HandleCreateProject handles POST /api/v1/projects
func (h *ProjectHandler) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var input project.CreateProjectInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	created, err := h.svc.CreateProject(r.Context(), userID, companyID, input)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("project created",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("company_id", companyID),
		zap.String("project_id", created.ID))

	_ = utils.WriteCreated(w, created)
}

// HandleGetProject handles GET /api/v1/projects/{projectID}
func (h *ProjectHandler) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	p, err := h.svc.GetProject(r.Context(), userID, companyID, chi.URLParam(r, "projectID"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, p)
}

// HandleUpdateProject handles PATCH /api/v1/projects/{projectID}
func (h *ProjectHandler) HandleUpdateProject(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var input project.UpdateProjectInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	updated, err := h.svc.UpdateProject(r.Context(), userID, companyID, chi.URLParam(r, "projectID"), input)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, updated)
}

// HandleDeleteProject handles DELETE /api/v1/projects/{projectID}
func (h *ProjectHandler) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteProject(r.Context(), userID, companyID, chi.URLParam(r, "projectID")); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}
