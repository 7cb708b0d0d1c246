package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fieldbeam/fieldbeam/backend/services/task"
	"github.com/fieldbeam/fieldbeam/backend/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	svc    *task.Service
	logger *zap.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(svc *task.Service, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		svc:    svc,
		logger: logger,
	}
}

// HandleListTasks handles GET /api/v1/tasks
func (h *TaskHandler) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	tasks, err := h.svc.ListTasks(r.Context(), userID, companyID,
		r.URL.Query().Get("project_id"),
		r.URL.Query().Get("status"),
		queryOptions(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, tasks)
}

// HandleCreateTask handles POST /api/v1/tasks
func (h *TaskHandler) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var input task.CreateTaskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	created, err := h.svc.CreateTask(r.Context(), userID, companyID, input)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("task created",
		zap.String("company_id", companyID),
		zap.String("task_id", created.ID),
		zap.String("project_id", created.ProjectID))

	_ = utils.WriteCreated(w, created)
}

// HandleGetTask handles GET /api/v1/tasks/{taskID}
func (h *TaskHandler) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	t, err := h.svc.GetTask(r.Context(), userID, companyID, chi.URLParam(r, "taskID"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, t)
}

// HandleGetProjectTask handles GET /api/v1/projects/{projectID}/tasks/{taskID}
func (h *TaskHandler) HandleGetProjectTask(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	t, err := h.svc.GetProjectTask(r.Context(), userID, companyID,
		chi.URLParam(r, "projectID"), chi.URLParam(r, "taskID"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, t)
}

// HandleUpdateTask handles PATCH /api/v1/tasks/{taskID}
func (h *TaskHandler) HandleUpdateTask(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var input task.UpdateTaskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	updated, err := h.svc.UpdateTask(r.Context(), userID, companyID, chi.URLParam(r, "taskID"), input)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, updated)
}

// HandleDeleteTask handles DELETE /api/v1/tasks/{taskID}
func (h *TaskHandler) HandleDeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteTask(r.Context(), userID, companyID, chi.URLParam(r, "taskID")); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}
