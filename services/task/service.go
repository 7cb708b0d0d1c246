package task

import (
	"context"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/fieldbeam/fieldbeam/backend/services/scoped"
	"github.com/fieldbeam/fieldbeam/backend/utils"
)

// Service handles task business logic. On top of the scoped base it
// enforces the hierarchy rule: a task can only live under a project of the
// same tenant, and an assignee must be an active member.
type Service struct {
	*scoped.Service
}

// NewService creates a new task service
func NewService(base *scoped.Service) *Service {
	return &Service{Service: base}
}

// CreateTaskInput holds the fields for creating a task
type CreateTaskInput struct {
	ProjectID   string     `json:"project_id" validate:"required"`
	Title       string     `json:"title" validate:"required,min=1,max=255"`
	Description string     `json:"description" validate:"max=10000"`
	Status      string     `json:"status" validate:"omitempty,oneof=open in_progress blocked done"`
	AssigneeID  string     `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
}

// UpdateTaskInput holds the updatable task fields. Nil means leave
// unchanged.
type UpdateTaskInput struct {
	ProjectID   *string    `json:"project_id"`
	Title       *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string    `json:"description" validate:"omitempty,max=10000"`
	Status      *string    `json:"status" validate:"omitempty,oneof=open in_progress blocked done"`
	AssigneeID  *string    `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
}

// CreateTask creates a task under an owned project. A project id pointing
// at another tenant's project reads as a missing project.
func (s *Service) CreateTask(ctx context.Context, userID, companyID string, input CreateTaskInput) (*models.Task, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, err.Error(), err)
	}

	if _, err := s.RequireMember(ctx, userID, companyID); err != nil {
		return nil, err
	}
	if err := s.Validator().ValidateParent(ctx, companyID, models.Project{}.TableName(), input.ProjectID); err != nil {
		if services.IsNotFoundError(err) {
			return nil, services.ErrProjectNotFound
		}
		return nil, err
	}
	if input.AssigneeID != "" {
		if _, err := s.Validator().ValidateTenantAccess(ctx, input.AssigneeID, companyID); err != nil {
			return nil, err
		}
	}

	data := repositories.Record{
		"project_id":  input.ProjectID,
		"title":       input.Title,
		"description": input.Description,
		"status":      input.Status,
		"assignee_id": input.AssigneeID,
	}
	if input.Status == "" {
		data["status"] = string(models.TaskStatusOpen)
	}
	if input.DueDate != nil {
		data["due_date"] = *input.DueDate
	}

	store, err := s.Store(models.Task{}.TableName())
	if err != nil {
		return nil, err
	}
	rec, err := store.Create(ctx, companyID, data, userID)
	if err != nil {
		return nil, err
	}
	return models.TaskFromRecord(rec), nil
}

// GetTask returns one owned task
func (s *Service) GetTask(ctx context.Context, userID, companyID, taskID string) (*models.Task, error) {
	rec, err := s.Get(ctx, userID, companyID, models.Task{}.TableName(), taskID)
	if err != nil {
		return nil, err
	}
	return models.TaskFromRecord(rec), nil
}

// GetProjectTask returns one task addressed through its project. The whole
// chain is checked in a single predicate: the task must reference the
// project and both must belong to the tenant. Any break in the chain, a
// foreign project included, reads as a missing task.
func (s *Service) GetProjectTask(ctx context.Context, userID, companyID, projectID, taskID string) (*models.Task, error) {
	if _, err := s.RequireMember(ctx, userID, companyID); err != nil {
		return nil, err
	}

	if err := s.Validator().ValidateResourceAccess(ctx, companyID,
		models.Task{}.TableName(), taskID, "project_id", projectID); err != nil {
		if services.IsNotFoundError(err) {
			return nil, services.ErrTaskNotFound
		}
		return nil, err
	}

	rec, err := s.Get(ctx, userID, companyID, models.Task{}.TableName(), taskID)
	if err != nil {
		return nil, err
	}
	return models.TaskFromRecord(rec), nil
}

// ListTasks returns the tenant's tasks, optionally narrowed to one project
// or status
func (s *Service) ListTasks(ctx context.Context, userID, companyID, projectID, status string, opts *repositories.QueryOptions) ([]*models.Task, error) {
	filters := repositories.Record{}
	if projectID != "" {
		filters["project_id"] = projectID
	}
	if status != "" {
		filters["status"] = status
	}

	recs, err := s.List(ctx, userID, companyID, models.Task{}.TableName(), filters, opts)
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0, len(recs))
	for _, rec := range recs {
		tasks = append(tasks, models.TaskFromRecord(rec))
	}
	return tasks, nil
}

// UpdateTask applies the changed fields to an owned task. Moving a task to
// another project re-checks the new project's tenant, and assigning it
// re-checks the assignee's membership.
func (s *Service) UpdateTask(ctx context.Context, userID, companyID, taskID string, input UpdateTaskInput) (*models.Task, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, err.Error(), err)
	}

	if _, err := s.RequireMember(ctx, userID, companyID); err != nil {
		return nil, err
	}

	updates := repositories.Record{}
	if input.ProjectID != nil {
		if err := s.Validator().ValidateParent(ctx, companyID, models.Project{}.TableName(), *input.ProjectID); err != nil {
			if services.IsNotFoundError(err) {
				return nil, services.ErrProjectNotFound
			}
			return nil, err
		}
		updates["project_id"] = *input.ProjectID
	}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Status != nil {
		updates["status"] = *input.Status
	}
	if input.AssigneeID != nil {
		if *input.AssigneeID != "" {
			if _, err := s.Validator().ValidateTenantAccess(ctx, *input.AssigneeID, companyID); err != nil {
				return nil, err
			}
		}
		updates["assignee_id"] = *input.AssigneeID
	}
	if input.DueDate != nil {
		updates["due_date"] = *input.DueDate
	}

	store, err := s.Store(models.Task{}.TableName())
	if err != nil {
		return nil, err
	}
	rec, err := store.Update(ctx, companyID, taskID, updates, userID)
	if err != nil {
		return nil, err
	}
	return models.TaskFromRecord(rec), nil
}

// DeleteTask removes an owned task
func (s *Service) DeleteTask(ctx context.Context, userID, companyID, taskID string) error {
	return s.Delete(ctx, userID, companyID, models.Task{}.TableName(), taskID)
}
