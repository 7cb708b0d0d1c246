package project

import (
	"context"

	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/fieldbeam/fieldbeam/backend/services/scoped"
	"github.com/fieldbeam/fieldbeam/backend/utils"
)

// Service handles project business logic. All data access goes through the
// scoped base, so every operation is tenant-checked before it touches a
// row.
type Service struct {
	*scoped.Service
}

// NewService creates a new project service
func NewService(base *scoped.Service) *Service {
	return &Service{Service: base}
}

// CreateProjectInput holds the fields for creating a project
type CreateProjectInput struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=10000"`
	Address     string `json:"address" validate:"max=1000"`
	Status      string `json:"status" validate:"omitempty,oneof=planning active on_hold completed archived"`
}

// UpdateProjectInput holds the updatable project fields. Nil means leave
// unchanged.
type UpdateProjectInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=10000"`
	Address     *string `json:"address" validate:"omitempty,max=1000"`
	Status      *string `json:"status" validate:"omitempty,oneof=planning active on_hold completed archived"`
}

// CreateProject creates a project under the tenant
func (s *Service) CreateProject(ctx context.Context, userID, companyID string, input CreateProjectInput) (*models.Project, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, err.Error(), err)
	}

	data := repositories.Record{
		"name":        input.Name,
		"description": input.Description,
		"address":     input.Address,
		"status":      input.Status,
	}
	if input.Status == "" {
		data["status"] = string(models.ProjectStatusPlanning)
	}

	rec, err := s.Create(ctx, userID, companyID, models.Project{}.TableName(), data)
	if err != nil {
		return nil, err
	}
	return models.ProjectFromRecord(rec), nil
}

// GetProject returns one owned project
func (s *Service) GetProject(ctx context.Context, userID, companyID, projectID string) (*models.Project, error) {
	rec, err := s.Get(ctx, userID, companyID, models.Project{}.TableName(), projectID)
	if err != nil {
		return nil, err
	}
	return models.ProjectFromRecord(rec), nil
}

// ListProjects returns the tenant's projects, optionally filtered by status
func (s *Service) ListProjects(ctx context.Context, userID, companyID, status string, opts *repositories.QueryOptions) ([]*models.Project, error) {
	filters := repositories.Record{}
	if status != "" {
		filters["status"] = status
	}

	recs, err := s.List(ctx, userID, companyID, models.Project{}.TableName(), filters, opts)
	if err != nil {
		return nil, err
	}

	projects := make([]*models.Project, 0, len(recs))
	for _, rec := range recs {
		projects = append(projects, models.ProjectFromRecord(rec))
	}
	return projects, nil
}

// UpdateProject applies the changed fields to an owned project
func (s *Service) UpdateProject(ctx context.Context, userID, companyID, projectID string, input UpdateProjectInput) (*models.Project, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, err.Error(), err)
	}

	updates := repositories.Record{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Address != nil {
		updates["address"] = *input.Address
	}
	if input.Status != nil {
		updates["status"] = *input.Status
	}

	rec, err := s.Update(ctx, userID, companyID, models.Project{}.TableName(), projectID, updates)
	if err != nil {
		return nil, err
	}
	return models.ProjectFromRecord(rec), nil
}

// DeleteProject removes an owned project. Children cascade at the database
// level.
func (s *Service) DeleteProject(ctx context.Context, userID, companyID, projectID string) error {
	return s.Delete(ctx, userID, companyID, models.Project{}.TableName(), projectID)
}
