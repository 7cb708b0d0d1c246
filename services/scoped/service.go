package scoped

import (
	"context"

	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/fieldbeam/fieldbeam/backend/services/access"
	"github.com/fieldbeam/fieldbeam/backend/services/audit"
	"go.uber.org/zap"
)

// Service is the base for every tenant-scoped domain service. It validates
// membership before touching data, reaches rows only through the scoped
// record stores, and audits through the best-effort recorder. Domain
// services embed it and add their own rules on top.
type Service struct {
	validator *access.Validator
	auditor   *audit.Service
	stores    repositories.StoreSet
	logger    *zap.Logger
}

// New creates a scoped service base
func New(validator *access.Validator, auditor *audit.Service, stores repositories.StoreSet, logger *zap.Logger) *Service {
	return &Service{
		validator: validator,
		auditor:   auditor,
		stores:    stores,
		logger:    logger,
	}
}

// Validator returns the access validator
func (s *Service) Validator() *access.Validator {
	return s.validator
}

// Logger returns the service logger
func (s *Service) Logger() *zap.Logger {
	return s.logger
}

// Store returns the record store for a table
func (s *Service) Store(table string) (repositories.RecordStore, error) {
	store, ok := s.stores[table]
	if !ok {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"unknown resource table: "+table, nil)
	}
	return store, nil
}

// RequireMember checks that the user is an active member of the tenant
func (s *Service) RequireMember(ctx context.Context, userID, companyID string) (*models.Membership, error) {
	return s.validator.ValidateTenantAccess(ctx, userID, companyID)
}

// Audit records an audit entry, best-effort
func (s *Service) Audit(ctx context.Context, log *models.AuditLog) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, log)
}

// List returns the tenant's records in a table, after the membership check
func (s *Service) List(ctx context.Context, userID, companyID, table string, filters repositories.Record, opts *repositories.QueryOptions) ([]repositories.Record, error) {
	if _, err := s.RequireMember(ctx, userID, companyID); err != nil {
		return nil, err
	}
	store, err := s.Store(table)
	if err != nil {
		return nil, err
	}
	return store.Query(ctx, companyID, filters, opts)
}

// Get returns one owned record, after the membership check
func (s *Service) Get(ctx context.Context, userID, companyID, table, id string) (repositories.Record, error) {
	if _, err := s.RequireMember(ctx, userID, companyID); err != nil {
		return nil, err
	}
	store, err := s.Store(table)
	if err != nil {
		return nil, err
	}
	return store.GetByID(ctx, companyID, id)
}

// Create stores a record under the tenant, after the membership check
func (s *Service) Create(ctx context.Context, userID, companyID, table string, data repositories.Record) (repositories.Record, error) {
	if _, err := s.RequireMember(ctx, userID, companyID); err != nil {
		return nil, err
	}
	store, err := s.Store(table)
	if err != nil {
		return nil, err
	}
	return store.Create(ctx, companyID, data, userID)
}

// Update applies updates to one owned record, after the membership check
func (s *Service) Update(ctx context.Context, userID, companyID, table, id string, updates repositories.Record) (repositories.Record, error) {
	if _, err := s.RequireMember(ctx, userID, companyID); err != nil {
		return nil, err
	}
	store, err := s.Store(table)
	if err != nil {
		return nil, err
	}
	return store.Update(ctx, companyID, id, updates, userID)
}

// Delete removes one owned record, after the membership check
func (s *Service) Delete(ctx context.Context, userID, companyID, table, id string) error {
	if _, err := s.RequireMember(ctx, userID, companyID); err != nil {
		return err
	}
	store, err := s.Store(table)
	if err != nil {
		return err
	}
	return store.Delete(ctx, companyID, id, userID)
}

// Count returns the number of matching owned records, after the membership
// check
func (s *Service) Count(ctx context.Context, userID, companyID, table string, filters repositories.Record) (int64, error) {
	if _, err := s.RequireMember(ctx, userID, companyID); err != nil {
		return 0, err
	}
	store, err := s.Store(table)
	if err != nil {
		return 0, err
	}
	return store.Count(ctx, companyID, filters)
}
