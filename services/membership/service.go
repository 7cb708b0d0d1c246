package membership

import (
	"context"

	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/fieldbeam/fieldbeam/backend/services/access"
	"github.com/fieldbeam/fieldbeam/backend/services/audit"
	"go.uber.org/zap"
)

// Service manages the membership lifecycle: invite, accept, role changes,
// suspension, removal. Every mutation requires an active admin or owner of
// the tenant and invalidates the membership cache for the affected user.
type Service struct {
	memberships repositories.MembershipRepository
	txManager   repositories.TransactionManager
	validator   *access.Validator
	cache       *access.MembershipCache
	auditor     *audit.Service
	logger      *zap.Logger
}

// NewService creates a new membership service. txManager may be nil; state
// transitions then run outside a transaction.
func NewService(memberships repositories.MembershipRepository, txManager repositories.TransactionManager, validator *access.Validator, cache *access.MembershipCache, auditor *audit.Service, logger *zap.Logger) *Service {
	return &Service{
		memberships: memberships,
		txManager:   txManager,
		validator:   validator,
		cache:       cache,
		auditor:     auditor,
		logger:      logger,
	}
}

// requireAdmin checks that the actor is an active admin or owner of the
// tenant
func (s *Service) requireAdmin(ctx context.Context, actorID, companyID string) (*models.Membership, error) {
	actor, err := s.validator.ValidateTenantAccess(ctx, actorID, companyID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.MembershipRoleOwner && actor.Role != models.MembershipRoleAdmin {
		return nil, services.ErrForbidden
	}
	return actor, nil
}

// getInCompany loads a membership and verifies it belongs to the tenant.
// A membership under another tenant reads as missing.
func (s *Service) getInCompany(ctx context.Context, companyID, membershipID string) (*models.Membership, error) {
	m, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if m.CompanyID != companyID {
		return nil, services.ErrMembershipNotFound
	}
	return m, nil
}

// Invite creates an invited membership for a user. Inviting a user who
// already holds a membership in the tenant is a conflict, whatever its
// status.
func (s *Service) Invite(ctx context.Context, actorID, companyID, userID string, role models.MembershipRole) (*models.Membership, error) {
	if _, err := s.requireAdmin(ctx, actorID, companyID); err != nil {
		return nil, err
	}
	if !models.ValidRole(role) {
		return nil, services.ErrInvalidRole
	}
	if userID == "" {
		return nil, services.ErrInvalidInput
	}

	if _, err := s.memberships.GetByUserAndCompany(ctx, userID, companyID); err == nil {
		return nil, services.ErrAlreadyMember
	} else if !services.IsNotFoundError(err) {
		return nil, err
	}

	m := models.NewMembership(userID, companyID, role)
	// The unique constraint closes the check-then-insert race.
	if err := s.memberships.Insert(ctx, m); err != nil {
		return nil, err
	}

	s.logger.Info("member invited",
		zap.String("company_id", companyID),
		zap.String("user_id", userID),
		zap.String("role", string(role)))

	s.audit(ctx, companyID, actorID, models.AuditActionMemberInvited, m.ID, map[string]interface{}{
		"user_id": userID,
		"role":    role,
	})

	return m, nil
}

// AcceptInvite transitions the caller's own invited membership to active.
// The status check and the update run in one transaction so two concurrent
// accepts cannot both observe the invited state.
func (s *Service) AcceptInvite(ctx context.Context, userID, companyID string) (*models.Membership, error) {
	var m *models.Membership
	var err error
	if s.txManager != nil {
		m, err = services.WithTransactionResult(ctx, s.txManager, func(ctx context.Context, tx repositories.Transaction) (*models.Membership, error) {
			return s.acceptInvite(ctx, s.memberships.WithTx(tx), userID, companyID)
		})
	} else {
		m, err = s.acceptInvite(ctx, s.memberships, userID, companyID)
	}
	if err != nil {
		return nil, err
	}

	s.audit(ctx, companyID, userID, models.AuditActionMemberAccepted, m.ID, map[string]interface{}{
		"user_id": userID,
	})

	return m, nil
}

func (s *Service) acceptInvite(ctx context.Context, repo repositories.MembershipRepository, userID, companyID string) (*models.Membership, error) {
	m, err := repo.GetByUserAndCompany(ctx, userID, companyID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MembershipStatusInvited {
		return nil, services.NewDomainError(services.ErrorTypeConflict,
			"membership is not pending acceptance", nil)
	}

	if err := repo.UpdateStatus(ctx, m.ID, models.MembershipStatusActive); err != nil {
		return nil, err
	}
	m.Status = models.MembershipStatusActive
	return m, nil
}

// ChangeRole changes a member's role
func (s *Service) ChangeRole(ctx context.Context, actorID, companyID, membershipID string, role models.MembershipRole) (*models.Membership, error) {
	if _, err := s.requireAdmin(ctx, actorID, companyID); err != nil {
		return nil, err
	}
	if !models.ValidRole(role) {
		return nil, services.ErrInvalidRole
	}

	m, err := s.getInCompany(ctx, companyID, membershipID)
	if err != nil {
		return nil, err
	}

	if err := s.memberships.UpdateRole(ctx, m.ID, role); err != nil {
		return nil, err
	}
	previous := m.Role
	m.Role = role

	s.cache.Invalidate(ctx, m.UserID, companyID)

	s.audit(ctx, companyID, actorID, models.AuditActionMemberRoleChanged, m.ID, map[string]interface{}{
		"user_id":       m.UserID,
		"previous_role": previous,
		"new_role":      role,
	})

	return m, nil
}

// Suspend transitions a membership to suspended. The row stays; only
// access goes.
func (s *Service) Suspend(ctx context.Context, actorID, companyID, membershipID string) error {
	if _, err := s.requireAdmin(ctx, actorID, companyID); err != nil {
		return err
	}

	m, err := s.getInCompany(ctx, companyID, membershipID)
	if err != nil {
		return err
	}

	if err := s.memberships.UpdateStatus(ctx, m.ID, models.MembershipStatusSuspended); err != nil {
		return err
	}

	s.cache.Invalidate(ctx, m.UserID, companyID)

	s.audit(ctx, companyID, actorID, models.AuditActionMemberSuspended, m.ID, map[string]interface{}{
		"user_id": m.UserID,
	})

	return nil
}

// Remove deletes a membership outright
func (s *Service) Remove(ctx context.Context, actorID, companyID, membershipID string) error {
	if _, err := s.requireAdmin(ctx, actorID, companyID); err != nil {
		return err
	}

	m, err := s.getInCompany(ctx, companyID, membershipID)
	if err != nil {
		return err
	}

	if err := s.memberships.Delete(ctx, m.ID); err != nil {
		return err
	}

	s.cache.Invalidate(ctx, m.UserID, companyID)

	s.audit(ctx, companyID, actorID, models.AuditActionMemberRemoved, m.ID, map[string]interface{}{
		"user_id": m.UserID,
		"role":    m.Role,
	})

	return nil
}

// ListMembers returns the tenant's memberships. Any active member may
// list; mutation stays admin-only.
func (s *Service) ListMembers(ctx context.Context, actorID, companyID string, limit, offset int) ([]*models.Membership, error) {
	if _, err := s.validator.ValidateTenantAccess(ctx, actorID, companyID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.memberships.ListByCompany(ctx, companyID, limit, offset)
}

func (s *Service) audit(ctx context.Context, companyID, actorID string, action models.AuditAction, membershipID string, details map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	entry := models.NewAuditLog(companyID, action, "membership").
		WithActor(actorID).
		WithResource(membershipID).
		WithDetails(details)
	s.auditor.Record(ctx, entry)
}
