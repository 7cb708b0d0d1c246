package membership

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fieldbeam/fieldbeam/backend/config"
	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/fieldbeam/fieldbeam/backend/services/access"
	"github.com/fieldbeam/fieldbeam/backend/services/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockMembershipRepo struct {
	mock.Mock
}

func (m *mockMembershipRepo) Insert(ctx context.Context, mem *models.Membership) error {
	return m.Called(ctx, mem).Error(0)
}

func (m *mockMembershipRepo) GetByID(ctx context.Context, id string) (*models.Membership, error) {
	args := m.Called(ctx, id)
	if mem := args.Get(0); mem != nil {
		return mem.(*models.Membership), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMembershipRepo) GetByUserAndCompany(ctx context.Context, userID, companyID string) (*models.Membership, error) {
	args := m.Called(ctx, userID, companyID)
	if mem := args.Get(0); mem != nil {
		return mem.(*models.Membership), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMembershipRepo) ListByCompany(ctx context.Context, companyID string, limit, offset int) ([]*models.Membership, error) {
	args := m.Called(ctx, companyID, limit, offset)
	if mems := args.Get(0); mems != nil {
		return mems.([]*models.Membership), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMembershipRepo) UpdateStatus(ctx context.Context, id string, status models.MembershipStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockMembershipRepo) UpdateRole(ctx context.Context, id string, role models.MembershipRole) error {
	return m.Called(ctx, id, role).Error(0)
}

func (m *mockMembershipRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockMembershipRepo) WithTx(_ repositories.Transaction) repositories.MembershipRepository {
	return m
}

// captureAuditRepo keeps inserted audit entries in memory
type captureAuditRepo struct {
	entries []*models.AuditLog
}

func (c *captureAuditRepo) Insert(_ context.Context, log *models.AuditLog) error {
	c.entries = append(c.entries, log)
	return nil
}

func (c *captureAuditRepo) GetByID(_ context.Context, _ string) (*models.AuditLog, error) {
	return nil, services.ErrAuditLogNotFound
}

func (c *captureAuditRepo) List(_ context.Context, _ repositories.AuditFilter) ([]*models.AuditLog, error) {
	return nil, nil
}

func (c *captureAuditRepo) Count(_ context.Context, _ repositories.AuditFilter) (int64, error) {
	return 0, nil
}

func (c *captureAuditRepo) DeleteOlderThan(_ context.Context, _ string, _ time.Time) (int64, error) {
	return 0, nil
}

func (c *captureAuditRepo) WithTx(_ repositories.Transaction) repositories.AuditRepository {
	return c
}

// fakeTxManager hands out fake transactions and records their outcome
type fakeTxManager struct {
	tx *fakeTx
}

func (f *fakeTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	f.tx = &fakeTx{ctx: ctx}
	return f.tx, nil
}

func (f *fakeTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := f.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx.Context(), tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type fakeTx struct {
	ctx        context.Context
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit() error            { t.committed = true; return nil }
func (t *fakeTx) Rollback() error          { t.rolledBack = true; return nil }
func (t *fakeTx) Context() context.Context { return t.ctx }

func membershipWith(userID, companyID string, role models.MembershipRole, status models.MembershipStatus) *models.Membership {
	m := models.NewMembership(userID, companyID, role)
	m.Status = status
	return m
}

func newTestService(t *testing.T, repo *mockMembershipRepo, txm repositories.TransactionManager, cache *access.MembershipCache) *Service {
	t.Helper()
	logger := zaptest.NewLogger(t)
	validator := access.NewValidator(repo, nil, cache, logger)
	return NewService(repo, txm, validator, cache, nil, logger)
}

func expectActor(repo *mockMembershipRepo, userID, companyID string, role models.MembershipRole) {
	repo.On("GetByUserAndCompany", mock.Anything, userID, companyID).
		Return(membershipWith(userID, companyID, role, models.MembershipStatusActive), nil)
}

func TestService_Invite(t *testing.T) {
	ctx := context.Background()

	t.Run("admin invites a new member", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		expectActor(repo, "admin-1", "tenant-1", models.MembershipRoleAdmin)
		repo.On("GetByUserAndCompany", mock.Anything, "user-2", "tenant-1").
			Return(nil, services.ErrMembershipNotFound)
		repo.On("Insert", mock.Anything, mock.AnythingOfType("*models.Membership")).Return(nil)

		svc := newTestService(t, repo, nil, nil)
		m, err := svc.Invite(ctx, "admin-1", "tenant-1", "user-2", models.MembershipRoleMember)
		require.NoError(t, err)
		assert.Equal(t, models.MembershipStatusInvited, m.Status)
		assert.Equal(t, models.MembershipRoleMember, m.Role)
		assert.Equal(t, "tenant-1", m.CompanyID)
	})

	t.Run("plain member cannot invite", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		expectActor(repo, "member-1", "tenant-1", models.MembershipRoleMember)

		svc := newTestService(t, repo, nil, nil)
		_, err := svc.Invite(ctx, "member-1", "tenant-1", "user-2", models.MembershipRoleMember)
		assert.ErrorIs(t, err, services.ErrForbidden)
		repo.AssertNotCalled(t, "Insert")
	})

	t.Run("non-member cannot invite", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		repo.On("GetByUserAndCompany", mock.Anything, "outsider", "tenant-1").
			Return(nil, services.ErrMembershipNotFound)

		svc := newTestService(t, repo, nil, nil)
		_, err := svc.Invite(ctx, "outsider", "tenant-1", "user-2", models.MembershipRoleMember)
		assert.ErrorIs(t, err, services.ErrNotTenantMember)
	})

	t.Run("invalid role rejected", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		expectActor(repo, "admin-1", "tenant-1", models.MembershipRoleOwner)

		svc := newTestService(t, repo, nil, nil)
		_, err := svc.Invite(ctx, "admin-1", "tenant-1", "user-2", models.MembershipRole("superuser"))
		assert.ErrorIs(t, err, services.ErrInvalidRole)
	})

	t.Run("empty user rejected", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		expectActor(repo, "admin-1", "tenant-1", models.MembershipRoleAdmin)

		svc := newTestService(t, repo, nil, nil)
		_, err := svc.Invite(ctx, "admin-1", "tenant-1", "", models.MembershipRoleMember)
		assert.ErrorIs(t, err, services.ErrInvalidInput)
	})

	t.Run("existing membership is a conflict", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		expectActor(repo, "admin-1", "tenant-1", models.MembershipRoleAdmin)
		repo.On("GetByUserAndCompany", mock.Anything, "user-2", "tenant-1").
			Return(membershipWith("user-2", "tenant-1", models.MembershipRoleMember, models.MembershipStatusSuspended), nil)

		svc := newTestService(t, repo, nil, nil)
		_, err := svc.Invite(ctx, "admin-1", "tenant-1", "user-2", models.MembershipRoleMember)
		assert.ErrorIs(t, err, services.ErrAlreadyMember)
	})

	t.Run("insert race surfaces the repository conflict", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		expectActor(repo, "admin-1", "tenant-1", models.MembershipRoleAdmin)
		repo.On("GetByUserAndCompany", mock.Anything, "user-2", "tenant-1").
			Return(nil, services.ErrMembershipNotFound)
		repo.On("Insert", mock.Anything, mock.Anything).Return(services.ErrAlreadyMember)

		svc := newTestService(t, repo, nil, nil)
		_, err := svc.Invite(ctx, "admin-1", "tenant-1", "user-2", models.MembershipRoleMember)
		assert.ErrorIs(t, err, services.ErrAlreadyMember)
	})
}

func TestService_AcceptInvite(t *testing.T) {
	ctx := context.Background()

	t.Run("invited becomes active", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		invited := membershipWith("user-1", "tenant-1", models.MembershipRoleMember, models.MembershipStatusInvited)
		repo.On("GetByUserAndCompany", mock.Anything, "user-1", "tenant-1").Return(invited, nil)
		repo.On("UpdateStatus", mock.Anything, invited.ID, models.MembershipStatusActive).Return(nil)

		svc := newTestService(t, repo, nil, nil)
		m, err := svc.AcceptInvite(ctx, "user-1", "tenant-1")
		require.NoError(t, err)
		assert.Equal(t, models.MembershipStatusActive, m.Status)
	})

	t.Run("runs in a transaction when a manager is wired", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		invited := membershipWith("user-1", "tenant-1", models.MembershipRoleMember, models.MembershipStatusInvited)
		repo.On("GetByUserAndCompany", mock.Anything, "user-1", "tenant-1").Return(invited, nil)
		repo.On("UpdateStatus", mock.Anything, invited.ID, models.MembershipStatusActive).Return(nil)

		txm := &fakeTxManager{}
		svc := newTestService(t, repo, txm, nil)
		_, err := svc.AcceptInvite(ctx, "user-1", "tenant-1")
		require.NoError(t, err)
		require.NotNil(t, txm.tx)
		assert.True(t, txm.tx.committed)
		assert.False(t, txm.tx.rolledBack)
	})

	t.Run("already active is a conflict", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		active := membershipWith("user-1", "tenant-1", models.MembershipRoleMember, models.MembershipStatusActive)
		repo.On("GetByUserAndCompany", mock.Anything, "user-1", "tenant-1").Return(active, nil)

		svc := newTestService(t, repo, nil, nil)
		_, err := svc.AcceptInvite(ctx, "user-1", "tenant-1")
		assert.True(t, services.IsConflictError(err))
		repo.AssertNotCalled(t, "UpdateStatus")
	})

	t.Run("conflict rolls the transaction back", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		suspended := membershipWith("user-1", "tenant-1", models.MembershipRoleMember, models.MembershipStatusSuspended)
		repo.On("GetByUserAndCompany", mock.Anything, "user-1", "tenant-1").Return(suspended, nil)

		txm := &fakeTxManager{}
		svc := newTestService(t, repo, txm, nil)
		_, err := svc.AcceptInvite(ctx, "user-1", "tenant-1")
		assert.True(t, services.IsConflictError(err))
		require.NotNil(t, txm.tx)
		assert.True(t, txm.tx.rolledBack)
	})

	t.Run("no invite means not found", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		repo.On("GetByUserAndCompany", mock.Anything, "user-1", "tenant-1").
			Return(nil, services.ErrMembershipNotFound)

		svc := newTestService(t, repo, nil, nil)
		_, err := svc.AcceptInvite(ctx, "user-1", "tenant-1")
		assert.ErrorIs(t, err, services.ErrMembershipNotFound)
	})

	t.Run("accepting writes its own audit action", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		invited := membershipWith("user-1", "tenant-1", models.MembershipRoleMember, models.MembershipStatusInvited)
		repo.On("GetByUserAndCompany", mock.Anything, "user-1", "tenant-1").Return(invited, nil)
		repo.On("UpdateStatus", mock.Anything, invited.ID, models.MembershipStatusActive).Return(nil)

		trail := &captureAuditRepo{}
		logger := zaptest.NewLogger(t)
		// Not started, so the recorder writes synchronously.
		auditor := audit.NewService(trail, logger, audit.DefaultConfig())
		validator := access.NewValidator(repo, nil, nil, logger)
		svc := NewService(repo, nil, validator, nil, auditor, logger)

		_, err := svc.AcceptInvite(ctx, "user-1", "tenant-1")
		require.NoError(t, err)

		require.Len(t, trail.entries, 1)
		assert.Equal(t, models.AuditActionMemberAccepted, trail.entries[0].Action)
		require.NotNil(t, trail.entries[0].ActorID)
		assert.Equal(t, "user-1", *trail.entries[0].ActorID)
	})
}

func TestService_ChangeRole(t *testing.T) {
	ctx := context.Background()

	t.Run("admin changes a member role", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		expectActor(repo, "admin-1", "tenant-1", models.MembershipRoleOwner)
		target := membershipWith("user-2", "tenant-1", models.MembershipRoleMember, models.MembershipStatusActive)
		repo.On("GetByID", mock.Anything, target.ID).Return(target, nil)
		repo.On("UpdateRole", mock.Anything, target.ID, models.MembershipRoleAdmin).Return(nil)

		svc := newTestService(t, repo, nil, nil)
		m, err := svc.ChangeRole(ctx, "admin-1", "tenant-1", target.ID, models.MembershipRoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, models.MembershipRoleAdmin, m.Role)
	})

	t.Run("membership of another tenant reads as missing", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		expectActor(repo, "admin-1", "tenant-1", models.MembershipRoleAdmin)
		foreign := membershipWith("user-9", "tenant-2", models.MembershipRoleMember, models.MembershipStatusActive)
		repo.On("GetByID", mock.Anything, foreign.ID).Return(foreign, nil)

		svc := newTestService(t, repo, nil, nil)
		_, err := svc.ChangeRole(ctx, "admin-1", "tenant-1", foreign.ID, models.MembershipRoleAdmin)
		assert.ErrorIs(t, err, services.ErrMembershipNotFound)
		repo.AssertNotCalled(t, "UpdateRole")
	})

	t.Run("role change invalidates the cache", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cache := access.NewMembershipCache(config.RedisConfig{Addr: mr.Addr(), TTL: time.Minute}, zaptest.NewLogger(t))
		t.Cleanup(func() { cache.Close() })

		target := membershipWith("user-2", "tenant-1", models.MembershipRoleMember, models.MembershipStatusActive)
		cache.Set(ctx, target)
		require.NotNil(t, cache.Get(ctx, "user-2", "tenant-1"))

		repo := &mockMembershipRepo{}
		expectActor(repo, "admin-1", "tenant-1", models.MembershipRoleAdmin)
		repo.On("GetByID", mock.Anything, target.ID).Return(target, nil)
		repo.On("UpdateRole", mock.Anything, target.ID, models.MembershipRoleAdmin).Return(nil)

		svc := newTestService(t, repo, nil, cache)
		_, err := svc.ChangeRole(ctx, "admin-1", "tenant-1", target.ID, models.MembershipRoleAdmin)
		require.NoError(t, err)
		assert.Nil(t, cache.Get(ctx, "user-2", "tenant-1"))
	})
}

func TestService_Suspend(t *testing.T) {
	ctx := context.Background()

	t.Run("admin suspends a member", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		expectActor(repo, "admin-1", "tenant-1", models.MembershipRoleAdmin)
		target := membershipWith("user-2", "tenant-1", models.MembershipRoleMember, models.MembershipStatusActive)
		repo.On("GetByID", mock.Anything, target.ID).Return(target, nil)
		repo.On("UpdateStatus", mock.Anything, target.ID, models.MembershipStatusSuspended).Return(nil)

		svc := newTestService(t, repo, nil, nil)
		require.NoError(t, svc.Suspend(ctx, "admin-1", "tenant-1", target.ID))
	})

	t.Run("member cannot suspend", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		expectActor(repo, "member-1", "tenant-1", models.MembershipRoleMember)

		svc := newTestService(t, repo, nil, nil)
		err := svc.Suspend(ctx, "member-1", "tenant-1", "m-1")
		assert.ErrorIs(t, err, services.ErrForbidden)
	})
}

func TestService_Remove(t *testing.T) {
	ctx := context.Background()

	repo := &mockMembershipRepo{}
	expectActor(repo, "owner-1", "tenant-1", models.MembershipRoleOwner)
	target := membershipWith("user-2", "tenant-1", models.MembershipRoleMember, models.MembershipStatusActive)
	repo.On("GetByID", mock.Anything, target.ID).Return(target, nil)
	repo.On("Delete", mock.Anything, target.ID).Return(nil)

	svc := newTestService(t, repo, nil, nil)
	require.NoError(t, svc.Remove(ctx, "owner-1", "tenant-1", target.ID))
	repo.AssertCalled(t, "Delete", mock.Anything, target.ID)
}

func TestService_ListMembers(t *testing.T) {
	ctx := context.Background()

	t.Run("any active member may list", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		expectActor(repo, "member-1", "tenant-1", models.MembershipRoleMember)
		repo.On("ListByCompany", mock.Anything, "tenant-1", 50, 0).
			Return([]*models.Membership{
				membershipWith("member-1", "tenant-1", models.MembershipRoleMember, models.MembershipStatusActive),
			}, nil)

		svc := newTestService(t, repo, nil, nil)
		members, err := svc.ListMembers(ctx, "member-1", "tenant-1", 0, -5)
		require.NoError(t, err)
		assert.Len(t, members, 1)
	})

	t.Run("oversized limit clamped", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		expectActor(repo, "member-1", "tenant-1", models.MembershipRoleMember)
		repo.On("ListByCompany", mock.Anything, "tenant-1", 50, 10).
			Return([]*models.Membership{}, nil)

		svc := newTestService(t, repo, nil, nil)
		_, err := svc.ListMembers(ctx, "member-1", "tenant-1", 500, 10)
		require.NoError(t, err)
		repo.AssertCalled(t, "ListByCompany", mock.Anything, "tenant-1", 50, 10)
	})

	t.Run("non-member denied", func(t *testing.T) {
		repo := &mockMembershipRepo{}
		repo.On("GetByUserAndCompany", mock.Anything, "outsider", "tenant-1").
			Return(nil, services.ErrMembershipNotFound)

		svc := newTestService(t, repo, nil, nil)
		_, err := svc.ListMembers(ctx, "outsider", "tenant-1", 50, 0)
		assert.ErrorIs(t, err, services.ErrNotTenantMember)
	})
}
