package task

import (
	"context"
	"fmt"
	"testing"

	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/fieldbeam/fieldbeam/backend/services/access"
	"github.com/fieldbeam/fieldbeam/backend/services/scoped"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memberStub answers membership lookups from a fixed map keyed by
// "userID/companyID"
type memberStub struct {
	members map[string]*models.Membership
}

func (m *memberStub) Insert(_ context.Context, _ *models.Membership) error  { return nil }
func (m *memberStub) GetByID(_ context.Context, _ string) (*models.Membership, error) {
	return nil, services.ErrMembershipNotFound
}

func (m *memberStub) GetByUserAndCompany(_ context.Context, userID, companyID string) (*models.Membership, error) {
	if mem, ok := m.members[userID+"/"+companyID]; ok {
		return mem, nil
	}
	return nil, services.ErrMembershipNotFound
}

func (m *memberStub) ListByCompany(_ context.Context, _ string, _, _ int) ([]*models.Membership, error) {
	return nil, nil
}
func (m *memberStub) UpdateStatus(_ context.Context, _ string, _ models.MembershipStatus) error {
	return nil
}
func (m *memberStub) UpdateRole(_ context.Context, _ string, _ models.MembershipRole) error {
	return nil
}
func (m *memberStub) Delete(_ context.Context, _ string) error { return nil }
func (m *memberStub) WithTx(_ repositories.Transaction) repositories.MembershipRepository {
	return m
}

// memStore is an in-memory RecordStore with the scoped contract: rows under
// another tenant read as missing. parents, when set, backs lineage checks.
type memStore struct {
	table   string
	next    int
	rows    map[string]repositories.Record
	parents *memStore
}

func newMemStore(table string) *memStore {
	return &memStore{table: table, rows: map[string]repositories.Record{}}
}

func (s *memStore) Table() string        { return s.table }
func (s *memStore) TenantColumn() string { return "company_id" }

func (s *memStore) Query(_ context.Context, tenantID string, filters repositories.Record, _ *repositories.QueryOptions) ([]repositories.Record, error) {
	var out []repositories.Record
	for _, r := range s.rows {
		if r["company_id"] != tenantID {
			continue
		}
		match := true
		for k, v := range filters {
			if r[k] != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) GetByID(_ context.Context, tenantID, id string) (repositories.Record, error) {
	r, ok := s.rows[id]
	if !ok || r["company_id"] != tenantID {
		return nil, services.ErrRecordNotFound
	}
	return r, nil
}

func (s *memStore) Create(_ context.Context, tenantID string, data repositories.Record, _ string) (repositories.Record, error) {
	s.next++
	rec := repositories.Record{}
	for k, v := range data {
		rec[k] = v
	}
	rec["id"] = fmt.Sprintf("%s-%d", s.table, s.next)
	rec["company_id"] = tenantID
	s.rows[rec["id"].(string)] = rec
	return rec, nil
}

func (s *memStore) Update(ctx context.Context, tenantID, id string, updates repositories.Record, _ string) (repositories.Record, error) {
	rec, err := s.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	for k, v := range updates {
		rec[k] = v
	}
	return rec, nil
}

func (s *memStore) Delete(ctx context.Context, tenantID, id, _ string) error {
	if _, err := s.GetByID(ctx, tenantID, id); err != nil {
		return err
	}
	delete(s.rows, id)
	return nil
}

func (s *memStore) Count(ctx context.Context, tenantID string, filters repositories.Record) (int64, error) {
	recs, err := s.Query(ctx, tenantID, filters, nil)
	return int64(len(recs)), err
}

func (s *memStore) ValidateOwnership(_ context.Context, tenantID, id string) (bool, error) {
	r, ok := s.rows[id]
	return ok && r["company_id"] == tenantID, nil
}

func (s *memStore) TenantOf(_ context.Context, id string) (string, error) {
	r, ok := s.rows[id]
	if !ok {
		return "", services.ErrRecordNotFound
	}
	tenant, _ := r["company_id"].(string)
	return tenant, nil
}

func (s *memStore) ValidateLineage(_ context.Context, tenantID, id, parentColumn, parentID string) (bool, error) {
	r, ok := s.rows[id]
	if !ok || r["company_id"] != tenantID || r[parentColumn] != parentID {
		return false, nil
	}
	if s.parents != nil {
		p, ok := s.parents.rows[parentID]
		if !ok || p["company_id"] != tenantID {
			return false, nil
		}
	}
	return true, nil
}

type fixture struct {
	svc      *Service
	projects *memStore
	tasks    *memStore
	members  *memberStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	members := &memberStub{members: map[string]*models.Membership{}}
	addMember(members, "user-1", "tenant-1", models.MembershipStatusActive)
	addMember(members, "user-2", "tenant-1", models.MembershipStatusActive)
	addMember(members, "suspended-1", "tenant-1", models.MembershipStatusSuspended)
	addMember(members, "user-9", "tenant-2", models.MembershipStatusActive)

	projects := newMemStore("projects")
	tasks := newMemStore("tasks")
	tasks.parents = projects
	stores := repositories.StoreSet{"projects": projects, "tasks": tasks}

	logger := zaptest.NewLogger(t)
	validator := access.NewValidator(members, stores, nil, logger)
	base := scoped.New(validator, nil, stores, logger)

	return &fixture{
		svc:      NewService(base),
		projects: projects,
		tasks:    tasks,
		members:  members,
	}
}

func addMember(stub *memberStub, userID, companyID string, status models.MembershipStatus) {
	m := models.NewMembership(userID, companyID, models.MembershipRoleMember)
	m.Status = status
	stub.members[userID+"/"+companyID] = m
}

func (f *fixture) seedProject(t *testing.T, tenantID, name string) string {
	t.Helper()
	rec, err := f.projects.Create(context.Background(), tenantID, repositories.Record{"name": name, "status": "active"}, "seed")
	require.NoError(t, err)
	return rec["id"].(string)
}

func TestCreateTask(t *testing.T) {
	ctx := context.Background()

	t.Run("creates under an owned project", func(t *testing.T) {
		f := newFixture(t)
		projectID := f.seedProject(t, "tenant-1", "Harbor Tower")

		task, err := f.svc.CreateTask(ctx, "user-1", "tenant-1", CreateTaskInput{
			ProjectID: projectID,
			Title:     "Pour foundation",
		})
		require.NoError(t, err)
		assert.Equal(t, "tenant-1", task.CompanyID)
		assert.Equal(t, projectID, task.ProjectID)
		assert.Equal(t, models.TaskStatusOpen, task.Status)
	})

	t.Run("foreign project reads as missing", func(t *testing.T) {
		f := newFixture(t)
		foreign := f.seedProject(t, "tenant-2", "Other Site")

		_, err := f.svc.CreateTask(ctx, "user-1", "tenant-1", CreateTaskInput{
			ProjectID: foreign,
			Title:     "Sneak in",
		})
		assert.ErrorIs(t, err, services.ErrProjectNotFound)
	})

	t.Run("assignee must be an active member", func(t *testing.T) {
		f := newFixture(t)
		projectID := f.seedProject(t, "tenant-1", "Harbor Tower")

		_, err := f.svc.CreateTask(ctx, "user-1", "tenant-1", CreateTaskInput{
			ProjectID:  projectID,
			Title:      "Inspect rebar",
			AssigneeID: "suspended-1",
		})
		assert.ErrorIs(t, err, services.ErrNotTenantMember)

		_, err = f.svc.CreateTask(ctx, "user-1", "tenant-1", CreateTaskInput{
			ProjectID:  projectID,
			Title:      "Inspect rebar",
			AssigneeID: "user-9",
		})
		assert.ErrorIs(t, err, services.ErrNotTenantMember)

		task, err := f.svc.CreateTask(ctx, "user-1", "tenant-1", CreateTaskInput{
			ProjectID:  projectID,
			Title:      "Inspect rebar",
			AssigneeID: "user-2",
		})
		require.NoError(t, err)
		assert.Equal(t, "user-2", task.AssigneeID)
	})

	t.Run("non-member denied before any check", func(t *testing.T) {
		f := newFixture(t)
		projectID := f.seedProject(t, "tenant-1", "Harbor Tower")

		_, err := f.svc.CreateTask(ctx, "outsider", "tenant-1", CreateTaskInput{
			ProjectID: projectID,
			Title:     "x",
		})
		assert.ErrorIs(t, err, services.ErrNotTenantMember)
	})

	t.Run("missing title rejected", func(t *testing.T) {
		f := newFixture(t)
		projectID := f.seedProject(t, "tenant-1", "Harbor Tower")

		_, err := f.svc.CreateTask(ctx, "user-1", "tenant-1", CreateTaskInput{ProjectID: projectID})
		assert.True(t, services.IsValidationError(err))
	})
}

func TestGetTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	projectID := f.seedProject(t, "tenant-1", "Harbor Tower")

	created, err := f.svc.CreateTask(ctx, "user-1", "tenant-1", CreateTaskInput{
		ProjectID: projectID,
		Title:     "Hang drywall",
	})
	require.NoError(t, err)

	t.Run("owner reads it back", func(t *testing.T) {
		task, err := f.svc.GetTask(ctx, "user-1", "tenant-1", created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Hang drywall", task.Title)
	})

	t.Run("another tenant's member sees not found", func(t *testing.T) {
		_, err := f.svc.GetTask(ctx, "user-9", "tenant-2", created.ID)
		assert.ErrorIs(t, err, services.ErrRecordNotFound)
	})
}

func TestGetProjectTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p1 := f.seedProject(t, "tenant-1", "Harbor Tower")
	p2 := f.seedProject(t, "tenant-1", "Dock Annex")
	foreign := f.seedProject(t, "tenant-2", "Other Site")

	created, err := f.svc.CreateTask(ctx, "user-1", "tenant-1", CreateTaskInput{
		ProjectID: p1,
		Title:     "Check formwork",
	})
	require.NoError(t, err)

	t.Run("intact chain resolves the task", func(t *testing.T) {
		task, err := f.svc.GetProjectTask(ctx, "user-1", "tenant-1", p1, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Check formwork", task.Title)
	})

	t.Run("wrong project in the path is a missing task", func(t *testing.T) {
		_, err := f.svc.GetProjectTask(ctx, "user-1", "tenant-1", p2, created.ID)
		assert.ErrorIs(t, err, services.ErrTaskNotFound)
	})

	t.Run("foreign project in the path is a missing task", func(t *testing.T) {
		_, err := f.svc.GetProjectTask(ctx, "user-1", "tenant-1", foreign, created.ID)
		assert.ErrorIs(t, err, services.ErrTaskNotFound)
	})

	t.Run("another tenant's member sees nothing", func(t *testing.T) {
		_, err := f.svc.GetProjectTask(ctx, "user-9", "tenant-2", p1, created.ID)
		assert.ErrorIs(t, err, services.ErrTaskNotFound)
	})

	t.Run("non-member denied", func(t *testing.T) {
		_, err := f.svc.GetProjectTask(ctx, "outsider", "tenant-1", p1, created.ID)
		assert.ErrorIs(t, err, services.ErrNotTenantMember)
	})
}

func TestListTasks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p1 := f.seedProject(t, "tenant-1", "Harbor Tower")
	p2 := f.seedProject(t, "tenant-1", "Dock Annex")

	for _, in := range []CreateTaskInput{
		{ProjectID: p1, Title: "a"},
		{ProjectID: p1, Title: "b", Status: "done"},
		{ProjectID: p2, Title: "c"},
	} {
		_, err := f.svc.CreateTask(ctx, "user-1", "tenant-1", in)
		require.NoError(t, err)
	}

	all, err := f.svc.ListTasks(ctx, "user-1", "tenant-1", "", "", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byProject, err := f.svc.ListTasks(ctx, "user-1", "tenant-1", p1, "", nil)
	require.NoError(t, err)
	assert.Len(t, byProject, 2)

	done, err := f.svc.ListTasks(ctx, "user-1", "tenant-1", "", "done", nil)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "b", done[0].Title)
}

func TestUpdateTask(t *testing.T) {
	ctx := context.Background()

	t.Run("moves between owned projects", func(t *testing.T) {
		f := newFixture(t)
		p1 := f.seedProject(t, "tenant-1", "Harbor Tower")
		p2 := f.seedProject(t, "tenant-1", "Dock Annex")

		created, err := f.svc.CreateTask(ctx, "user-1", "tenant-1", CreateTaskInput{ProjectID: p1, Title: "Move me"})
		require.NoError(t, err)

		updated, err := f.svc.UpdateTask(ctx, "user-1", "tenant-1", created.ID, UpdateTaskInput{ProjectID: &p2})
		require.NoError(t, err)
		assert.Equal(t, p2, updated.ProjectID)
	})

	t.Run("cannot move to a foreign project", func(t *testing.T) {
		f := newFixture(t)
		p1 := f.seedProject(t, "tenant-1", "Harbor Tower")
		foreign := f.seedProject(t, "tenant-2", "Other Site")

		created, err := f.svc.CreateTask(ctx, "user-1", "tenant-1", CreateTaskInput{ProjectID: p1, Title: "Stay put"})
		require.NoError(t, err)

		_, err = f.svc.UpdateTask(ctx, "user-1", "tenant-1", created.ID, UpdateTaskInput{ProjectID: &foreign})
		assert.ErrorIs(t, err, services.ErrProjectNotFound)
	})

	t.Run("reassignment re-checks membership", func(t *testing.T) {
		f := newFixture(t)
		p1 := f.seedProject(t, "tenant-1", "Harbor Tower")

		created, err := f.svc.CreateTask(ctx, "user-1", "tenant-1", CreateTaskInput{ProjectID: p1, Title: "Assign me"})
		require.NoError(t, err)

		bad := "suspended-1"
		_, err = f.svc.UpdateTask(ctx, "user-1", "tenant-1", created.ID, UpdateTaskInput{AssigneeID: &bad})
		assert.ErrorIs(t, err, services.ErrNotTenantMember)

		// Clearing the assignee needs no membership check.
		empty := ""
		updated, err := f.svc.UpdateTask(ctx, "user-1", "tenant-1", created.ID, UpdateTaskInput{AssigneeID: &empty})
		require.NoError(t, err)
		assert.Empty(t, updated.AssigneeID)
	})
}

func TestDeleteTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p1 := f.seedProject(t, "tenant-1", "Harbor Tower")

	created, err := f.svc.CreateTask(ctx, "user-1", "tenant-1", CreateTaskInput{ProjectID: p1, Title: "Remove me"})
	require.NoError(t, err)

	// Another tenant cannot delete it, and learns nothing from trying.
	err = f.svc.DeleteTask(ctx, "user-9", "tenant-2", created.ID)
	assert.ErrorIs(t, err, services.ErrRecordNotFound)

	require.NoError(t, f.svc.DeleteTask(ctx, "user-1", "tenant-1", created.ID))

	_, err = f.svc.GetTask(ctx, "user-1", "tenant-1", created.ID)
	assert.ErrorIs(t, err, services.ErrRecordNotFound)
}
