package repositories

import (
	"context"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/models"
)

// Record is a generic row: column name to scalar or JSON-decoded value.
// Every record handled by a RecordStore belongs to exactly one tenant via
// the store's tenant column.
type Record = map[string]interface{}

// QueryOptions controls ordering and pagination for RecordStore queries.
// Offset is only applied when Limit is set.
type QueryOptions struct {
	OrderBy    string
	Descending bool
	Limit      int
	Offset     int
}

// RecordStore is a tenant-scoped CRUD accessor over one logical table.
// Every statement it issues carries the tenant predicate; no caller ever
// sees unscoped rows through it.
type RecordStore interface {
	// Table returns the guarded table name
	Table() string

	// TenantColumn returns the column used to scope rows to a tenant
	TenantColumn() string

	// Query returns all records matching the tenant predicate and the
	// equality filters. An empty result is not an error.
	Query(ctx context.Context, tenantID string, filters Record, opts *QueryOptions) ([]Record, error)

	// GetByID returns the record with the given id under the tenant. A row
	// that exists under a different tenant is reported as not found.
	GetByID(ctx context.Context, tenantID, id string) (Record, error)

	// Create stores a record with the tenant column forced to tenantID and
	// an id assigned when absent. Records an audit entry when actorID is
	// non-empty. Returns the stored record.
	Create(ctx context.Context, tenantID string, data Record, actorID string) (Record, error)

	// Update applies updates to an owned record. The tenant column can never
	// be changed through updates. Returns the record after the write.
	Update(ctx context.Context, tenantID, id string, updates Record, actorID string) (Record, error)

	// Delete removes an owned record, auditing a snapshot of it
	Delete(ctx context.Context, tenantID, id string, actorID string) error

	// Count returns the number of records matching the Query predicate
	Count(ctx context.Context, tenantID string, filters Record) (int64, error)

	// ValidateOwnership reports whether a record with the id exists under
	// the tenant
	ValidateOwnership(ctx context.Context, tenantID, id string) (bool, error)

	// TenantOf returns the tenant column value of the row with the id,
	// looked up without a tenant predicate. Trusted internal callers use it
	// to tell a missing row from a row owned by another tenant; not found
	// means the row does not exist at all.
	TenantOf(ctx context.Context, id string) (string, error)

	// ValidateLineage reports whether the row exists under the tenant,
	// references parentID through parentColumn, and that parent row belongs
	// to the same tenant. The whole chain is evaluated as one predicate.
	ValidateLineage(ctx context.Context, tenantID, id, parentColumn, parentID string) (bool, error)
}

// StoreSet maps table name to its configured RecordStore. Built once at
// startup and injected into services; there is no mutable global registry.
type StoreSet map[string]RecordStore

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// MembershipRepository handles membership data operations
type MembershipRepository interface {
	// Insert creates a new membership
	Insert(ctx context.Context, m *models.Membership) error

	// GetByID retrieves a membership by ID
	GetByID(ctx context.Context, id string) (*models.Membership, error)

	// GetByUserAndCompany retrieves the membership joining a user to a tenant
	GetByUserAndCompany(ctx context.Context, userID, companyID string) (*models.Membership, error)

	// ListByCompany retrieves all memberships of a tenant with pagination
	ListByCompany(ctx context.Context, companyID string, limit, offset int) ([]*models.Membership, error)

	// UpdateStatus transitions a membership's status
	UpdateStatus(ctx context.Context, id string, status models.MembershipStatus) error

	// UpdateRole changes a membership's role
	UpdateRole(ctx context.Context, id string, role models.MembershipRole) error

	// Delete removes a membership. Used only for explicit removal; status
	// transitions cover every other lifecycle change.
	Delete(ctx context.Context, id string) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) MembershipRepository
}

// AuditFilter narrows audit log queries. Zero values mean "no constraint".
type AuditFilter struct {
	CompanyID    string
	ActorID      string
	Action       string // substring match
	ResourceType string
	ResourceID   string
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}

// AuditRepository handles audit log data operations. Entries are append-only;
// DeleteOlderThan is the only erasure path.
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByID retrieves an audit log by ID
	GetByID(ctx context.Context, id string) (*models.AuditLog, error)

	// List retrieves audit logs matching the filter, newest first
	List(ctx context.Context, filter AuditFilter) ([]*models.AuditLog, error)

	// Count returns the number of entries matching the filter
	Count(ctx context.Context, filter AuditFilter) (int64, error)

	// DeleteOlderThan bulk-deletes one tenant's entries older than cutoff
	// and returns the number deleted. Retention is always applied per
	// tenant; there is no cross-tenant erasure path.
	DeleteOlderThan(ctx context.Context, companyID string, cutoff time.Time) (int64, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) AuditRepository
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Memberships MembershipRepository
	AuditLogs   AuditRepository
}
