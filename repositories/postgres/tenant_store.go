package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultTenantColumn is the tenant column name used when a TableSpec
	// does not override it. Legacy tables with different naming configure
	// their own.
	DefaultTenantColumn = "company_id"

	// DefaultIDColumn is the primary key column used when a TableSpec does
	// not override it
	DefaultIDColumn = "id"
)

// ParentSpec declares a foreign-key link eligible for lineage checks:
// which table the referencing column points at and how that table names
// its key and tenant columns.
type ParentSpec struct {
	Table        string
	IDColumn     string
	TenantColumn string
}

// TableSpec declares the shape of a guarded table. It is the allow-list for
// every identifier the store will ever interpolate into SQL: table name,
// tenant column, id column, the full column set, and the declared parent
// links. Values always travel through bound parameters; identifiers only
// ever come from a spec.
type TableSpec struct {
	Name         string
	TenantColumn string
	IDColumn     string
	Columns      []string
	JSONColumns  []string
	Parents      map[string]ParentSpec
}

// normalized returns the table spec with defaults applied
func (s TableSpec) normalized() TableSpec {
	if s.TenantColumn == "" {
		s.TenantColumn = DefaultTenantColumn
	}
	if s.IDColumn == "" {
		s.IDColumn = DefaultIDColumn
	}
	if len(s.Parents) > 0 {
		parents := make(map[string]ParentSpec, len(s.Parents))
		for col, p := range s.Parents {
			if p.IDColumn == "" {
				p.IDColumn = DefaultIDColumn
			}
			if p.TenantColumn == "" {
				p.TenantColumn = DefaultTenantColumn
			}
			parents[col] = p
		}
		s.Parents = parents
	}
	return s
}

// hasColumn reports whether name is in the allow-list
func (s TableSpec) hasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// isJSONColumn reports whether name is declared as a JSON column
func (s TableSpec) isJSONColumn(name string) bool {
	for _, c := range s.JSONColumns {
		if c == name {
			return true
		}
	}
	return false
}

// AuditSink is the surface the store needs for its audit trail. The sink is
// best-effort: it never returns an error, so a failing audit backend cannot
// fail a store operation.
type AuditSink interface {
	Record(ctx context.Context, log *models.AuditLog)
}

// TenantStore implements repositories.RecordStore over one Postgres table.
// Every statement carries the tenant predicate; rows belonging to other
// tenants are invisible through it. Lookups that miss because the row lives
// under another tenant report plain not-found, deliberately identical to a
// genuinely absent row.
type TenantStore struct {
	db     *DB
	spec   TableSpec
	audit  AuditSink
	logger *zap.Logger
}

// NewTenantStore creates a store for one guarded table. audit may be nil
// when the caller handles auditing itself.
func NewTenantStore(db *DB, spec TableSpec, audit AuditSink, logger *zap.Logger) *TenantStore {
	return &TenantStore{
		db:     db,
		spec:   spec.normalized(),
		audit:  audit,
		logger: logger,
	}
}

// Table returns the guarded table name
func (s *TenantStore) Table() string {
	return s.spec.Name
}

// TenantColumn returns the column used to scope rows to a tenant
func (s *TenantStore) TenantColumn() string {
	return s.spec.TenantColumn
}

// Query returns all records under the tenant matching the equality filters
func (s *TenantStore) Query(ctx context.Context, tenantID string, filters repositories.Record, opts *repositories.QueryOptions) ([]repositories.Record, error) {
	if tenantID == "" {
		return nil, services.ErrMissingTenantID
	}

	where, args, err := s.buildPredicate(tenantID, filters)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(s.spec.Columns, ", "), s.spec.Name, where)

	if opts != nil {
		if opts.OrderBy != "" {
			if !s.spec.hasColumn(opts.OrderBy) {
				return nil, services.NewDomainError(services.ErrorTypeValidation,
					fmt.Sprintf("unknown order column %q for table %s", opts.OrderBy, s.spec.Name), nil)
			}
			direction := "ASC"
			if opts.Descending {
				direction = "DESC"
			}
			query += fmt.Sprintf(" ORDER BY %s %s", opts.OrderBy, direction)
		}
		if opts.Limit > 0 {
			query += fmt.Sprintf(" LIMIT %d", opts.Limit)
			// Offset without a limit is meaningless for paging; ignore it.
			if opts.Offset > 0 {
				query += fmt.Sprintf(" OFFSET %d", opts.Offset)
			}
		}
	}

	executor := GetExecutor(ctx, s.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, services.WrapInternal(fmt.Sprintf("failed to query %s", s.spec.Name), err)
	}
	defer rows.Close()

	var records []repositories.Record
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, services.WrapInternal(fmt.Sprintf("failed to scan %s row", s.spec.Name), err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, services.WrapInternal(fmt.Sprintf("error iterating %s rows", s.spec.Name), err)
	}

	return records, nil
}

// GetByID returns the record with the given id under the tenant. A record
// belonging to a different tenant is not found, not forbidden.
func (s *TenantStore) GetByID(ctx context.Context, tenantID, id string) (repositories.Record, error) {
	if tenantID == "" {
		return nil, services.ErrMissingTenantID
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s = $2",
		strings.Join(s.spec.Columns, ", "), s.spec.Name, s.spec.TenantColumn, s.spec.IDColumn)

	executor := GetExecutor(ctx, s.db)
	rows, err := executor.QueryContext(ctx, query, tenantID, id)
	if err != nil {
		return nil, services.WrapInternal(fmt.Sprintf("failed to get %s record", s.spec.Name), err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, services.WrapInternal(fmt.Sprintf("failed to get %s record", s.spec.Name), err)
		}
		return nil, services.ErrRecordNotFound
	}

	rec, err := s.scanRecord(rows)
	if err != nil {
		return nil, services.WrapInternal(fmt.Sprintf("failed to scan %s row", s.spec.Name), err)
	}
	return rec, nil
}

// Create stores a record under the tenant. The tenant column is forced to
// tenantID regardless of what the payload declares, and an id is assigned
// when absent.
func (s *TenantStore) Create(ctx context.Context, tenantID string, data repositories.Record, actorID string) (repositories.Record, error) {
	if tenantID == "" {
		return nil, services.ErrMissingTenantID
	}

	stored := make(repositories.Record, len(data)+4)
	for k, v := range data {
		if !s.spec.hasColumn(k) {
			return nil, services.NewDomainError(services.ErrorTypeValidation,
				fmt.Sprintf("unknown column %q for table %s", k, s.spec.Name), nil)
		}
		stored[k] = v
	}

	// Caller-supplied tenant values are never trusted.
	stored[s.spec.TenantColumn] = tenantID

	if _, ok := stored[s.spec.IDColumn]; !ok {
		stored[s.spec.IDColumn] = uuid.NewString()
	}

	now := time.Now()
	if s.spec.hasColumn("created_at") {
		if _, ok := stored["created_at"]; !ok {
			stored["created_at"] = now
		}
	}
	if s.spec.hasColumn("updated_at") {
		if _, ok := stored["updated_at"]; !ok {
			stored["updated_at"] = now
		}
	}

	// Column order follows the table spec so generated SQL is deterministic.
	var columns []string
	var placeholders []string
	var args []interface{}
	for _, col := range s.spec.Columns {
		v, ok := stored[col]
		if !ok {
			continue
		}
		columns = append(columns, col)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
		encoded, err := s.encodeValue(col, v)
		if err != nil {
			return nil, err
		}
		args = append(args, encoded)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.spec.Name, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	executor := GetExecutor(ctx, s.db)
	if _, err := executor.ExecContext(ctx, query, args...); err != nil {
		return nil, services.WrapInternal(fmt.Sprintf("failed to insert into %s", s.spec.Name), err)
	}

	s.logger.Debug("record created",
		zap.String("table", s.spec.Name),
		zap.String("tenant_id", tenantID),
		zap.String("record_id", recordID(stored, s.spec.IDColumn)))

	s.recordAudit(ctx, tenantID, actorID, models.AuditActionCreate, recordID(stored, s.spec.IDColumn), stored)

	return stored, nil
}

// Update applies updates to an owned record. The tenant column and id are
// stripped from updates before the write, so neither can ever be changed.
// The UPDATE itself repeats the tenant predicate, keeping the ownership
// check atomic with the write.
func (s *TenantStore) Update(ctx context.Context, tenantID, id string, updates repositories.Record, actorID string) (repositories.Record, error) {
	current, err := s.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	applied := make(repositories.Record, len(updates))
	for k, v := range updates {
		if k == s.spec.TenantColumn || k == s.spec.IDColumn {
			continue
		}
		if !s.spec.hasColumn(k) {
			return nil, services.NewDomainError(services.ErrorTypeValidation,
				fmt.Sprintf("unknown column %q for table %s", k, s.spec.Name), nil)
		}
		applied[k] = v
	}
	if len(applied) == 0 {
		return current, nil
	}

	if s.spec.hasColumn("updated_at") {
		if _, ok := applied["updated_at"]; !ok {
			applied["updated_at"] = time.Now()
		}
	}

	keys := make([]string, 0, len(applied))
	for k := range applied {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var assignments []string
	var args []interface{}
	for _, k := range keys {
		assignments = append(assignments, fmt.Sprintf("%s = $%d", k, len(args)+1))
		encoded, err := s.encodeValue(k, applied[k])
		if err != nil {
			return nil, err
		}
		args = append(args, encoded)
	}
	args = append(args, tenantID, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d AND %s = $%d",
		s.spec.Name, strings.Join(assignments, ", "),
		s.spec.TenantColumn, len(args)-1, s.spec.IDColumn, len(args))

	executor := GetExecutor(ctx, s.db)
	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, services.WrapInternal(fmt.Sprintf("failed to update %s", s.spec.Name), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, services.WrapInternal("failed to get rows affected", err)
	}
	if affected == 0 {
		// Row disappeared between the read and the write.
		return nil, services.ErrRecordNotFound
	}

	for k, v := range applied {
		current[k] = v
	}

	s.recordAudit(ctx, tenantID, actorID, models.AuditActionUpdate, id, applied)

	return current, nil
}

// Delete removes an owned record and audits a snapshot of it
func (s *TenantStore) Delete(ctx context.Context, tenantID, id string, actorID string) error {
	snapshot, err := s.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1 AND %s = $2",
		s.spec.Name, s.spec.TenantColumn, s.spec.IDColumn)

	executor := GetExecutor(ctx, s.db)
	result, err := executor.ExecContext(ctx, query, tenantID, id)
	if err != nil {
		return services.WrapInternal(fmt.Sprintf("failed to delete from %s", s.spec.Name), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return services.WrapInternal("failed to get rows affected", err)
	}
	if affected == 0 {
		return services.ErrRecordNotFound
	}

	s.logger.Debug("record deleted",
		zap.String("table", s.spec.Name),
		zap.String("tenant_id", tenantID),
		zap.String("record_id", id))

	s.recordAudit(ctx, tenantID, actorID, models.AuditActionDelete, id, snapshot)

	return nil
}

// Count returns the number of records matching the Query predicate
func (s *TenantStore) Count(ctx context.Context, tenantID string, filters repositories.Record) (int64, error) {
	if tenantID == "" {
		return 0, services.ErrMissingTenantID
	}

	where, args, err := s.buildPredicate(tenantID, filters)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", s.spec.Name, where)

	executor := GetExecutor(ctx, s.db)
	var count int64
	if err := executor.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, services.WrapInternal(fmt.Sprintf("failed to count %s", s.spec.Name), err)
	}
	return count, nil
}

// ValidateOwnership reports whether a record with the id exists under the tenant
func (s *TenantStore) ValidateOwnership(ctx context.Context, tenantID, id string) (bool, error) {
	if tenantID == "" {
		return false, services.ErrMissingTenantID
	}

	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1 AND %s = $2)",
		s.spec.Name, s.spec.TenantColumn, s.spec.IDColumn)

	executor := GetExecutor(ctx, s.db)
	var exists bool
	if err := executor.QueryRowContext(ctx, query, tenantID, id).Scan(&exists); err != nil {
		return false, services.WrapInternal(fmt.Sprintf("failed to check ownership in %s", s.spec.Name), err)
	}
	return exists, nil
}

// TenantOf returns the tenant column value of the row with the id, looked
// up without a tenant predicate. This is the one deliberately unscoped read
// in the store; it exists so the access validator can tell a missing row
// from a foreign one, and it never returns row contents.
func (s *TenantStore) TenantOf(ctx context.Context, id string) (string, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		s.spec.TenantColumn, s.spec.Name, s.spec.IDColumn)

	executor := GetExecutor(ctx, s.db)
	var tenantID string
	if err := executor.QueryRowContext(ctx, query, id).Scan(&tenantID); err != nil {
		if err == sql.ErrNoRows {
			return "", services.ErrRecordNotFound
		}
		return "", services.WrapInternal(fmt.Sprintf("failed to resolve tenant of %s record", s.spec.Name), err)
	}
	return tenantID, nil
}

// ValidateLineage checks the whole ancestry chain in one statement: the row
// is under the tenant, it references the parent through parentColumn, and
// the parent row is under the same tenant. parentColumn must be a declared
// parent link in the table spec.
func (s *TenantStore) ValidateLineage(ctx context.Context, tenantID, id, parentColumn, parentID string) (bool, error) {
	if tenantID == "" {
		return false, services.ErrMissingTenantID
	}
	parent, ok := s.spec.Parents[parentColumn]
	if !ok {
		return false, services.NewDomainError(services.ErrorTypeValidation,
			fmt.Sprintf("column %q is not a declared parent link for table %s", parentColumn, s.spec.Name), nil)
	}

	query := fmt.Sprintf(
		"SELECT EXISTS(SELECT 1 FROM %s c JOIN %s p ON p.%s = c.%s WHERE c.%s = $1 AND c.%s = $2 AND c.%s = $3 AND p.%s = $2)",
		s.spec.Name, parent.Table, parent.IDColumn, parentColumn,
		s.spec.IDColumn, s.spec.TenantColumn, parentColumn, parent.TenantColumn)

	executor := GetExecutor(ctx, s.db)
	var linked bool
	if err := executor.QueryRowContext(ctx, query, id, tenantID, parentID).Scan(&linked); err != nil {
		return false, services.WrapInternal(fmt.Sprintf("failed to check %s lineage", s.spec.Name), err)
	}
	return linked, nil
}

// buildPredicate builds the WHERE clause: tenant predicate plus ANDed
// equality filters. Filter keys are sorted so generated SQL is stable.
func (s *TenantStore) buildPredicate(tenantID string, filters repositories.Record) (string, []interface{}, error) {
	clauses := []string{fmt.Sprintf("%s = $1", s.spec.TenantColumn)}
	args := []interface{}{tenantID}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !s.spec.hasColumn(k) {
			return "", nil, services.NewDomainError(services.ErrorTypeValidation,
				fmt.Sprintf("unknown filter column %q for table %s", k, s.spec.Name), nil)
		}
		clauses = append(clauses, fmt.Sprintf("%s = $%d", k, len(args)+1))
		encoded, err := s.encodeValue(k, filters[k])
		if err != nil {
			return "", nil, err
		}
		args = append(args, encoded)
	}

	return strings.Join(clauses, " AND "), args, nil
}

// encodeValue prepares a record value for binding. Maps and slices are
// stored as JSON.
func (s *TenantStore) encodeValue(column string, v interface{}) (interface{}, error) {
	switch v.(type) {
	case nil, string, []byte, bool, int, int32, int64, float32, float64, time.Time, *time.Time:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			fmt.Sprintf("value for column %q is not serializable", column), err)
	}
	return data, nil
}

// scanRecord scans the current row into a Record, decoding JSON columns
func (s *TenantStore) scanRecord(rows *sql.Rows) (repositories.Record, error) {
	values := make([]interface{}, len(s.spec.Columns))
	dest := make([]interface{}, len(s.spec.Columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	rec := make(repositories.Record, len(s.spec.Columns))
	for i, col := range s.spec.Columns {
		switch v := values[i].(type) {
		case []byte:
			if s.spec.isJSONColumn(col) {
				var decoded interface{}
				if err := json.Unmarshal(v, &decoded); err == nil {
					rec[col] = decoded
					continue
				}
			}
			rec[col] = string(v)
		default:
			rec[col] = v
		}
	}
	return rec, nil
}

// recordAudit emits a best-effort audit entry for a mutation. Skipped when
// no actor is known or no sink is wired; the sink itself swallows failures.
func (s *TenantStore) recordAudit(ctx context.Context, tenantID, actorID string, action models.AuditAction, resourceID string, snapshot repositories.Record) {
	if s.audit == nil || actorID == "" {
		return
	}
	entry := models.NewAuditLog(tenantID, action, s.spec.Name).
		WithActor(actorID).
		WithResource(resourceID).
		WithDetails(snapshot)
	s.audit.Record(ctx, entry)
}

// recordID extracts the id column as a string
func recordID(rec repositories.Record, idColumn string) string {
	if v, ok := rec[idColumn].(string); ok {
		return v
	}
	return ""
}
