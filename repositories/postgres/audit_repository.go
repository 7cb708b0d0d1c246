package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"go.uber.org/zap"
)

// AuditRepository implements the repositories.AuditRepository interface.
// The table is append-only: entries are never updated, and DeleteOlderThan
// is the only erasure path.
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, company_id, actor_id, action, resource_type, resource_id, details, ip_address, request_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var details interface{}
	if len(log.Details) > 0 {
		details = []byte(log.Details)
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.CompanyID,
		log.ActorID,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		details,
		log.IPAddress,
		log.RequestID,
		log.Timestamp,
	)

	if err != nil {
		return services.WrapInternal("failed to insert audit log", err)
	}

	return nil
}

// GetByID retrieves an audit log by ID
func (r *AuditRepository) GetByID(ctx context.Context, id string) (*models.AuditLog, error) {
	query := `
		SELECT id, company_id, actor_id, action, resource_type, resource_id, details, ip_address, request_id, timestamp
		FROM audit_logs
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	log := &models.AuditLog{}
	var details []byte

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&log.ID,
		&log.CompanyID,
		&log.ActorID,
		&log.Action,
		&log.ResourceType,
		&log.ResourceID,
		&details,
		&log.IPAddress,
		&log.RequestID,
		&log.Timestamp,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, services.ErrAuditLogNotFound
		}
		return nil, services.WrapInternal("failed to get audit log", err)
	}

	log.Details = details
	return log, nil
}

// List retrieves audit logs matching the filter, newest first
func (r *AuditRepository) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error) {
	where, args := buildAuditPredicate(filter)

	query := fmt.Sprintf(`
		SELECT id, company_id, actor_id, action, resource_type, resource_id, details, ip_address, request_id, timestamp
		FROM audit_logs
		%s
		ORDER BY timestamp DESC
	`, where)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, services.WrapInternal("failed to list audit logs", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		log := &models.AuditLog{}
		var details []byte
		err := rows.Scan(
			&log.ID,
			&log.CompanyID,
			&log.ActorID,
			&log.Action,
			&log.ResourceType,
			&log.ResourceID,
			&details,
			&log.IPAddress,
			&log.RequestID,
			&log.Timestamp,
		)
		if err != nil {
			return nil, services.WrapInternal("failed to scan audit log", err)
		}
		log.Details = details
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, services.WrapInternal("error iterating audit log rows", err)
	}

	return logs, nil
}

// Count returns the number of entries matching the filter
func (r *AuditRepository) Count(ctx context.Context, filter repositories.AuditFilter) (int64, error) {
	where, args := buildAuditPredicate(filter)

	query := fmt.Sprintf("SELECT COUNT(*) FROM audit_logs %s", where)

	executor := GetExecutor(ctx, r.db)
	var count int64
	if err := executor.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, services.WrapInternal("failed to count audit logs", err)
	}
	return count, nil
}

// DeleteOlderThan bulk-deletes one tenant's entries older than cutoff.
// Retention never crosses the tenant boundary, so the statement carries the
// tenant predicate like every other scoped write.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, companyID string, cutoff time.Time) (int64, error) {
	if companyID == "" {
		return 0, services.ErrMissingTenantID
	}

	query := `DELETE FROM audit_logs WHERE company_id = $1 AND timestamp < $2`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, companyID, cutoff)
	if err != nil {
		return 0, services.WrapInternal("failed to delete old audit logs", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, services.WrapInternal("failed to get rows affected", err)
	}

	r.logger.Info("old audit logs deleted",
		zap.String("company_id", companyID),
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff))
	return deleted, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *AuditRepository) WithTx(tx repositories.Transaction) repositories.AuditRepository {
	return &AuditRepository{
		db:     r.db,
		logger: r.logger,
	}
}

// buildAuditPredicate turns an AuditFilter into a WHERE clause. Action
// matches as a case-insensitive substring; the rest are exact.
func buildAuditPredicate(filter repositories.AuditFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.CompanyID != "" {
		add("company_id = $%d", filter.CompanyID)
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.Action != "" {
		add("action ILIKE '%%' || $%d || '%%'", filter.Action)
	}
	if filter.ResourceType != "" {
		add("resource_type = $%d", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		add("resource_id = $%d", filter.ResourceID)
	}
	if filter.Since != nil {
		add("timestamp >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		add("timestamp <= $%d", *filter.Until)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
