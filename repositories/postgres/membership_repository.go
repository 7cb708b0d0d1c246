package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// MembershipRepository implements the repositories.MembershipRepository interface
type MembershipRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *DB, logger *zap.Logger) repositories.MembershipRepository {
	return &MembershipRepository{
		db:     db,
		logger: logger,
	}
}

// Insert creates a new membership. A second membership for the same user
// and tenant violates the unique constraint and surfaces as a conflict.
func (r *MembershipRepository) Insert(ctx context.Context, m *models.Membership) error {
	permissions, err := json.Marshal(m.Permissions)
	if err != nil {
		return services.WrapInternal("failed to marshal permissions", err)
	}

	query := `
		INSERT INTO memberships (id, user_id, company_id, role, permissions, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		m.ID,
		m.UserID,
		m.CompanyID,
		m.Role,
		permissions,
		m.Status,
		m.CreatedAt,
		m.UpdatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return services.ErrAlreadyMember
		}
		return services.WrapInternal("failed to create membership", err)
	}

	r.logger.Debug("membership created",
		zap.String("id", m.ID),
		zap.String("user_id", m.UserID),
		zap.String("company_id", m.CompanyID))
	return nil
}

// GetByID retrieves a membership by ID
func (r *MembershipRepository) GetByID(ctx context.Context, id string) (*models.Membership, error) {
	query := `
		SELECT id, user_id, company_id, role, permissions, status, created_at, updated_at
		FROM memberships
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	return r.scanMembership(executor.QueryRowContext(ctx, query, id))
}

// GetByUserAndCompany retrieves the membership joining a user to a tenant
func (r *MembershipRepository) GetByUserAndCompany(ctx context.Context, userID, companyID string) (*models.Membership, error) {
	query := `
		SELECT id, user_id, company_id, role, permissions, status, created_at, updated_at
		FROM memberships
		WHERE user_id = $1 AND company_id = $2
	`

	executor := GetExecutor(ctx, r.db)
	return r.scanMembership(executor.QueryRowContext(ctx, query, userID, companyID))
}

// ListByCompany retrieves all memberships of a tenant with pagination
func (r *MembershipRepository) ListByCompany(ctx context.Context, companyID string, limit, offset int) ([]*models.Membership, error) {
	query := `
		SELECT id, user_id, company_id, role, permissions, status, created_at, updated_at
		FROM memberships
		WHERE company_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, companyID, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list memberships", err)
	}
	defer rows.Close()

	var memberships []*models.Membership
	for rows.Next() {
		m := &models.Membership{}
		var permissions []byte
		err := rows.Scan(
			&m.ID,
			&m.UserID,
			&m.CompanyID,
			&m.Role,
			&permissions,
			&m.Status,
			&m.CreatedAt,
			&m.UpdatedAt,
		)
		if err != nil {
			return nil, services.WrapInternal("failed to scan membership", err)
		}
		if err := json.Unmarshal(permissions, &m.Permissions); err != nil {
			return nil, services.WrapInternal("failed to unmarshal permissions", err)
		}
		memberships = append(memberships, m)
	}

	if err := rows.Err(); err != nil {
		return nil, services.WrapInternal("error iterating membership rows", err)
	}

	return memberships, nil
}

// UpdateStatus transitions a membership's status
func (r *MembershipRepository) UpdateStatus(ctx context.Context, id string, status models.MembershipStatus) error {
	query := `
		UPDATE memberships
		SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	return r.execOnMembership(ctx, query, id, status)
}

// UpdateRole changes a membership's role
func (r *MembershipRepository) UpdateRole(ctx context.Context, id string, role models.MembershipRole) error {
	query := `
		UPDATE memberships
		SET role = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	return r.execOnMembership(ctx, query, id, role)
}

// Delete removes a membership
func (r *MembershipRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM memberships WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return services.WrapInternal("failed to delete membership", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return services.WrapInternal("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return services.ErrMembershipNotFound
	}

	r.logger.Debug("membership deleted", zap.String("id", id))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *MembershipRepository) WithTx(tx repositories.Transaction) repositories.MembershipRepository {
	return &MembershipRepository{
		db:     r.db,
		logger: r.logger,
	}
}

func (r *MembershipRepository) execOnMembership(ctx context.Context, query, id string, arg interface{}) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, arg)
	if err != nil {
		return services.WrapInternal("failed to update membership", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return services.WrapInternal("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return services.ErrMembershipNotFound
	}

	return nil
}

func (r *MembershipRepository) scanMembership(row *sql.Row) (*models.Membership, error) {
	m := &models.Membership{}
	var permissions []byte
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.CompanyID,
		&m.Role,
		&permissions,
		&m.Status,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, services.ErrMembershipNotFound
		}
		return nil, services.WrapInternal("failed to get membership", err)
	}
	if err := json.Unmarshal(permissions, &m.Permissions); err != nil {
		return nil, services.WrapInternal("failed to unmarshal permissions", err)
	}
	return m, nil
}
