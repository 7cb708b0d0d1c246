package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/config"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema. Every domain table carries a
// company_id tenant column; the record store refuses to touch a table
// without one.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Memberships table (user <-> tenant join)
		CREATE TABLE IF NOT EXISTS memberships (
			id UUID PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			company_id VARCHAR(255) NOT NULL,
			role VARCHAR(50) NOT NULL,
			permissions JSONB NOT NULL DEFAULT '[]',
			status VARCHAR(50) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, company_id)
		);

		-- Projects table
		CREATE TABLE IF NOT EXISTS projects (
			id UUID PRIMARY KEY,
			company_id VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			address TEXT,
			status VARCHAR(50) NOT NULL DEFAULT 'planning',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Tasks table
		CREATE TABLE IF NOT EXISTS tasks (
			id UUID PRIMARY KEY,
			company_id VARCHAR(255) NOT NULL,
			project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			title VARCHAR(255) NOT NULL,
			description TEXT,
			status VARCHAR(50) NOT NULL DEFAULT 'open',
			assignee_id VARCHAR(255),
			due_date TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- RFIs table
		CREATE TABLE IF NOT EXISTS rfis (
			id UUID PRIMARY KEY,
			company_id VARCHAR(255) NOT NULL,
			project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			subject VARCHAR(255) NOT NULL,
			question TEXT,
			answer TEXT,
			status VARCHAR(50) NOT NULL DEFAULT 'open',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Daily logs table
		CREATE TABLE IF NOT EXISTS daily_logs (
			id UUID PRIMARY KEY,
			company_id VARCHAR(255) NOT NULL,
			project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			log_date TIMESTAMP NOT NULL,
			weather VARCHAR(100),
			notes TEXT,
			crew JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Safety incidents table
		CREATE TABLE IF NOT EXISTS safety_incidents (
			id UUID PRIMARY KEY,
			company_id VARCHAR(255) NOT NULL,
			project_id UUID REFERENCES projects(id) ON DELETE SET NULL,
			severity VARCHAR(50) NOT NULL,
			description TEXT,
			occurred_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Invoices table
		CREATE TABLE IF NOT EXISTS invoices (
			id UUID PRIMARY KEY,
			company_id VARCHAR(255) NOT NULL,
			project_id UUID REFERENCES projects(id) ON DELETE SET NULL,
			number VARCHAR(100),
			amount_cents BIGINT,
			status VARCHAR(50) NOT NULL DEFAULT 'draft',
			line_items JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Comments table
		CREATE TABLE IF NOT EXISTS comments (
			id UUID PRIMARY KEY,
			company_id VARCHAR(255) NOT NULL,
			resource_type VARCHAR(100),
			resource_id UUID,
			author_id VARCHAR(255),
			body TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Audit logs table
		CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY,
			company_id VARCHAR(255) NOT NULL,
			actor_id VARCHAR(255),
			action VARCHAR(100) NOT NULL,
			resource_type VARCHAR(100) NOT NULL,
			resource_id VARCHAR(255),
			details JSONB,
			ip_address VARCHAR(45),
			request_id VARCHAR(255),
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS idx_memberships_company_id ON memberships(company_id);
		CREATE INDEX IF NOT EXISTS idx_memberships_user_id ON memberships(user_id);
		CREATE INDEX IF NOT EXISTS idx_projects_company_id ON projects(company_id);
		CREATE INDEX IF NOT EXISTS idx_tasks_company_id ON tasks(company_id);
		CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id);
		CREATE INDEX IF NOT EXISTS idx_rfis_company_id ON rfis(company_id);
		CREATE INDEX IF NOT EXISTS idx_daily_logs_company_id ON daily_logs(company_id);
		CREATE INDEX IF NOT EXISTS idx_safety_incidents_company_id ON safety_incidents(company_id);
		CREATE INDEX IF NOT EXISTS idx_invoices_company_id ON invoices(company_id);
		CREATE INDEX IF NOT EXISTS idx_comments_company_id ON comments(company_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_company_id ON audit_logs(company_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_actor_id ON audit_logs(actor_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}

// InitAuditSchema initializes the audit database schema (audit_logs only).
// Use for the separate audit database when DATABASE_URL_AUDIT is set.
func (db *DB) InitAuditSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY,
			company_id VARCHAR(255) NOT NULL,
			actor_id VARCHAR(255),
			action VARCHAR(100) NOT NULL,
			resource_type VARCHAR(100) NOT NULL,
			resource_id VARCHAR(255),
			details JSONB,
			ip_address VARCHAR(45),
			request_id VARCHAR(255),
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_company_id ON audit_logs(company_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_actor_id ON audit_logs(actor_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	db.logger.Info("audit schema initialized successfully")
	return nil
}
