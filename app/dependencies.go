package app

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/auth"
	"github.com/fieldbeam/fieldbeam/backend/config"
	"github.com/fieldbeam/fieldbeam/backend/middleware"
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/repositories/postgres"
	"github.com/fieldbeam/fieldbeam/backend/services/access"
	"github.com/fieldbeam/fieldbeam/backend/services/audit"
	"github.com/fieldbeam/fieldbeam/backend/services/membership"
	"github.com/fieldbeam/fieldbeam/backend/services/project"
	"github.com/fieldbeam/fieldbeam/backend/services/scoped"
	"github.com/fieldbeam/fieldbeam/backend/services/task"
	"github.com/fieldbeam/fieldbeam/backend/storage"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection: the record
// store set, the validators and the services are all built once here and
// handed down. There is no global registry anywhere.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Memberships repositories.MembershipRepository
	AuditLogs   repositories.AuditRepository
	TxManager   repositories.TransactionManager

	// Record stores, one per guarded table
	Stores repositories.StoreSet

	// File storage
	FileStore  storage.FileStore
	LocalStore *storage.LocalStore // nil when the s3 driver is active
	URLSigner  *storage.URLSigner  // nil when unsigned local URLs are fine

	// Services
	AuditService      *audit.Service
	AccessValidator   *access.Validator
	MembershipCache   *access.MembershipCache
	ScopedBase        *scoped.Service
	ProjectService    *project.Service
	TaskService       *task.Service
	MembershipService *membership.Service

	// Auth
	TokenService   *auth.TokenService
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	// Test the connection
	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := factory.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Initialize audit schema when using separate audit DB
	if err := factory.InitAuditSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	repos := factory.NewRepositories()
	d.Memberships = repos.Memberships
	d.AuditLogs = repos.AuditLogs
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initServices wires the audit recorder, the record stores, the access
// validator and the domain services, in dependency order
func (d *Dependencies) initServices(cfg *config.Config) error {
	d.AuditService = audit.NewService(d.AuditLogs, d.Logger, audit.Config{
		BufferSize:    cfg.Audit.QueueSize,
		WorkerCount:   cfg.Audit.WorkerCount,
		ExportMaxRows: cfg.Audit.ExportMaxRows,
	})
	if err := d.AuditService.Start(); err != nil {
		return err
	}

	// Stores audit through the recorder; the recorder never fails a write.
	d.Stores = d.RepoFactory.NewRecordStores(d.AuditService)

	d.MembershipCache = access.NewMembershipCache(cfg.Redis, d.Logger)
	d.AccessValidator = access.NewValidator(d.Memberships, d.Stores, d.MembershipCache, d.Logger)

	d.ScopedBase = scoped.New(d.AccessValidator, d.AuditService, d.Stores, d.Logger)
	d.ProjectService = project.NewService(d.ScopedBase)
	d.TaskService = task.NewService(d.ScopedBase)
	d.MembershipService = membership.NewService(d.Memberships, d.TxManager, d.AccessValidator, d.MembershipCache, d.AuditService, d.Logger)

	d.Logger.Info("services initialized", zap.Int("record_stores", len(d.Stores)))
	return nil
}

// initStorage initializes the configured file storage backend
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Driver {
	case "s3":
		store, err := storage.NewS3Store(ctx, cfg.Storage.S3, d.AuditService, d.Logger)
		if err != nil {
			return err
		}
		d.FileStore = store
		d.Logger.Info("s3 file storage initialized",
			zap.String("bucket", cfg.Storage.S3.Bucket),
			zap.String("region", cfg.Storage.S3.Region))

	default:
		if cfg.Storage.SigningSecret != "" {
			signer, err := storage.NewURLSigner(cfg.Storage.SigningSecret, cfg.Storage.BaseURL)
			if err != nil {
				return err
			}
			d.URLSigner = signer
		}
		store, err := storage.NewLocalStore(cfg.Storage.Root, d.URLSigner, d.AuditService, d.Logger)
		if err != nil {
			return err
		}
		d.LocalStore = store
		d.FileStore = store
		d.Logger.Info("local file storage initialized",
			zap.String("root", store.Root()),
			zap.Bool("presign_enabled", d.URLSigner != nil))
	}
	return nil
}

// initAuth initializes the session token service and auth middleware
func (d *Dependencies) initAuth(cfg *config.Config) error {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("JWT secret not configured, protected routes will reject all requests")
		d.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, d.Logger)
		return nil
	}

	tokens, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		return err
	}
	d.TokenService = tokens
	d.AuthMiddleware = middleware.NewAuthMiddleware(tokens, d.Logger)
	d.Logger.Info("auth initialized")
	return nil
}

// rejectAllValidator rejects all tokens (used when no JWT secret is configured)
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, fmt.Errorf("authentication not configured")
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain pending audit events before the database goes away.
	if d.AuditService != nil {
		if err := d.AuditService.Stop(10 * time.Second); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.MembershipCache != nil {
		if err := d.MembershipCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close membership cache: %w", err))
		}
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
