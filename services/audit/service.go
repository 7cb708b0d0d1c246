package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"go.uber.org/zap"
)

// Service records and queries the audit trail. Recording is best-effort:
// a failing audit backend degrades to warnings, it never fails the
// operation being audited. Queries and exports go straight to the
// repository.
type Service struct {
	auditRepo     repositories.AuditRepository
	logger        *zap.Logger
	eventChan     chan *models.AuditLog
	workerCount   int
	bufferSize    int
	exportMaxRows int
	wg            sync.WaitGroup
	started       bool
	mu            sync.Mutex
}

// Config holds configuration for the audit service
type Config struct {
	BufferSize    int // Size of the event buffer channel
	WorkerCount   int // Number of concurrent workers
	ExportMaxRows int // Hard cap on CSV export size
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:    1000,
		WorkerCount:   2,
		ExportMaxRows: 10000,
	}
}

// NewService creates a new audit service
func NewService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *Service {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	if config.ExportMaxRows <= 0 {
		config.ExportMaxRows = DefaultConfig().ExportMaxRows
	}

	return &Service{
		auditRepo:     auditRepo,
		logger:        logger,
		eventChan:     make(chan *models.AuditLog, config.BufferSize),
		workerCount:   config.WorkerCount,
		bufferSize:    config.BufferSize,
		exportMaxRows: config.ExportMaxRows,
	}
}

// Start starts the background workers. Until started, Record writes
// synchronously.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop gracefully stops the audit service, draining pending events
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	close(s.eventChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record stores an audit entry, swallowing every failure. When workers are
// running the entry is queued without blocking; a full queue drops the
// entry with a warning. Before Start (and after Stop) the write happens
// synchronously on the caller's goroutine.
func (s *Service) Record(ctx context.Context, log *models.AuditLog) {
	if log == nil {
		return
	}

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		if err := s.auditRepo.Insert(ctx, log); err != nil {
			s.logger.Warn("failed to record audit entry",
				zap.Error(err),
				zap.String("action", string(log.Action)),
				zap.String("company_id", log.CompanyID))
		}
		return
	}

	select {
	case s.eventChan <- log:
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(log.Action)),
			zap.String("company_id", log.CompanyID))
	}
}

// worker processes queued entries
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for log := range s.eventChan {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.auditRepo.Insert(ctx, log); err != nil {
			s.logger.Error("failed to insert audit log",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(log.Action)),
				zap.String("company_id", log.CompanyID))
		}
		cancel()
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// GetAuditLogs retrieves audit entries matching the filter, newest first.
// A tenant is always required; there is no cross-tenant listing.
func (s *Service) GetAuditLogs(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error) {
	if filter.CompanyID == "" {
		return nil, services.ErrMissingTenantID
	}
	return s.auditRepo.List(ctx, filter)
}

// GetAuditLogCount returns the number of entries matching the filter
func (s *Service) GetAuditLogCount(ctx context.Context, filter repositories.AuditFilter) (int64, error) {
	if filter.CompanyID == "" {
		return 0, services.ErrMissingTenantID
	}
	return s.auditRepo.Count(ctx, filter)
}

// ExportCSV writes matching entries to w as CSV, newest first, capped at
// the configured export limit. Returns the number of data rows written.
func (s *Service) ExportCSV(ctx context.Context, filter repositories.AuditFilter, w io.Writer) (int, error) {
	if filter.CompanyID == "" {
		return 0, services.ErrMissingTenantID
	}

	if filter.Limit <= 0 || filter.Limit > s.exportMaxRows {
		filter.Limit = s.exportMaxRows
	}

	logs, err := s.auditRepo.List(ctx, filter)
	if err != nil {
		return 0, err
	}

	writer := csv.NewWriter(w)
	header := []string{"id", "company_id", "actor_id", "action", "resource_type", "resource_id", "details", "ip_address", "request_id", "timestamp"}
	if err := writer.Write(header); err != nil {
		return 0, services.WrapInternal("failed to write CSV header", err)
	}

	for _, log := range logs {
		actorID := ""
		if log.ActorID != nil {
			actorID = *log.ActorID
		}
		resourceID := ""
		if log.ResourceID != nil {
			resourceID = *log.ResourceID
		}
		row := []string{
			log.ID,
			log.CompanyID,
			actorID,
			string(log.Action),
			log.ResourceType,
			resourceID,
			string(log.Details),
			log.IPAddress,
			log.RequestID,
			log.Timestamp.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return 0, services.WrapInternal("failed to write CSV row", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, services.WrapInternal("failed to flush CSV", err)
	}

	s.logger.Info("audit export completed",
		zap.String("company_id", filter.CompanyID),
		zap.Int("rows", len(logs)))

	return len(logs), nil
}

// DeleteOldLogs removes one tenant's entries older than the retention
// window and returns the number deleted. The tenant is mandatory: a tenant
// admin applying retention can only ever erase their own trail.
func (s *Service) DeleteOldLogs(ctx context.Context, companyID string, retentionDays int) (int64, error) {
	if companyID == "" {
		return 0, services.ErrMissingTenantID
	}
	if retentionDays <= 0 {
		return 0, services.NewDomainError(services.ErrorTypeValidation,
			"retention days must be positive, got "+strconv.Itoa(retentionDays), nil)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := s.auditRepo.DeleteOlderThan(ctx, companyID, cutoff)
	if err != nil {
		return 0, err
	}

	s.logger.Info("audit retention applied",
		zap.String("company_id", companyID),
		zap.Int("retention_days", retentionDays),
		zap.Int64("deleted", deleted))

	return deleted, nil
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started,
	}
}
