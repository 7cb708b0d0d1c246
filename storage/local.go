package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"go.uber.org/zap"
)

// LocalStore implements FileStore on the local filesystem. Every resolved
// path is checked to stay under the configured root, so no key can escape
// it regardless of what the client supplied.
type LocalStore struct {
	root   string
	signer *URLSigner
	audit  AuditSink
	logger *zap.Logger
}

// NewLocalStore creates a local file store rooted at root. signer may be
// nil when presigned URLs are not needed; audit may be nil when the caller
// handles auditing itself.
func NewLocalStore(root string, signer *URLSigner, audit AuditSink, logger *zap.Logger) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStore{
		root:   abs,
		signer: signer,
		audit:  audit,
		logger: logger,
	}, nil
}

// Root returns the absolute storage root
func (s *LocalStore) Root() string {
	return s.root
}

// resolve maps a storage key to an absolute path and verifies containment
// under the root
func (s *LocalStore) resolve(key string) (string, error) {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := s.validatePath(path); err != nil {
		return "", err
	}
	return path, nil
}

// validatePath rejects any path that escapes the storage root after
// cleaning
func (s *LocalStore) validatePath(path string) error {
	cleaned := filepath.Clean(path)
	if cleaned != s.root && !strings.HasPrefix(cleaned, s.root+string(filepath.Separator)) {
		return services.ErrInvalidFilename
	}
	return nil
}

// Open opens a file by its storage key, for serving verified signed
// downloads. The key still passes the containment check; a key that fails
// it reads as a missing file.
func (s *LocalStore) Open(key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, maskPathError(err)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, services.ErrFileNotFound
		}
		return nil, services.WrapError(services.ErrorTypeInternal, "failed to open file", err)
	}
	return f, nil
}

// Upload stores content under the tenant's prefix
func (s *LocalStore) Upload(ctx context.Context, tenantID string, opts FileOptions, filename string, content io.Reader, actorID string) (*FileInfo, error) {
	key, err := objectKey(tenantID, opts, filename)
	if err != nil {
		return nil, err
	}
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, services.WrapError(services.ErrorTypeInternal, "failed to create file directory", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, services.WrapError(services.ErrorTypeInternal, "failed to create file", err)
	}
	size, err := io.Copy(f, content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, services.WrapError(services.ErrorTypeInternal, "failed to write file", err)
	}

	info := &FileInfo{
		Key:        key,
		Name:       filepath.Base(path),
		Size:       size,
		ModifiedAt: time.Now(),
	}

	s.logger.Debug("file uploaded",
		zap.String("tenant_id", tenantID),
		zap.String("key", key),
		zap.Int64("size", size))

	s.recordAudit(ctx, tenantID, actorID, models.AuditActionFileUpload, key, size)

	return info, nil
}

// Download opens a stored file for reading. A filename rejected by
// sanitization reads the same as a missing file.
func (s *LocalStore) Download(ctx context.Context, tenantID string, opts FileOptions, filename string) (io.ReadCloser, error) {
	key, err := objectKey(tenantID, opts, filename)
	if err != nil {
		return nil, maskPathError(err)
	}
	path, err := s.resolve(key)
	if err != nil {
		return nil, maskPathError(err)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, services.ErrFileNotFound
		}
		return nil, services.WrapError(services.ErrorTypeInternal, "failed to open file", err)
	}
	return f, nil
}

// Delete removes a stored file. Rejected filenames read as missing files
// here too.
func (s *LocalStore) Delete(ctx context.Context, tenantID string, opts FileOptions, filename string, actorID string) error {
	key, err := objectKey(tenantID, opts, filename)
	if err != nil {
		return maskPathError(err)
	}
	path, err := s.resolve(key)
	if err != nil {
		return maskPathError(err)
	}

	// Snapshot the size before removal so the audit entry describes what
	// was erased.
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return services.ErrFileNotFound
		}
		return services.WrapError(services.ErrorTypeInternal, "failed to stat file", err)
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return services.ErrFileNotFound
		}
		return services.WrapError(services.ErrorTypeInternal, "failed to delete file", err)
	}

	s.logger.Debug("file deleted",
		zap.String("tenant_id", tenantID),
		zap.String("key", key))

	s.recordAudit(ctx, tenantID, actorID, models.AuditActionFileDelete, key, fi.Size())

	return nil
}

// List returns the files directly under the tenant prefix
func (s *LocalStore) List(ctx context.Context, tenantID string, opts FileOptions) ([]FileInfo, error) {
	prefix, err := keyPrefix(tenantID, opts)
	if err != nil {
		return nil, err
	}
	dir, err := s.resolve(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileInfo{}, nil
		}
		return nil, services.WrapError(services.ErrorTypeInternal, "failed to list files", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Key:        prefix + entry.Name(),
			Name:       entry.Name(),
			Size:       fi.Size(),
			ModifiedAt: fi.ModTime(),
		})
	}
	return files, nil
}

// PresignURL returns a signed, time-limited URL for one stored file. The
// file must exist; missing files report not found just like Download.
func (s *LocalStore) PresignURL(ctx context.Context, tenantID string, opts FileOptions, filename string, expiry time.Duration) (string, error) {
	if s.signer == nil {
		return "", services.WrapError(services.ErrorTypeInternal, "presigned URLs are not configured", nil)
	}

	key, err := objectKey(tenantID, opts, filename)
	if err != nil {
		return "", maskPathError(err)
	}
	path, err := s.resolve(key)
	if err != nil {
		return "", maskPathError(err)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", services.ErrFileNotFound
		}
		return "", services.WrapError(services.ErrorTypeInternal, "failed to stat file", err)
	}

	return s.signer.SignedURL(key, expiry)
}

func (s *LocalStore) recordAudit(ctx context.Context, tenantID, actorID string, action models.AuditAction, key string, size int64) {
	if s.audit == nil || actorID == "" {
		return
	}
	entry := models.NewAuditLog(tenantID, action, "file").
		WithActor(actorID).
		WithResource(key).
		WithDetails(map[string]interface{}{"key": key, "size": size})
	s.audit.Record(ctx, entry)
}
