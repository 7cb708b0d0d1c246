package storage

import (
	"context"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/services"
)

// FileOptions scopes a file below the tenant prefix. ProjectID and Category
// are optional path segments; both pass through the same sanitization as
// filenames.
type FileOptions struct {
	ProjectID string
	Category  string
}

// FileInfo describes a stored file
type FileInfo struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// FileStore stores tenant files. Every key lives under the tenant's own
// prefix; a store never reads or writes outside it. Missing files and files
// under a foreign tenant are both reported as not found.
type FileStore interface {
	// Upload stores content under the tenant's prefix and returns its info.
	// Records an audit entry when actorID is non-empty.
	Upload(ctx context.Context, tenantID string, opts FileOptions, filename string, content io.Reader, actorID string) (*FileInfo, error)

	// Download opens a stored file for reading. The caller closes the reader.
	Download(ctx context.Context, tenantID string, opts FileOptions, filename string) (io.ReadCloser, error)

	// Delete removes a stored file. Records an audit entry when actorID is
	// non-empty.
	Delete(ctx context.Context, tenantID string, opts FileOptions, filename string, actorID string) error

	// List returns the files under the tenant prefix narrowed by opts. A
	// prefix with no files yet is an empty result, not an error.
	List(ctx context.Context, tenantID string, opts FileOptions) ([]FileInfo, error)

	// PresignURL returns a time-limited URL granting read access to one file
	PresignURL(ctx context.Context, tenantID string, opts FileOptions, filename string, expiry time.Duration) (string, error)
}

// AuditSink receives best-effort audit entries for file mutations
type AuditSink interface {
	Record(ctx context.Context, log *models.AuditLog)
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFilename reduces a client-supplied filename to a safe basename.
// Path separators and every character outside [A-Za-z0-9._-] are replaced
// with underscores. Names that are empty or reduce to only dots are
// rejected.
func SanitizeFilename(name string) (string, error) {
	// Strip any directory part the client smuggled in.
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = unsafeFilenameChars.ReplaceAllString(name, "_")

	if name == "" || strings.Trim(name, ".") == "" {
		return "", services.ErrInvalidFilename
	}
	return name, nil
}

// objectKey builds the slash-separated storage key for a file. All segments
// are sanitized; the tenant segment is mandatory.
func objectKey(tenantID string, opts FileOptions, filename string) (string, error) {
	if tenantID == "" {
		return "", services.ErrMissingTenantID
	}
	tenant, err := SanitizeFilename(tenantID)
	if err != nil {
		return "", err
	}

	segments := []string{"tenants", tenant}
	if opts.ProjectID != "" {
		project, err := SanitizeFilename(opts.ProjectID)
		if err != nil {
			return "", err
		}
		segments = append(segments, "projects", project)
	}
	if opts.Category != "" {
		category, err := SanitizeFilename(opts.Category)
		if err != nil {
			return "", err
		}
		segments = append(segments, category)
	}

	clean, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	segments = append(segments, clean)

	return strings.Join(segments, "/"), nil
}

// maskPathError reports a rejected path as a missing file. Read and delete
// paths use it so a caller probing with traversal names cannot tell an
// invalid name from an absent file. Upload keeps the validation error, since
// the uploader named the file and can correct it.
func maskPathError(err error) error {
	if err == services.ErrInvalidFilename {
		return services.ErrFileNotFound
	}
	return err
}

// keyPrefix builds the listing prefix for a tenant and options, with a
// trailing slash
func keyPrefix(tenantID string, opts FileOptions) (string, error) {
	if tenantID == "" {
		return "", services.ErrMissingTenantID
	}
	tenant, err := SanitizeFilename(tenantID)
	if err != nil {
		return "", err
	}

	segments := []string{"tenants", tenant}
	if opts.ProjectID != "" {
		project, err := SanitizeFilename(opts.ProjectID)
		if err != nil {
			return "", err
		}
		segments = append(segments, "projects", project)
	}
	if opts.Category != "" {
		category, err := SanitizeFilename(opts.Category)
		if err != nil {
			return "", err
		}
		segments = append(segments, category)
	}

	return strings.Join(segments, "/") + "/", nil
}
