package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/fieldbeam/fieldbeam/backend/config"
	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"go.uber.org/zap"
)

// S3Store implements FileStore on an S3 bucket. Keys share the same
// tenant-prefixed layout as the local store, below an optional bucket
// prefix.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
	audit   AuditSink
	logger  *zap.Logger
}

// NewS3Store creates an S3-backed file store using the default AWS
// credential chain
func NewS3Store(ctx context.Context, cfg config.S3Config, audit AuditSink, logger *zap.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, services.WrapError(services.ErrorTypeInternal, "failed to load AWS configuration", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		audit:   audit,
		logger:  logger,
	}, nil
}

// fullKey prepends the bucket prefix when configured
func (s *S3Store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Upload stores content under the tenant's prefix
func (s *S3Store) Upload(ctx context.Context, tenantID string, opts FileOptions, filename string, content io.Reader, actorID string) (*FileInfo, error) {
	key, err := objectKey(tenantID, opts, filename)
	if err != nil {
		return nil, err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
		Body:   content,
	})
	if err != nil {
		return nil, services.WrapError(services.ErrorTypeInternal, "failed to upload object", err)
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	info := &FileInfo{
		Key:        key,
		Name:       key[strings.LastIndex(key, "/")+1:],
		ModifiedAt: time.Now(),
	}
	if err == nil {
		info.Size = aws.ToInt64(head.ContentLength)
		if head.LastModified != nil {
			info.ModifiedAt = *head.LastModified
		}
	}

	s.logger.Debug("object uploaded",
		zap.String("tenant_id", tenantID),
		zap.String("key", key))

	s.recordAudit(ctx, tenantID, actorID, models.AuditActionFileUpload, key, info.Size)

	return info, nil
}

// Download opens a stored object for reading. A filename rejected by
// sanitization reads the same as a missing object.
func (s *S3Store) Download(ctx context.Context, tenantID string, opts FileOptions, filename string) (io.ReadCloser, error) {
	key, err := objectKey(tenantID, opts, filename)
	if err != nil {
		return nil, maskPathError(err)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, services.ErrFileNotFound
		}
		return nil, services.WrapError(services.ErrorTypeInternal, "failed to get object", err)
	}
	return out.Body, nil
}

// Delete removes a stored object. S3 deletes are idempotent, so the object
// is checked first to keep delete-of-missing reporting not found.
func (s *S3Store) Delete(ctx context.Context, tenantID string, opts FileOptions, filename string, actorID string) error {
	key, err := objectKey(tenantID, opts, filename)
	if err != nil {
		return maskPathError(err)
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return services.ErrFileNotFound
		}
		return services.WrapError(services.ErrorTypeInternal, "failed to check object", err)
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return services.WrapError(services.ErrorTypeInternal, "failed to delete object", err)
	}

	s.logger.Debug("object deleted",
		zap.String("tenant_id", tenantID),
		zap.String("key", key))

	s.recordAudit(ctx, tenantID, actorID, models.AuditActionFileDelete, key, aws.ToInt64(head.ContentLength))

	return nil
}

// List returns the objects under the tenant prefix
func (s *S3Store) List(ctx context.Context, tenantID string, opts FileOptions) ([]FileInfo, error) {
	prefix, err := keyPrefix(tenantID, opts)
	if err != nil {
		return nil, err
	}

	files := []FileInfo{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.fullKey(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, services.WrapError(services.ErrorTypeInternal, "failed to list objects", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.prefix != "" {
				key = strings.TrimPrefix(key, s.prefix+"/")
			}
			info := FileInfo{
				Key:  key,
				Name: key[strings.LastIndex(key, "/")+1:],
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.ModifiedAt = *obj.LastModified
			}
			files = append(files, info)
		}
	}
	return files, nil
}

// PresignURL returns a time-limited S3 presigned GET URL
func (s *S3Store) PresignURL(ctx context.Context, tenantID string, opts FileOptions, filename string, expiry time.Duration) (string, error) {
	key, err := objectKey(tenantID, opts, filename)
	if err != nil {
		return "", maskPathError(err)
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return "", services.ErrFileNotFound
		}
		return "", services.WrapError(services.ErrorTypeInternal, "failed to check object", err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	}, func(o *s3.PresignOptions) {
		o.Expires = expiry
	})
	if err != nil {
		return "", services.WrapError(services.ErrorTypeInternal, "failed to presign object URL", err)
	}
	return req.URL, nil
}

func (s *S3Store) recordAudit(ctx context.Context, tenantID, actorID string, action models.AuditAction, key string, size int64) {
	if s.audit == nil || actorID == "" {
		return
	}
	entry := models.NewAuditLog(tenantID, action, "file").
		WithActor(actorID).
		WithResource(key).
		WithDetails(map[string]interface{}{"key": key, "size": size})
	s.audit.Record(ctx, entry)
}
