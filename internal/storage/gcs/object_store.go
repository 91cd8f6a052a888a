// Package gcs provides an ObjectStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/awwvision/internal/scrape"
)

const (
	// DefaultPublicBaseURL serves objects written with the publicRead ACL.
	DefaultPublicBaseURL = "http://storage.googleapis.com"
	defaultPageSize      = 1000
	publicReadACL        = "publicRead"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket        string
	PublicBaseURL string
	PageSize      int
}

// ObjectStore writes images to a configured GCS bucket.
type ObjectStore struct {
	client        *storage.Client
	bucket        string
	publicBaseURL string
	pageSize      int
	logger        *zap.Logger
}

// New creates a GCS-backed object store.
func New(client *storage.Client, cfg Config, logger *zap.Logger) (*ObjectStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = DefaultPublicBaseURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObjectStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: base,
		pageSize:      pageSize,
		logger:        logger,
	}, nil
}

// Exists reports whether name is present. Lookup failures of any kind read as absent.
func (s *ObjectStore) Exists(ctx context.Context, name string) bool {
	_, err := s.client.Bucket(s.bucket).Object(name).Attrs(ctx)
	if err == nil {
		return true
	}
	if !errors.Is(err, storage.ErrObjectNotExist) {
		s.logger.Debug("object lookup failed, treating as absent",
			zap.String("bucket", s.bucket),
			zap.String("name", name),
			zap.Error(err),
		)
	}
	return false
}

// Upload streams content into the bucket as a publicly readable object.
func (s *ObjectStore) Upload(ctx context.Context, name string, content io.Reader, contentType string, metadata map[string]string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: object name is required", scrape.ErrUpload)
	}
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType
	writer.PredefinedACL = publicReadACL
	if len(metadata) > 0 {
		writer.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			writer.Metadata[k] = v
		}
	}
	if _, err := io.Copy(writer, content); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("%w: copy object %s: %w (close writer: %v)", scrape.ErrUpload, name, err, closeErr)
		}
		return fmt.Errorf("%w: copy object %s: %w", scrape.ErrUpload, name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("%w: close writer for %s: %w", scrape.ErrUpload, name, err)
	}
	return nil
}

// ListAll walks every listing page until the bucket reports no continuation token.
func (s *ObjectStore) ListAll(ctx context.Context) ([]scrape.StoredObject, error) {
	pager := iterator.NewPager(s.client.Bucket(s.bucket).Objects(ctx, nil), s.pageSize, "")
	var out []scrape.StoredObject
	for {
		var page []*storage.ObjectAttrs
		token, err := pager.NextPage(&page)
		if err != nil {
			return nil, fmt.Errorf("%w: list bucket %s: %w", scrape.ErrList, s.bucket, err)
		}
		for _, attrs := range page {
			if attrs == nil {
				continue
			}
			out = append(out, scrape.StoredObject{
				Name:      attrs.Name,
				Label:     attrs.Metadata[scrape.LabelMetadataKey],
				PublicURL: s.PublicURL(attrs.Name),
			})
		}
		if token == "" {
			return out, nil
		}
	}
}

// PublicURL returns the anonymous-read URL for name.
func (s *ObjectStore) PublicURL(name string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, name)
}
