package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

type Config struct {
	Bucket          string
	CredentialsJSON string
	PublicBaseURL   string
	Endpoint        string
}

// Storage keeps source documents in a Cloud Storage bucket.
type Storage struct {
	client        *storage.Client
	bucket        string
	publicBaseURL string
}

func New(ctx context.Context, cfg Config) (*Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}
	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("gcs bucket %q not found or not accessible: %w", cfg.Bucket, err)
	}
	return &Storage{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: publicBase(cfg),
	}, nil
}

func (s *Storage) Upload(ctx context.Context, key, contentType string, data io.Reader) (domain.BlobObject, error) {
	wc := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		wc.ContentType = contentType
	}
	size, err := io.Copy(wc, data)
	if err != nil {
		_ = wc.Close()
		return domain.BlobObject{}, domain.WrapError(domain.ErrTemporary, "gcs upload", err)
	}
	if err := wc.Close(); err != nil {
		return domain.BlobObject{}, domain.WrapError(domain.ErrTemporary, "gcs upload", err)
	}

	uploaded := time.Now().UTC()
	if attrs := wc.Attrs(); attrs != nil && !attrs.Updated.IsZero() {
		uploaded = attrs.Updated.UTC()
	}
	return domain.BlobObject{
		Path:       key,
		URL:        objectURL(s.publicBaseURL, key),
		Size:       size,
		UploadedAt: uploaded,
	}, nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, domain.WrapError(domain.ErrUploadNotFound, "gcs open", err)
		}
		return nil, domain.WrapError(domain.ErrTemporary, "gcs open", err)
	}
	return rc, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func publicBase(cfg Config) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	return "https://storage.googleapis.com/" + cfg.Bucket
}

func objectURL(base, key string) string {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return base + "/" + strings.Join(segments, "/")
}
