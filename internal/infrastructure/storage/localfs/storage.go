package localfs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

type Storage struct {
	basePath      string
	publicBaseURL string
}

// New stores blobs under basePath. publicBaseURL, when set, is the prefix
// documents are served from; otherwise URLs use the file scheme.
func New(basePath, publicBaseURL string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (s *Storage) Upload(_ context.Context, key, _ string, data io.Reader) (domain.BlobObject, error) {
	path, err := s.resolve(key)
	if err != nil {
		return domain.BlobObject{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.BlobObject{}, fmt.Errorf("create blob dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return domain.BlobObject{}, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, data)
	if err != nil {
		return domain.BlobObject{}, fmt.Errorf("write file: %w", err)
	}
	return domain.BlobObject{
		Path:       key,
		URL:        s.url(key, path),
		Size:       size,
		UploadedAt: time.Now().UTC(),
	}, nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *Storage) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve blob path", fmt.Errorf("empty key"))
	}
	return filepath.Join(s.basePath, clean), nil
}

func (s *Storage) url(key, path string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + strings.TrimLeft(filepath.ToSlash(filepath.Clean("/"+key)), "/")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
