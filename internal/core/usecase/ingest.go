package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

// IngestUploadUseCase accepts a document for an entity, stores it and hands
// it to the worker through the queue.
type IngestUploadUseCase struct {
	uploads  ports.UploadRepository
	entities ports.EntityStore
	blobs    ports.BlobStore
	queue    ports.MessageQueue
}

func NewIngestUploadUseCase(
	uploads ports.UploadRepository,
	entities ports.EntityStore,
	blobs ports.BlobStore,
	queue ports.MessageQueue,
) *IngestUploadUseCase {
	return &IngestUploadUseCase{
		uploads:  uploads,
		entities: entities,
		blobs:    blobs,
		queue:    queue,
	}
}

func (uc *IngestUploadUseCase) Enqueue(
	ctx context.Context,
	kind domain.EntityKind,
	entityID, filename, mimeType string,
	body io.Reader,
) (*domain.Upload, error) {
	if kind.DocumentTypes() == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue upload", fmt.Errorf("unknown entity kind %q", kind))
	}
	if strings.TrimSpace(entityID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue upload", errors.New("entity id is required"))
	}
	if _, err := uc.entities.GetByID(ctx, kind, entityID); err != nil {
		return nil, fmt.Errorf("fetch entity by id: %w", err)
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s/%s/%s_%s", kind, entityID, id, sanitizeFilename(filename))

	blob, err := uc.blobs.Upload(ctx, storageKey, mimeType, body)
	if err != nil {
		return nil, fmt.Errorf("save to blob storage: %w", err)
	}

	now := time.Now().UTC()
	upload := &domain.Upload{
		ID:          id,
		EntityKind:  kind,
		EntityID:    entityID,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: blob.Path,
		URL:         blob.URL,
		Size:        blob.Size,
		Status:      domain.UploadQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.uploads.Create(ctx, upload); err != nil {
		return nil, fmt.Errorf("create upload metadata: %w", err)
	}

	if err := uc.queue.PublishUploadQueued(ctx, upload.ID); err != nil {
		return nil, fmt.Errorf("publish upload event: %w", err)
	}

	return upload, nil
}

func (uc *IngestUploadUseCase) GetByID(ctx context.Context, id string) (*domain.Upload, error) {
	upload, err := uc.uploads.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch upload by id: %w", err)
	}
	return upload, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		return "document.bin"
	}
	return base
}
