package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

type UploadRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewUploadRepository(db *sql.DB) *UploadRepository {
	return &UploadRepository{db: db, now: time.Now}
}

func (r *UploadRepository) Create(ctx context.Context, upload *domain.Upload) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO uploads (
	id, entity_kind, entity_id, filename, mime_type, storage_path, url, size, status, document_type, confidence, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		upload.ID, string(upload.EntityKind), upload.EntityID, upload.Filename, upload.MimeType, upload.StoragePath,
		upload.URL, upload.Size, string(upload.Status), string(upload.DocumentType), upload.Confidence, upload.Error,
		upload.CreatedAt, upload.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

func (r *UploadRepository) GetByID(ctx context.Context, id string) (*domain.Upload, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, entity_kind, entity_id, filename, mime_type, storage_path, url, size, status, document_type, confidence, error_message, created_at, updated_at
FROM uploads
WHERE id = $1
`, id)

	var (
		upload       domain.Upload
		kind, status string
		docType      sql.NullString
		errMessage   sql.NullString
	)
	err := row.Scan(
		&upload.ID, &kind, &upload.EntityID, &upload.Filename, &upload.MimeType, &upload.StoragePath, &upload.URL,
		&upload.Size, &status, &docType, &upload.Confidence, &errMessage, &upload.CreatedAt, &upload.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrUploadNotFound, "get upload", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan upload: %w", err)
	}
	upload.EntityKind = domain.EntityKind(kind)
	upload.Status = domain.UploadStatus(status)
	upload.DocumentType = domain.DocumentType(docType.String)
	upload.Error = errMessage.String
	return &upload, nil
}

func (r *UploadRepository) UpdateStatus(ctx context.Context, id string, status domain.UploadStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE uploads
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, r.now().UTC())
	if err != nil {
		return fmt.Errorf("update upload status: %w", err)
	}
	return requireAffected(result, "update upload status", id)
}

func (r *UploadRepository) SaveResult(ctx context.Context, id string, cls domain.ClassificationResult) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE uploads
SET document_type = $2, confidence = $3, updated_at = $4
WHERE id = $1
`, id, string(cls.Category), cls.Confidence, r.now().UTC())
	if err != nil {
		return fmt.Errorf("save upload result: %w", err)
	}
	return requireAffected(result, "save upload result", id)
}

func requireAffected(result sql.Result, operation, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrUploadNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}
