package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

const maxDocumentBytes = 50 << 20

type uploadRunner interface {
	UploadAndExtract(ctx context.Context, req domain.UploadRequest) (*domain.PipelineResult, error)
}

// ProcessUploadUseCase runs a queued upload through the document pipeline
// and records the outcome on the upload job.
type ProcessUploadUseCase struct {
	uploads  ports.UploadRepository
	blobs    ports.BlobStore
	pipeline uploadRunner
}

func NewProcessUploadUseCase(
	uploads ports.UploadRepository,
	blobs ports.BlobStore,
	pipeline uploadRunner,
) *ProcessUploadUseCase {
	return &ProcessUploadUseCase{
		uploads:  uploads,
		blobs:    blobs,
		pipeline: pipeline,
	}
}

func (uc *ProcessUploadUseCase) ProcessByID(ctx context.Context, uploadID string) error {
	if err := uc.markStatus(ctx, uploadID, domain.UploadProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	result, err := uc.processPipeline(ctx, uploadID)
	if err != nil {
		if failErr := uc.markFailed(ctx, uploadID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.persistResult(ctx, uploadID, result.Classification); err != nil {
		if failErr := uc.markFailed(ctx, uploadID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, uploadID, domain.UploadReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}

	return nil
}

func (uc *ProcessUploadUseCase) processPipeline(ctx context.Context, uploadID string) (*domain.PipelineResult, error) {
	upload, err := uc.loadUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	data, err := uc.loadBlob(ctx, upload)
	if err != nil {
		return nil, err
	}

	result, err := uc.pipeline.UploadAndExtract(ctx, domain.UploadRequest{
		Kind:        upload.EntityKind,
		EntityID:    upload.EntityID,
		Filename:    upload.Filename,
		ContentType: upload.MimeType,
		Data:        data,
		Blob: &domain.BlobObject{
			Path:       upload.StoragePath,
			URL:        upload.URL,
			Size:       upload.Size,
			UploadedAt: upload.CreatedAt,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("run document pipeline: %w", err)
	}
	return result, nil
}

func (uc *ProcessUploadUseCase) loadUpload(ctx context.Context, uploadID string) (*domain.Upload, error) {
	upload, err := uc.uploads.GetByID(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("fetch upload by id: %w", err)
	}
	return upload, nil
}

func (uc *ProcessUploadUseCase) loadBlob(ctx context.Context, upload *domain.Upload) ([]byte, error) {
	rc, err := uc.blobs.Open(ctx, upload.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	defer rc.Close()

	data, err := readAll(rc, maxDocumentBytes)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (uc *ProcessUploadUseCase) persistResult(ctx context.Context, uploadID string, cls domain.ClassificationResult) error {
	if err := uc.uploads.SaveResult(ctx, uploadID, cls); err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	return nil
}

func (uc *ProcessUploadUseCase) markStatus(ctx context.Context, uploadID string, status domain.UploadStatus, errMessage string) error {
	return uc.uploads.UpdateStatus(ctx, uploadID, status, errMessage)
}

func (uc *ProcessUploadUseCase) markFailed(ctx context.Context, uploadID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, uploadID, domain.UploadFailed, processErr.Error())
}
