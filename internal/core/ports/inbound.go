package ports

import (
	"context"
	"io"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// DocumentPipeline is the inbound contract for classify/extract/merge runs.
type DocumentPipeline interface {
	ClassifyAndExtract(ctx context.Context, text string) (*domain.Document, error)
	AnalyzeFile(ctx context.Context, filename, contentType string, data []byte) (*domain.Document, error)
	UploadAndExtract(ctx context.Context, req domain.UploadRequest) (*domain.PipelineResult, error)
	AnalyzeDiscrepancies(ctx context.Context, kind domain.EntityKind, entityID string, patch domain.EntityPatch) ([]domain.Discrepancy, error)
}

// ResumeParser extracts CVs on request, outside classification.
type ResumeParser interface {
	ParseText(ctx context.Context, text string) (*domain.Document, error)
	ParseFile(ctx context.Context, filename, contentType string, data []byte) (*domain.Document, error)
	ApplyToCandidate(ctx context.Context, candidateID, filename, contentType string, data []byte) (*domain.MergeOutcome, error)
}

// EntityService is the inbound contract for entity reads and profile edits.
type EntityService interface {
	Create(ctx context.Context, entity *domain.Entity) (*domain.Entity, error)
	Get(ctx context.Context, kind domain.EntityKind, id string) (*domain.Entity, error)
	List(ctx context.Context, filter domain.EntityFilter) ([]*domain.Entity, error)
	Update(ctx context.Context, kind domain.EntityKind, id string, patch domain.EntityPatch) (*domain.Entity, error)
}

// UploadIngestor accepts documents for asynchronous processing.
type UploadIngestor interface {
	Enqueue(ctx context.Context, kind domain.EntityKind, entityID, filename, mimeType string, body io.Reader) (*domain.Upload, error)
}

// UploadReader is the read model for asynchronous upload jobs.
type UploadReader interface {
	GetByID(ctx context.Context, id string) (*domain.Upload, error)
}

// UploadProcessor runs a queued upload through the pipeline.
type UploadProcessor interface {
	ProcessByID(ctx context.Context, uploadID string) error
}

// CandidateRecommender ranks candidates against a job description.
type CandidateRecommender interface {
	Recommend(ctx context.Context, query domain.JobQuery) ([]domain.CandidateMatch, error)
}

// EntityExporter renders entities of one kind as a spreadsheet.
type EntityExporter interface {
	Export(ctx context.Context, kind domain.EntityKind, w io.Writer) error
}
