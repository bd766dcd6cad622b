package ports

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// OCR turns document bytes into text and layout signals.
type OCR interface {
	AnalyzeRead(ctx context.Context, data []byte, contentType string) (domain.ReadResult, error)
	AnalyzeLayout(ctx context.Context, data []byte, contentType string) (domain.LayoutResult, error)
}

type CompletionRequest struct {
	Instructions string
	UserText     string
	SchemaName   string
	Schema       map[string]any
}

// ChatCompleter returns a JSON object shaped by the request schema.
type ChatCompleter interface {
	Complete(ctx context.Context, req CompletionRequest) (json.RawMessage, error)
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EntityStore persists entity snapshots. Replace succeeds only when the
// stored version still equals expectedVersion.
type EntityStore interface {
	Create(ctx context.Context, entity *domain.Entity) error
	GetByID(ctx context.Context, kind domain.EntityKind, id string) (*domain.Entity, error)
	Replace(ctx context.Context, entity *domain.Entity, expectedVersion int64) error
	Query(ctx context.Context, filter domain.EntityFilter) ([]*domain.Entity, error)
}

// BlobStore stores source documents.
type BlobStore interface {
	Upload(ctx context.Context, path, contentType string, body io.Reader) (domain.BlobObject, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// EntityLocker serializes read-modify-write cycles on one entity.
type EntityLocker interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}

// UploadRepository persists asynchronous upload jobs.
type UploadRepository interface {
	Create(ctx context.Context, upload *domain.Upload) error
	GetByID(ctx context.Context, id string) (*domain.Upload, error)
	UpdateStatus(ctx context.Context, id string, status domain.UploadStatus, errMessage string) error
	SaveResult(ctx context.Context, id string, cls domain.ClassificationResult) error
}

// MessageQueue publishes/consumes upload events.
type MessageQueue interface {
	PublishUploadQueued(ctx context.Context, uploadID string) error
	SubscribeUploadQueued(ctx context.Context, handler func(context.Context, string) error) error
}

// CandidateIndex stores candidate vectors for similarity search.
type CandidateIndex interface {
	UpsertCandidate(ctx context.Context, candidate *domain.Entity, vector []float32) error
	SearchCandidates(ctx context.Context, vector []float32, limit int) ([]CandidateHit, error)
}

type CandidateHit struct {
	EntityID string
	Score    float64
}

// DocumentClassifier assigns a document type to raw text.
type DocumentClassifier interface {
	Classify(ctx context.Context, text string, allowed []domain.DocumentType) (domain.ClassificationResult, error)
}

type ExtractInput struct {
	Text string
	// Handwritten is nil unless layout analysis ran on the source file.
	Handwritten *bool
}

// DocumentExtractor turns raw text into the structured variant for a type.
type DocumentExtractor interface {
	Extract(ctx context.Context, docType domain.DocumentType, in ExtractInput) (domain.StructuredData, error)
}

// EntityMerger computes and validates merged entity snapshots.
type EntityMerger interface {
	Merge(existing *domain.Entity, patch domain.EntityPatch) (*domain.Entity, error)
	Validate(entity *domain.Entity) error
}

// DiscrepancyAnalyzer compares two snapshots of the same entity.
type DiscrepancyAnalyzer interface {
	Analyze(before, after *domain.Entity) []domain.Discrepancy
}

// EntityIndexer keeps search indexes in step with entity writes.
type EntityIndexer interface {
	IndexEntity(ctx context.Context, entity *domain.Entity) error
}

// PipelineObserver receives pipeline timings and outcomes.
type PipelineObserver interface {
	StageCompleted(stage domain.PipelineState, duration time.Duration)
	RunFinished(state domain.PipelineState, docType domain.DocumentType, duration time.Duration)
	DiscrepanciesFlagged(kind domain.EntityKind, count int)
}
