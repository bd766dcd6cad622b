package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

// entityPatcher is the part of EntityUseCase the pipeline merges through.
type entityPatcher interface {
	ApplyPatch(ctx context.Context, kind domain.EntityKind, id string, patch domain.EntityPatch) (*domain.MergeOutcome, error)
	Preview(ctx context.Context, kind domain.EntityKind, id string, patch domain.EntityPatch) (*domain.MergeOutcome, error)
}

// DocumentPipelineUseCase sequences OCR, classification, extraction and
// merge for one document at a time. It never retries; every stage either
// completes or ends the run with a *domain.StageError.
type DocumentPipelineUseCase struct {
	ocr        ports.OCR
	classifier ports.DocumentClassifier
	extractor  ports.DocumentExtractor
	blobs      ports.BlobStore
	entities   entityPatcher
	observer   ports.PipelineObserver
	allowed    map[domain.EntityKind][]domain.DocumentType
	now        func() time.Time
}

func NewDocumentPipelineUseCase(
	ocr ports.OCR,
	classifier ports.DocumentClassifier,
	extractor ports.DocumentExtractor,
	blobs ports.BlobStore,
	entities entityPatcher,
) *DocumentPipelineUseCase {
	return &DocumentPipelineUseCase{
		ocr:        ocr,
		classifier: classifier,
		extractor:  extractor,
		blobs:      blobs,
		entities:   entities,
		observer:   noopObserver{},
		now:        time.Now,
	}
}

func (uc *DocumentPipelineUseCase) WithObserver(observer ports.PipelineObserver) *DocumentPipelineUseCase {
	if observer != nil {
		uc.observer = observer
	}
	return uc
}

// WithAllowedTypes narrows the document types offered to the classifier per
// entity kind. Types outside a kind's built-in set are ignored.
func (uc *DocumentPipelineUseCase) WithAllowedTypes(allowed map[domain.EntityKind][]domain.DocumentType) *DocumentPipelineUseCase {
	uc.allowed = make(map[domain.EntityKind][]domain.DocumentType, len(allowed))
	for kind, types := range allowed {
		builtin := kind.DocumentTypes()
		narrowed := make([]domain.DocumentType, 0, len(types))
		for _, t := range types {
			if containsDocumentType(builtin, t) {
				narrowed = append(narrowed, t)
			}
		}
		if len(narrowed) > 0 {
			uc.allowed[kind] = narrowed
		}
	}
	return uc
}

func (uc *DocumentPipelineUseCase) allowedFor(kind domain.EntityKind) []domain.DocumentType {
	if types, ok := uc.allowed[kind]; ok {
		return types
	}
	return kind.DocumentTypes()
}

func containsDocumentType(types []domain.DocumentType, t domain.DocumentType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// ClassifyAndExtract classifies raw text and extracts its structured data
// without touching any entity.
func (uc *DocumentPipelineUseCase) ClassifyAndExtract(ctx context.Context, text string) (*domain.Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "classify and extract", errors.New("text is required"))
	}
	run := domain.NewPipelineRun()
	run.Content = text
	started := uc.now()

	doc, err := uc.classifyAndAssemble(ctx, run, nil, documentSource{}, nil)
	uc.finish(run, started)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// AnalyzeFile runs OCR on an uploaded file, then classifies and extracts it.
// Nothing is stored.
func (uc *DocumentPipelineUseCase) AnalyzeFile(ctx context.Context, filename, contentType string, data []byte) (*domain.Document, error) {
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "analyze file", errors.New("file is empty"))
	}
	run := domain.NewPipelineRun()
	started := uc.now()
	defer func() { uc.finish(run, started) }()

	read, err := uc.read(ctx, data, contentType)
	if err != nil {
		return nil, stopped(run, err)
	}
	run.Content = read.Content
	return uc.classifyAndAssemble(ctx, run, nil, documentSource{name: filename, contentType: contentType, data: data}, read.BoundingBoxes())
}

// UploadAndExtract runs the full pipeline for one document uploaded to an
// existing entity. Unknown documents end at Assembled and are not merged.
func (uc *DocumentPipelineUseCase) UploadAndExtract(ctx context.Context, req domain.UploadRequest) (*domain.PipelineResult, error) {
	if err := validateUploadRequest(req); err != nil {
		return nil, err
	}
	run := domain.NewPipelineRun()
	started := uc.now()
	defer func() { uc.finish(run, started) }()

	blob, err := uc.storeBlob(ctx, req)
	if err != nil {
		return nil, stopped(run, err)
	}
	read, err := uc.read(ctx, req.Data, req.ContentType)
	if err != nil {
		return nil, stopped(run, err)
	}
	run.Content = read.Content

	source := documentSource{
		name:        req.Filename,
		url:         blob.URL,
		lastUpdated: blob.UploadedAt,
		contentType: req.ContentType,
		data:        req.Data,
	}
	doc, err := uc.classifyAndAssemble(ctx, run, uc.allowedFor(req.Kind), source, read.BoundingBoxes())
	if err != nil {
		return nil, err
	}

	result := &domain.PipelineResult{
		Document:       *doc,
		Classification: *run.Classification,
		Discrepancies:  []domain.Discrepancy{},
	}
	if doc.Type == domain.DocumentUnknown {
		result.States = run.History
		return result, nil
	}

	outcome, err := uc.merge(ctx, run, req.Kind, req.EntityID, *doc)
	if err != nil {
		return nil, err
	}
	result.Entity = outcome.After
	result.Discrepancies = outcome.Discrepancies
	result.States = run.History
	return result, nil
}

// AnalyzeDiscrepancies previews the discrepancies a patch would produce.
// The stored entity is not changed.
func (uc *DocumentPipelineUseCase) AnalyzeDiscrepancies(ctx context.Context, kind domain.EntityKind, entityID string, patch domain.EntityPatch) ([]domain.Discrepancy, error) {
	outcome, err := uc.entities.Preview(ctx, kind, entityID, patch)
	if err != nil {
		return nil, fmt.Errorf("analyze discrepancies: %w", err)
	}
	return outcome.Discrepancies, nil
}

type documentSource struct {
	name        string
	url         string
	lastUpdated time.Time
	contentType string
	data        []byte
}

func (uc *DocumentPipelineUseCase) classifyAndAssemble(
	ctx context.Context,
	run *domain.PipelineRun,
	allowed []domain.DocumentType,
	source documentSource,
	boxes []domain.BoundingBox,
) (*domain.Document, error) {
	classification, err := uc.classify(ctx, run, allowed)
	if err != nil {
		return nil, err
	}

	var structured domain.StructuredData = domain.EmptyData{}
	if classification.Category != domain.DocumentUnknown {
		structured, err = uc.extract(ctx, run, classification.Category, source)
		if err != nil {
			return nil, err
		}
	}

	doc := &domain.Document{
		Type: classification.Category,
		Name: source.name,
		URL:  source.url,
		ExtractedContent: domain.ExtractedContent{
			Content:        run.Content,
			StructuredData: structured,
			BoundingBoxes:  boxes,
		},
	}
	if !source.lastUpdated.IsZero() {
		doc.LastUpdated = source.lastUpdated.UTC().Format(time.RFC3339)
	}
	run.Document = doc
	uc.advance(run, domain.StateAssembled, time.Time{})
	return doc, nil
}

func (uc *DocumentPipelineUseCase) classify(ctx context.Context, run *domain.PipelineRun, allowed []domain.DocumentType) (domain.ClassificationResult, error) {
	started := uc.now()
	uc.advance(run, domain.StateClassifying, time.Time{})
	classification, err := uc.classifier.Classify(ctx, run.Content, allowed)
	if err != nil {
		return domain.ClassificationResult{}, uc.fail(run, domain.StateClassificationFailed, fmt.Errorf("classify document: %w", err))
	}
	run.Classification = &classification
	uc.observer.StageCompleted(domain.StateClassifying, uc.now().Sub(started))
	return classification, nil
}

func (uc *DocumentPipelineUseCase) extract(ctx context.Context, run *domain.PipelineRun, docType domain.DocumentType, source documentSource) (domain.StructuredData, error) {
	started := uc.now()
	uc.advance(run, domain.StateExtracting, time.Time{})

	in := ports.ExtractInput{Text: run.Content}
	if docType == domain.DocumentSignedOfferLetter && len(source.data) > 0 {
		handwritten, err := uc.handwritten(ctx, source)
		if err != nil {
			return nil, uc.fail(run, domain.StateExtractionFailed, err)
		}
		in.Handwritten = handwritten
	}

	structured, err := uc.extractor.Extract(ctx, docType, in)
	if err != nil {
		return nil, uc.fail(run, domain.StateExtractionFailed, fmt.Errorf("extract %s: %w", docType, err))
	}
	if !domain.StructuredMatchesType(docType, structured) {
		return nil, uc.fail(run, domain.StateExtractionFailed, domain.NewExtractionError(docType, "", fmt.Errorf("extractor returned %T", structured)))
	}
	uc.observer.StageCompleted(domain.StateExtracting, uc.now().Sub(started))
	return structured, nil
}

func (uc *DocumentPipelineUseCase) handwritten(ctx context.Context, source documentSource) (*bool, error) {
	layout, err := uc.ocr.AnalyzeLayout(ctx, source.data, source.contentType)
	if err != nil {
		return nil, fmt.Errorf("analyze layout: %w", err)
	}
	return layout.Signature(), nil
}

func (uc *DocumentPipelineUseCase) merge(ctx context.Context, run *domain.PipelineRun, kind domain.EntityKind, entityID string, doc domain.Document) (*domain.MergeOutcome, error) {
	started := uc.now()
	outcome, err := uc.entities.ApplyPatch(ctx, kind, entityID, domain.EntityPatch{LegalDocuments: []domain.Document{doc}})
	if err != nil {
		return nil, uc.fail(run, domain.StateMergeFailed, fmt.Errorf("merge document: %w", err))
	}
	run.Entity = outcome.After
	uc.advance(run, domain.StateMerged, started)
	run.Discrepancies = outcome.Discrepancies
	uc.advance(run, domain.StateDiscrepancyChecked, time.Time{})
	return outcome, nil
}

func (uc *DocumentPipelineUseCase) read(ctx context.Context, data []byte, contentType string) (domain.ReadResult, error) {
	read, err := uc.ocr.AnalyzeRead(ctx, data, contentType)
	if err != nil {
		return domain.ReadResult{}, fmt.Errorf("analyze read: %w", err)
	}
	if strings.TrimSpace(read.Content) == "" {
		return domain.ReadResult{}, domain.WrapError(domain.ErrInvalidInput, "analyze read", errors.New("document has no readable text"))
	}
	return read, nil
}

func (uc *DocumentPipelineUseCase) storeBlob(ctx context.Context, req domain.UploadRequest) (domain.BlobObject, error) {
	if req.Blob != nil {
		return *req.Blob, nil
	}
	path := fmt.Sprintf("%s/%s/%s_%s", req.Kind, req.EntityID, uuid.NewString(), sanitizeFilename(req.Filename))
	blob, err := uc.blobs.Upload(ctx, path, req.ContentType, bytes.NewReader(req.Data))
	if err != nil {
		return domain.BlobObject{}, fmt.Errorf("upload blob: %w", err)
	}
	return blob, nil
}

func (uc *DocumentPipelineUseCase) advance(run *domain.PipelineRun, state domain.PipelineState, started time.Time) {
	run.Advance(state)
	if !started.IsZero() {
		uc.observer.StageCompleted(state, uc.now().Sub(started))
	}
	slog.Debug("pipeline_stage", "state", state)
}

func (uc *DocumentPipelineUseCase) fail(run *domain.PipelineRun, state domain.PipelineState, err error) error {
	run.Advance(state)
	slog.Warn("pipeline_stage_failed", "state", state, "error", err.Error())
	return &domain.StageError{Stage: state, Run: run, Err: err}
}

// stopped reports a failure that happened before classification started.
func stopped(run *domain.PipelineRun, err error) error {
	return &domain.StageError{Stage: run.State, Run: run, Err: err}
}

func (uc *DocumentPipelineUseCase) finish(run *domain.PipelineRun, started time.Time) {
	docType := domain.DocumentUnknown
	if run.Classification != nil {
		docType = run.Classification.Category
	}
	uc.observer.RunFinished(run.State, docType, uc.now().Sub(started))
	slog.Info("pipeline_finished", "state", run.State, "document_type", docType)
}

func validateUploadRequest(req domain.UploadRequest) error {
	switch {
	case req.Kind == "" || req.Kind.DocumentTypes() == nil:
		return domain.WrapError(domain.ErrInvalidInput, "upload and extract", fmt.Errorf("unknown entity kind %q", req.Kind))
	case strings.TrimSpace(req.EntityID) == "":
		return domain.WrapError(domain.ErrInvalidInput, "upload and extract", errors.New("entity id is required"))
	case len(req.Data) == 0:
		return domain.WrapError(domain.ErrInvalidInput, "upload and extract", errors.New("file is empty"))
	}
	return nil
}

// readAll bounds how much of a stored blob the worker loads into memory.
func readAll(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read blob", fmt.Errorf("document exceeds %d bytes", limit))
	}
	return data, nil
}
