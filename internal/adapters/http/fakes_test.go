package httpadapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/core/domain"
)

type pipelineFake struct {
	doc     *domain.Document
	result  *domain.PipelineResult
	disc    []domain.Discrepancy
	err     error
	lastReq domain.UploadRequest
	lastTxt string
}

func (f *pipelineFake) ClassifyAndExtract(_ context.Context, text string) (*domain.Document, error) {
	f.lastTxt = text
	return f.doc, f.err
}

func (f *pipelineFake) AnalyzeFile(_ context.Context, filename, contentType string, data []byte) (*domain.Document, error) {
	f.lastReq = domain.UploadRequest{Filename: filename, ContentType: contentType, Data: data}
	return f.doc, f.err
}

func (f *pipelineFake) UploadAndExtract(_ context.Context, req domain.UploadRequest) (*domain.PipelineResult, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *pipelineFake) AnalyzeDiscrepancies(context.Context, domain.EntityKind, string, domain.EntityPatch) ([]domain.Discrepancy, error) {
	return f.disc, f.err
}

type entityServiceFake struct {
	entity     *domain.Entity
	err        error
	lastFilter domain.EntityFilter
	lastPatch  domain.EntityPatch
	created    *domain.Entity
}

func (f *entityServiceFake) Create(_ context.Context, entity *domain.Entity) (*domain.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = entity
	out := entity.Clone()
	out.ID = "generated"
	out.Version = 1
	return out, nil
}

func (f *entityServiceFake) Get(context.Context, domain.EntityKind, string) (*domain.Entity, error) {
	return f.entity, f.err
}

func (f *entityServiceFake) List(_ context.Context, filter domain.EntityFilter) ([]*domain.Entity, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return []*domain.Entity{f.entity}, nil
}

func (f *entityServiceFake) Update(_ context.Context, _ domain.EntityKind, _ string, patch domain.EntityPatch) (*domain.Entity, error) {
	f.lastPatch = patch
	return f.entity, f.err
}

type ingestorFake struct {
	body []byte
}

func (f *ingestorFake) Enqueue(_ context.Context, kind domain.EntityKind, entityID, filename, mimeType string, body io.Reader) (*domain.Upload, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.body = raw
	return &domain.Upload{
		ID:         "u-1",
		EntityKind: kind,
		EntityID:   entityID,
		Filename:   filename,
		MimeType:   mimeType,
		Status:     domain.UploadQueued,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

type uploadsFake struct {
	err error
}

func (f uploadsFake) GetByID(_ context.Context, id string) (*domain.Upload, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Upload{ID: id, Status: domain.UploadReady, DocumentType: domain.DocumentKTP}, nil
}

type recommenderFake struct {
	lastQuery domain.JobQuery
}

func (f *recommenderFake) Recommend(_ context.Context, query domain.JobQuery) ([]domain.CandidateMatch, error) {
	f.lastQuery = query
	return []domain.CandidateMatch{{Candidate: &domain.Entity{ID: "c-1", Name: "Siti"}, Score: 0.91}}, nil
}

type exporterFake struct {
	kind domain.EntityKind
}

func (f *exporterFake) Export(_ context.Context, kind domain.EntityKind, w io.Writer) error {
	f.kind = kind
	_, err := w.Write([]byte("PK"))
	return err
}

type resumeParserFake struct {
	doc       *domain.Document
	outcome   *domain.MergeOutcome
	err       error
	lastText  string
	lastID    string
	lastFile  string
	lastBytes []byte
}

func (f *resumeParserFake) ParseText(_ context.Context, text string) (*domain.Document, error) {
	f.lastText = text
	return f.doc, f.err
}

func (f *resumeParserFake) ParseFile(_ context.Context, filename, _ string, data []byte) (*domain.Document, error) {
	f.lastFile = filename
	f.lastBytes = data
	return f.doc, f.err
}

func (f *resumeParserFake) ApplyToCandidate(_ context.Context, candidateID, filename, _ string, data []byte) (*domain.MergeOutcome, error) {
	f.lastID = candidateID
	f.lastFile = filename
	f.lastBytes = data
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

func newTestHandler(cfg config.Config, svc Services) http.Handler {
	return NewRouter(cfg, svc).Handler()
}
