package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/document-intake/internal/core/discrepancy"
	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/merge"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

func strPtr(v string) *string { return &v }

type entityStoreFake struct {
	mu         sync.Mutex
	entities   map[string]*domain.Entity
	replaceErr error
	replaces   int
}

func newEntityStoreFake(entities ...*domain.Entity) *entityStoreFake {
	f := &entityStoreFake{entities: make(map[string]*domain.Entity)}
	for _, e := range entities {
		f.entities[string(e.Kind)+"/"+e.ID] = e.Clone()
	}
	return f
}

func (f *entityStoreFake) Create(_ context.Context, e *domain.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[string(e.Kind)+"/"+e.ID] = e.Clone()
	return nil
}

func (f *entityStoreFake) GetByID(_ context.Context, kind domain.EntityKind, id string) (*domain.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entities[string(kind)+"/"+id]; ok {
		return e.Clone(), nil
	}
	for _, e := range f.entities {
		if e.Kind == kind && e.ExternalID == id {
			return e.Clone(), nil
		}
	}
	return nil, domain.WrapError(domain.ErrEntityNotFound, "get entity", fmt.Errorf("id=%s", id))
}

func (f *entityStoreFake) Replace(_ context.Context, e *domain.Entity, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	key := string(e.Kind) + "/" + e.ID
	current, ok := f.entities[key]
	if !ok {
		return domain.WrapError(domain.ErrEntityNotFound, "replace entity", fmt.Errorf("id=%s", e.ID))
	}
	if current.Version != expectedVersion {
		return domain.WrapError(domain.ErrMergeConflict, "replace entity", fmt.Errorf("version %d != %d", current.Version, expectedVersion))
	}
	f.entities[key] = e.Clone()
	f.replaces++
	return nil
}

func (f *entityStoreFake) Query(_ context.Context, filter domain.EntityFilter) ([]*domain.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Entity
	for _, e := range f.entities {
		if filter.Kind == "" || e.Kind == filter.Kind {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (f *entityStoreFake) stored(kind domain.EntityKind, id string) *domain.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entities[string(kind)+"/"+id].Clone()
}

type lockerFake struct {
	mu       sync.Mutex
	keys     map[string]*sync.Mutex
	acquired []string
	err      error
}

func (f *lockerFake) Lock(_ context.Context, key string) (func(context.Context) error, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	if f.keys == nil {
		f.keys = make(map[string]*sync.Mutex)
	}
	m, ok := f.keys[key]
	if !ok {
		m = &sync.Mutex{}
		f.keys[key] = m
	}
	f.acquired = append(f.acquired, key)
	f.mu.Unlock()

	m.Lock()
	return func(context.Context) error {
		m.Unlock()
		return nil
	}, nil
}

type ocrFake struct {
	read        domain.ReadResult
	readErr     error
	layout      domain.LayoutResult
	layoutErr   error
	layoutCalls int
}

func (f *ocrFake) AnalyzeRead(context.Context, []byte, string) (domain.ReadResult, error) {
	if f.readErr != nil {
		return domain.ReadResult{}, f.readErr
	}
	return f.read, nil
}

func (f *ocrFake) AnalyzeLayout(context.Context, []byte, string) (domain.LayoutResult, error) {
	f.layoutCalls++
	if f.layoutErr != nil {
		return domain.LayoutResult{}, f.layoutErr
	}
	return f.layout, nil
}

type classifierFake struct {
	cls     domain.ClassificationResult
	err     error
	allowed []domain.DocumentType
}

func (f *classifierFake) Classify(_ context.Context, _ string, allowed []domain.DocumentType) (domain.ClassificationResult, error) {
	f.allowed = allowed
	if f.err != nil {
		return domain.ClassificationResult{}, f.err
	}
	return f.cls, nil
}

type extractorFake struct {
	data  map[domain.DocumentType]domain.StructuredData
	err   error
	calls []domain.DocumentType
	input []ports.ExtractInput
}

func (f *extractorFake) Extract(_ context.Context, docType domain.DocumentType, in ports.ExtractInput) (domain.StructuredData, error) {
	f.calls = append(f.calls, docType)
	f.input = append(f.input, in)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.data[docType]
	if !ok {
		return nil, domain.NewExtractionError(docType, "", errors.New("no sample"))
	}
	if letter, ok := data.(domain.OfferingLetter); ok {
		letter.IsSigned = in.Handwritten
		return letter, nil
	}
	return data, nil
}

type blobFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (f *blobFake) Upload(_ context.Context, path, _ string, body io.Reader) (domain.BlobObject, error) {
	if f.err != nil {
		return domain.BlobObject{}, f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return domain.BlobObject{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[path] = data
	return domain.BlobObject{
		Path:       path,
		URL:        "https://blob.example/" + path,
		Size:       int64(len(data)),
		UploadedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}, nil
}

func (f *blobFake) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type observerFake struct {
	mu       sync.Mutex
	stages   []domain.PipelineState
	finished []domain.PipelineState
}

func (f *observerFake) StageCompleted(stage domain.PipelineState, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, stage)
}

func (f *observerFake) RunFinished(state domain.PipelineState, _ domain.DocumentType, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, state)
}

func (f *observerFake) DiscrepanciesFlagged(domain.EntityKind, int) {}

func newEntityUseCase(store *entityStoreFake) *EntityUseCase {
	return NewEntityUseCase(store, &lockerFake{}, merge.NewEngine(), discrepancy.NewAnalyzer())
}
