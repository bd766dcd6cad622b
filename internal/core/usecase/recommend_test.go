package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

type embedderFake struct {
	vectors [][]float32
	err     error
	texts   []string
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type candidateIndexFake struct {
	hits     []ports.CandidateHit
	limit    int
	upserted []string
}

func (f *candidateIndexFake) UpsertCandidate(_ context.Context, candidate *domain.Entity, _ []float32) error {
	f.upserted = append(f.upserted, candidate.ID)
	return nil
}

func (f *candidateIndexFake) SearchCandidates(_ context.Context, _ []float32, limit int) ([]ports.CandidateHit, error) {
	f.limit = limit
	return f.hits, nil
}

func TestRecommendSkipsStaleHits(t *testing.T) {
	store := newEntityStoreFake(cand001())
	index := &candidateIndexFake{hits: []ports.CandidateHit{{EntityID: "cand-001", Score: 0.91}, {EntityID: "gone", Score: 0.5}}}
	embedder := &embedderFake{}
	uc := NewRecommendUseCase(embedder, index, store)

	matches, err := uc.Recommend(context.Background(), domain.JobQuery{Title: "Accountant", Skills: "SAP, tax"})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(matches) != 1 || matches[0].Candidate.ID != "cand-001" || matches[0].Score != 0.91 {
		t.Fatalf("unexpected matches %+v", matches)
	}
	if index.limit != defaultRecommendLimit*rerankOverfetch {
		t.Fatalf("expected overfetched default limit, got %d", index.limit)
	}
	if !strings.Contains(embedder.texts[0], "Job title: Accountant") || !strings.Contains(embedder.texts[0], "Skills: SAP, tax") {
		t.Fatalf("unexpected query text %q", embedder.texts[0])
	}
}

func TestRecommendRequiresJobText(t *testing.T) {
	uc := NewRecommendUseCase(&embedderFake{}, &candidateIndexFake{}, newEntityStoreFake())
	if _, err := uc.Recommend(context.Background(), domain.JobQuery{Title: "  "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIndexEntityOnlyIndexesCandidates(t *testing.T) {
	index := &candidateIndexFake{}
	embedder := &embedderFake{vectors: [][]float32{{1, 2}}}
	uc := NewRecommendUseCase(embedder, index, newEntityStoreFake())

	candidate := cand001()
	candidate.Position = strPtr("Accountant")
	candidate.LegalDocuments = domain.LegalDocuments{{
		Type: domain.DocumentIjazah,
		ExtractedContent: domain.ExtractedContent{StructuredData: domain.Ijazah{
			EducationLevel: strPtr("S1"), Major: strPtr("Akuntansi"),
		}},
	}}
	if err := uc.IndexEntity(context.Background(), candidate); err != nil {
		t.Fatalf("IndexEntity() error = %v", err)
	}
	if err := uc.IndexEntity(context.Background(), &domain.Entity{ID: "f-1", Kind: domain.EntityTaxFiling}); err != nil {
		t.Fatalf("IndexEntity() error = %v", err)
	}
	if len(index.upserted) != 1 || index.upserted[0] != "cand-001" {
		t.Fatalf("expected only the candidate indexed, got %v", index.upserted)
	}
	if !strings.Contains(embedder.texts[0], "Education: S1 Akuntansi") {
		t.Fatalf("candidate text missing education: %q", embedder.texts[0])
	}
}
