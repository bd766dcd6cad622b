package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

const defaultRecommendLimit = 5

// RecommendUseCase ranks stored candidates against a job description by
// vector similarity, then reranks the hits lexically. It also keeps the
// candidate index up to date.
type RecommendUseCase struct {
	embedder ports.Embedder
	index    ports.CandidateIndex
	store    ports.EntityStore
}

func NewRecommendUseCase(embedder ports.Embedder, index ports.CandidateIndex, store ports.EntityStore) *RecommendUseCase {
	return &RecommendUseCase{embedder: embedder, index: index, store: store}
}

func (uc *RecommendUseCase) Recommend(ctx context.Context, query domain.JobQuery) ([]domain.CandidateMatch, error) {
	text := jobText(query)
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "recommend candidates", errors.New("job description is required"))
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultRecommendLimit
	}

	vector, err := uc.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed job query: %w", err)
	}
	hits, err := uc.index.SearchCandidates(ctx, vector, limit*rerankOverfetch)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}

	matches := make([]domain.CandidateMatch, 0, len(hits))
	for _, hit := range hits {
		candidate, err := uc.store.GetByID(ctx, domain.EntityCandidate, hit.EntityID)
		if err != nil {
			if domain.IsKind(err, domain.ErrEntityNotFound) {
				slog.Warn("recommend_stale_index_entry", "candidate_id", hit.EntityID)
				continue
			}
			return nil, fmt.Errorf("fetch candidate: %w", err)
		}
		matches = append(matches, domain.CandidateMatch{Candidate: candidate, Score: hit.Score})
	}
	return rerankCandidates(query, matches, limit), nil
}

// IndexEntity embeds a candidate profile and upserts it into the index.
// Other kinds are ignored.
func (uc *RecommendUseCase) IndexEntity(ctx context.Context, entity *domain.Entity) error {
	if entity == nil || entity.Kind != domain.EntityCandidate {
		return nil
	}
	vectors, err := uc.embedder.Embed(ctx, []string{candidateText(entity)})
	if err != nil {
		return fmt.Errorf("embed candidate: %w", err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("embed candidate: expected 1 vector, got %d", len(vectors))
	}
	if err := uc.index.UpsertCandidate(ctx, entity, vectors[0]); err != nil {
		return fmt.Errorf("upsert candidate vector: %w", err)
	}
	return nil
}

func jobText(q domain.JobQuery) string {
	var parts []string
	add := func(label, value string) {
		if v := strings.TrimSpace(value); v != "" {
			parts = append(parts, label+": "+v)
		}
	}
	add("Job title", q.Title)
	add("Description", q.Description)
	add("Skills", q.Skills)
	add("Education", q.Education)
	return strings.Join(parts, "\n")
}

func candidateText(e *domain.Entity) string {
	var b strings.Builder
	b.WriteString("Name: " + e.Name + "\n")
	if e.Position != nil {
		b.WriteString("Position: " + *e.Position + "\n")
	}
	if len(e.Skills) > 0 {
		b.WriteString("Skills: " + strings.Join(e.Skills, ", ") + "\n")
	}
	if doc, ok := e.LegalDocuments.ByType(domain.DocumentIjazah); ok {
		if ijazah, ok := doc.ExtractedContent.StructuredData.(domain.Ijazah); ok {
			b.WriteString("Education: " + strings.TrimSpace(deref(ijazah.EducationLevel)+" "+deref(ijazah.Major)+" "+deref(ijazah.InstitutionName)) + "\n")
		}
	}
	if e.Notes != nil {
		b.WriteString("Notes: " + *e.Notes + "\n")
	}
	return strings.TrimSpace(b.String())
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
