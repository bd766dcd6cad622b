package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

type EntityUseCase struct {
	store    ports.EntityStore
	locker   ports.EntityLocker
	merger   ports.EntityMerger
	analyzer ports.DiscrepancyAnalyzer
	indexer  ports.EntityIndexer
	observer ports.PipelineObserver
	now      func() time.Time
}

func NewEntityUseCase(
	store ports.EntityStore,
	locker ports.EntityLocker,
	merger ports.EntityMerger,
	analyzer ports.DiscrepancyAnalyzer,
) *EntityUseCase {
	return &EntityUseCase{
		store:    store,
		locker:   locker,
		merger:   merger,
		analyzer: analyzer,
		observer: noopObserver{},
		now:      time.Now,
	}
}

// WithIndexer makes every successful write refresh the entity's search
// index entry. Index failures are logged, never returned.
func (uc *EntityUseCase) WithIndexer(indexer ports.EntityIndexer) *EntityUseCase {
	uc.indexer = indexer
	return uc
}

func (uc *EntityUseCase) WithObserver(observer ports.PipelineObserver) *EntityUseCase {
	if observer != nil {
		uc.observer = observer
	}
	return uc
}

// Create stores a first-time snapshot. No discrepancy check runs because
// there is nothing to compare against.
func (uc *EntityUseCase) Create(ctx context.Context, entity *domain.Entity) (*domain.Entity, error) {
	if entity == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create entity", errors.New("entity is required"))
	}
	created := entity.Clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if strings.TrimSpace(created.ExternalID) == "" {
		created.ExternalID = created.ID
	}
	now := uc.now().UTC()
	created.Version = 1
	created.CreatedAt = now
	created.UpdatedAt = now
	created.LegalDocuments = domain.LegalDocuments{}.Merge(created.LegalDocuments)
	if created.Discrepancies == nil {
		created.Discrepancies = []domain.Discrepancy{}
	}

	if err := uc.merger.Validate(created); err != nil {
		return nil, fmt.Errorf("validate entity: %w", err)
	}
	if err := uc.store.Create(ctx, created); err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}
	uc.index(ctx, created)
	return created, nil
}

func (uc *EntityUseCase) Get(ctx context.Context, kind domain.EntityKind, id string) (*domain.Entity, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get entity", errors.New("id is required"))
	}
	entity, err := uc.store.GetByID(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("fetch entity by id: %w", err)
	}
	return entity, nil
}

func (uc *EntityUseCase) List(ctx context.Context, filter domain.EntityFilter) ([]*domain.Entity, error) {
	entities, err := uc.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	return entities, nil
}

func (uc *EntityUseCase) Update(ctx context.Context, kind domain.EntityKind, id string, patch domain.EntityPatch) (*domain.Entity, error) {
	outcome, err := uc.ApplyPatch(ctx, kind, id, patch)
	if err != nil {
		return nil, err
	}
	return outcome.After, nil
}

// ApplyPatch runs one serialized read-modify-write: lock, load, merge,
// analyze against the loaded snapshot, then a versioned replace. id may be
// internal or external; the lock is always taken on the internal id.
func (uc *EntityUseCase) ApplyPatch(ctx context.Context, kind domain.EntityKind, id string, patch domain.EntityPatch) (*domain.MergeOutcome, error) {
	if patch.IsEmpty() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update entity", errors.New("patch is empty"))
	}
	target, err := uc.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	unlock, err := uc.locker.Lock(ctx, lockKey(kind, target.ID))
	if err != nil {
		return nil, fmt.Errorf("lock entity: %w", err)
	}
	defer func() {
		if unlockErr := unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			slog.Warn("entity_unlock_failed", "kind", kind, "id", target.ID, "error", unlockErr.Error())
		}
	}()

	outcome, err := uc.mergeAndAnalyze(ctx, kind, target.ID, patch)
	if err != nil {
		return nil, err
	}
	outcome.After.Version = outcome.Before.Version + 1
	if err := uc.store.Replace(ctx, outcome.After, outcome.Before.Version); err != nil {
		return nil, fmt.Errorf("replace entity: %w", err)
	}
	uc.observer.DiscrepanciesFlagged(kind, len(outcome.Discrepancies))
	uc.index(ctx, outcome.After)
	return outcome, nil
}

// Preview computes what ApplyPatch would write without taking the lock or
// writing anything.
func (uc *EntityUseCase) Preview(ctx context.Context, kind domain.EntityKind, id string, patch domain.EntityPatch) (*domain.MergeOutcome, error) {
	return uc.mergeAndAnalyze(ctx, kind, id, patch)
}

func (uc *EntityUseCase) mergeAndAnalyze(ctx context.Context, kind domain.EntityKind, id string, patch domain.EntityPatch) (*domain.MergeOutcome, error) {
	before, err := uc.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	after, err := uc.merger.Merge(before, patch)
	if err != nil {
		return nil, fmt.Errorf("merge entity: %w", err)
	}
	discrepancies := uc.analyzer.Analyze(before, after)
	after.Discrepancies = discrepancies
	return &domain.MergeOutcome{Before: before, After: after, Discrepancies: discrepancies}, nil
}

func (uc *EntityUseCase) index(ctx context.Context, entity *domain.Entity) {
	if uc.indexer == nil {
		return
	}
	if err := uc.indexer.IndexEntity(ctx, entity); err != nil {
		slog.Warn("entity_index_failed", "kind", entity.Kind, "id", entity.ID, "error", err.Error())
	}
}

func lockKey(kind domain.EntityKind, id string) string {
	return "entity:" + string(kind) + ":" + id
}

type noopObserver struct{}

func (noopObserver) StageCompleted(domain.PipelineState, time.Duration) {}

func (noopObserver) RunFinished(domain.PipelineState, domain.DocumentType, time.Duration) {}

func (noopObserver) DiscrepanciesFlagged(domain.EntityKind, int) {}
