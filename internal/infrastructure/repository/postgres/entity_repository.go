package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const uniqueViolation = "23505"

// EntityRepository stores each entity as its camelCase JSON document plus
// a few columns for filtering. The version column guards Replace.
type EntityRepository struct {
	db *sql.DB
}

func NewEntityRepository(db *sql.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

func (r *EntityRepository) Create(ctx context.Context, entity *domain.Entity) error {
	data, err := domain.EncodeStoredEntity(entity)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO entities (kind, id, external_id, version, name, status, position, urn, data, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		string(entity.Kind), entity.ID, entity.ExternalID, entity.Version, entity.Name,
		entity.Status, entity.Position, entity.URN, data, entity.CreatedAt, entity.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.WrapError(domain.ErrMergeConflict, "insert entity", fmt.Errorf("%s %s already exists", entity.Kind, entity.ExternalID))
		}
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

// GetByID accepts the internal id or the external id.
func (r *EntityRepository) GetByID(ctx context.Context, kind domain.EntityKind, id string) (*domain.Entity, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT version, data
FROM entities
WHERE kind = $1 AND (id = $2 OR external_id = $2)
ORDER BY (id = $2) DESC
LIMIT 1
`, string(kind), id)

	var (
		version int64
		data    []byte
	)
	if err := row.Scan(&version, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrEntityNotFound, "get entity", fmt.Errorf("%s id=%s", kind, id))
		}
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	return decodeRow(kind, version, data)
}

func (r *EntityRepository) Replace(ctx context.Context, entity *domain.Entity, expectedVersion int64) error {
	data, err := domain.EncodeStoredEntity(entity)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE entities
SET version = $3, name = $4, status = $5, position = $6, urn = $7, data = $8, updated_at = $9
WHERE kind = $1 AND id = $2 AND version = $10
`,
		string(entity.Kind), entity.ID, entity.Version, entity.Name, entity.Status, entity.Position,
		entity.URN, data, entity.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("replace entity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace entity rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var current int64
	err = r.db.QueryRowContext(ctx, `SELECT version FROM entities WHERE kind = $1 AND id = $2`, string(entity.Kind), entity.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrEntityNotFound, "replace entity", fmt.Errorf("%s id=%s", entity.Kind, entity.ID))
	}
	if err != nil {
		return fmt.Errorf("read entity version: %w", err)
	}
	return domain.WrapError(domain.ErrMergeConflict, "replace entity", fmt.Errorf("stored version %d, expected %d", current, expectedVersion))
}

// Query lists entities newest first. A zero limit returns every match.
func (r *EntityRepository) Query(ctx context.Context, filter domain.EntityFilter) ([]*domain.Entity, error) {
	query := `
SELECT kind, version, data
FROM entities
WHERE 1 = 1
`
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf("AND "+clause+"\n", len(args))
	}
	if filter.Kind != "" {
		add("kind = $%d", string(filter.Kind))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Position != "" {
		add("position ILIKE $%d", "%"+escapeLike(filter.Position)+"%")
	}
	if filter.URN != "" {
		add("urn = $%d", filter.URN)
	}
	query += "ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Entity, 0)
	for rows.Next() {
		var (
			kind    string
			version int64
			data    []byte
		)
		if err := rows.Scan(&kind, &version, &data); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entity, err := decodeRow(domain.EntityKind(kind), version, data)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

func decodeRow(kind domain.EntityKind, version int64, data []byte) (*domain.Entity, error) {
	entity, err := domain.DecodeStoredEntity(kind, data)
	if err != nil {
		return nil, err
	}
	entity.Version = version
	return entity, nil
}

func escapeLike(v string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(v)
}
