package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

func newEntityRepoWithMock(t *testing.T) (*EntityRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewEntityRepository(db), mock
}

func sampleCandidate() *domain.Entity {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	status := "applied"
	return &domain.Entity{
		ID:         "c-1",
		ExternalID: "cand-001",
		Kind:       domain.EntityCandidate,
		Version:    1,
		Name:       "Siti Nurhaliza",
		Status:     &status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestEntityRepositoryGetByIDUsesVersionColumn(t *testing.T) {
	repo, mock := newEntityRepoWithMock(t)
	rows := sqlmock.NewRows([]string{"version", "data"}).
		AddRow(int64(4), []byte(`{"id":"c-1","candidateId":"cand-001","name":"Siti","version":1,"photoUrl":"p.png"}`))
	mock.ExpectQuery("FROM entities").
		WithArgs("candidate", "cand-001").
		WillReturnRows(rows)

	entity, err := repo.GetByID(context.Background(), domain.EntityCandidate, "cand-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if entity.Version != 4 {
		t.Fatalf("expected version 4 from column, got %d", entity.Version)
	}
	if entity.ExternalID != "cand-001" || entity.Kind != domain.EntityCandidate {
		t.Fatalf("unexpected entity: %+v", entity)
	}
	if _, ok := entity.Extra["photoUrl"]; !ok {
		t.Fatalf("expected unknown stored key in extra")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEntityRepositoryGetByIDNotFound(t *testing.T) {
	repo, mock := newEntityRepoWithMock(t)
	mock.ExpectQuery("FROM entities").
		WithArgs("employee", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), domain.EntityEmployee, "missing")
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestEntityRepositoryCreateMapsUniqueViolation(t *testing.T) {
	repo, mock := newEntityRepoWithMock(t)
	mock.ExpectExec("INSERT INTO entities").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), sampleCandidate())
	if !errors.Is(err, domain.ErrMergeConflict) {
		t.Fatalf("expected ErrMergeConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEntityRepositoryReplaceDetectsStaleVersion(t *testing.T) {
	repo, mock := newEntityRepoWithMock(t)
	entity := sampleCandidate()
	entity.Version = 3

	mock.ExpectExec("UPDATE entities").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM entities").
		WithArgs("candidate", "c-1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(5)))

	err := repo.Replace(context.Background(), entity, 2)
	if !errors.Is(err, domain.ErrMergeConflict) {
		t.Fatalf("expected ErrMergeConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEntityRepositoryReplaceMissingEntity(t *testing.T) {
	repo, mock := newEntityRepoWithMock(t)

	mock.ExpectExec("UPDATE entities").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM entities").
		WillReturnError(sql.ErrNoRows)

	err := repo.Replace(context.Background(), sampleCandidate(), 1)
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestEntityRepositoryReplaceSucceeds(t *testing.T) {
	repo, mock := newEntityRepoWithMock(t)
	entity := sampleCandidate()
	entity.Version = 2

	mock.ExpectExec("UPDATE entities").
		WithArgs("candidate", "c-1", int64(2), "Siti Nurhaliza", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Replace(context.Background(), entity, 1); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEntityRepositoryQueryAppliesFilters(t *testing.T) {
	repo, mock := newEntityRepoWithMock(t)
	rows := sqlmock.NewRows([]string{"kind", "version", "data"}).
		AddRow("candidate", int64(2), []byte(`{"id":"c-1","candidateId":"cand-001","name":"Siti"}`)).
		AddRow("candidate", int64(1), []byte(`{"id":"c-2","candidateId":"cand-002","name":"Budi"}`))
	mock.ExpectQuery("FROM entities").
		WithArgs("candidate", "applied", "%go\\_dev%", 10).
		WillReturnRows(rows)

	got, err := repo.Query(context.Background(), domain.EntityFilter{
		Kind:     domain.EntityCandidate,
		Status:   "applied",
		Position: "go_dev",
		Limit:    10,
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 || got[0].ExternalID != "cand-001" || got[1].Version != 1 {
		t.Fatalf("unexpected entities: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEntityRepositoryQueryWithoutLimit(t *testing.T) {
	repo, mock := newEntityRepoWithMock(t)
	mock.ExpectQuery("FROM entities").
		WithArgs().
		WillReturnRows(sqlmock.NewRows([]string{"kind", "version", "data"}))

	got, err := repo.Query(context.Background(), domain.EntityFilter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
