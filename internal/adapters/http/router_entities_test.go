package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/core/domain"
)

func TestCreateEntityUsesKindFromPath(t *testing.T) {
	entities := &entityServiceFake{}
	handler := newTestHandler(config.Config{}, Services{Entities: entities})

	req := httptest.NewRequest(http.MethodPost, "/v1/tax-filings", bytes.NewBufferString(`{"external_id":"F-1","name":"PT Maju","kind":"candidate"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if entities.created.Kind != domain.EntityTaxFiling || entities.created.ExternalID != "F-1" {
		t.Fatalf("unexpected created entity: %+v", entities.created)
	}
}

func TestCreateEntityConflictIs409(t *testing.T) {
	entities := &entityServiceFake{err: domain.WrapError(domain.ErrMergeConflict, "insert entity", errors.New("exists"))}
	handler := newTestHandler(config.Config{}, Services{Entities: entities})

	req := httptest.NewRequest(http.MethodPost, "/v1/candidates", bytes.NewBufferString(`{"external_id":"cand-001","name":"Siti"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestGetEntityReturns404ForNotFound(t *testing.T) {
	entities := &entityServiceFake{err: domain.WrapError(domain.ErrEntityNotFound, "get", errors.New("id=missing"))}
	handler := newTestHandler(config.Config{}, Services{Entities: entities})

	req := httptest.NewRequest(http.MethodGet, "/v1/employees/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestListEntitiesPassesFilters(t *testing.T) {
	entities := &entityServiceFake{entity: &domain.Entity{ID: "c-1", Kind: domain.EntityCandidate, Name: "Siti"}}
	handler := newTestHandler(config.Config{}, Services{Entities: entities})

	req := httptest.NewRequest(http.MethodGet, "/v1/candidates?status=applied&position=engineer&limit=5", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	want := domain.EntityFilter{Kind: domain.EntityCandidate, Status: "applied", Position: "engineer", Limit: 5}
	if entities.lastFilter != want {
		t.Fatalf("filter = %+v, want %+v", entities.lastFilter, want)
	}
}

func TestListEntitiesRejectsBadLimit(t *testing.T) {
	handler := newTestHandler(config.Config{}, Services{Entities: &entityServiceFake{}})
	req := httptest.NewRequest(http.MethodGet, "/v1/candidates?limit=-1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUpdateEntityValidationErrorListsFields(t *testing.T) {
	entities := &entityServiceFake{err: &domain.ValidationError{Fields: []domain.FieldError{{Field: "nik", Message: "must be 16 digits"}}}}
	handler := newTestHandler(config.Config{}, Services{Entities: entities})

	req := httptest.NewRequest(http.MethodPatch, "/v1/candidates/cand-001", bytes.NewBufferString(`{"nik":"123"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Fields) != 1 || resp.Fields[0].Field != "nik" {
		t.Fatalf("unexpected fields: %+v", resp.Fields)
	}
	if entities.lastPatch.NIK == nil || *entities.lastPatch.NIK != "123" {
		t.Fatalf("patch not decoded: %+v", entities.lastPatch)
	}
}

func TestExportEntitiesServesSpreadsheet(t *testing.T) {
	exporter := &exporterFake{}
	handler := newTestHandler(config.Config{}, Services{Exporter: exporter, Entities: &entityServiceFake{}})

	req := httptest.NewRequest(http.MethodGet, "/v1/tax-filings/export.xlsx", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if exporter.kind != domain.EntityTaxFiling {
		t.Fatalf("expected tax filing export, got %q", exporter.kind)
	}
	if res.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("unexpected content type %q", res.Header().Get("Content-Type"))
	}
}

func TestRecommendCandidates(t *testing.T) {
	recommender := &recommenderFake{}
	handler := newTestHandler(config.Config{}, Services{Recommender: recommender})

	req := httptest.NewRequest(http.MethodPost, "/v1/candidates/recommend", bytes.NewBufferString(`{"job_title":"Backend Engineer","limit":3}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if recommender.lastQuery.Title != "Backend Engineer" || recommender.lastQuery.Limit != 3 {
		t.Fatalf("unexpected query: %+v", recommender.lastQuery)
	}
}

func TestMapErrorToHTTPStatusPrefersTemporaryOverExtraction(t *testing.T) {
	err := domain.NewExtractionError(domain.DocumentKTP, "", domain.WrapError(domain.ErrTemporary, "llm", errors.New("503")))
	if got := mapErrorToHTTPStatus(err); got != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", got)
	}
	if got := mapErrorToHTTPStatus(domain.NewExtractionError(domain.DocumentKTP, "{", errors.New("bad json"))); got != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", got)
	}
	if got := mapErrorToHTTPStatus(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
}
