package httpadapter

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
	"github.com/kirillkom/document-intake/internal/observability/metrics"
)

const (
	serviceName      = "intake-api"
	maxUploadBytes   = 50 << 20
	maxJSONBodyBytes = 4 << 20
	multipartMemory  = 32 << 20
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Services are the inbound ports the router dispatches to. Nil services
// leave their routes unregistered.
type Services struct {
	Pipeline    ports.DocumentPipeline
	Entities    ports.EntityService
	Ingestor    ports.UploadIngestor
	Uploads     ports.UploadReader
	Recommender ports.CandidateRecommender
	Exporter    ports.EntityExporter
	Resumes     ports.ResumeParser
}

type Router struct {
	cfg     config.Config
	svc     Services
	metrics *metrics.HTTPServerMetrics
}

func NewRouter(cfg config.Config, svc Services) *Router {
	return &Router{cfg: cfg, svc: svc}
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	if rt.svc.Pipeline != nil {
		mux.HandleFunc("POST /v1/documents/classify", rt.classifyText)
		mux.HandleFunc("POST /v1/documents/analyze", rt.analyzeFile)
		mux.HandleFunc("POST /v1/{kind}/{id}/documents", rt.uploadDocument)
		mux.HandleFunc("POST /v1/{kind}/{id}/discrepancies", rt.analyzeDiscrepancies)
	}
	if rt.svc.Ingestor != nil {
		mux.HandleFunc("POST /v1/{kind}/{id}/documents/async", rt.enqueueDocument)
	}
	if rt.svc.Uploads != nil {
		mux.HandleFunc("GET /v1/uploads/{id}", rt.getUpload)
	}
	if rt.svc.Entities != nil {
		mux.HandleFunc("POST /v1/{kind}", rt.createEntity)
		mux.HandleFunc("GET /v1/{kind}", rt.listEntities)
		mux.HandleFunc("GET /v1/{kind}/{id}", rt.getEntity)
		mux.HandleFunc("PATCH /v1/{kind}/{id}", rt.updateEntity)
	}
	if rt.svc.Exporter != nil {
		// Literal per-kind paths; a {kind}/export.xlsx wildcard would
		// overlap with /v1/uploads/{id}.
		for _, kind := range []string{"candidates", "employees", "tax-filings"} {
			mux.HandleFunc("GET /v1/"+kind+"/export.xlsx", rt.exportEntities)
		}
	}
	if rt.svc.Resumes != nil {
		mux.HandleFunc("POST /v1/resumes/parse", rt.parseResumeText)
		mux.HandleFunc("POST /v1/resumes/analyze", rt.parseResumeFile)
		mux.HandleFunc("POST /v1/resumes/analyze/base64", rt.parseResumeBase64)
		mux.HandleFunc("POST /v1/candidates/{id}/resume", rt.applyResume)
	}
	if rt.svc.Recommender != nil {
		mux.HandleFunc("POST /v1/candidates/recommend", rt.recommendCandidates)
	}

	var handler http.Handler = mux
	handler = backpressureWithHook(handler, rt.cfg.MaxInFlight, rt.backpressureWait(), rt.recordRejected)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst, rt.recordRejected)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) backpressureWait() time.Duration {
	if rt.cfg.BackpressureWait > 0 {
		return rt.cfg.BackpressureWait
	}
	return 250 * time.Millisecond
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) classifyText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rt.svc.Pipeline.ClassifyAndExtract(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) analyzeFile(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rt.svc.Pipeline.AnalyzeFile(r.Context(), upload.filename, upload.contentType, upload.data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(w, r)
	if !ok {
		return
	}
	upload, err := readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := rt.svc.Pipeline.UploadAndExtract(r.Context(), domain.UploadRequest{
		Kind:        kind,
		EntityID:    r.PathValue("id"),
		Filename:    upload.filename,
		ContentType: upload.contentType,
		Data:        upload.data,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) enqueueDocument(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read upload", fmt.Errorf("multipart field 'file' is required: %w", err)))
		return
	}
	defer file.Close()

	upload, err := rt.svc.Ingestor.Enqueue(r.Context(), kind, r.PathValue("id"), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, upload)
}

func (rt *Router) getUpload(w http.ResponseWriter, r *http.Request) {
	upload, err := rt.svc.Uploads.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

func (rt *Router) analyzeDiscrepancies(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(w, r)
	if !ok {
		return
	}
	var patch domain.EntityPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	discrepancies, err := rt.svc.Pipeline.AnalyzeDiscrepancies(r.Context(), kind, r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"discrepancies": discrepancies})
}

func (rt *Router) createEntity(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(w, r)
	if !ok {
		return
	}
	var entity domain.Entity
	if err := decodeJSON(w, r, &entity); err != nil {
		writeError(w, r, err)
		return
	}
	entity.Kind = kind
	created, err := rt.svc.Entities.Create(r.Context(), &entity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (rt *Router) getEntity(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(w, r)
	if !ok {
		return
	}
	entity, err := rt.svc.Entities.Get(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (rt *Router) listEntities(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := domain.EntityFilter{
		Kind:     kind,
		Status:   strings.TrimSpace(query.Get("status")),
		Position: strings.TrimSpace(query.Get("position")),
		URN:      strings.TrimSpace(query.Get("urn")),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "list entities", fmt.Errorf("invalid limit %q", raw)))
			return
		}
		filter.Limit = limit
	}

	entities, err := rt.svc.Entities.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entities})
}

func (rt *Router) updateEntity(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(w, r)
	if !ok {
		return
	}
	var patch domain.EntityPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	entity, err := rt.svc.Entities.Update(r.Context(), kind, r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (rt *Router) exportEntities(w http.ResponseWriter, r *http.Request) {
	segment := strings.Split(strings.Trim(r.URL.Path, "/"), "/")[1]
	kind, ok := domain.ParseEntityKind(segment)
	if !ok {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "export entities", fmt.Errorf("unknown entity kind %q", segment)))
		return
	}

	var buf bytes.Buffer
	if err := rt.svc.Exporter.Export(r.Context(), kind, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, segment))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (rt *Router) recommendCandidates(w http.ResponseWriter, r *http.Request) {
	var query domain.JobQuery
	if err := decodeJSON(w, r, &query); err != nil {
		writeError(w, r, err)
		return
	}
	matches, err := rt.svc.Recommender.Recommend(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (rt *Router) parseResumeText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rt.svc.Resumes.ParseText(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) parseResumeFile(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rt.svc.Resumes.ParseFile(r.Context(), upload.filename, upload.contentType, upload.data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) parseResumeBase64(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename      string `json:"filename"`
		ContentType   string `json:"content_type"`
		ContentBase64 string `json:"content_base64"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.ContentBase64))
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode resume", fmt.Errorf("content_base64: %w", err)))
		return
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	doc, err := rt.svc.Resumes.ParseFile(r.Context(), req.Filename, contentType, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) applyResume(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	outcome, err := rt.svc.Resumes.ApplyToCandidate(r.Context(), r.PathValue("id"), upload.filename, upload.contentType, upload.data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, _ := outcome.After.LegalDocuments.ByType(domain.DocumentResume)
	writeJSON(w, http.StatusOK, map[string]any{
		"document":      doc,
		"entity":        outcome.After,
		"discrepancies": outcome.Discrepancies,
	})
}

// kindFromPath answers 404 for collections that are not entity kinds.
func kindFromPath(w http.ResponseWriter, r *http.Request) (domain.EntityKind, bool) {
	raw := r.PathValue("kind")
	kind, ok := domain.ParseEntityKind(raw)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error:     fmt.Sprintf("unknown collection %q", raw),
			RequestID: requestIDFromContext(r.Context()),
		})
		return "", false
	}
	return kind, true
}

type uploadedFile struct {
	filename    string
	contentType string
	data        []byte
}

func readUpload(w http.ResponseWriter, r *http.Request) (uploadedFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return uploadedFile{}, domain.WrapError(domain.ErrInvalidInput, "read upload", fmt.Errorf("parse multipart form: %w", err))
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return uploadedFile{}, domain.WrapError(domain.ErrInvalidInput, "read upload", fmt.Errorf("multipart field 'file' is required: %w", err))
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return uploadedFile{}, domain.WrapError(domain.ErrInvalidInput, "read upload", err)
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return uploadedFile{filename: header.Filename, contentType: contentType, data: data}, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("request body is empty"))
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
