package httpadapter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

type errorResponse struct {
	Error       string                 `json:"error"`
	RequestID   string                 `json:"request_id,omitempty"`
	Stage       domain.PipelineState   `json:"stage,omitempty"`
	States      []domain.PipelineState `json:"states,omitempty"`
	Fields      []domain.FieldError    `json:"fields,omitempty"`
	RawResponse string                 `json:"raw_response,omitempty"`
}

// errorKinds is checked in order: an extraction that failed because the
// model was unreachable is a 503, not a 502.
var errorKinds = []struct {
	kind   error
	status int
}{
	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrUnauthorized, http.StatusUnauthorized},
	{domain.ErrEntityNotFound, http.StatusNotFound},
	{domain.ErrUploadNotFound, http.StatusNotFound},
	{domain.ErrMergeConflict, http.StatusConflict},
	{domain.ErrValidation, http.StatusUnprocessableEntity},
	{domain.ErrTemporary, http.StatusServiceUnavailable},
	{domain.ErrClassification, http.StatusBadGateway},
	{domain.ErrExtraction, http.StatusBadGateway},
}

const internalErrorMessage = "internal error"

// classifyError returns the status and the client-facing message for err.
// The message is the kind's own text; the wrapped chain can carry provider
// bodies and driver errors and only goes to the log.
func classifyError(err error) (int, string) {
	for _, k := range errorKinds {
		if domain.IsKind(err, k.kind) {
			return k.status, k.kind.Error()
		}
	}
	return http.StatusInternalServerError, internalErrorMessage
}

func mapErrorToHTTPStatus(err error) int {
	status, _ := classifyError(err)
	return status
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classifyError(err)
	resp := errorResponse{
		Error:     message,
		RequestID: requestIDFromContext(r.Context()),
	}

	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		resp.Stage = stageErr.Stage
		if stageErr.Run != nil {
			resp.States = stageErr.Run.History
		}
	}
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		resp.Fields = validationErr.Fields
	}
	var extractionErr *domain.ExtractionError
	if errors.As(err, &extractionErr) {
		resp.RawResponse = extractionErr.RawResponse
	}

	attrs := []any{"request_id", resp.RequestID, "path", r.URL.Path, "status", status, "error", err.Error()}
	if status >= http.StatusInternalServerError {
		slog.Error("http_request_failed", attrs...)
	} else {
		slog.Warn("http_request_failed", attrs...)
	}
	writeJSON(w, status, resp)
}
