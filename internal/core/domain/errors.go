package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrUploadNotFound = errors.New("upload not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTemporary      = errors.New("temporary failure")

	ErrClassification = errors.New("classification failed")
	ErrExtraction     = errors.New("extraction failed")
	ErrValidation     = errors.New("validation failed")
	ErrMergeConflict  = errors.New("merge conflict")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ExtractionError carries the raw model response that failed schema validation.
type ExtractionError struct {
	Type        DocumentType
	RawResponse string
	Err         error
}

func (e *ExtractionError) Error() string {
	if e == nil {
		return "extraction error"
	}
	return fmt.Sprintf("extract %s: %v", e.Type, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtraction, e.Err}
}

func NewExtractionError(docType DocumentType, raw string, err error) error {
	return &ExtractionError{Type: docType, RawResponse: raw, Err: err}
}

// StageError reports the pipeline state at which a run stopped. Run keeps the
// output of the last state that completed.
type StageError struct {
	Stage PipelineState
	Run   *PipelineRun
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return "pipeline stage error"
	}
	return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ValidationError lists the fields that made a merged entity invalid.
type ValidationError struct {
	Fields []FieldError
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "entity is invalid"
	}
	msg := "entity is invalid: "
	for i, f := range e.Fields {
		if i > 0 {
			msg += "; "
		}
		msg += f.Field + " " + f.Message
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
