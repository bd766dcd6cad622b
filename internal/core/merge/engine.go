package merge

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/normalize"
)

// Engine reconciles a partial update against a stored entity snapshot and
// validates the result before anything is written.
type Engine struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewEngine() *Engine {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("loosedate", func(fl validator.FieldLevel) bool {
		_, ok := normalize.ParseDate(fl.Field().String())
		return ok
	})
	return &Engine{validate: v, now: time.Now}
}

// Merge returns a new snapshot; existing is never modified. Scalar patch
// fields overwrite, legal documents are replaced per type, and Extra is
// carried over as is.
func (e *Engine) Merge(existing *domain.Entity, patch domain.EntityPatch) (*domain.Entity, error) {
	if existing == nil {
		return nil, domain.WrapError(domain.ErrEntityNotFound, "merge entity", errors.New("no existing snapshot"))
	}

	merged := existing.Clone()
	overwrite(&merged.Name, patch.Name)
	overwritePtr(&merged.Email, patch.Email)
	overwritePtr(&merged.Phone, patch.Phone)
	overwritePtr(&merged.Gender, patch.Gender)
	overwritePtr(&merged.DateOfBirth, patch.DateOfBirth)
	overwritePtr(&merged.BirthPlace, patch.BirthPlace)
	overwritePtr(&merged.NIK, patch.NIK)
	overwritePtr(&merged.Position, patch.Position)
	overwritePtr(&merged.Department, patch.Department)
	overwritePtr(&merged.Status, patch.Status)
	overwritePtr(&merged.AppliedDate, patch.AppliedDate)
	overwritePtr(&merged.JoinedDate, patch.JoinedDate)
	overwritePtr(&merged.Notes, patch.Notes)
	overwritePtr(&merged.NPWP, patch.NPWP)
	overwritePtr(&merged.URN, patch.URN)
	overwritePtr(&merged.TaxPeriod, patch.TaxPeriod)
	if patch.Address != nil {
		addr := *patch.Address
		merged.Address = &addr
	}
	if patch.Skills != nil {
		merged.Skills = append([]string(nil), patch.Skills...)
	}
	if len(patch.LegalDocuments) > 0 {
		merged.LegalDocuments = merged.LegalDocuments.Merge(patch.LegalDocuments)
	}
	merged.UpdatedAt = e.now().UTC()

	if err := e.Validate(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Validate checks struct constraints and that every legal document carries
// the structured variant of its declared type.
func (e *Engine) Validate(entity *domain.Entity) error {
	var fields []domain.FieldError
	if err := e.validate.Struct(entity); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate entity: %w", err)
		}
		for _, fe := range verrs {
			fields = append(fields, domain.FieldError{Field: fieldPath(fe), Message: describe(fe)})
		}
	}
	for i, doc := range entity.LegalDocuments {
		field := fmt.Sprintf("legal_documents[%d].extracted_content.structured_data", i)
		if doc.Type == "" {
			fields = append(fields, domain.FieldError{Field: fmt.Sprintf("legal_documents[%d].type", i), Message: "is required"})
			continue
		}
		data := doc.ExtractedContent.StructuredData
		if doc.Type == domain.DocumentUnknown {
			if data != nil && !isEmpty(data) {
				fields = append(fields, domain.FieldError{Field: field, Message: "must be empty for Unknown documents"})
			}
			continue
		}
		if !domain.StructuredMatchesType(doc.Type, data) {
			fields = append(fields, domain.FieldError{Field: field, Message: fmt.Sprintf("does not match document type %s", doc.Type)})
		}
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

func isEmpty(data domain.StructuredData) bool {
	_, ok := data.(domain.EmptyData)
	return ok
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "loosedate":
		return "must be a date"
	case "numeric":
		return "must contain digits only"
	case "len":
		return "must be " + fe.Param() + " characters long"
	case "max":
		return "must be at most " + fe.Param() + " characters long"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

func overwrite(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func overwritePtr(dst **string, src *string) {
	if src != nil {
		v := *src
		*dst = &v
	}
}
