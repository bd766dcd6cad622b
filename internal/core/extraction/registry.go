package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

// Extractor turns raw document text into the structured variant of one
// document type.
type Extractor struct {
	docType domain.DocumentType
	schema  map[string]any
	checker *jsonschema.Schema
	chat    ports.ChatCompleter
}

func (e *Extractor) Type() domain.DocumentType {
	return e.docType
}

func (e *Extractor) Extract(ctx context.Context, in ports.ExtractInput) (domain.StructuredData, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract "+string(e.docType), fmt.Errorf("document text is empty"))
	}

	slog.Debug("extraction_start", "type", e.docType, "text_len", len(in.Text))
	raw, err := e.chat.Complete(ctx, ports.CompletionRequest{
		Instructions: extractionInstructions(e.docType),
		UserText:     snippet(in.Text),
		SchemaName:   schemaName(e.docType),
		Schema:       e.schema,
	})
	if err != nil {
		return nil, domain.NewExtractionError(e.docType, "", err)
	}
	if err := validateJSON(e.checker, raw); err != nil {
		slog.Warn("extraction_invalid_response", "type", e.docType, "error", err.Error())
		return nil, domain.NewExtractionError(e.docType, string(raw), err)
	}

	target := domain.NewStructuredData(e.docType)
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, domain.NewExtractionError(e.docType, string(raw), fmt.Errorf("decode response: %w", err))
	}
	if letter, ok := target.(*domain.OfferingLetter); ok {
		letter.IsSigned = nil
		if in.Handwritten != nil {
			signed := *in.Handwritten
			letter.IsSigned = &signed
		}
	}
	return domain.DerefStructured(target), nil
}

// ExtractableTypes is every classifiable type plus the types that are only
// ever extracted on request.
var ExtractableTypes = append(append([]domain.DocumentType(nil), domain.KnownDocumentTypes...), domain.DocumentResume)

// Registry dispatches extraction by document type. Every extractable type
// has exactly one extractor.
type Registry struct {
	extractors map[domain.DocumentType]*Extractor
}

func NewRegistry(chat ports.ChatCompleter) (*Registry, error) {
	r := &Registry{extractors: make(map[domain.DocumentType]*Extractor, len(ExtractableTypes))}
	for _, t := range ExtractableTypes {
		schema := SchemaFor(t)
		checker, err := compileSchema(schemaName(t), schema)
		if err != nil {
			return nil, err
		}
		r.extractors[t] = &Extractor{docType: t, schema: schema, checker: checker, chat: chat}
	}
	return r, nil
}

func (r *Registry) Extractor(t domain.DocumentType) (*Extractor, bool) {
	e, ok := r.extractors[t]
	return e, ok
}

func (r *Registry) Types() []domain.DocumentType {
	out := make([]domain.DocumentType, 0, len(r.extractors))
	for _, t := range ExtractableTypes {
		if _, ok := r.extractors[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) Extract(ctx context.Context, t domain.DocumentType, in ports.ExtractInput) (domain.StructuredData, error) {
	e, ok := r.extractors[t]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("no extractor for document type %q", t))
	}
	return e.Extract(ctx, in)
}

func schemaName(t domain.DocumentType) string {
	return strings.ToLower(string(t)) + "_extraction"
}
