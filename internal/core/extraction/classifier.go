package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

var defaultAliases = map[string]domain.DocumentType{
	"kartu tanda penduduk":       domain.DocumentKTP,
	"identity card":              domain.DocumentKTP,
	"kartu keluarga":             domain.DocumentKK,
	"family card":                domain.DocumentKK,
	"buku tabungan":              domain.DocumentBukuTabungan,
	"bank book":                  domain.DocumentBukuTabungan,
	"savings book":               domain.DocumentBukuTabungan,
	"diploma":                    domain.DocumentIjazah,
	"nomor pokok wajib pajak":    domain.DocumentNPWP,
	"offering letter":            domain.DocumentSignedOfferLetter,
	"offer letter":               domain.DocumentSignedOfferLetter,
	"signed offer letter":        domain.DocumentSignedOfferLetter,
	"tax invoice":                domain.DocumentTaxInvoice,
	"faktur pajak":               domain.DocumentTaxInvoice,
	"tax invoice faktur pajak":   domain.DocumentTaxInvoice,
	"general ledger":             domain.DocumentGeneralLedger,
	"buku besar":                 domain.DocumentGeneralLedger,
	"unknown":                    domain.DocumentUnknown,
	"other":                      domain.DocumentUnknown,
}

type ClassifierOptions struct {
	// Aliases maps extra human labels to document types, on top of the
	// built-in ones. Keys are matched case and punctuation insensitively.
	Aliases map[string]domain.DocumentType
}

type Classifier struct {
	chat    ports.ChatCompleter
	aliases map[string]domain.DocumentType
}

func NewClassifier(chat ports.ChatCompleter, opts ClassifierOptions) *Classifier {
	aliases := make(map[string]domain.DocumentType, len(defaultAliases)+len(opts.Aliases))
	for label, t := range defaultAliases {
		aliases[label] = t
	}
	for label, t := range opts.Aliases {
		aliases[normalizeLabel(label)] = t
	}
	return &Classifier{chat: chat, aliases: aliases}
}

// classificationResponse tolerates the key spellings models tend to use.
type classificationResponse struct {
	Category        string   `json:"category"`
	DocumentType    string   `json:"document_type"`
	Classification  string   `json:"classification"`
	Confidence      *float64 `json:"confidence"`
	ConfidenceScore *float64 `json:"confidence_score"`
}

// Classify asks the model for one of allowed (every known type when empty).
// Labels that cannot be mapped, or that fall outside allowed, come back as
// Unknown with zero confidence.
func (c *Classifier) Classify(ctx context.Context, text string, allowed []domain.DocumentType) (domain.ClassificationResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.ClassificationResult{}, domain.WrapError(domain.ErrInvalidInput, "classify", fmt.Errorf("document text is empty"))
	}
	if len(allowed) == 0 {
		allowed = domain.KnownDocumentTypes
	}

	raw, err := c.chat.Complete(ctx, ports.CompletionRequest{
		Instructions: classificationInstructions(allowed),
		UserText:     snippet(text),
		SchemaName:   "document_classification",
		Schema:       classificationSchema(allowed),
	})
	if err != nil {
		return domain.ClassificationResult{}, domain.WrapError(domain.ErrClassification, "classify", err)
	}

	var resp classificationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.ClassificationResult{}, domain.WrapError(domain.ErrClassification, "classify", fmt.Errorf("decode response: %w", err))
	}
	label := firstNonEmpty(resp.Category, resp.DocumentType, resp.Classification)
	if label == "" {
		return domain.ClassificationResult{}, domain.WrapError(domain.ErrClassification, "classify", fmt.Errorf("response has no category"))
	}

	docType := c.resolve(label)
	if docType == domain.DocumentUnknown || !containsType(allowed, docType) {
		if docType != domain.DocumentUnknown {
			slog.Warn("classification_out_of_scope", "label", label, "type", docType)
		}
		return domain.ClassificationResult{Category: domain.DocumentUnknown, Confidence: 0}, nil
	}

	confidence := 0.0
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	} else if resp.ConfidenceScore != nil {
		confidence = *resp.ConfidenceScore
	}
	return domain.ClassificationResult{Category: docType, Confidence: clamp01(confidence)}, nil
}

func (c *Classifier) resolve(label string) domain.DocumentType {
	if t, ok := domain.ParseDocumentType(label); ok {
		return t
	}
	if t, ok := c.aliases[normalizeLabel(label)]; ok {
		return t
	}
	return domain.DocumentUnknown
}

func normalizeLabel(label string) string {
	fields := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

func containsType(types []domain.DocumentType, t domain.DocumentType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
