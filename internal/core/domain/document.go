package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type DocumentType string

const (
	DocumentKTP               DocumentType = "KTP"
	DocumentKK                DocumentType = "KK"
	DocumentIjazah            DocumentType = "Ijazah"
	DocumentBukuTabungan      DocumentType = "BukuTabungan"
	DocumentNPWP              DocumentType = "NPWP"
	DocumentSignedOfferLetter DocumentType = "SignedOfferLetter"
	DocumentInvoice           DocumentType = "Invoice"
	DocumentTaxInvoice        DocumentType = "TaxInvoice"
	DocumentGeneralLedger     DocumentType = "GeneralLedger"
	DocumentUnknown           DocumentType = "Unknown"

	// DocumentResume is parsed on request and never offered to the
	// classifier, so it is not in KnownDocumentTypes.
	DocumentResume DocumentType = "Resume"
)

// KnownDocumentTypes lists every type that has a structured schema, in
// classification prompt order.
var KnownDocumentTypes = []DocumentType{
	DocumentKTP,
	DocumentKK,
	DocumentIjazah,
	DocumentBukuTabungan,
	DocumentNPWP,
	DocumentSignedOfferLetter,
	DocumentInvoice,
	DocumentTaxInvoice,
	DocumentGeneralLedger,
}

func (t DocumentType) Known() bool {
	for _, known := range KnownDocumentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseDocumentType matches canonical tags case-insensitively.
func ParseDocumentType(raw string) (DocumentType, bool) {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, string(DocumentUnknown)) {
		return DocumentUnknown, true
	}
	for _, known := range KnownDocumentTypes {
		if strings.EqualFold(trimmed, string(known)) {
			return known, true
		}
	}
	return "", false
}

type BoundingBox struct {
	Page     int       `json:"page"`
	Geometry []float64 `json:"geometry"`
	Label    string    `json:"label"`
}

type ExtractedContent struct {
	Content        string         `json:"content"`
	StructuredData StructuredData `json:"structured_data"`
	BoundingBoxes  []BoundingBox  `json:"bounding_boxes"`
}

// Document is one uploaded artifact. Entities keep them as legal documents.
// Extra holds stored document keys the typed model does not know.
type Document struct {
	Type             DocumentType     `json:"type"`
	Name             string           `json:"name"`
	URL              string           `json:"url"`
	LastUpdated      string           `json:"last_updated"`
	ExtractedContent ExtractedContent `json:"extracted_content"`

	Extra map[string]json.RawMessage `json:"-"`

	// stored is the form the document was read from, if any.
	stored json.RawMessage
}

type documentJSON struct {
	Type             DocumentType `json:"type"`
	Name             string       `json:"name"`
	URL              string       `json:"url"`
	LastUpdated      string       `json:"last_updated"`
	ExtractedContent struct {
		Content        string          `json:"content"`
		StructuredData json.RawMessage `json:"structured_data"`
		BoundingBoxes  []BoundingBox   `json:"bounding_boxes"`
	} `json:"extracted_content"`
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var aux documentJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	structured, err := DecodeStructuredData(aux.Type, aux.ExtractedContent.StructuredData)
	if err != nil {
		return fmt.Errorf("document %s: %w", aux.Type, err)
	}
	*d = Document{
		Type:        aux.Type,
		Name:        aux.Name,
		URL:         aux.URL,
		LastUpdated: aux.LastUpdated,
		ExtractedContent: ExtractedContent{
			Content:        aux.ExtractedContent.Content,
			StructuredData: structured,
			BoundingBoxes:  aux.ExtractedContent.BoundingBoxes,
		},
	}
	return nil
}

type ClassificationResult struct {
	Category   DocumentType `json:"category"`
	Confidence float64      `json:"confidence"`
}

// BlobObject is what the blob store reports for an uploaded file.
type BlobObject struct {
	Path       string    `json:"path"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Paragraph struct {
	Content string        `json:"content"`
	Regions []BoundingBox `json:"regions"`
}

type ReadResult struct {
	Content    string      `json:"content"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

type TextStyle struct {
	IsHandwritten bool    `json:"is_handwritten"`
	Confidence    float64 `json:"confidence"`
}

type LayoutResult struct {
	Content string      `json:"content"`
	Styles  []TextStyle `json:"styles"`
	// StylesDetected is false when the backend cannot tell handwriting
	// from print, so an empty Styles list says nothing.
	StylesDetected bool `json:"styles_detected"`
}

// Handwritten reports whether layout analysis saw handwriting, which on an
// offering letter means a signature.
func (r LayoutResult) Handwritten() bool {
	for _, style := range r.Styles {
		if style.IsHandwritten {
			return true
		}
	}
	return false
}

// Signature is Handwritten when the backend detected styles and nil
// otherwise.
func (r LayoutResult) Signature() *bool {
	if !r.StylesDetected {
		return nil
	}
	signed := r.Handwritten()
	return &signed
}

// BoundingBoxes flattens paragraph regions into labelled boxes.
func (r ReadResult) BoundingBoxes() []BoundingBox {
	out := make([]BoundingBox, 0, len(r.Paragraphs))
	for _, p := range r.Paragraphs {
		for _, region := range p.Regions {
			out = append(out, BoundingBox{
				Page:     region.Page,
				Geometry: region.Geometry,
				Label:    p.Content,
			})
		}
	}
	return out
}
