package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// Extractor is the offline OCR backend. It reads the embedded text layer of
// PDFs and office formats and cannot see scans or handwriting.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) AnalyzeRead(ctx context.Context, data []byte, contentType string) (domain.ReadResult, error) {
	text, err := e.text(ctx, data, contentType)
	if err != nil {
		return domain.ReadResult{}, err
	}
	out := domain.ReadResult{Content: text}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out.Paragraphs = append(out.Paragraphs, domain.Paragraph{Content: line})
		}
	}
	return out, nil
}

// AnalyzeLayout cannot detect handwriting, so StylesDetected stays false.
func (e *Extractor) AnalyzeLayout(ctx context.Context, data []byte, contentType string) (domain.LayoutResult, error) {
	text, err := e.text(ctx, data, contentType)
	if err != nil {
		return domain.LayoutResult{}, err
	}
	return domain.LayoutResult{Content: text}, nil
}

func (e *Extractor) text(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "local extract", errors.New("document is empty"))
	}

	mime := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch {
	case mime == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF")):
		return pdfText(data)
	case strings.HasPrefix(mime, "text/plain") || (mime == "" && utf8.Valid(data)):
		return strings.TrimSpace(string(data)), nil
	case strings.HasPrefix(mime, "image/"):
		return "", domain.WrapError(domain.ErrInvalidInput, "local extract", fmt.Errorf("images need the document intelligence backend: %s", mime))
	default:
		res, err := docconv.Convert(bytes.NewReader(data), mime, false)
		if err != nil {
			return "", domain.WrapError(domain.ErrInvalidInput, "local extract", fmt.Errorf("convert %s: %w", mime, err))
		}
		return strings.TrimSpace(res.Body), nil
	}
}

func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "local extract", fmt.Errorf("open pdf: %w", err))
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "local extract", fmt.Errorf("read pdf text: %w", err))
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
