package local

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

func TestAnalyzeReadPlainText(t *testing.T) {
	result, err := NewExtractor().AnalyzeRead(context.Background(), []byte("NIK: 1234\n\n Nama: Budi \n"), "text/plain; charset=utf-8")
	if err != nil {
		t.Fatalf("AnalyzeRead() error = %v", err)
	}
	if result.Content != "NIK: 1234\n\n Nama: Budi" {
		t.Fatalf("unexpected content %q", result.Content)
	}
	if len(result.Paragraphs) != 2 || result.Paragraphs[1].Content != "Nama: Budi" {
		t.Fatalf("unexpected paragraphs %+v", result.Paragraphs)
	}
}

func TestAnalyzeLayoutHasNoHandwriting(t *testing.T) {
	layout, err := NewExtractor().AnalyzeLayout(context.Background(), []byte("signed"), "")
	if err != nil {
		t.Fatalf("AnalyzeLayout() error = %v", err)
	}
	if layout.StylesDetected || layout.Signature() != nil {
		t.Fatalf("local backend must leave the signature unknown, got %+v", layout)
	}
}

func TestAnalyzeReadRejectsImagesAndEmpty(t *testing.T) {
	if _, err := NewExtractor().AnalyzeRead(context.Background(), []byte{0xff, 0xd8}, "image/jpeg"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for image, got %v", err)
	}
	if _, err := NewExtractor().AnalyzeRead(context.Background(), nil, "text/plain"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty, got %v", err)
	}
}
