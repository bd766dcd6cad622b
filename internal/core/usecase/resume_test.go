package usecase

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

func resumeSample() domain.Resume {
	return domain.Resume{
		FirstName:              strPtr("Siti"),
		LastName:               strPtr("Nurhaliza"),
		Email:                  strPtr(" Siti Nurhaliza <siti@example.com> "),
		Phone:                  strPtr("+62 812 3456 7890"),
		City:                   strPtr("Bandung"),
		Country:                strPtr("Indonesia"),
		Address:                strPtr("Jl. Merdeka No. 1"),
		PostalCode:             strPtr("40162"),
		BirthDate:              strPtr("1980-01-01"),
		Gender:                 strPtr("Female"),
		TotalYearsOfExperience: decimal.NewNullDecimal(decimal.RequireFromString("9.5")),
		Skills:                 []string{" Accounting ", "", "SAP"},
	}
}

func newResumeUseCase(ocr *ocrFake, ext *extractorFake, store *entityStoreFake) (*ResumeUseCase, *blobFake) {
	blobs := &blobFake{}
	return NewResumeUseCase(ocr, ext, blobs, newEntityUseCase(store)), blobs
}

func TestResumeParseTextExtractsWithoutClassifying(t *testing.T) {
	ext := &extractorFake{data: map[domain.DocumentType]domain.StructuredData{domain.DocumentResume: resumeSample()}}
	store := newEntityStoreFake(cand001())
	uc, blobs := newResumeUseCase(&ocrFake{}, ext, store)

	doc, err := uc.ParseText(context.Background(), "Siti Nurhaliza, Accountant")
	if err != nil {
		t.Fatalf("ParseText() error = %v", err)
	}
	if doc.Type != domain.DocumentResume || doc.ExtractedContent.Content != "Siti Nurhaliza, Accountant" {
		t.Fatalf("unexpected document %+v", doc)
	}
	if !reflect.DeepEqual(ext.calls, []domain.DocumentType{domain.DocumentResume}) {
		t.Fatalf("extractor calls = %v", ext.calls)
	}
	if len(blobs.objects) != 0 || store.replaces != 0 {
		t.Fatalf("parsing must not store anything")
	}
}

func TestResumeParseRejectsEmptyInput(t *testing.T) {
	ext := &extractorFake{}
	uc, _ := newResumeUseCase(&ocrFake{}, ext, newEntityStoreFake())

	if _, err := uc.ParseText(context.Background(), "  "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank text, got %v", err)
	}
	if _, err := uc.ParseFile(context.Background(), "cv.pdf", "application/pdf", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty file, got %v", err)
	}
	if _, err := uc.ApplyToCandidate(context.Background(), "", "cv.pdf", "application/pdf", []byte("%PDF")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing candidate, got %v", err)
	}
	if len(ext.calls) != 0 {
		t.Fatalf("extractor must not be called, got %v", ext.calls)
	}
}

func TestResumeParseFileKeepsBoundingBoxes(t *testing.T) {
	ocr := &ocrFake{read: domain.ReadResult{
		Content:    "Siti Nurhaliza\nsiti@example.com",
		Paragraphs: []domain.Paragraph{{Content: "Siti Nurhaliza", Regions: []domain.BoundingBox{{Page: 1, Geometry: []float64{1, 2, 3, 4}}}}},
	}}
	ext := &extractorFake{data: map[domain.DocumentType]domain.StructuredData{domain.DocumentResume: resumeSample()}}
	uc, _ := newResumeUseCase(ocr, ext, newEntityStoreFake())

	doc, err := uc.ParseFile(context.Background(), "cv.pdf", "application/pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if doc.Name != "cv.pdf" || len(doc.ExtractedContent.BoundingBoxes) != 1 {
		t.Fatalf("unexpected document %+v", doc)
	}
	if _, ok := doc.ExtractedContent.StructuredData.(domain.Resume); !ok {
		t.Fatalf("expected Resume, got %T", doc.ExtractedContent.StructuredData)
	}
}

func TestResumeApplyPatchesContactFieldsOnly(t *testing.T) {
	store := newEntityStoreFake(cand001())
	ocr := &ocrFake{read: domain.ReadResult{Content: "Siti Nurhaliza\nsiti@example.com"}}
	ext := &extractorFake{data: map[domain.DocumentType]domain.StructuredData{domain.DocumentResume: resumeSample()}}
	uc, blobs := newResumeUseCase(ocr, ext, store)

	outcome, err := uc.ApplyToCandidate(context.Background(), "cand-001", "my cv.pdf", "application/pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("ApplyToCandidate() error = %v", err)
	}
	after := outcome.After
	if after.Email == nil || *after.Email != "siti@example.com" {
		t.Fatalf("email = %v", after.Email)
	}
	if after.Phone == nil || *after.Phone != "+62 812 3456 7890" {
		t.Fatalf("phone = %v", after.Phone)
	}
	if !reflect.DeepEqual(after.Skills, []string{"Accounting", "SAP"}) {
		t.Fatalf("skills = %v", after.Skills)
	}
	if after.Address == nil || *after.Address.City != "Bandung" || *after.Address.Zip != "40162" {
		t.Fatalf("address = %+v", after.Address)
	}
	if *after.DateOfBirth != "1992-05-15" || after.Gender != nil || after.Name != "Siti Nurhaliza" {
		t.Fatalf("identity fields must not come from a resume: %+v", after)
	}

	doc, ok := after.LegalDocuments.ByType(domain.DocumentResume)
	if !ok || doc.URL == "" || doc.LastUpdated == "" || doc.Name != "my cv.pdf" {
		t.Fatalf("resume document not kept with blob metadata: %+v", doc)
	}
	if _, ok := after.LegalDocuments.ByType(domain.DocumentKK); !ok {
		t.Fatalf("existing documents must stay")
	}
	for path := range blobs.objects {
		if !strings.HasPrefix(path, "candidate/cand-001/") || !strings.HasSuffix(path, "_my_cv.pdf") {
			t.Fatalf("unexpected blob path %q", path)
		}
	}

	var found bool
	for _, d := range outcome.Discrepancies {
		if d.Field == "dateOfBirth" && d.Target.Type == string(domain.DocumentResume) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the resume birth date to be flagged, got %+v", outcome.Discrepancies)
	}
	if stored := store.stored(domain.EntityCandidate, "cand-001"); stored.Version != 2 {
		t.Fatalf("expected version 2, got %d", stored.Version)
	}
}

func TestResumePatchSkipsMalformedContact(t *testing.T) {
	resume := domain.Resume{
		Email: strPtr("not an email"),
		Phone: strPtr(strings.Repeat("9", 40)),
		City:  strPtr("  "),
	}
	patch := resumePatch(domain.Document{
		Type:             domain.DocumentResume,
		ExtractedContent: domain.ExtractedContent{StructuredData: resume},
	})
	if patch.Email != nil || patch.Phone != nil || patch.Address != nil || patch.Skills != nil {
		t.Fatalf("malformed values must be left out: %+v", patch)
	}
	if len(patch.LegalDocuments) != 1 {
		t.Fatalf("the resume itself is always attached")
	}
}

func TestResumeApplyToMissingCandidate(t *testing.T) {
	ocr := &ocrFake{read: domain.ReadResult{Content: "cv"}}
	ext := &extractorFake{data: map[domain.DocumentType]domain.StructuredData{domain.DocumentResume: resumeSample()}}
	uc, _ := newResumeUseCase(ocr, ext, newEntityStoreFake())

	_, err := uc.ApplyToCandidate(context.Background(), "nobody", "cv.pdf", "application/pdf", []byte("%PDF"))
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}
