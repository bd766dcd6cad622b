package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

// ResumeUseCase parses CVs. A resume is never classified: the caller says
// what it is, so extraction runs directly against the resume schema.
type ResumeUseCase struct {
	ocr       ports.OCR
	extractor ports.DocumentExtractor
	blobs     ports.BlobStore
	entities  entityPatcher
	now       func() time.Time
}

func NewResumeUseCase(ocr ports.OCR, extractor ports.DocumentExtractor, blobs ports.BlobStore, entities entityPatcher) *ResumeUseCase {
	return &ResumeUseCase{
		ocr:       ocr,
		extractor: extractor,
		blobs:     blobs,
		entities:  entities,
		now:       time.Now,
	}
}

// ParseText extracts a resume from plain text. Nothing is stored.
func (uc *ResumeUseCase) ParseText(ctx context.Context, text string) (*domain.Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse resume", errors.New("text is required"))
	}
	return uc.assemble(ctx, text, "", nil)
}

// ParseFile reads a resume file and extracts it. Nothing is stored.
func (uc *ResumeUseCase) ParseFile(ctx context.Context, filename, contentType string, data []byte) (*domain.Document, error) {
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse resume", errors.New("file is empty"))
	}
	read, err := uc.read(ctx, data, contentType)
	if err != nil {
		return nil, err
	}
	return uc.assemble(ctx, read.Content, filename, read.BoundingBoxes())
}

// ApplyToCandidate stores the file, parses it and merges the result into the
// candidate: contact fields, skills and the resume itself as a legal
// document. Name, birth date and gender stay with the identity documents.
func (uc *ResumeUseCase) ApplyToCandidate(ctx context.Context, candidateID, filename, contentType string, data []byte) (*domain.MergeOutcome, error) {
	switch {
	case strings.TrimSpace(candidateID) == "":
		return nil, domain.WrapError(domain.ErrInvalidInput, "apply resume", errors.New("candidate id is required"))
	case len(data) == 0:
		return nil, domain.WrapError(domain.ErrInvalidInput, "apply resume", errors.New("file is empty"))
	}

	path := fmt.Sprintf("%s/%s/%s_%s", domain.EntityCandidate, candidateID, uuid.NewString(), sanitizeFilename(filename))
	blob, err := uc.blobs.Upload(ctx, path, contentType, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}

	doc, err := uc.ParseFile(ctx, filename, contentType, data)
	if err != nil {
		return nil, err
	}
	doc.URL = blob.URL
	if !blob.UploadedAt.IsZero() {
		doc.LastUpdated = blob.UploadedAt.UTC().Format(time.RFC3339)
	}

	outcome, err := uc.entities.ApplyPatch(ctx, domain.EntityCandidate, candidateID, resumePatch(*doc))
	if err != nil {
		return nil, fmt.Errorf("merge resume: %w", err)
	}
	slog.Info("resume_applied",
		"candidate_id", candidateID,
		"blob_path", blob.Path,
		"discrepancies", len(outcome.Discrepancies),
	)
	return outcome, nil
}

func (uc *ResumeUseCase) read(ctx context.Context, data []byte, contentType string) (domain.ReadResult, error) {
	read, err := uc.ocr.AnalyzeRead(ctx, data, contentType)
	if err != nil {
		return domain.ReadResult{}, fmt.Errorf("analyze read: %w", err)
	}
	if strings.TrimSpace(read.Content) == "" {
		return domain.ReadResult{}, domain.WrapError(domain.ErrInvalidInput, "analyze read", errors.New("document has no readable text"))
	}
	return read, nil
}

func (uc *ResumeUseCase) assemble(ctx context.Context, text, name string, boxes []domain.BoundingBox) (*domain.Document, error) {
	started := uc.now()
	structured, err := uc.extractor.Extract(ctx, domain.DocumentResume, ports.ExtractInput{Text: text})
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", domain.DocumentResume, err)
	}
	if !domain.StructuredMatchesType(domain.DocumentResume, structured) {
		return nil, domain.NewExtractionError(domain.DocumentResume, "", fmt.Errorf("extractor returned %T", structured))
	}
	slog.Debug("resume_extracted", "text_len", len(text), "duration_ms", uc.now().Sub(started).Milliseconds())
	return &domain.Document{
		Type: domain.DocumentResume,
		Name: name,
		ExtractedContent: domain.ExtractedContent{
			Content:        text,
			StructuredData: structured,
			BoundingBoxes:  boxes,
		},
	}, nil
}

const maxPhoneLen = 32

// resumePatch maps the contact part of a parsed resume onto a candidate
// patch. Values that are missing or malformed are left out so they never
// overwrite what the candidate already has.
func resumePatch(doc domain.Document) domain.EntityPatch {
	patch := domain.EntityPatch{LegalDocuments: []domain.Document{doc}}
	resume, ok := doc.ExtractedContent.StructuredData.(domain.Resume)
	if !ok {
		return patch
	}

	if email := trimmed(resume.Email); email != nil {
		if addr, err := mail.ParseAddress(*email); err == nil {
			patch.Email = &addr.Address
		}
	}
	if phone := trimmed(resume.Phone); phone != nil && len(*phone) <= maxPhoneLen {
		patch.Phone = phone
	}

	skills := make([]string, 0, len(resume.Skills))
	for _, s := range resume.Skills {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}
	if len(skills) > 0 {
		patch.Skills = skills
	}

	addr := domain.Address{
		Detail:  trimmed(resume.Address),
		City:    trimmed(resume.City),
		Country: trimmed(resume.Country),
		Zip:     trimmed(resume.PostalCode),
	}
	if addr.Detail != nil || addr.City != nil {
		patch.Address = &addr
	}
	return patch
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
