package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

type queueFake struct {
	uploadID string
	err      error
}

func (f *queueFake) PublishUploadQueued(_ context.Context, uploadID string) error {
	if f.err != nil {
		return f.err
	}
	f.uploadID = uploadID
	return nil
}

func (f *queueFake) SubscribeUploadQueued(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

func TestEnqueueUploadSuccess(t *testing.T) {
	repo := &uploadRepoFake{}
	blobs := &blobFake{}
	queue := &queueFake{}
	uc := NewIngestUploadUseCase(repo, newEntityStoreFake(cand001()), blobs, queue)

	upload, err := uc.Enqueue(context.Background(), domain.EntityCandidate, "cand-001", "ktp scan 1.pdf", "application/pdf", bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if upload.ID == "" {
		t.Fatalf("expected upload id")
	}
	if upload.Status != domain.UploadQueued {
		t.Fatalf("expected status queued, got %s", upload.Status)
	}
	if repo.created == nil {
		t.Fatalf("expected repo.Create call")
	}
	if queue.uploadID != upload.ID {
		t.Fatalf("expected queued upload id %s, got %s", upload.ID, queue.uploadID)
	}
	if !strings.HasPrefix(upload.StoragePath, "candidate/cand-001/") || !strings.HasSuffix(upload.StoragePath, "_ktp_scan_1.pdf") {
		t.Fatalf("unexpected storage path %s", upload.StoragePath)
	}
	if string(blobs.objects[upload.StoragePath]) != "hello" {
		t.Fatalf("expected stored body hello, got %q", blobs.objects[upload.StoragePath])
	}
}

func TestEnqueueUploadRejectsUnknownEntity(t *testing.T) {
	repo := &uploadRepoFake{}
	blobs := &blobFake{}
	uc := NewIngestUploadUseCase(repo, newEntityStoreFake(), blobs, &queueFake{})

	_, err := uc.Enqueue(context.Background(), domain.EntityCandidate, "ghost", "ktp.pdf", "application/pdf", bytes.NewBufferString("x"))
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
	if len(blobs.objects) != 0 || repo.created != nil {
		t.Fatalf("nothing may be stored for a missing entity")
	}
}

func TestEnqueueUploadRejectsUnknownKind(t *testing.T) {
	uc := NewIngestUploadUseCase(&uploadRepoFake{}, newEntityStoreFake(), &blobFake{}, &queueFake{})
	_, err := uc.Enqueue(context.Background(), domain.EntityKind("vendor"), "v-1", "a.pdf", "application/pdf", bytes.NewBufferString("x"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEnqueueUploadQueueError(t *testing.T) {
	uc := NewIngestUploadUseCase(&uploadRepoFake{}, newEntityStoreFake(cand001()), &blobFake{}, &queueFake{err: errors.New("queue down")})

	_, err := uc.Enqueue(context.Background(), domain.EntityCandidate, "cand-001", "ktp.pdf", "application/pdf", bytes.NewBufferString("hello"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "publish upload event") {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "passwd",
		"KTP Budi (1).jpg": "KTP_Budi__1_.jpg",
		"":                 "document.bin",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
