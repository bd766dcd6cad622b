package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

func TestClassifyHTTPError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{"rate limited", &HTTPStatusError{StatusCode: http.StatusTooManyRequests}, ErrorClassification{Retryable: true, RecordFailure: true}},
		{"bad request", &HTTPStatusError{StatusCode: http.StatusBadRequest}, ErrorClassification{}},
		{"canceled", context.Canceled, ErrorClassification{}},
		{"open circuit", gobreaker.ErrOpenState, ErrorClassification{Retryable: true, RecordFailure: true}},
		{"unknown", errors.New("boom"), ErrorClassification{RecordFailure: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyHTTPError(tc.err); got != tc.want {
				t.Fatalf("ClassifyHTTPError() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	err := WrapTemporaryIfNeeded("chat", &HTTPStatusError{Service: "openai", StatusCode: http.StatusServiceUnavailable, Status: "503"}, nil)
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	permanent := &HTTPStatusError{Service: "openai", StatusCode: http.StatusUnauthorized, Status: "401"}
	if err := WrapTemporaryIfNeeded("chat", permanent, nil); errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("401 must not be temporary, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		header http.Header
		want   time.Duration
	}{
		{"seconds", http.Header{"Retry-After": {"3"}}, 3 * time.Second},
		{"azure millis", http.Header{"Retry-After-Ms": {"1500"}, "Retry-After": {"2"}}, 1500 * time.Millisecond},
		{"http date", http.Header{"Retry-After": {now.Add(4 * time.Second).Format(http.TimeFormat)}}, 4 * time.Second},
		{"past date", http.Header{"Retry-After": {now.Add(-time.Minute).Format(http.TimeFormat)}}, 0},
		{"garbage", http.Header{"Retry-After": {"soon"}}, 0},
		{"missing", http.Header{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseRetryAfter(tc.header, now); got != tc.want {
				t.Fatalf("parseRetryAfter() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClassifyHTTPErrorCarriesRetryAfter(t *testing.T) {
	err := fmt.Errorf("chat: %w", &HTTPStatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: 2 * time.Second})
	if got := ClassifyHTTPError(err); got.RetryAfter != 2*time.Second || !got.Retryable {
		t.Fatalf("ClassifyHTTPError() = %+v", got)
	}
}
