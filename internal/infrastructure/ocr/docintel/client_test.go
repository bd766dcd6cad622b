package docintel

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

func newTestServer(t *testing.T, model string, result string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/documentintelligence/documentModels/"+model+":analyze":
			body, _ := io.ReadAll(r.Body)
			if string(body) != "%PDF" {
				t.Errorf("unexpected body %q", body)
			}
			w.Header().Set("Operation-Location", server.URL+"/operations/1")
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodGet && r.URL.Path == "/operations/1":
			if polls.Add(1) < 2 {
				_, _ = w.Write([]byte(`{"status":"running"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"succeeded","analyzeResult":` + result + `}`))
		default:
			http.NotFound(w, r)
		}
	}))
	return server, &polls
}

func testClient(url string) *Client {
	return New(Config{Endpoint: url, APIKey: "key", PollInterval: time.Millisecond}, resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1}))
}

func TestAnalyzeReadPollsUntilSucceeded(t *testing.T) {
	server, polls := newTestServer(t, modelRead, `{
		"content": "NIK 1234567890123456",
		"paragraphs": [{"content": "NIK 1234567890123456", "boundingRegions": [{"pageNumber": 1, "polygon": [1, 2, 3, 4]}]}]
	}`)
	defer server.Close()

	result, err := testClient(server.URL).AnalyzeRead(context.Background(), []byte("%PDF"), "application/pdf")
	if err != nil {
		t.Fatalf("AnalyzeRead() error = %v", err)
	}
	if result.Content != "NIK 1234567890123456" {
		t.Fatalf("unexpected content %q", result.Content)
	}
	boxes := result.BoundingBoxes()
	if len(boxes) != 1 || boxes[0].Page != 1 || len(boxes[0].Geometry) != 4 {
		t.Fatalf("unexpected boxes %+v", boxes)
	}
	if polls.Load() != 2 {
		t.Fatalf("expected 2 polls, got %d", polls.Load())
	}
}

func TestAnalyzeLayoutReportsHandwriting(t *testing.T) {
	server, _ := newTestServer(t, modelLayout, `{"content": "Offer", "styles": [{"isHandwritten": true, "confidence": 0.9}]}`)
	defer server.Close()

	layout, err := testClient(server.URL).AnalyzeLayout(context.Background(), []byte("%PDF"), "application/pdf")
	if err != nil {
		t.Fatalf("AnalyzeLayout() error = %v", err)
	}
	if signed := layout.Signature(); signed == nil || !*signed {
		t.Fatalf("expected handwriting, got %+v", layout.Styles)
	}
}

func TestAnalyzeFailedOperation(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Operation-Location", server.URL+"/operations/9")
			w.WriteHeader(http.StatusAccepted)
			return
		}
		_, _ = w.Write([]byte(`{"status":"failed","error":{"code":"InvalidContent","message":"corrupt file"}}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).AnalyzeRead(context.Background(), []byte("%PDF"), "")
	if err == nil || !strings.Contains(err.Error(), "corrupt file") {
		t.Fatalf("expected failed operation error, got %v", err)
	}
}

func TestAnalyzeRejectsEmptyDocument(t *testing.T) {
	_, err := testClient("http://unused").AnalyzeRead(context.Background(), nil, "")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
