package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/document-intake/internal/core/ports"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

func singleAttempt() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1, RetryInitialBackoff: time.Millisecond})
}

func TestCompleteSendsSchemaAsFormat(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"content":"Here you go: {\"nik\":null}"}}`))
	}))
	defer server.Close()

	client := New(server.URL, "llama3.1", "nomic-embed-text", singleAttempt())
	raw, err := client.Complete(context.Background(), ports.CompletionRequest{
		Instructions: "extract",
		UserText:     "KTP",
		Schema:       map[string]any{"type": "object"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if string(raw) != `{"nik":null}` {
		t.Fatalf("unexpected content %s", raw)
	}
	format, ok := payload["format"].(map[string]any)
	if !ok || format["type"] != "object" {
		t.Fatalf("expected schema as format, got %v", payload["format"])
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", singleAttempt())
	_, err := client.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestCompleteSurfacesModelErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"llama9\" not found, try pulling it first"}`))
	}))
	defer server.Close()

	client := New(server.URL, "llama9", "embed", singleAttempt())
	_, err := client.Complete(context.Background(), ports.CompletionRequest{UserText: "x"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), `model "llama9" not found`) || strings.Contains(err.Error(), `{"error"`) {
		t.Fatalf("expected unwrapped model error, got %v", err)
	}
}

func TestCompleteTreatsInlineErrorAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"out of memory"}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", singleAttempt())
	if _, err := client.Complete(context.Background(), ports.CompletionRequest{UserText: "x"}); err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("expected inline model error, got %v", err)
	}
}
