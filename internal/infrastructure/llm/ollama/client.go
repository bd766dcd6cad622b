package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

// Client is the self-hosted alternative to the OpenAI client. Structured
// output uses /api/chat with the JSON schema passed as format.
type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, chatModel, embedModel string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

func (c *Client) Complete(ctx context.Context, req ports.CompletionRequest) (json.RawMessage, error) {
	reqBody := map[string]any{
		"model":  c.chatModel,
		"stream": false,
		"messages": []map[string]string{
			{"role": "system", "content": req.Instructions},
			{"role": "user", "content": req.UserText},
		},
		"options": map[string]any{"temperature": 0},
	}
	if req.Schema != nil {
		reqBody["format"] = req.Schema
	} else {
		reqBody["format"] = "json"
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	err := c.executor.Execute(ctx, "ollama_chat", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/chat", reqBody, &response, "chat")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("ollama chat", err, resilience.ClassifyHTTPError)
	}

	content := extractJSONObject(strings.TrimSpace(response.Message.Content))
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("ollama chat returned invalid json")
	}
	return json.RawMessage(content), nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": c.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := c.executor.Execute(ctx, "ollama_embed", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/embed", request, &response, "embed")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("ollama embed", err, resilience.ClassifyHTTPError)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(texts), len(response.Embeddings))
	}
	return response.Embeddings, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrTemporary, "ollama embed", errors.New("empty embedding result"))
	}
	return vectors[0], nil
}

// Smaller models sometimes wrap the object in prose.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
