package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"

	service = "openai"
)

type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	APIVersion  string
	ChatModel   string
	EmbedModel  string
	Temperature float64
	Timeout     time.Duration
}

// Client talks to an OpenAI compatible chat/completions and embeddings API.
// With Provider azure the model names are deployment names.
type Client struct {
	cfg        Config
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		executor:   executor,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete asks for a strict json_schema response and returns the message
// content. The content is checked to be a JSON object, not validated
// against the schema.
func (c *Client) Complete(ctx context.Context, req ports.CompletionRequest) (json.RawMessage, error) {
	start := time.Now()
	body := map[string]any{
		"temperature": c.cfg.Temperature,
		"messages": []chatMessage{
			{Role: "system", Content: req.Instructions},
			{Role: "user", Content: req.UserText},
		},
	}
	if c.cfg.Provider != ProviderAzure {
		body["model"] = c.cfg.ChatModel
	}
	if req.Schema != nil {
		body["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   req.SchemaName,
				"strict": true,
				"schema": req.Schema,
			},
		}
	} else {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	var response chatResponse
	err := c.executor.Execute(ctx, "openai_chat", func(callCtx context.Context) error {
		return c.postJSON(callCtx, c.endpoint("chat/completions", c.cfg.ChatModel), body, &response, "chat")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("openai chat", err, resilience.ClassifyHTTPError)
	}

	if len(response.Choices) == 0 {
		return nil, errors.New("no choices in chat response")
	}
	choice := response.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", choice.Message.Refusal)
	}
	content := strings.TrimSpace(choice.Message.Content)
	if !json.Valid([]byte(content)) || !strings.HasPrefix(content, "{") {
		return nil, fmt.Errorf("chat content is not a json object (finish_reason=%s)", choice.FinishReason)
	}

	slog.Debug("llm_complete",
		"provider", c.cfg.Provider,
		"schema", req.SchemaName,
		"finish_reason", choice.FinishReason,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return json.RawMessage(content), nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := map[string]any{"input": texts}
	if c.cfg.Provider != ProviderAzure {
		body["model"] = c.cfg.EmbedModel
	}

	var response struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	err := c.executor.Execute(ctx, "openai_embed", func(callCtx context.Context) error {
		return c.postJSON(callCtx, c.endpoint("embeddings", c.cfg.EmbedModel), body, &response, "embed")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("openai embed", err, resilience.ClassifyHTTPError)
	}

	out := make([][]float32, len(texts))
	for _, item := range response.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		out[item.Index] = item.Embedding
	}
	for i, vector := range out {
		if vector == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrTemporary, "openai embed", errors.New("empty embedding result"))
	}
	return vectors[0], nil
}

func (c *Client) endpoint(path, model string) string {
	if c.cfg.Provider == ProviderAzure {
		return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
			c.cfg.BaseURL, url.PathEscape(model), path, url.QueryEscape(c.cfg.APIVersion))
	}
	return c.cfg.BaseURL + "/" + path
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Provider == ProviderAzure {
		req.Header.Set("api-key", c.cfg.APIKey)
	} else if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError(service, operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
