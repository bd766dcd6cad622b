package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

// errorEnvelope is the body Ollama sends with non-2xx replies.
type errorEnvelope struct {
	Error string `json:"error"`
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(operation, resp)
	}

	// A 200 can still carry an error when the model fails mid-generation.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", operation, err)
	}
	var envelope errorEnvelope
	if json.Unmarshal(raw, &envelope) == nil && strings.TrimSpace(envelope.Error) != "" {
		return &resilience.HTTPStatusError{
			Service:    "ollama",
			Operation:  operation,
			StatusCode: http.StatusBadGateway,
			Status:     "model error",
			Body:       envelope.Error,
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// statusError unwraps the JSON error message so logs show "model not
// found" rather than the raw envelope.
func statusError(operation string, resp *http.Response) error {
	statusErr := resilience.NewHTTPStatusError("ollama", operation, resp)
	var envelope errorEnvelope
	if json.Unmarshal([]byte(statusErr.Body), &envelope) == nil && envelope.Error != "" {
		statusErr.Body = envelope.Error
	}
	return statusErr
}
