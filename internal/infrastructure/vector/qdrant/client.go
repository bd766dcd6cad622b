package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

// Candidate points use a deterministic id derived from the entity id, so
// re-indexing a candidate overwrites its previous vector.
var candidateNamespace = uuid.MustParse("8f5b7c52-3c1e-4b53-9a7e-2d0f3b6a51c4")

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func pointID(entityID string) string {
	return uuid.NewSHA1(candidateNamespace, []byte(entityID)).String()
}

func (c *Client) UpsertCandidate(ctx context.Context, candidate *domain.Entity, vector []float32) error {
	if candidate == nil || len(vector) == 0 {
		return errors.New("qdrant upsert: candidate and vector are required")
	}
	if err := c.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	payload := map[string]any{
		"entity_id":   candidate.ID,
		"external_id": candidate.ExternalID,
		"name":        candidate.Name,
	}
	if candidate.Position != nil {
		payload["position"] = *candidate.Position
	}
	if candidate.Status != nil {
		payload["status"] = *candidate.Status
	}

	reqBody := map[string]any{"points": []map[string]any{{
		"id":      pointID(candidate.ID),
		"vector":  vector,
		"payload": payload,
	}}}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	err := c.executor.Execute(ctx, "qdrant_upsert", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPut, url, reqBody, nil, "upsert")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return resilience.WrapTemporaryIfNeeded("qdrant upsert", err, resilience.ClassifyHTTPError)
	}
	return nil
}

func (c *Client) SearchCandidates(ctx context.Context, vector []float32, limit int) ([]ports.CandidateHit, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": []string{"entity_id"},
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	err := c.executor.Execute(ctx, "qdrant_search", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPost, url, reqBody, &searchResp, "search")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		var statusErr *resilience.HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			// Nothing indexed yet.
			return []ports.CandidateHit{}, nil
		}
		return nil, resilience.WrapTemporaryIfNeeded("qdrant search", err, resilience.ClassifyHTTPError)
	}

	out := make([]ports.CandidateHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		id := getStringPayload(r.Payload, "entity_id")
		if id == "" {
			continue
		}
		out = append(out, ports.CandidateHit{EntityID: id, Score: r.Score})
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.doJSON(ctx, http.MethodPut, url, reqBody, nil, "ensure collection")

	// 409 means the collection already exists.
	var statusErr *resilience.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		err = nil
	}
	if err != nil {
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError("qdrant", operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
