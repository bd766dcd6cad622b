package docintel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

const (
	modelRead   = "prebuilt-read"
	modelLayout = "prebuilt-layout"

	defaultAPIVersion = "2024-11-30"
)

type Config struct {
	Endpoint     string
	APIKey       string
	APIVersion   string
	PollInterval time.Duration
	Timeout      time.Duration
}

// Client calls the Document Intelligence analyze API: submit the bytes,
// then poll the Operation-Location until the analysis settles.
type Client struct {
	cfg        Config
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

type boundingRegion struct {
	PageNumber int       `json:"pageNumber"`
	Polygon    []float64 `json:"polygon"`
}

type analyzeResult struct {
	Content    string `json:"content"`
	Paragraphs []struct {
		Content         string           `json:"content"`
		BoundingRegions []boundingRegion `json:"boundingRegions"`
	} `json:"paragraphs"`
	Styles []struct {
		IsHandwritten bool    `json:"isHandwritten"`
		Confidence    float64 `json:"confidence"`
	} `json:"styles"`
}

type operation struct {
	Status        string         `json:"status"`
	AnalyzeResult *analyzeResult `json:"analyzeResult"`
	Error         *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) AnalyzeRead(ctx context.Context, data []byte, contentType string) (domain.ReadResult, error) {
	result, err := c.analyze(ctx, modelRead, data, contentType)
	if err != nil {
		return domain.ReadResult{}, err
	}
	out := domain.ReadResult{Content: result.Content}
	for _, p := range result.Paragraphs {
		paragraph := domain.Paragraph{Content: p.Content}
		for _, region := range p.BoundingRegions {
			paragraph.Regions = append(paragraph.Regions, domain.BoundingBox{
				Page:     region.PageNumber,
				Geometry: region.Polygon,
			})
		}
		out.Paragraphs = append(out.Paragraphs, paragraph)
	}
	return out, nil
}

func (c *Client) AnalyzeLayout(ctx context.Context, data []byte, contentType string) (domain.LayoutResult, error) {
	result, err := c.analyze(ctx, modelLayout, data, contentType)
	if err != nil {
		return domain.LayoutResult{}, err
	}
	out := domain.LayoutResult{Content: result.Content, StylesDetected: true}
	for _, style := range result.Styles {
		out.Styles = append(out.Styles, domain.TextStyle{
			IsHandwritten: style.IsHandwritten,
			Confidence:    style.Confidence,
		})
	}
	return out, nil
}

func (c *Client) analyze(ctx context.Context, model string, data []byte, contentType string) (*analyzeResult, error) {
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "document intelligence analyze", errors.New("document is empty"))
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	start := time.Now()

	var location string
	err := c.executor.Execute(ctx, "docintel_submit", func(callCtx context.Context) error {
		var submitErr error
		location, submitErr = c.submit(callCtx, model, data, contentType)
		return submitErr
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("document intelligence submit", err, resilience.ClassifyHTTPError)
	}

	result, err := c.poll(ctx, location)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("document intelligence poll", err, resilience.ClassifyHTTPError)
	}
	slog.Debug("ocr_analyzed", "model", model, "chars", len(result.Content), "elapsed_ms", time.Since(start).Milliseconds())
	return result, nil
}

func (c *Client) submit(ctx context.Context, model string, data []byte, contentType string) (string, error) {
	url := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s", c.cfg.Endpoint, model, c.cfg.APIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create analyze request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("document intelligence analyze request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", resilience.NewHTTPStatusError("document intelligence", "analyze", resp)
	}
	location := resp.Header.Get("Operation-Location")
	if location == "" {
		return "", errors.New("document intelligence analyze: missing Operation-Location")
	}
	return location, nil
}

func (c *Client) poll(ctx context.Context, location string) (*analyzeResult, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		var op operation
		err := c.executor.Execute(ctx, "docintel_poll", func(callCtx context.Context) error {
			return c.getJSON(callCtx, location, &op)
		}, resilience.ClassifyHTTPError)
		if err != nil {
			return nil, err
		}

		switch strings.ToLower(op.Status) {
		case "succeeded":
			if op.AnalyzeResult == nil {
				return nil, errors.New("document intelligence: succeeded without analyzeResult")
			}
			return op.AnalyzeResult, nil
		case "failed", "canceled":
			if op.Error != nil {
				return nil, fmt.Errorf("document intelligence %s: %s: %s", op.Status, op.Error.Code, op.Error.Message)
			}
			return nil, fmt.Errorf("document intelligence %s", op.Status)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("document intelligence poll request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resilience.NewHTTPStatusError("document intelligence", "poll", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode poll response: %w", err)
	}
	return nil
}
