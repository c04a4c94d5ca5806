package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/core/ports"
	"github.com/kirillkom/accruals-router/internal/infrastructure/resilience"
)

const (
	maxImageBytes    = 8 << 20
	maxErrorBodySize = 2 << 10
)

var errMalformedResponse = errors.New("malformed classifier response")

// Client talks to the Ollama generate endpoint.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	APIKey             string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, model string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + "/api/generate",
		model:      model,
		apiKey:     strings.TrimSpace(options.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images,omitempty"`
	Format  string         `json:"format"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Classifier asks a generation model for invoice fields. PDFs and text are
// sent as extracted text, images inline for vision models.
type Classifier struct {
	client    *Client
	extractor ports.TextExtractor
}

func NewClassifier(client *Client, extractor ports.TextExtractor) *Classifier {
	return &Classifier{client: client, extractor: extractor}
}

func (c *Classifier) Classify(ctx context.Context, data []byte, mimeType, filename string) (domain.RawClassification, error) {
	req, err := c.request(ctx, data, mimeType, filename)
	if err != nil {
		return domain.RawClassification{}, err
	}

	var result domain.RawClassification
	attempt := func(ctx context.Context) error {
		answer, err := c.client.generate(ctx, req)
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(extractJSONObject(answer)), &result); err != nil {
			return fmt.Errorf("%w: %v", errMalformedResponse, err)
		}
		return nil
	}

	if c.client.executor == nil {
		err = attempt(ctx)
	} else {
		err = c.client.executor.Execute(ctx, "ollama.classify", attempt, classifyOllamaError)
	}
	if err != nil {
		return domain.RawClassification{}, classifierError("ollama classify", err)
	}
	return result, nil
}

func (c *Classifier) request(ctx context.Context, data []byte, mimeType, filename string) (generateRequest, error) {
	req := generateRequest{
		Model:   c.client.model,
		Format:  "json",
		Options: map[string]any{"temperature": 0},
	}
	text := ""
	switch {
	case isImage(mimeType):
		if len(data) > maxImageBytes {
			return req, domain.WrapError(domain.ErrInvalidInput, "classify image", fmt.Errorf("%s exceeds %d bytes", filename, maxImageBytes))
		}
		req.Images = []string{base64.StdEncoding.EncodeToString(data)}
	case c.extractor != nil:
		extracted, err := c.extractor.ExtractText(ctx, data, mimeType, filename)
		if err != nil {
			return req, fmt.Errorf("extract text for classifier: %w", err)
		}
		text = extracted
	}
	req.Prompt = buildInvoicePrompt(filename, mimeType, text)
	return req, nil
}

func (c *Client) generate(ctx context.Context, body generateRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return "", &HTTPStatusError{
			Operation:  "generate",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode generate response: %v", errMalformedResponse, err)
	}
	return strings.TrimSpace(out.Response), nil
}

// extractJSONObject strips prose or markdown fences around the first JSON
// object in a model answer.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}
