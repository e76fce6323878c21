package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/duckask/duckask/internal/chart"
	"github.com/duckask/duckask/internal/dataset"
	"github.com/duckask/duckask/internal/observability"
)

type OpenAIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float64
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// OpenAITranslator turns questions into DuckDB SQL through an
// OpenAI-compatible chat completions endpoint. Transient failures are
// retried with exponential backoff; everything else is surfaced after a
// single attempt.
type OpenAITranslator struct {
	baseURL        string
	apiKey         string
	model          string
	temperature    float64
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	client         *http.Client
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	maxDelay := cfg.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	return &OpenAITranslator{
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:         strings.TrimSpace(cfg.APIKey),
		model:          model,
		temperature:    cfg.Temperature,
		retryAttempts:  attempts,
		retryBaseDelay: baseDelay,
		retryMaxDelay:  maxDelay,
		client:         &http.Client{Timeout: timeout},
	}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = t.apiKey
	}
	if apiKey == "" {
		return Result{}, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = t.model
	}

	body, err := json.Marshal(buildChatPayload(model, t.temperature, req))
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	raw, err := t.postWithRetry(ctx, apiKey, body)
	if err != nil {
		return Result{}, err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("empty chat completion choices")
	}

	sql, spec, err := parseModelOutput(parsed.Choices[0].Message.Content)
	if err != nil {
		return Result{}, err
	}
	return Result{
		SQL:      sql,
		Chart:    spec,
		Provider: "openai-compatible",
		Model:    model,
	}, nil
}

func (t *OpenAITranslator) postWithRetry(ctx context.Context, apiKey string, body []byte) ([]byte, error) {
	delay := t.retryBaseDelay
	var lastErr error

	for attempt := 1; attempt <= t.retryAttempts; attempt++ {
		if attempt > 1 {
			observability.IncrementTranslateRetry()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > t.retryMaxDelay {
				delay = t.retryMaxDelay
			}
		}

		raw, retryable, err := t.postOnce(ctx, apiKey, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("chat completion failed after %d attempts: %w", t.retryAttempts, lastErr)
}

func (t *OpenAITranslator) postOnce(ctx context.Context, apiKey string, body []byte) ([]byte, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, isRetryableNetErr(err), fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, truncate(string(raw), 512))
	}
	return raw, false, nil
}

func buildChatPayload(model string, temperature float64, req Request) map[string]any {
	systemPrompt := "You convert natural language questions about a single tabular dataset into one DuckDB SQL query. " +
		"DuckDB uses PostgreSQL-like SQL syntax. " +
		"Respond with a JSON object only: {\"sql\": \"...\", \"chart\": {\"kind\": \"bar|line|scatter|pie\", \"x\": \"column\", \"y\": \"column\"}}. " +
		"Omit \"chart\" when no chart fits. No markdown, no explanation."
	userPrompt := fmt.Sprintf(
		"Dataset schema:\n%s\nQuestion:\n%s\n\nRules:\n- Query only the table %q and its listed columns.\n- Emit a single read-only SELECT (or WITH) statement.\n- Prefer explicit column names over *.",
		req.Schema,
		strings.TrimSpace(req.Question),
		dataset.TableName,
	)

	return map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": temperature,
	}
}

// parseModelOutput accepts either the requested JSON object or, as a
// fallback, bare SQL text (models still do that occasionally).
func parseModelOutput(content string) (string, *chart.Spec, error) {
	trimmed := stripMarkdownFences(content)
	if trimmed == "" {
		return "", nil, fmt.Errorf("model returned empty response")
	}

	var payload struct {
		SQL   string      `json:"sql"`
		Chart *chart.Spec `json:"chart"`
	}
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
			return "", nil, fmt.Errorf("parse model response: %w", err)
		}
		sql := strings.TrimSpace(payload.SQL)
		if sql == "" {
			return "", nil, fmt.Errorf("model returned empty SQL")
		}
		return sql, normalizeChart(payload.Chart), nil
	}
	return trimmed, nil, nil
}

func normalizeChart(spec *chart.Spec) *chart.Spec {
	if spec == nil {
		return nil
	}
	if strings.TrimSpace(spec.Kind) == "" || strings.TrimSpace(spec.X) == "" || strings.TrimSpace(spec.Y) == "" {
		return nil
	}
	return spec
}

func stripMarkdownFences(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}

func isRetryableNetErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
