package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/scoutline/scoutline-backend/internal/observability"
	"github.com/scoutline/scoutline-backend/internal/platform/httpx"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

/*
client speaks the OpenAI-compatible /v1/embeddings wire shape. Both the
primary and secondary providers use this shape; they differ only in base
URL, key, and model, so one client type serves both roles.
*/
type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

// NewPrimary builds the default embedding provider from EMBEDDINGS_* env.
func NewPrimary(log *logger.Logger) (Embedder, error) {
	return newClient(log, "primary",
		firstEnv("EMBEDDINGS_API_KEY", "OPENAI_API_KEY"),
		envOr("EMBEDDINGS_BASE_URL", "https://api.openai.com"),
		envOr("EMBEDDINGS_MODEL", "text-embedding-3-small"),
	)
}

// NewSecondary builds the fallback provider from EMBEDDINGS_FALLBACK_* env.
// Returns (nil, nil) when no fallback key is configured.
func NewSecondary(log *logger.Logger) (Embedder, error) {
	key := strings.TrimSpace(os.Getenv("EMBEDDINGS_FALLBACK_API_KEY"))
	if key == "" {
		return nil, nil
	}
	return newClient(log, "secondary",
		key,
		envOr("EMBEDDINGS_FALLBACK_BASE_URL", "https://api.openai.com"),
		envOr("EMBEDDINGS_FALLBACK_MODEL", "text-embedding-3-small"),
	)
}

func newClient(log *logger.Logger, role, apiKey, baseURL, model string) (Embedder, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("missing embeddings api key (%s)", role)
	}
	return &client{
		log:        log.With("service", "EmbeddingsClient", "provider", role),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
	}, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	req := embeddingsRequest{Model: c.model, Input: clean}

	var resp embeddingsResponse
	start := time.Now()
	err := c.do(ctx, &req, &resp)
	observability.ObserveCall("embeddings", "embed", start, err)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("embeddings response missing index %d (requested %d, returned %d)",
				i, len(clean), len(resp.Data))
		}
	}
	return out, nil
}

func (c *client) do(ctx context.Context, body *embeddingsRequest, out *embeddingsResponse) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("embeddings decode error: %w", uErr)
			}
			return nil
		}

		if IsPaymentRequired(err) || !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("embeddings request retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (c *client) doOnce(ctx context.Context, body *embeddingsRequest) (*http.Response, []byte, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(buf))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
