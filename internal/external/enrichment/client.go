package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/observability"
	"github.com/scoutline/scoutline-backend/internal/platform/httpx"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

/*
client talks to a dataset-style scraping API: POST a list of profile URLs
against a per-platform dataset id, then poll the returned snapshot until
it is ready and download the JSON result set. Instagram and TikTok are
separate datasets with slightly different trigger payloads; TikTok
requires a country field to be present but empty.
*/
type client struct {
	log       *logger.Logger
	baseURL   string
	apiKey    string
	datasets  map[string]string
	trigger   *http.Client
	progress  *http.Client
	download  *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Provider, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("ENRICHMENT_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing ENRICHMENT_API_KEY")
	}
	baseURL := strings.TrimSpace(os.Getenv("ENRICHMENT_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.brightdata.com"
	}

	datasets := map[string]string{
		types.PlatformInstagram: strings.TrimSpace(os.Getenv("ENRICHMENT_INSTAGRAM_DATASET_ID")),
		types.PlatformTikTok:    strings.TrimSpace(os.Getenv("ENRICHMENT_TIKTOK_DATASET_ID")),
	}
	for platform, id := range datasets {
		if id == "" {
			return nil, fmt.Errorf("missing enrichment dataset id for %s", platform)
		}
	}

	return &client{
		log:        log.With("service", "EnrichmentClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		datasets:   datasets,
		trigger:    &http.Client{Timeout: 120 * time.Second},
		progress:   &http.Client{Timeout: 300 * time.Second},
		download:   &http.Client{Timeout: 600 * time.Second},
		maxRetries: 3,
	}, nil
}

type triggerResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

func (c *client) Trigger(ctx context.Context, platform string, urls []string) (string, error) {
	datasetID, ok := c.datasets[platform]
	if !ok {
		return "", fmt.Errorf("enrichment: unsupported platform %q", platform)
	}
	if len(urls) == 0 {
		return "", fmt.Errorf("enrichment: empty batch")
	}

	payload := make([]map[string]string, 0, len(urls))
	for _, u := range urls {
		item := map[string]string{"url": u}
		if platform == types.PlatformTikTok {
			item["country"] = ""
		}
		payload = append(payload, item)
	}

	endpoint := fmt.Sprintf("%s/datasets/v3/trigger?dataset_id=%s&format=json",
		c.baseURL, url.QueryEscape(datasetID))

	var resp triggerResponse
	start := time.Now()
	err := c.do(ctx, c.trigger, http.MethodPost, endpoint, payload, &resp)
	observability.ObserveCall("enrichment", "trigger", start, err)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.SnapshotID) == "" {
		return "", fmt.Errorf("enrichment trigger: empty snapshot id")
	}
	return resp.SnapshotID, nil
}

type progressResponse struct {
	Status string `json:"status"`
}

func (c *client) Progress(ctx context.Context, snapshotID string) (SnapshotStatus, error) {
	endpoint := fmt.Sprintf("%s/datasets/v3/progress/%s", c.baseURL, url.PathEscape(snapshotID))

	var resp progressResponse
	start := time.Now()
	err := c.do(ctx, c.progress, http.MethodGet, endpoint, nil, &resp)
	observability.ObserveCall("enrichment", "progress", start, err)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(strings.TrimSpace(resp.Status)) {
	case "ready", "completed", "done":
		return SnapshotReady, nil
	case "failed", "error":
		return SnapshotFailed, nil
	default:
		return SnapshotRunning, nil
	}
}

func (c *client) Download(ctx context.Context, snapshotID string) ([]RawProfile, error) {
	endpoint := fmt.Sprintf("%s/datasets/v3/snapshot/%s?format=json", c.baseURL, url.PathEscape(snapshotID))

	var out []RawProfile
	start := time.Now()
	err := c.do(ctx, c.download, http.MethodGet, endpoint, nil, &out)
	observability.ObserveCall("enrichment", "download", start, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type enrichmentHTTPError struct {
	StatusCode int
	Body       string
}

func (e *enrichmentHTTPError) Error() string {
	return fmt.Sprintf("enrichment http %d: %s", e.StatusCode, e.Body)
}

func (e *enrichmentHTTPError) HTTPStatusCode() int { return e.StatusCode }

func (c *client) do(ctx context.Context, httpClient *http.Client, method, endpoint string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, httpClient, method, endpoint, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("enrichment decode error: %w", uErr)
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("enrichment request retrying",
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

func (c *client) doOnce(ctx context.Context, httpClient *http.Client, method, endpoint string, body any) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &enrichmentHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}
