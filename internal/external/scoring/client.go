package scoring

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

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Scorer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("SCORING_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if apiKey == "" {
		return nil, fmt.Errorf("missing SCORING_API_KEY")
	}
	baseURL := strings.TrimSpace(os.Getenv("SCORING_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := strings.TrimSpace(os.Getenv("SCORING_MODEL"))
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &client{
		log:        log.With("service", "ScoringClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		maxRetries: 3,
	}, nil
}

const expandSystem = `You generate search keywords for finding social media creators.
Given a business description, produce an ordered list of 4 to 8 short keyword
queries. Cover the broad category first, then specific niches, then adjacent
audiences a marketer would also consider. Respond with JSON only.`

var expandSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"queries": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required":             []string{"queries"},
	"additionalProperties": false,
}

func (c *client) ExpandQuery(ctx context.Context, description string) ([]string, error) {
	start := time.Now()
	obj, err := c.generateJSON(ctx, expandSystem, description, "keyword_queries", expandSchema)
	observability.ObserveCall("scoring", "expand_query", start, err)
	if err != nil {
		return nil, err
	}
	rawList, _ := obj["queries"].([]any)
	out := make([]string, 0, len(rawList))
	for _, item := range rawList {
		if s, ok := item.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("query expansion returned no keywords")
	}
	return out, nil
}

const scoreSystemBase = `You rate how well a social media creator fits a business's
influencer-marketing brief. Weigh content relevance, audience match, engagement
signals, and location fit. Location fit counts for %d%% of the total.%s
Score on a 1-10 integer scale where 10 is a perfect fit. Respond with JSON only:
{"score": <1-10>, "rationale": "<one or two sentences>", "summary": "<one-line profile summary>"}`

const strictLocationAddendum = `
Location is strict: a profile whose location cannot be verified scores at most 5,
and an unknown location must be penalized heavily in the rationale.`

var scoreSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"score":     map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
		"rationale": map[string]any{"type": "string"},
		"summary":   map[string]any{"type": "string"},
	},
	"required":             []string{"score", "rationale", "summary"},
	"additionalProperties": false,
}

func (c *client) Score(ctx context.Context, req ScoreRequest) (ScoreResult, error) {
	locationWeight := 60
	addendum := ""
	if req.StrictLocation {
		locationWeight = 70
		addendum = strictLocationAddendum
	}
	system := fmt.Sprintf(scoreSystemBase, locationWeight, addendum)
	user := fmt.Sprintf("Business brief:\n%s\n\nCreator profile:\n%s", req.Description, req.ProfileText)

	start := time.Now()
	obj, err := c.generateJSON(ctx, system, user, "creator_fit", scoreSchema)
	observability.ObserveCall("scoring", "score_profile", start, err)
	if err != nil {
		return ScoreResult{}, err
	}

	var out ScoreResult
	raw, err := json.Marshal(obj)
	if err != nil {
		return ScoreResult{}, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return ScoreResult{}, fmt.Errorf("scoring decode: %w", err)
	}
	if out.Score < 1 || out.Score > 10 {
		return ScoreResult{}, fmt.Errorf("scoring: score %d out of range", out.Score)
	}
	return out, nil
}

type responsesRequest struct {
	Model string `json:"model"`
	Input []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"input"`
	Text struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Refusal string `json:"refusal"`
}

func (c *client) generateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	req := responsesRequest{Model: c.model}
	req.Input = []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	}{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	var resp responsesResponse
	if err := c.do(ctx, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", resp.Refusal)
	}

	jsonText := extractOutputText(resp)
	if strings.TrimSpace(jsonText) == "" {
		return nil, fmt.Errorf("no output_text found in response")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonText), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w; text=%s", err, jsonText)
	}
	return obj, nil
}

func extractOutputText(resp responsesResponse) string {
	var sb strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, content := range item.Content {
			if content.Type == "output_text" {
				sb.WriteString(content.Text)
			}
		}
	}
	return sb.String()
}

type scoringHTTPError struct {
	StatusCode int
	Body       string
}

func (e *scoringHTTPError) Error() string {
	return fmt.Sprintf("scoring http %d: %s", e.StatusCode, e.Body)
}

func (e *scoringHTTPError) HTTPStatusCode() int { return e.StatusCode }

func (c *client) do(ctx context.Context, body *responsesRequest, out *responsesResponse) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("scoring decode error: %w", uErr)
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("scoring request retrying",
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

func (c *client) doOnce(ctx context.Context, body *responsesRequest) (*http.Response, []byte, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/responses", bytes.NewReader(buf))
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
		return resp, raw, &scoringHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}
