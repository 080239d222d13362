package vectorindex

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
	"github.com/scoutline/scoutline-backend/internal/utils"
)

/*
weaviateIndex issues hybrid GraphQL queries against a Weaviate collection
whose objects carry three named vectors (profile, hashtag, post). Searches
combine the targets with fixed relative weights so profile text dominates
without drowning out hashtag and post signals.
*/
type weaviateIndex struct {
	log        *logger.Logger
	endpoint   string
	apiKey     string
	collection string
	httpClient *http.Client
	maxRetries int
}

var targetWeights = struct {
	Profile float64
	Hashtag float64
	Post    float64
}{2.5, 1.5, 1.0}

func NewWeaviateIndex(log *logger.Logger) (Index, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	endpoint := strings.TrimSpace(os.Getenv("WEAVIATE_ENDPOINT"))
	if endpoint == "" {
		return nil, fmt.Errorf("missing WEAVIATE_ENDPOINT")
	}
	collection := strings.TrimSpace(os.Getenv("WEAVIATE_COLLECTION"))
	if collection == "" {
		collection = "CreatorProfile"
	}
	timeout := time.Duration(utils.GetEnvAsInt("WEAVIATE_TIMEOUT_SECONDS", 120, log)) * time.Second
	return &weaviateIndex{
		log:        log.With("service", "WeaviateIndex"),
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     strings.TrimSpace(os.Getenv("WEAVIATE_API_KEY")),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 3,
	}, nil
}

func (w *weaviateIndex) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"/v1/.well-known/ready", nil)
	if err != nil {
		return err
	}
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vector index not ready: http %d", resp.StatusCode)
	}
	return nil
}

type graphqlRequest struct {
	Query string `json:"query"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type hybridRow struct {
	ProfileURL  string `json:"profile_url"`
	Platform    string `json:"platform"`
	DisplayName string `json:"display_name"`
	Biography   string `json:"biography"`
	Followers   int64  `json:"followers"`
	Additional  struct {
		ID       string  `json:"id"`
		Score    string  `json:"score"`
		Distance float64 `json:"distance"`
	} `json:"_additional"`
}

func (w *weaviateIndex) HybridSearch(ctx context.Context, q HybridQuery) ([]Candidate, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("hybrid search: limit must be positive")
	}

	query, err := w.buildQuery(q)
	if err != nil {
		return nil, err
	}

	var resp graphqlResponse
	start := time.Now()
	err = w.do(ctx, &graphqlRequest{Query: query}, &resp)
	observability.ObserveCall("vector_index", "hybrid_search", start, err)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("hybrid search: %s", resp.Errors[0].Message)
	}

	var data struct {
		Get map[string][]hybridRow `json:"Get"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("hybrid search decode: %w", err)
	}

	rows := data.Get[w.collection]
	out := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.ProfileURL) == "" {
			continue
		}
		var score float64
		fmt.Sscanf(row.Additional.Score, "%f", &score)
		out = append(out, Candidate{
			ID:          row.Additional.ID,
			Score:       score,
			Distance:    row.Additional.Distance,
			ProfileURL:  row.ProfileURL,
			Platform:    row.Platform,
			DisplayName: row.DisplayName,
			Biography:   row.Biography,
			Followers:   row.Followers,
		})
	}
	return out, nil
}

// buildQuery renders the GraphQL hybrid query. Weaviate has no variables
// support on the Get path we use, so the vector and filters are inlined.
func (w *weaviateIndex) buildQuery(q HybridQuery) (string, error) {
	vec, err := json.Marshal(q.Vector)
	if err != nil {
		return "", err
	}
	escaped, err := json.Marshal(q.Query)
	if err != nil {
		return "", err
	}

	var where string
	if operands := buildWhereOperands(q); len(operands) > 0 {
		where = fmt.Sprintf("where: {operator: And, operands: [%s]}", strings.Join(operands, ", "))
	}

	return fmt.Sprintf(`{
  Get {
    %s(
      hybrid: {
        query: %s
        vector: %s
        alpha: %g
        targets: {
          targetVectors: ["profile", "hashtag", "post"]
          combinationMethod: relativeScore
          weights: {profile: %g, hashtag: %g, post: %g}
        }
      }
      limit: %d
      %s
    ) {
      profile_url
      platform
      display_name
      biography
      followers
      _additional { id score distance }
    }
  }
}`, w.collection, escaped, vec, q.Alpha,
		targetWeights.Profile, targetWeights.Hashtag, targetWeights.Post,
		q.Limit, where), nil
}

func buildWhereOperands(q HybridQuery) []string {
	var operands []string
	if p := strings.TrimSpace(q.Platform); p != "" {
		operands = append(operands,
			fmt.Sprintf(`{path: ["platform"], operator: Equal, valueText: %q}`, p))
	}
	if q.MinFollowers > 0 {
		operands = append(operands,
			fmt.Sprintf(`{path: ["followers"], operator: GreaterThanEqual, valueInt: %d}`, q.MinFollowers))
	}
	if q.MaxFollowers > 0 {
		operands = append(operands,
			fmt.Sprintf(`{path: ["followers"], operator: LessThanEqual, valueInt: %d}`, q.MaxFollowers))
	}
	return operands
}

type weaviateHTTPError struct {
	StatusCode int
	Body       string
}

func (e *weaviateHTTPError) Error() string {
	return fmt.Sprintf("weaviate http %d: %s", e.StatusCode, e.Body)
}

func (e *weaviateHTTPError) HTTPStatusCode() int { return e.StatusCode }

func (w *weaviateIndex) do(ctx context.Context, body *graphqlRequest, out *graphqlResponse) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := w.doOnce(ctx, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("weaviate decode error: %w", uErr)
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == w.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		w.log.Warn("weaviate request retrying",
			"attempt", attempt+1,
			"max_retries", w.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (w *weaviateIndex) doOnce(ctx context.Context, body *graphqlRequest) (*http.Response, []byte, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint+"/v1/graphql", bytes.NewReader(buf))
	if err != nil {
		return nil, nil, err
	}
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &weaviateHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}
