package embeddings

import (
	"context"
	"errors"
	"fmt"
)

// Embedder turns a batch of texts into dense vectors, one per input, in
// input order.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

var ErrPaymentRequired = errors.New("embeddings: payment required")

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("embeddings http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

// IsPaymentRequired reports whether err is the provider refusing service
// for billing reasons.
func IsPaymentRequired(err error) bool {
	if errors.Is(err, ErrPaymentRequired) {
		return true
	}
	var he *httpError
	if errors.As(err, &he) {
		return he.StatusCode == 402
	}
	return false
}
