package embeddings

import (
	"context"
	"os"
	"strings"

	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

type fallbackEmbedder struct {
	log       *logger.Logger
	primary   Embedder
	secondary Embedder
}

/*
NewFromEnv wires the configured provider pair. EMBEDDINGS_PROVIDER selects
which role leads; the other becomes the fallback. Any primary failure,
payment-required included, falls through to the secondary when one is
configured.
*/
func NewFromEnv(log *logger.Logger) (Embedder, error) {
	primary, err := NewPrimary(log)
	if err != nil {
		return nil, err
	}
	secondary, err := NewSecondary(log)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(os.Getenv("EMBEDDINGS_PROVIDER")) == "secondary" && secondary != nil {
		primary, secondary = secondary, primary
	}

	if secondary == nil {
		return primary, nil
	}
	return &fallbackEmbedder{
		log:       log.With("service", "EmbeddingsFallback"),
		primary:   primary,
		secondary: secondary,
	}, nil
}

func (f *fallbackEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out, err := f.primary.Embed(ctx, inputs)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	f.log.Warn("primary embeddings provider failed; falling back",
		"payment_required", IsPaymentRequired(err),
		"error", err.Error(),
	)
	return f.secondary.Embed(ctx, inputs)
}
