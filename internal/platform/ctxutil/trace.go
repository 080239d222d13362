package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type traceDataKey struct{}
type principalKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

// WithPrincipal records the authenticated api_key id. Only the id travels
// on the context; the credential itself never does.
func WithPrincipal(ctx context.Context, apiKeyID uuid.UUID) context.Context {
	return context.WithValue(ctx, principalKey{}, apiKeyID)
}

func GetPrincipal(ctx context.Context) (uuid.UUID, bool) {
	val := ctx.Value(principalKey{})
	if id, ok := val.(uuid.UUID); ok && id != uuid.Nil {
		return id, true
	}
	return uuid.Nil, false
}
