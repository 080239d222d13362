package pipeline

import (
	"sync"
	"time"

	"github.com/scoutline/scoutline-backend/internal/observability"
)

// stageTiming is one bar of the waterfall: offsets are relative to job
// start so the UI renders without clock math.
type stageTiming struct {
	Stage         string `json:"stage"`
	StartOffsetMs int64  `json:"start_offset_ms"`
	EndOffsetMs   int64  `json:"end_offset_ms,omitempty"`
	DurationMs    int64  `json:"duration_ms,omitempty"`
	Status        string `json:"status"`
}

type waterfall struct {
	mu     sync.Mutex
	start  time.Time
	stages []*stageTiming
}

func newWaterfall() *waterfall {
	return &waterfall{start: time.Now()}
}

func (w *waterfall) begin(stage string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stages = append(w.stages, &stageTiming{
		Stage:         stage,
		StartOffsetMs: time.Since(w.start).Milliseconds(),
		Status:        "running",
	})
}

func (w *waterfall) end(stage string, status string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.stages) - 1; i >= 0; i-- {
		st := w.stages[i]
		if st.Stage == stage && st.EndOffsetMs == 0 {
			st.EndOffsetMs = time.Since(w.start).Milliseconds()
			st.DurationMs = st.EndOffsetMs - st.StartOffsetMs
			st.Status = status
			observability.Current().ObservePipelineStage(stage, status, time.Duration(st.DurationMs)*time.Millisecond)
			return
		}
	}
}

func (w *waterfall) snapshot() []stageTiming {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]stageTiming, len(w.stages))
	for i, st := range w.stages {
		out[i] = *st
	}
	return out
}
