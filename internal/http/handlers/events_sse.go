package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
)

const (
	// eventChunkSize bounds one read of the event log per poll round.
	eventChunkSize = 200
	ssePollDelay   = 1 * time.Second
)

/*
streamEvents tails the job's event log over SSE. Each frame carries the
event id so a dropped client resumes from Last-Event-ID without gaps; an
empty poll round emits a ping and sleeps. The stream ends when the client
disconnects or when a read of the event log fails; a terminal job does not
end it, so a client watching a terminal job sees heartbeats until it hangs
up.
*/
func (h *PipelineHandler) streamEvents(c *gin.Context, key *types.APIKey, jobID uuid.UUID, after int64) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}

	cursor := after
	writePing := func() {
		fmt.Fprint(c.Writer, "event: ping\ndata: {}\n\n")
		flusher.Flush()
	}
	writePing()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		events, err := h.admission.ListEvents(dbctx.Context{Ctx: ctx}, key, jobID, cursor, eventChunkSize)
		if err != nil {
			h.log.Warn("event stream read failed",
				"job_id", jobID.String(),
				"error", err.Error(),
			)
			return
		}

		if len(events) == 0 {
			writePing()
			select {
			case <-ctx.Done():
				return
			case <-time.After(ssePollDelay):
			}
			continue
		}

		for _, ev := range events {
			frame, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: job_event\nid: %d\ndata: %s\n\n", ev.ID, frame)
			cursor = ev.ID
		}
		flusher.Flush()
	}
}

// eventCursor resolves the resume point. A Last-Event-ID header from a
// reconnecting client wins over the after query parameter.
func eventCursor(c *gin.Context) (int64, error) {
	if raw := c.GetHeader("Last-Event-ID"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid Last-Event-ID %q", raw)
		}
		return n, nil
	}
	if raw := c.Query("after"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid after cursor %q", raw)
		}
		return n, nil
	}
	return 0, nil
}
