package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func cursorContext(t *testing.T, target string, lastEventID string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", target, nil)
	if lastEventID != "" {
		c.Request.Header.Set("Last-Event-ID", lastEventID)
	}
	return c
}

func TestEventCursorDefaultsToZero(t *testing.T) {
	t.Parallel()

	got, err := eventCursor(cursorContext(t, "/pipeline/events/abc", ""))
	if err != nil {
		t.Fatalf("eventCursor: %v", err)
	}
	if got != 0 {
		t.Errorf("cursor = %d, want 0", got)
	}
}

func TestEventCursorFromAfterQuery(t *testing.T) {
	t.Parallel()

	got, err := eventCursor(cursorContext(t, "/pipeline/events/abc?after=42", ""))
	if err != nil {
		t.Fatalf("eventCursor: %v", err)
	}
	if got != 42 {
		t.Errorf("cursor = %d, want 42", got)
	}
}

func TestEventCursorHeaderWinsOverQuery(t *testing.T) {
	t.Parallel()

	got, err := eventCursor(cursorContext(t, "/pipeline/events/abc?after=42", "99"))
	if err != nil {
		t.Fatalf("eventCursor: %v", err)
	}
	if got != 99 {
		t.Errorf("cursor = %d, want Last-Event-ID 99 over after=42", got)
	}
}

func TestEventCursorRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := eventCursor(cursorContext(t, "/pipeline/events/abc?after=xyz", "")); err == nil {
		t.Error("expected error for non-numeric after")
	}
	if _, err := eventCursor(cursorContext(t, "/pipeline/events/abc", "-5")); err == nil {
		t.Error("expected error for negative Last-Event-ID")
	}
}
