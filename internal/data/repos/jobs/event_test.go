package jobs

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/scoutline/scoutline-backend/internal/data/repos/testutil"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
)

func eventRepoHarness(t *testing.T) (EventRepo, dbctx.Context) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	return NewEventRepo(db, testutil.Logger(t)), dbctx.Context{Ctx: context.Background(), Tx: tx}
}

func TestAppendAssignsAscendingCursor(t *testing.T) {
	repo, dbc := eventRepoHarness(t)
	jobID := uuid.New()

	var lastID int64
	for i := 0; i < 3; i++ {
		ev, err := repo.Append(dbc, jobID, "info", "stage_started", map[string]string{
			"stage": fmt.Sprintf("stage-%d", i),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if ev.ID <= lastID {
			t.Fatalf("event id %d not ascending past %d", ev.ID, lastID)
		}
		lastID = ev.ID
	}
}

func TestListAfterIsACursorNotAnOffset(t *testing.T) {
	repo, dbc := eventRepoHarness(t)
	jobID := uuid.New()
	other := uuid.New()

	var ids []int64
	for i := 0; i < 4; i++ {
		ev, err := repo.Append(dbc, jobID, "info", "progress", map[string]int{"pct": i * 25})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		ids = append(ids, ev.ID)
	}
	if _, err := repo.Append(dbc, other, "info", "progress", nil); err != nil {
		t.Fatalf("append other job: %v", err)
	}

	got, err := repo.ListAfter(dbc, jobID, ids[1], 200)
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("list after cursor %d = %d events, want 2", ids[1], len(got))
	}
	if got[0].ID != ids[2] || got[1].ID != ids[3] {
		t.Errorf("cursor window = [%d, %d], want [%d, %d]", got[0].ID, got[1].ID, ids[2], ids[3])
	}
	for _, ev := range got {
		if ev.JobID != jobID {
			t.Errorf("event %d belongs to job %s, want %s", ev.ID, ev.JobID, jobID)
		}
	}

	all, err := repo.ListAfter(dbc, jobID, 0, 200)
	if err != nil {
		t.Fatalf("list from zero: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("full replay = %d events, want 4", len(all))
	}
}

func TestListAfterClampsLimit(t *testing.T) {
	repo, dbc := eventRepoHarness(t)
	jobID := uuid.New()

	for i := 0; i < 5; i++ {
		if _, err := repo.Append(dbc, jobID, "info", "progress", nil); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := repo.ListAfter(dbc, jobID, 0, 2)
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("limited page = %d events, want 2", len(got))
	}
}

func TestDeleteForJobs(t *testing.T) {
	repo, dbc := eventRepoHarness(t)
	keep := uuid.New()
	drop := uuid.New()

	for _, id := range []uuid.UUID{keep, drop} {
		if _, err := repo.Append(dbc, id, "info", "job_queued", nil); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := repo.DeleteForJobs(dbc, []uuid.UUID{drop}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	gone, err := repo.ListAfter(dbc, drop, 0, 10)
	if err != nil {
		t.Fatalf("list dropped: %v", err)
	}
	if len(gone) != 0 {
		t.Errorf("deleted job still has %d events", len(gone))
	}
	kept, err := repo.ListAfter(dbc, keep, 0, 10)
	if err != nil {
		t.Fatalf("list kept: %v", err)
	}
	if len(kept) != 1 {
		t.Errorf("unrelated job lost its events: %d left", len(kept))
	}
}
