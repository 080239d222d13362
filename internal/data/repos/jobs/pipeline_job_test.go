package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scoutline/scoutline-backend/internal/data/repos/testutil"
	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
)

func jobRepoHarness(t *testing.T) (PipelineJobRepo, dbctx.Context) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	// Isolate from rows committed outside this transaction; the delete is
	// rolled back with everything else.
	if err := tx.Exec(`DELETE FROM pipeline_jobs`).Error; err != nil {
		t.Fatalf("clear pipeline_jobs: %v", err)
	}
	return NewPipelineJobRepo(db, testutil.Logger(t)), dbc
}

func seedJob(t *testing.T, repo PipelineJobRepo, dbc dbctx.Context, createdAt time.Time) *types.PipelineJob {
	t.Helper()
	job := &types.PipelineJob{
		JobID:        uuid.New(),
		APIKeyID:     uuid.New(),
		Status:       types.JobStatusPending,
		CurrentStage: types.StageNone,
		Params:       []byte(`{"top_n":30}`),
		CreatedAt:    createdAt,
	}
	if _, err := repo.Create(dbc, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestCreateAndGetScopedByKey(t *testing.T) {
	repo, dbc := jobRepoHarness(t)
	job := seedJob(t, repo, dbc, time.Now())

	got, err := repo.GetByID(dbc, job.JobID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.JobID != job.JobID {
		t.Fatalf("GetByID = %+v, want job %s", got, job.JobID)
	}
	if got.Status != types.JobStatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}

	foreign, err := repo.GetByIDForKey(dbc, job.JobID, uuid.New())
	if err != nil {
		t.Fatalf("GetByIDForKey: %v", err)
	}
	if foreign != nil {
		t.Error("job owned by another key should read as missing")
	}

	own, err := repo.GetByIDForKey(dbc, job.JobID, job.APIKeyID)
	if err != nil {
		t.Fatalf("GetByIDForKey: %v", err)
	}
	if own == nil {
		t.Error("owner lookup should find the job")
	}
}

func TestClaimNextRunnableOrdersOldestFirst(t *testing.T) {
	repo, dbc := jobRepoHarness(t)
	now := time.Now()
	older := seedJob(t, repo, dbc, now.Add(-2*time.Minute))
	newer := seedJob(t, repo, dbc, now.Add(-1*time.Minute))

	first, err := repo.ClaimNextRunnable(dbc, 5*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if first == nil || first.JobID != older.JobID {
		t.Fatalf("first claim = %+v, want oldest job %s", first, older.JobID)
	}
	if first.Status != types.JobStatusRunning {
		t.Errorf("claimed status = %q, want running", first.Status)
	}
	if first.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", first.Attempts)
	}
	if first.StartedAt == nil {
		t.Error("started_at not set on first claim")
	}

	second, err := repo.ClaimNextRunnable(dbc, 5*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if second == nil || second.JobID != newer.JobID {
		t.Fatalf("second claim = %+v, want %s", second, newer.JobID)
	}

	third, err := repo.ClaimNextRunnable(dbc, 5*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if third != nil {
		t.Errorf("empty queue claim = %+v, want nil", third)
	}
}

func TestClaimHonorsRetryBackoff(t *testing.T) {
	repo, dbc := jobRepoHarness(t)
	job := seedJob(t, repo, dbc, time.Now())

	future := time.Now().Add(time.Hour)
	if err := repo.UpdateFields(dbc, job.JobID, map[string]interface{}{"retry_at": future}); err != nil {
		t.Fatalf("set retry_at: %v", err)
	}
	if got, err := repo.ClaimNextRunnable(dbc, 5*time.Minute); err != nil || got != nil {
		t.Fatalf("claim before backoff = (%+v, %v), want (nil, nil)", got, err)
	}

	past := time.Now().Add(-time.Second)
	if err := repo.UpdateFields(dbc, job.JobID, map[string]interface{}{"retry_at": past}); err != nil {
		t.Fatalf("set retry_at: %v", err)
	}
	got, err := repo.ClaimNextRunnable(dbc, 5*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got == nil || got.JobID != job.JobID {
		t.Fatalf("claim after backoff = %+v, want %s", got, job.JobID)
	}
}

func TestClaimReclaimsStaleRunning(t *testing.T) {
	repo, dbc := jobRepoHarness(t)
	job := seedJob(t, repo, dbc, time.Now())

	claimed, err := repo.ClaimNextRunnable(dbc, 5*time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("initial claim = (%+v, %v)", claimed, err)
	}

	// A fresh heartbeat keeps the row off the queue.
	if got, err := repo.ClaimNextRunnable(dbc, 5*time.Minute); err != nil || got != nil {
		t.Fatalf("fresh running row reclaimed: (%+v, %v)", got, err)
	}

	stale := time.Now().Add(-10 * time.Minute)
	if err := repo.UpdateFields(dbc, job.JobID, map[string]interface{}{"heartbeat_at": stale}); err != nil {
		t.Fatalf("age heartbeat: %v", err)
	}
	reclaimed, err := repo.ClaimNextRunnable(dbc, 5*time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed == nil || reclaimed.JobID != job.JobID {
		t.Fatalf("reclaim = %+v, want %s", reclaimed, job.JobID)
	}
	if reclaimed.Attempts != 2 {
		t.Errorf("attempts after reclaim = %d, want 2", reclaimed.Attempts)
	}
}

func TestRequeueRespectsTerminalStatuses(t *testing.T) {
	repo, dbc := jobRepoHarness(t)
	job := seedJob(t, repo, dbc, time.Now())

	if _, err := repo.ClaimNextRunnable(dbc, 5*time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	retryAt := time.Now().Add(5 * time.Second)
	if err := repo.Requeue(dbc, job.JobID, retryAt); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	got, err := repo.GetByID(dbc, job.JobID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.JobStatusPending {
		t.Errorf("status after requeue = %q, want pending", got.Status)
	}
	if got.RetryAt == nil {
		t.Error("retry_at not set by requeue")
	}

	if err := repo.UpdateFields(dbc, job.JobID, map[string]interface{}{"status": types.JobStatusCompleted}); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if err := repo.Requeue(dbc, job.JobID, time.Now()); err != nil {
		t.Fatalf("requeue terminal: %v", err)
	}
	got, err = repo.GetByID(dbc, job.JobID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.JobStatusCompleted {
		t.Errorf("terminal status mutated to %q by requeue", got.Status)
	}
}

func TestUpdateFieldsUnlessStatusGuardsTerminal(t *testing.T) {
	repo, dbc := jobRepoHarness(t)
	job := seedJob(t, repo, dbc, time.Now())

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, job.JobID, types.TerminalStatuses, map[string]interface{}{
		"status": types.JobStatusCancelled,
	})
	if err != nil {
		t.Fatalf("guarded update: %v", err)
	}
	if !ok {
		t.Fatal("update of non-terminal job should apply")
	}

	ok, err = repo.UpdateFieldsUnlessStatus(dbc, job.JobID, types.TerminalStatuses, map[string]interface{}{
		"status": types.JobStatusCompleted,
	})
	if err != nil {
		t.Fatalf("guarded update: %v", err)
	}
	if ok {
		t.Error("terminal status must be write-once")
	}
}

func TestRequestCancel(t *testing.T) {
	repo, dbc := jobRepoHarness(t)
	job := seedJob(t, repo, dbc, time.Now())

	ok, err := repo.RequestCancel(dbc, job.JobID)
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if !ok {
		t.Fatal("cancel on pending job should apply")
	}
	got, err := repo.GetByID(dbc, job.JobID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.CancelRequested {
		t.Error("cancel_requested flag not set")
	}

	if err := repo.UpdateFields(dbc, job.JobID, map[string]interface{}{"status": types.JobStatusError}); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	ok, err = repo.RequestCancel(dbc, job.JobID)
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if ok {
		t.Error("cancel on terminal job should be refused")
	}
}

func TestHeartbeatOnlyTouchesRunning(t *testing.T) {
	repo, dbc := jobRepoHarness(t)
	job := seedJob(t, repo, dbc, time.Now())

	if err := repo.Heartbeat(dbc, job.JobID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	got, err := repo.GetByID(dbc, job.JobID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.HeartbeatAt != nil {
		t.Error("heartbeat must not touch a pending job")
	}

	if _, err := repo.ClaimNextRunnable(dbc, 5*time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.Heartbeat(dbc, job.JobID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	got, err = repo.GetByID(dbc, job.JobID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.HeartbeatAt == nil {
		t.Error("heartbeat not recorded for running job")
	}
}

func TestRetentionSweepSelectsAndDeletes(t *testing.T) {
	repo, dbc := jobRepoHarness(t)
	now := time.Now()

	old := seedJob(t, repo, dbc, now.Add(-48*time.Hour))
	oldFinished := now.Add(-40 * time.Hour)
	if err := repo.UpdateFields(dbc, old.JobID, map[string]interface{}{
		"status":      types.JobStatusCompleted,
		"finished_at": oldFinished,
	}); err != nil {
		t.Fatalf("mark old completed: %v", err)
	}

	fresh := seedJob(t, repo, dbc, now)
	if err := repo.UpdateFields(dbc, fresh.JobID, map[string]interface{}{
		"status":      types.JobStatusCompleted,
		"finished_at": now,
	}); err != nil {
		t.Fatalf("mark fresh completed: %v", err)
	}

	ids, err := repo.ListTerminalOlderThan(dbc, now.Add(-24*time.Hour), 100)
	if err != nil {
		t.Fatalf("ListTerminalOlderThan: %v", err)
	}
	if len(ids) != 1 || ids[0] != old.JobID {
		t.Fatalf("sweep candidates = %v, want [%s]", ids, old.JobID)
	}

	if err := repo.DeleteByIDs(dbc, ids); err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	got, err := repo.GetByID(dbc, old.JobID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Error("swept job still present")
	}
}
