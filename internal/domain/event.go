package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event levels.
const (
	EventDebug = "debug"
	EventInfo  = "info"
	EventWarn  = "warn"
	EventError = "error"
)

// Event types emitted by the admission service and the execution engine.
const (
	EventJobAccepted        = "job_accepted"
	EventStageStarted       = "stage_started"
	EventStageCompleted     = "stage_completed"
	EventProgress           = "progress"
	EventCandidatesReady    = "candidates_ready"
	EventBatchCompleted     = "batch_completed"
	EventBatchFailed        = "batch_failed"
	EventProgressiveUpdated = "progressive_updated"
	EventCancelRequested    = "cancel_requested"
	EventPipelineSummary    = "pipeline_summary"
	EventStageError         = "stage_error"
)

// PipelineEvent rows are append-only; id is the canonical streaming cursor.
type PipelineEvent struct {
	ID    int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID uuid.UUID      `gorm:"type:uuid;not null;index:idx_pipeline_job_events_job_id_id,priority:1" json:"job_id"`
	Ts    time.Time      `gorm:"column:ts;not null;default:now()" json:"ts"`
	Level string         `gorm:"column:level;not null" json:"level"`
	Type  string         `gorm:"column:type;not null" json:"type"`
	Data  datatypes.JSON `gorm:"column:data;type:jsonb" json:"data"`
}

func (PipelineEvent) TableName() string { return "pipeline_job_events" }
