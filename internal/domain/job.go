package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Job status tags. Terminal statuses are write-once.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusError     = "error"
	JobStatusCancelled = "cancelled"
)

// Pipeline stage tags, in fixed linear order.
const (
	StageNone           = "none"
	StageQueryExpansion = "query_expansion"
	StageVectorSearch   = "vector_search"
	StageEnrichment     = "enrichment"
	StageScoring        = "scoring"
)

func IsTerminalStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// TerminalStatuses is the disallowed set passed to terminal-guarded updates.
var TerminalStatuses = []string{JobStatusCompleted, JobStatusError, JobStatusCancelled}

type PipelineJob struct {
	JobID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"job_id"`
	APIKeyID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"api_key_id"`
	Status          string         `gorm:"column:status;not null;index" json:"status"`
	CurrentStage    string         `gorm:"column:current_stage;not null;default:none" json:"current_stage"`
	Progress        int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Attempts        int            `gorm:"column:attempts;not null;default:0" json:"-"`
	CancelRequested bool           `gorm:"column:cancel_requested;not null;default:false" json:"cancel_requested"`
	Params          datatypes.JSON `gorm:"column:params;type:jsonb" json:"params"`
	Meta            datatypes.JSON `gorm:"column:meta;type:jsonb" json:"meta"`
	Error           datatypes.JSON `gorm:"column:error;type:jsonb" json:"error,omitempty"`
	RetryAt         *time.Time     `gorm:"column:retry_at;index" json:"-"`
	HeartbeatAt     *time.Time     `gorm:"column:heartbeat_at;index" json:"-"`
	CreatedAt       time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	StartedAt       *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt      *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (PipelineJob) TableName() string { return "pipeline_jobs" }

// JobError is the structured error object stored on pipeline_jobs.error.
type JobError struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}
