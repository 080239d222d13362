package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Service tags for the external-call ledger.
const (
	ServiceEmbeddings  = "embeddings"
	ServiceVectorIndex = "vector_index"
	ServiceEnrichment  = "enrichment"
	ServiceScoring     = "scoring"
)

type ExternalCall struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	APIKeyID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"api_key_id"`
	Service    string         `gorm:"column:service;not null;index" json:"service"`
	Operation  string         `gorm:"column:operation;not null" json:"operation"`
	Ts         time.Time      `gorm:"column:ts;not null;default:now();index" json:"ts"`
	DurationMs int64          `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	Status     string         `gorm:"column:status;not null" json:"status"`
	CostUSD    float64        `gorm:"column:cost_usd;not null;default:0" json:"cost_usd"`
	Meta       datatypes.JSON `gorm:"column:meta;type:jsonb" json:"meta,omitempty"`
}

func (ExternalCall) TableName() string { return "external_calls" }
