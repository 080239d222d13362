package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Artifact kinds. BatchKind(n) produces the per-batch "batch:N" kinds.
const (
	ArtifactCandidates  = "candidates"
	ArtifactProgressive = "progressive"
	ArtifactFinal       = "final"
	ArtifactRemaining   = "remaining"
	ArtifactTiming      = "timing"
)

func BatchKind(n int) string { return "batch:" + strconv.Itoa(n) }

func IsBatchKind(kind string) bool { return strings.HasPrefix(kind, "batch:") }

// PublicArtifactKind reports whether kind is fetchable via the artifacts
// endpoint. The final artifact is served by the results endpoint instead.
func PublicArtifactKind(kind string) bool {
	switch kind {
	case ArtifactCandidates, ArtifactProgressive, ArtifactRemaining, ArtifactTiming:
		return true
	default:
		return false
	}
}

type PipelineArtifact struct {
	JobID     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"job_id"`
	Kind      string         `gorm:"column:kind;primaryKey" json:"kind"`
	Data      datatypes.JSON `gorm:"column:data;type:jsonb" json:"data"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (PipelineArtifact) TableName() string { return "pipeline_job_artifacts" }
