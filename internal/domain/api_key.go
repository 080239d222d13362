package domain

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is the authenticated principal owning jobs. ActiveJobCap of 0 means
// the MAX_ACTIVE_JOBS_PER_KEY config default applies.
type APIKey struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string     `gorm:"column:name;not null" json:"name"`
	KeyHash       string     `gorm:"column:key_hash;not null;uniqueIndex" json:"-"`
	RateRPS       float64    `gorm:"column:rate_rps;not null;default:5" json:"rate_rps"`
	Burst         int        `gorm:"column:burst;not null;default:10" json:"burst"`
	MonthlyQuota  int64      `gorm:"column:monthly_quota;not null;default:0" json:"monthly_quota"`
	ActiveJobCap  int        `gorm:"column:active_job_cap;not null;default:0" json:"active_job_cap"`
	CreatedAt     time.Time  `gorm:"not null;default:now()" json:"created_at"`
	RevokedAt     *time.Time `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
}

func (APIKey) TableName() string { return "api_keys" }
