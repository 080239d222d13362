package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Platform tags. Normalization converges both provider shapes into one
// record keyed by this closed set.
const (
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
	PlatformUnknown   = "unknown"
)

// ProfileCacheEntry caches raw enriched payloads keyed by a deterministic
// hash of the normalized profile URL. Last-writer-wins on identical keys.
type ProfileCacheEntry struct {
	CacheKey      string         `gorm:"column:cache_key;primaryKey" json:"cache_key"`
	NormalizedURL string         `gorm:"column:normalized_url;not null;index" json:"normalized_url"`
	Platform      string         `gorm:"column:platform;not null" json:"platform"`
	RawData       datatypes.JSON `gorm:"column:raw_data;type:jsonb" json:"raw_data"`
	CachedAt      time.Time      `gorm:"column:cached_at;not null;default:now()" json:"cached_at"`
	ExpiresAt     time.Time      `gorm:"column:expires_at;not null;index" json:"expires_at"`
}

func (ProfileCacheEntry) TableName() string { return "profile_cache" }
