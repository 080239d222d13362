package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	types "github.com/scoutline/scoutline-backend/internal/domain"
)

/*
NormalizeProfileURL canonicalizes a social profile URL so dedupe, cache
keys, and exclusion matching all agree: lowercase, scheme and www stripped,
query/fragment dropped, no trailing slash. "HTTPS://www.Instagram.com/Foo/"
and "instagram.com/foo" normalize identically.
*/
func NormalizeProfileURL(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(s, "https://"), "http://"), "/")
	}
	host := strings.TrimPrefix(u.Host, "www.")
	path := strings.TrimSuffix(u.Path, "/")
	return host + path
}

// PlatformFromURL derives the platform tag from a (raw or normalized)
// profile URL.
func PlatformFromURL(raw string) string {
	n := NormalizeProfileURL(raw)
	switch {
	case strings.HasPrefix(n, "instagram.com/"):
		return types.PlatformInstagram
	case strings.HasPrefix(n, "tiktok.com/"):
		return types.PlatformTikTok
	default:
		return types.PlatformUnknown
	}
}

// CacheKey is the profile-cache primary key for a profile URL.
func CacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(NormalizeProfileURL(rawURL)))
	return hex.EncodeToString(sum[:])
}
