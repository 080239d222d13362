package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/scoutline/scoutline-backend/internal/external/enrichment"
)

/*
normalizeProfile converges the provider's per-platform payload shapes into
the unified profile the scorer sees. Field names differ between the
Instagram and TikTok datasets, so every lookup probes the known aliases.
Posts keep only the most recent entries, newest first, with
relative-time-formatted dates.
*/
func normalizeProfile(raw enrichment.RawProfile, platform string, now time.Time) (ScoredProfile, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return ScoredProfile{}, fmt.Errorf("payload unmarshal failed: %w", err)
	}

	profileURL := getString(m, "url", "profile_url", "account_url", "input_url")
	if profileURL == "" {
		return ScoredProfile{}, fmt.Errorf("missing keys: [url]")
	}

	p := ScoredProfile{
		Platform:    platform,
		AccountID:   getString(m, "account_id", "id", "account", "username", "unique_id"),
		DisplayName: getString(m, "display_name", "profile_name", "full_name", "nickname"),
		Followers:   getInt(m, "followers", "followers_count", "follower_count"),
		Biography:   getString(m, "biography", "bio", "signature", "description"),
		ProfileURL:  profileURL,
	}

	rawPosts := getList(m, "posts", "posts_data", "top_posts", "top_videos", "videos")
	posts := make([]ProfilePost, 0, len(rawPosts))
	for _, rp := range rawPosts {
		pm, ok := rp.(map[string]any)
		if !ok {
			continue
		}
		post := ProfilePost{
			Caption:  getString(pm, "caption", "description", "title", "text"),
			Likes:    getInt(pm, "likes", "likes_count", "digg_count"),
			Comments: getInt(pm, "comments", "comments_count", "comment_count"),
		}
		if ts := parsePostTime(pm); ts != nil {
			post.PostedAt = ts
			post.PostedAgo = relativeTime(*ts, now)
		}
		posts = append(posts, post)
	}
	sort.SliceStable(posts, func(i, j int) bool {
		ti, tj := posts[i].PostedAt, posts[j].PostedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	if len(posts) > maxPostsPerProfile {
		posts = posts[:maxPostsPerProfile]
	}
	p.Posts = posts
	return p, nil
}

// lastPostWithin reports whether any post timestamp falls inside the
// activity window; profiles with no dated posts count as inactive.
func lastPostWithin(p ScoredProfile, window time.Duration, now time.Time) bool {
	for _, post := range p.Posts {
		if post.PostedAt != nil && now.Sub(*post.PostedAt) <= window {
			return true
		}
	}
	return false
}

// profileText renders the profile for the scoring prompt.
func profileText(p ScoredProfile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Platform: %s\n", p.Platform)
	fmt.Fprintf(&sb, "Name: %s\n", p.DisplayName)
	fmt.Fprintf(&sb, "Followers: %d\n", p.Followers)
	fmt.Fprintf(&sb, "Bio: %s\n", p.Biography)
	fmt.Fprintf(&sb, "URL: %s\n", p.ProfileURL)
	if len(p.Posts) > 0 {
		sb.WriteString("Recent posts:\n")
		for _, post := range p.Posts {
			fmt.Fprintf(&sb, "- [%s] %s (likes %d, comments %d)\n",
				post.PostedAgo, truncate(post.Caption, 200), post.Likes, post.Comments)
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func getInt(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return int64(v)
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n
			}
		}
	}
	return 0
}

func getList(m map[string]any, keys ...string) []any {
	for _, k := range keys {
		if v, ok := m[k].([]any); ok && len(v) > 0 {
			return v
		}
	}
	return nil
}

var postTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parsePostTime(pm map[string]any) *time.Time {
	switch v := pm["datetime"].(type) {
	case string:
		return parseTimeString(v)
	}
	if s := getString(pm, "timestamp", "created_at", "create_time", "date_posted", "posted_at"); s != "" {
		return parseTimeString(s)
	}
	// TikTok delivers epoch seconds.
	if n := getInt(pm, "create_time", "timestamp"); n > 0 {
		t := time.Unix(n, 0).UTC()
		return &t
	}
	return nil
}

func parseTimeString(s string) *time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range postTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func relativeTime(t time.Time, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%d weeks ago", int(d.Hours()/(24*7)))
	default:
		return fmt.Sprintf("%d months ago", int(d.Hours()/(24*30)))
	}
}
