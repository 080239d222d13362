package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/external/enrichment"
)

func rawProfile(t *testing.T, m map[string]any) enrichment.RawProfile {
	t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return enrichment.RawProfile(b)
}

func TestNormalizeProfileInstagramShape(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	raw := rawProfile(t, map[string]any{
		"url":             "https://www.instagram.com/foodiecreator/",
		"account_id":      "foodiecreator",
		"profile_name":    "Foodie Creator",
		"followers_count": 48200,
		"biography":       "NYC restaurant reviews",
		"posts": []any{
			map[string]any{
				"caption":        "Best ramen downtown",
				"likes_count":    1200,
				"comments_count": 88,
				"datetime":       "2025-05-28T10:00:00Z",
			},
		},
	})

	p, err := normalizeProfile(raw, types.PlatformInstagram, now)
	if err != nil {
		t.Fatalf("normalizeProfile: %v", err)
	}
	if p.Platform != types.PlatformInstagram {
		t.Errorf("platform = %q", p.Platform)
	}
	if p.DisplayName != "Foodie Creator" {
		t.Errorf("display name = %q", p.DisplayName)
	}
	if p.Followers != 48200 {
		t.Errorf("followers = %d", p.Followers)
	}
	if len(p.Posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(p.Posts))
	}
	if p.Posts[0].PostedAt == nil {
		t.Fatal("post time not parsed")
	}
	if p.Posts[0].PostedAgo != "4 days ago" {
		t.Errorf("posted_ago = %q", p.Posts[0].PostedAgo)
	}
}

func TestNormalizeProfileTikTokAliases(t *testing.T) {
	t.Parallel()
	now := time.Now()

	raw := rawProfile(t, map[string]any{
		"account_url":    "https://www.tiktok.com/@dancer",
		"unique_id":      "dancer",
		"nickname":       "Dancer",
		"follower_count": 99000,
		"signature":      "daily choreo",
		"top_videos": []any{
			map[string]any{
				"title":         "new routine",
				"digg_count":    5000,
				"comment_count": 300,
				"create_time":   now.Add(-48 * time.Hour).Unix(),
			},
		},
	})

	p, err := normalizeProfile(raw, types.PlatformTikTok, now)
	if err != nil {
		t.Fatalf("normalizeProfile: %v", err)
	}
	if p.AccountID != "dancer" || p.DisplayName != "Dancer" {
		t.Errorf("identity fields = %q / %q", p.AccountID, p.DisplayName)
	}
	if p.Biography != "daily choreo" {
		t.Errorf("biography = %q", p.Biography)
	}
	if len(p.Posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(p.Posts))
	}
	if p.Posts[0].Likes != 5000 || p.Posts[0].Comments != 300 {
		t.Errorf("engagement = %d/%d", p.Posts[0].Likes, p.Posts[0].Comments)
	}
	if p.Posts[0].PostedAt == nil {
		t.Fatal("epoch create_time not parsed")
	}
}

func TestNormalizeProfileMissingURL(t *testing.T) {
	t.Parallel()

	raw := rawProfile(t, map[string]any{"username": "nobody"})
	_, err := normalizeProfile(raw, types.PlatformInstagram, time.Now())
	if err == nil {
		t.Fatal("expected error for payload without url")
	}
	if !strings.Contains(err.Error(), "missing keys: [url]") {
		t.Errorf("error %q should name the missing key", err.Error())
	}
}

func TestNormalizeProfileMalformedPayload(t *testing.T) {
	t.Parallel()

	_, err := normalizeProfile(enrichment.RawProfile(`{broken`), types.PlatformInstagram, time.Now())
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if !strings.Contains(err.Error(), "unmarshal") {
		t.Errorf("error %q should mention unmarshal", err.Error())
	}
}

func TestNormalizeProfilePostOrderingAndCap(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	posts := make([]any, 0, maxPostsPerProfile+4)
	for i := 0; i < maxPostsPerProfile+4; i++ {
		posts = append(posts, map[string]any{
			"caption":  fmt.Sprintf("post %d", i),
			"datetime": now.Add(-time.Duration(i*24) * time.Hour).Format(time.RFC3339),
		})
	}
	// Undated posts sort after every dated one.
	posts = append(posts, map[string]any{"caption": "undated"})

	raw := rawProfile(t, map[string]any{
		"url":   "https://instagram.com/poster",
		"posts": posts,
	})

	p, err := normalizeProfile(raw, types.PlatformInstagram, now)
	if err != nil {
		t.Fatalf("normalizeProfile: %v", err)
	}
	if len(p.Posts) != maxPostsPerProfile {
		t.Fatalf("posts = %d, want cap %d", len(p.Posts), maxPostsPerProfile)
	}
	for i := 1; i < len(p.Posts); i++ {
		prev, cur := p.Posts[i-1].PostedAt, p.Posts[i].PostedAt
		if prev == nil || cur == nil {
			t.Fatalf("undated post survived inside the cap at index %d", i)
		}
		if cur.After(*prev) {
			t.Fatalf("posts not newest-first at index %d", i)
		}
	}
}

func TestLastPostWithin(t *testing.T) {
	t.Parallel()
	now := time.Now()

	recent := now.Add(-10 * 24 * time.Hour)
	stale := now.Add(-90 * 24 * time.Hour)

	active := ScoredProfile{Posts: []ProfilePost{{PostedAt: &stale}, {PostedAt: &recent}}}
	if !lastPostWithin(active, inactiveWindow, now) {
		t.Error("profile with a 10-day-old post should be active")
	}

	inactive := ScoredProfile{Posts: []ProfilePost{{PostedAt: &stale}}}
	if lastPostWithin(inactive, inactiveWindow, now) {
		t.Error("profile with only a 90-day-old post should be inactive")
	}

	undated := ScoredProfile{Posts: []ProfilePost{{Caption: "no date"}}}
	if lastPostWithin(undated, inactiveWindow, now) {
		t.Error("profile with no dated posts counts as inactive")
	}
}

func TestProfileTextIncludesPosts(t *testing.T) {
	t.Parallel()

	p := ScoredProfile{
		Platform:    types.PlatformInstagram,
		DisplayName: "Foodie",
		Followers:   1000,
		Biography:   "eats",
		ProfileURL:  "https://instagram.com/foodie",
		Posts: []ProfilePost{
			{Caption: "ramen", Likes: 10, Comments: 2, PostedAgo: "3 days ago"},
		},
	}
	text := profileText(p)
	for _, want := range []string{"Foodie", "1000", "Recent posts:", "3 days ago", "ramen"} {
		if !strings.Contains(text, want) {
			t.Errorf("profile text missing %q:\n%s", want, text)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{5 * time.Minute, "5 minutes ago"},
		{3 * time.Hour, "3 hours ago"},
		{2 * 24 * time.Hour, "2 days ago"},
		{14 * 24 * time.Hour, "2 weeks ago"},
		{65 * 24 * time.Hour, "2 months ago"},
	}
	for _, tc := range cases {
		if got := relativeTime(now.Add(-tc.ago), now); got != tc.want {
			t.Errorf("relativeTime(-%s) = %q, want %q", tc.ago, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("0123456789abc", 10); got != "0123456789..." {
		t.Errorf("truncate long = %q", got)
	}
}
