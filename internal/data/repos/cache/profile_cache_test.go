package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/scoutline/scoutline-backend/internal/data/repos/testutil"
	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
)

func cacheRepoHarness(t *testing.T) (ProfileCacheRepo, dbctx.Context) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	return NewProfileCacheRepo(db, testutil.Logger(t)), dbctx.Context{Ctx: context.Background(), Tx: tx}
}

func cacheEntry(key string, expiresAt time.Time) *types.ProfileCacheEntry {
	return &types.ProfileCacheEntry{
		CacheKey:      key,
		NormalizedURL: fmt.Sprintf("instagram.com/%s", key),
		Platform:      types.PlatformInstagram,
		RawData:       []byte(`{"followers_count":100}`),
		ExpiresAt:     expiresAt,
	}
}

func TestBulkGetFiltersExpired(t *testing.T) {
	repo, dbc := cacheRepoHarness(t)
	now := time.Now()

	fresh := cacheEntry("cache-test-fresh", now.Add(time.Hour))
	expired := cacheEntry("cache-test-expired", now.Add(-time.Hour))
	if err := repo.Put(dbc, []*types.ProfileCacheEntry{fresh, expired}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := repo.BulkGet(dbc, []string{"cache-test-fresh", "cache-test-expired", "cache-test-missing"})
	if err != nil {
		t.Fatalf("bulk get: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("bulk get returned %d entries, want 1: %v", len(got), got)
	}
	entry, ok := got["cache-test-fresh"]
	if !ok {
		t.Fatal("fresh entry missing from result")
	}
	if entry.NormalizedURL != fresh.NormalizedURL {
		t.Errorf("normalized_url = %q", entry.NormalizedURL)
	}
	if entry.CachedAt.IsZero() {
		t.Error("cached_at not stamped on put")
	}
}

func TestBulkGetEmptyKeys(t *testing.T) {
	repo, dbc := cacheRepoHarness(t)

	got, err := repo.BulkGet(dbc, nil)
	if err != nil {
		t.Fatalf("bulk get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("bulk get with no keys = %v, want empty", got)
	}
}

func TestPutUpsertsLastWriterWins(t *testing.T) {
	repo, dbc := cacheRepoHarness(t)
	now := time.Now()

	first := cacheEntry("cache-test-upsert", now.Add(time.Hour))
	if err := repo.Put(dbc, []*types.ProfileCacheEntry{first}); err != nil {
		t.Fatalf("put: %v", err)
	}

	second := cacheEntry("cache-test-upsert", now.Add(48*time.Hour))
	second.RawData = []byte(`{"followers_count":250}`)
	if err := repo.Put(dbc, []*types.ProfileCacheEntry{second}); err != nil {
		t.Fatalf("put again: %v", err)
	}

	got, err := repo.BulkGet(dbc, []string{"cache-test-upsert"})
	if err != nil {
		t.Fatalf("bulk get: %v", err)
	}
	entry, ok := got["cache-test-upsert"]
	if !ok {
		t.Fatal("upserted entry missing")
	}
	if string(entry.RawData) != `{"followers_count":250}` {
		t.Errorf("raw_data = %s, want second write", entry.RawData)
	}
	if entry.ExpiresAt.Before(now.Add(24 * time.Hour)) {
		t.Errorf("expires_at = %s, want second write's TTL", entry.ExpiresAt)
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, dbc := cacheRepoHarness(t)
	now := time.Now()

	entries := []*types.ProfileCacheEntry{
		cacheEntry("cache-test-sweep-old", now.Add(-time.Minute)),
		cacheEntry("cache-test-sweep-older", now.Add(-time.Hour)),
		cacheEntry("cache-test-sweep-live", now.Add(time.Hour)),
	}
	if err := repo.Put(dbc, entries); err != nil {
		t.Fatalf("put: %v", err)
	}

	deleted, err := repo.DeleteExpired(dbc, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted < 2 {
		t.Errorf("deleted = %d, want at least the 2 expired fixtures", deleted)
	}

	got, err := repo.BulkGet(dbc, []string{"cache-test-sweep-live"})
	if err != nil {
		t.Fatalf("bulk get: %v", err)
	}
	if _, ok := got["cache-test-sweep-live"]; !ok {
		t.Error("live entry swept by expiry cleanup")
	}
}
