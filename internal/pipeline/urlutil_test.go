package pipeline

import (
	"testing"

	types "github.com/scoutline/scoutline-backend/internal/domain"
)

func TestNormalizeProfileURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"HTTPS://www.Instagram.com/Foo/", "instagram.com/foo"},
		{"instagram.com/foo", "instagram.com/foo"},
		{"http://instagram.com/foo?hl=en#bio", "instagram.com/foo"},
		{"https://www.tiktok.com/@bar/", "tiktok.com/@bar"},
		{"  https://instagram.com/foo  ", "instagram.com/foo"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeProfileURL(tc.in); got != tc.want {
			t.Errorf("NormalizeProfileURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeProfileURLAgreesAcrossForms(t *testing.T) {
	t.Parallel()

	forms := []string{
		"https://www.instagram.com/somecreator",
		"http://instagram.com/somecreator/",
		"INSTAGRAM.COM/SomeCreator",
	}
	want := NormalizeProfileURL(forms[0])
	for _, f := range forms[1:] {
		if got := NormalizeProfileURL(f); got != want {
			t.Errorf("NormalizeProfileURL(%q) = %q, want %q", f, got, want)
		}
	}
}

func TestPlatformFromURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"https://www.instagram.com/foo", types.PlatformInstagram},
		{"https://www.tiktok.com/@bar", types.PlatformTikTok},
		{"https://example.com/foo", types.PlatformUnknown},
		{"", types.PlatformUnknown},
	}
	for _, tc := range cases {
		if got := PlatformFromURL(tc.in); got != tc.want {
			t.Errorf("PlatformFromURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCacheKeyStableAcrossURLVariants(t *testing.T) {
	t.Parallel()

	a := CacheKey("https://www.instagram.com/foo/")
	b := CacheKey("instagram.com/foo")
	if a != b {
		t.Fatalf("cache keys differ for equivalent URLs: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("cache key is not a sha256 hex digest: %q", a)
	}
	if c := CacheKey("instagram.com/other"); c == a {
		t.Fatalf("distinct profiles must not share a cache key")
	}
}
