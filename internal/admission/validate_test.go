package admission

import (
	"strings"
	"testing"

	types "github.com/scoutline/scoutline-backend/internal/domain"
)

func validRequest() SubmitRequest {
	return SubmitRequest{
		BusinessDescription: "Specialty coffee roaster in Austin looking for local food creators",
	}
}

func TestValidateDefaults(t *testing.T) {
	t.Parallel()

	p, err := validRequest().validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if p.TopN != defaultTopN {
		t.Errorf("top_n default = %d, want %d", p.TopN, defaultTopN)
	}
	if p.WeaviateTopN != defaultWeaviateTopN {
		t.Errorf("weaviate_top_n default = %d, want %d", p.WeaviateTopN, defaultWeaviateTopN)
	}
	if p.LLMTopN != p.TopN {
		t.Errorf("llm_top_n default = %d, want top_n %d", p.LLMTopN, p.TopN)
	}
	if p.Platform != "" {
		t.Errorf("platform default = %q, want empty (both platforms)", p.Platform)
	}
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*SubmitRequest)
		wantMsg string
	}{
		{
			name:    "empty description",
			mutate:  func(r *SubmitRequest) { r.BusinessDescription = "   " },
			wantMsg: "business_description",
		},
		{
			name:    "top_n too large",
			mutate:  func(r *SubmitRequest) { r.TopN = 1001 },
			wantMsg: "top_n",
		},
		{
			name:    "top_n negative",
			mutate:  func(r *SubmitRequest) { r.TopN = -1 },
			wantMsg: "top_n",
		},
		{
			name:    "weaviate_top_n too small",
			mutate:  func(r *SubmitRequest) { r.WeaviateTopN = 5 },
			wantMsg: "weaviate_top_n",
		},
		{
			name: "llm_top_n exceeds weaviate_top_n",
			mutate: func(r *SubmitRequest) {
				r.WeaviateTopN = 50
				r.LLMTopN = 100
			},
			wantMsg: "llm_top_n",
		},
		{
			name:    "negative min_followers",
			mutate:  func(r *SubmitRequest) { r.MinFollowers = -1 },
			wantMsg: "min_followers",
		},
		{
			name: "follower range inverted",
			mutate: func(r *SubmitRequest) {
				r.MinFollowers = 10000
				r.MaxFollowers = 100
			},
			wantMsg: "min_followers",
		},
		{
			name:    "unknown platform",
			mutate:  func(r *SubmitRequest) { r.Platform = "youtube" },
			wantMsg: "platform",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := validRequest()
			tc.mutate(&req)
			_, err := req.validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q should mention %q", err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestValidateNormalizesPlatformAndExclusions(t *testing.T) {
	t.Parallel()

	req := validRequest()
	req.Platform = "  Instagram "
	req.ExcludeProfileURLs = []string{" https://instagram.com/skipme ", "", "   "}

	p, err := req.validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if p.Platform != types.PlatformInstagram {
		t.Errorf("platform = %q, want %q", p.Platform, types.PlatformInstagram)
	}
	if len(p.ExcludeProfileURLs) != 1 || p.ExcludeProfileURLs[0] != "https://instagram.com/skipme" {
		t.Errorf("exclusions = %v", p.ExcludeProfileURLs)
	}
}

func TestValidateExplicitCounts(t *testing.T) {
	t.Parallel()

	req := validRequest()
	req.TopN = 50
	req.WeaviateTopN = 2000
	req.LLMTopN = 40

	p, err := req.validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if p.TopN != 50 || p.WeaviateTopN != 2000 || p.LLMTopN != 40 {
		t.Errorf("counts = %d/%d/%d", p.TopN, p.WeaviateTopN, p.LLMTopN)
	}
}
