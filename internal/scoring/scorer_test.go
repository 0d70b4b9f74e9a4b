package scoring

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"MediaRadar/internal/domain"
)

var now = time.Date(2025, time.November, 8, 12, 0, 0, 0, time.UTC)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	tiers := NewTierTable(map[string]domain.Tier{
		"techwire":         domain.TierA,
		"regional-daily":   domain.TierB,
		"www.smallblog.io": domain.TierC,
	})
	s, err := NewScorer(Config{}, tiers)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	return s
}

func aiCriteria() domain.TargetingCriteria {
	return domain.TargetingCriteria{
		Keywords:        []string{"AI", "funding"},
		FreshnessWindow: 48 * time.Hour,
	}
}

func TestScoreFundingScenario(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	item := domain.NewsItem{
		ID:          "n-1",
		Title:       "Startup raises AI funding round",
		Source:      "TechWire",
		PublishedAt: now.Add(-2 * time.Hour),
	}

	got, err := s.Score(item, aiCriteria(), now)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !got.Match {
		t.Fatalf("expected match")
	}
	if got.Relevance < 0.8 {
		t.Fatalf("relevance = %.3f, want >= 0.8", got.Relevance)
	}
	if math.Abs(got.Freshness-0.96) > 0.01 {
		t.Fatalf("freshness = %.3f, want ~0.96", got.Freshness)
	}
	if got.OpportunityScore < 0.8 {
		t.Fatalf("opportunity score = %.3f, want >= 0.8", got.OpportunityScore)
	}
	if got.Tier != domain.TierA {
		t.Fatalf("tier = %s, want A", got.Tier)
	}
	if len(got.MatchReasons) == 0 {
		t.Fatalf("expected match reasons")
	}
	if !strings.HasPrefix(got.MatchReasons[0], "relevance") {
		t.Fatalf("largest contribution should come first, got %q", got.MatchReasons[0])
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	item := domain.NewsItem{
		Title:       "Funding news",
		Description: "An AI lab closed a round.",
		Source:      "regional-daily",
		Keywords:    []string{"ai"},
		PublishedAt: now.Add(-30 * time.Hour),
	}

	first, err := s.Score(item, aiCriteria(), now)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	second, err := s.Score(item, aiCriteria(), now)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("scores differ:\n%+v\n%+v", first, second)
	}
}

func TestScoreZeroOverlapIsNotAMatch(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	item := domain.NewsItem{
		Title:       "Local bakery wins award",
		Description: "Bread and pastries.",
		Source:      "TechWire",
		PublishedAt: now,
	}

	got, err := s.Score(item, aiCriteria(), now)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.Relevance != 0 {
		t.Fatalf("relevance = %.3f, want 0", got.Relevance)
	}
	if got.Match {
		t.Fatalf("zero relevance must never match")
	}
}

func TestScoreLocationWeights(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	criteria := domain.TargetingCriteria{Keywords: []string{"robotics"}, FreshnessWindow: time.Hour}

	cases := []struct {
		name string
		item domain.NewsItem
		want float64
	}{
		{"title", domain.NewsItem{Title: "Robotics boom"}, titleWeight},
		{"keyword set", domain.NewsItem{Keywords: []string{"Robotics"}}, keywordWeight},
		{"body", domain.NewsItem{Description: "a story about robotics"}, bodyWeight},
		{"partial token", domain.NewsItem{Title: "Roboticsfest"}, 0},
		{"diacritics", domain.NewsItem{Title: "ROBÓTICS expo"}, titleWeight},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.Score(tc.item, criteria, now)
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if got.Relevance != tc.want {
				t.Fatalf("relevance = %.2f, want %.2f", got.Relevance, tc.want)
			}
		})
	}
}

func TestScoreStaleItemStillRecorded(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	item := domain.NewsItem{
		Title:       "AI funding slows",
		Source:      "TechWire",
		PublishedAt: now.Add(-72 * time.Hour),
	}

	got, err := s.Score(item, aiCriteria(), now)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.Freshness != 0 {
		t.Fatalf("freshness = %.2f, want 0", got.Freshness)
	}
	if !got.Match {
		t.Fatalf("stale but relevant items should still match")
	}
	last := got.MatchReasons[len(got.MatchReasons)-1]
	if !strings.HasPrefix(last, "stale") {
		t.Fatalf("expected stale reason, got %v", got.MatchReasons)
	}
}

func TestScoreSparseItemDegrades(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	got, err := s.Score(domain.NewsItem{Title: "AI"}, aiCriteria(), now)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.Freshness != 0 {
		t.Fatalf("missing publish time should give zero freshness")
	}
	if got.Visibility != DefaultVisibility().Unknown {
		t.Fatalf("unknown source visibility = %.2f", got.Visibility)
	}
	if got.Relevance != 0.5 {
		t.Fatalf("relevance = %.2f, want 0.5", got.Relevance)
	}
}

func TestScoreFilters(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	criteria := aiCriteria()
	criteria.OutletTiers = []domain.Tier{domain.TierA}
	criteria.Regions = []string{"EU"}

	item := domain.NewsItem{Title: "AI funding", Source: "regional-daily", PublishedAt: now}
	got, err := s.Score(item, criteria, now)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.Match {
		t.Fatalf("tier B outlet should be filtered out")
	}

	item.Source = "techwire"
	item.Region = "US"
	got, _ = s.Score(item, criteria, now)
	if got.Match {
		t.Fatalf("region US should be filtered out")
	}

	item.Region = ""
	got, _ = s.Score(item, criteria, now)
	if !got.Match {
		t.Fatalf("items without a region should pass the region filter")
	}
}

func TestScoreMinRelevanceFloor(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	criteria := aiCriteria()
	criteria.MinRelevance = 0.6

	got, err := s.Score(domain.NewsItem{Title: "AI everywhere"}, criteria, now)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.Match {
		t.Fatalf("relevance %.2f below floor should not match", got.Relevance)
	}
}

func TestScoreKeywordIntersection(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	item := domain.NewsItem{Title: "AI", Keywords: []string{"funding", "ai", "crypto"}}
	got, err := s.Score(item, aiCriteria(), now)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := []string{"AI", "funding"}
	if !reflect.DeepEqual(got.Keywords, want) {
		t.Fatalf("keywords = %v, want %v", got.Keywords, want)
	}
}

func TestScoreInvalidCriteria(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	cases := map[string]domain.TargetingCriteria{
		"no terms":        {FreshnessWindow: time.Hour},
		"no window":       {Keywords: []string{"ai"}},
		"bad relevance":   {Keywords: []string{"ai"}, FreshnessWindow: time.Hour, MinRelevance: 2},
		"unknown tier":    {Keywords: []string{"ai"}, FreshnessWindow: time.Hour, OutletTiers: []domain.Tier{"Z"}},
		"blank keywords":  {Keywords: []string{"  "}, FreshnessWindow: time.Hour},
		"negative window": {Keywords: []string{"ai"}, FreshnessWindow: -time.Hour},
	}
	for name, criteria := range cases {
		if _, err := s.Score(domain.NewsItem{Title: "ai"}, criteria, now); !errors.Is(err, domain.ErrInvalidCriteria) {
			t.Errorf("%s: err = %v, want ErrInvalidCriteria", name, err)
		}
	}
}

func TestNewScorerRejectsBadWeights(t *testing.T) {
	t.Parallel()

	_, err := NewScorer(Config{Weights: Weights{Relevance: 0.5, Visibility: 0.5, Freshness: 0.5}}, nil)
	if !errors.Is(err, domain.ErrInvalidCriteria) {
		t.Fatalf("err = %v, want ErrInvalidCriteria", err)
	}

	_, err = NewScorer(Config{Visibility: VisibilityTable{A: 0.5, B: 0.9, C: 0.3, Unknown: 0.1}}, nil)
	if !errors.Is(err, domain.ErrInvalidCriteria) {
		t.Fatalf("non-monotone visibility: err = %v", err)
	}
}

func TestTierTableLookupByHost(t *testing.T) {
	t.Parallel()

	table := NewTierTable(map[string]domain.Tier{"smallblog.io": domain.TierC, "bad": "Q"})
	tier, ok := table.Lookup(domain.NewsItem{Source: "Small Blog", URL: "https://www.smallblog.io/post/1"})
	if !ok || tier != domain.TierC {
		t.Fatalf("lookup = %s/%v, want C/true", tier, ok)
	}
	if table.Len() != 1 {
		t.Fatalf("invalid tiers should be dropped, len = %d", table.Len())
	}
}
