package scoring

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"MediaRadar/internal/domain"
)

// DefaultNotable is the sub-score level worth explaining to a reviewer.
const DefaultNotable = 0.5

// Config tunes the scorer. Zero values fall back to defaults.
type Config struct {
	Weights    Weights
	Visibility VisibilityTable
	Notable    float64
}

// Score is the explainable outcome of scoring one item against one campaign.
type Score struct {
	Relevance        float64
	Visibility       float64
	Freshness        float64
	OpportunityScore float64
	Tier             domain.Tier
	KnownSource      bool
	Keywords         []string
	MatchReasons     []string
	Match            bool
}

// Scorer is a pure function of (news item, criteria, now). It holds only
// configuration and the shared tier table.
type Scorer struct {
	weights    Weights
	visibility VisibilityTable
	notable    float64
	tiers      *TierTable
}

// NewScorer validates the weights up front so scoring never runs on a bad mix.
func NewScorer(cfg Config, tiers *TierTable) (*Scorer, error) {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.Visibility == (VisibilityTable{}) {
		cfg.Visibility = DefaultVisibility()
	}
	if cfg.Notable <= 0 {
		cfg.Notable = DefaultNotable
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Visibility.Validate(); err != nil {
		return nil, err
	}
	if tiers == nil {
		tiers = NewTierTable(nil)
	}
	return &Scorer{
		weights:    cfg.Weights,
		visibility: cfg.Visibility,
		notable:    cfg.Notable,
		tiers:      tiers,
	}, nil
}

// Weights exposes the configured weights.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// ValidateCriteria reports whether criteria can drive scoring.
func ValidateCriteria(c domain.TargetingCriteria) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(keywordSet(c.Keywords)) == 0 && len(keywordSet(c.Topics)) == 0 {
		return fmt.Errorf("%w: no keywords or topics", domain.ErrInvalidCriteria)
	}
	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("%w: freshness window is required", domain.ErrInvalidCriteria)
	}
	return nil
}

// Score evaluates item against criteria at instant now.
func (s *Scorer) Score(item domain.NewsItem, criteria domain.TargetingCriteria, now time.Time) (Score, error) {
	if err := ValidateCriteria(criteria); err != nil {
		return Score{}, err
	}

	relevance, matched := s.relevance(item, criteria)
	tier, known := s.tiers.Lookup(item)
	visibility := s.visibility.forTier(tier, known)
	freshness, age := freshnessOf(item.PublishedAt, now, criteria.FreshnessWindow)
	composite := s.weights.Composite(relevance, visibility, freshness)

	result := Score{
		Relevance:        relevance,
		Visibility:       visibility,
		Freshness:        freshness,
		OpportunityScore: composite,
		Tier:             tier,
		KnownSource:      known,
		Keywords:         intersectKeywords(item.Keywords, criteria.Keywords),
	}
	result.Match = relevance > 0 &&
		relevance >= criteria.MinRelevance &&
		tierAllowed(tier, criteria.OutletTiers) &&
		regionAllowed(item.Region, criteria.Regions)

	result.MatchReasons = s.reasons(result, matched, age, item.PublishedAt, criteria.FreshnessWindow)
	return result, nil
}

func (s *Scorer) relevance(item domain.NewsItem, criteria domain.TargetingCriteria) (float64, []string) {
	terms := make(map[string]bool)
	var order []string
	add := func(values []string, topic bool) {
		for _, v := range values {
			n := normalizeTerm(v)
			if n == "" {
				continue
			}
			if _, ok := terms[n]; !ok {
				order = append(order, n)
			}
			terms[n] = terms[n] || topic
		}
	}
	add(criteria.Keywords, false)
	add(criteria.Topics, true)
	if len(order) == 0 {
		return 0, nil
	}

	title := newField(item.Title)
	body := newField(item.Description)
	category := newField(item.Category)
	itemKeywords := keywordSet(item.Keywords)

	var (
		total   float64
		matched []string
	)
	for _, term := range order {
		best := 0.0
		switch {
		case title.contains(term):
			best = titleWeight
		case hasKey(itemKeywords, term):
			best = keywordWeight
		case terms[term] && category.contains(term):
			best = categoryWeight
		case body.contains(term):
			best = bodyWeight
		}
		if best > 0 {
			matched = append(matched, term)
		}
		total += best
	}
	return clamp01(total / float64(len(order))), matched
}

func freshnessOf(published, now time.Time, window time.Duration) (float64, time.Duration) {
	if published.IsZero() || window <= 0 {
		return 0, 0
	}
	age := now.Sub(published)
	if age < 0 {
		return 1, 0
	}
	return clamp01(1 - float64(age)/float64(window)), age
}

type contribution struct {
	value  float64
	weight float64
	text   string
}

func (s *Scorer) reasons(sc Score, matched []string, age time.Duration, published time.Time, window time.Duration) []string {
	parts := []contribution{
		{
			value:  sc.Relevance,
			weight: s.weights.Relevance,
			text:   fmt.Sprintf("relevance %.2f: matched %s", sc.Relevance, strings.Join(matched, ", ")),
		},
		{
			value:  sc.Visibility,
			weight: s.weights.Visibility,
			text:   visibilityReason(sc),
		},
		{
			value:  sc.Freshness,
			weight: s.weights.Freshness,
			text:   fmt.Sprintf("freshness %.2f: published %s ago", sc.Freshness, age.Round(time.Minute)),
		},
	}
	if len(matched) == 0 {
		parts[0].text = "relevance 0.00: no targeting terms matched"
	}

	sort.SliceStable(parts, func(i, j int) bool {
		return parts[i].value*parts[i].weight > parts[j].value*parts[j].weight
	})

	var out []string
	for _, p := range parts {
		if p.value >= s.notable {
			out = append(out, p.text)
		}
	}
	if len(out) == 0 && sc.OpportunityScore > 0 {
		out = append(out, parts[0].text)
	}
	if !published.IsZero() && sc.Freshness == 0 {
		out = append(out, fmt.Sprintf("stale: published outside the %s freshness window", window))
	}
	return out
}

func visibilityReason(sc Score) string {
	if !sc.KnownSource {
		return fmt.Sprintf("visibility %.2f: unrated outlet", sc.Visibility)
	}
	return fmt.Sprintf("visibility %.2f: tier %s outlet", sc.Visibility, sc.Tier)
}

func intersectKeywords(itemKeywords, criteriaKeywords []string) []string {
	set := keywordSet(itemKeywords)
	var out []string
	seen := map[string]struct{}{}
	for _, k := range criteriaKeywords {
		n := normalizeTerm(k)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		if _, ok := set[n]; ok {
			seen[n] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func tierAllowed(tier domain.Tier, allowed []domain.Tier) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, t := range allowed {
		if t == tier {
			return true
		}
	}
	return false
}

// regionAllowed passes items that carry no region.
func regionAllowed(region string, allowed []string) bool {
	if len(allowed) == 0 || strings.TrimSpace(region) == "" {
		return true
	}
	for _, r := range allowed {
		if strings.EqualFold(strings.TrimSpace(r), strings.TrimSpace(region)) {
			return true
		}
	}
	return false
}

func hasKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
