package scoring

import (
	"net/url"
	"strings"
	"sync"

	"MediaRadar/internal/domain"
)

// TierTable resolves a news item's outlet to a tier. It is safe for
// concurrent use and may be refreshed from a reputation provider.
type TierTable struct {
	mu    sync.RWMutex
	tiers map[string]domain.Tier
}

// NewTierTable copies the provided source -> tier mapping.
func NewTierTable(initial map[string]domain.Tier) *TierTable {
	t := &TierTable{}
	t.Replace(initial)
	return t
}

// Replace swaps the whole table, dropping invalid tiers.
func (t *TierTable) Replace(tiers map[string]domain.Tier) {
	next := make(map[string]domain.Tier, len(tiers))
	for source, tier := range tiers {
		if key := normalizeSource(source); key != "" && tier.Valid() {
			next[key] = tier
		}
	}
	t.mu.Lock()
	t.tiers = next
	t.mu.Unlock()
}

// Len returns the number of known sources.
func (t *TierTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tiers)
}

// Lookup tries the item's source name first, then the host of its URL.
func (t *TierTable) Lookup(item domain.NewsItem) (domain.Tier, bool) {
	if t == nil {
		return domain.TierC, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, key := range []string{normalizeSource(item.Source), hostOf(item.URL)} {
		if key == "" {
			continue
		}
		if tier, ok := t.tiers[key]; ok {
			return tier, true
		}
	}
	return domain.TierC, false
}

func normalizeSource(source string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	return strings.TrimPrefix(source, "www.")
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return normalizeSource(parsed.Hostname())
}
