package domain

import "strings"

// Tier is a coarse outlet quality bucket. A is the best.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
)

// Tiers lists every tier from best to worst.
var Tiers = []Tier{TierA, TierB, TierC}

// ParseTier accepts "a", " B " etc.
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierA || t == TierB || t == TierC
}

func (t Tier) rank() int {
	switch t {
	case TierA:
		return 3
	case TierB:
		return 2
	case TierC:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether t is as good as or better than floor.
// An empty floor admits every tier.
func (t Tier) AtLeast(floor Tier) bool {
	if floor == "" {
		return true
	}
	return t.rank() >= floor.rank()
}
