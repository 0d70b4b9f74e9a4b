package scoring

import (
	"fmt"
	"math"

	"MediaRadar/internal/domain"
)

const weightTolerance = 1e-9

// Weights combine the three sub-scores into the opportunity score.
type Weights struct {
	Relevance  float64 `yaml:"relevance"`
	Visibility float64 `yaml:"visibility"`
	Freshness  float64 `yaml:"freshness"`
}

// DefaultWeights favours relevance over reach over recency.
func DefaultWeights() Weights {
	return Weights{Relevance: 0.5, Visibility: 0.3, Freshness: 0.2}
}

// Validate requires non-negative weights summing to 1.
func (w Weights) Validate() error {
	if w.Relevance < 0 || w.Visibility < 0 || w.Freshness < 0 {
		return fmt.Errorf("%w: negative weight", domain.ErrInvalidCriteria)
	}
	sum := w.Relevance + w.Visibility + w.Freshness
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %.6f, want 1", domain.ErrInvalidCriteria, sum)
	}
	return nil
}

// Composite is the weighted sum clamped to [0,1].
func (w Weights) Composite(relevance, visibility, freshness float64) float64 {
	return clamp01(w.Relevance*relevance + w.Visibility*visibility + w.Freshness*freshness)
}

// VisibilityTable maps tiers to visibility sub-scores.
type VisibilityTable struct {
	A       float64 `yaml:"a"`
	B       float64 `yaml:"b"`
	C       float64 `yaml:"c"`
	Unknown float64 `yaml:"unknown"`
}

// DefaultVisibility keeps unknown sources low but above zero.
func DefaultVisibility() VisibilityTable {
	return VisibilityTable{A: 1.0, B: 0.7, C: 0.4, Unknown: 0.2}
}

// Validate requires a monotone table inside (0,1].
func (v VisibilityTable) Validate() error {
	for _, value := range []float64{v.A, v.B, v.C, v.Unknown} {
		if value <= 0 || value > 1 {
			return fmt.Errorf("%w: visibility %.2f outside (0,1]", domain.ErrInvalidCriteria, value)
		}
	}
	if v.A < v.B || v.B < v.C || v.C < v.Unknown {
		return fmt.Errorf("%w: visibility must not increase for worse tiers", domain.ErrInvalidCriteria)
	}
	return nil
}

func (v VisibilityTable) forTier(t domain.Tier, known bool) float64 {
	if !known {
		return v.Unknown
	}
	switch t {
	case domain.TierA:
		return v.A
	case domain.TierB:
		return v.B
	default:
		return v.C
	}
}

func clamp01(x float64) float64 {
	if x < 0 || math.IsNaN(x) {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
