package domain

import (
	"fmt"
	"strings"
	"time"
)

// CampaignStatus is the lifecycle stage of a campaign itself.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignExecuting CampaignStatus = "executing"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign owns its opportunities and targeting criteria.
type Campaign struct {
	ID              string         `json:"id"`
	OrganizationID  string         `json:"organization_id"`
	Name            string         `json:"name"`
	Status          CampaignStatus `json:"status"`
	MinTierAMatches int            `json:"min_tier_a_matches,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Scannable reports whether incoming news should be scored for the campaign.
func (c Campaign) Scannable() bool {
	switch c.Status {
	case CampaignDraft, CampaignActive, CampaignExecuting:
		return true
	default:
		return false
	}
}

// TargetingCriteria describes what a campaign is looking for.
type TargetingCriteria struct {
	Keywords        []string      `json:"keywords"`
	Topics          []string      `json:"topics"`
	OutletTiers     []Tier        `json:"outlet_tiers,omitempty"`
	Regions         []string      `json:"regions,omitempty"`
	MinRelevance    float64       `json:"min_relevance"`
	FreshnessWindow time.Duration `json:"freshness_window"`
	Generation      int64         `json:"generation"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Validate checks the fields that make criteria storable. It does not require
// keywords: incomplete criteria may be saved and are reported by readiness.
func (c TargetingCriteria) Validate() error {
	if c.MinRelevance < 0 || c.MinRelevance > 1 {
		return fmt.Errorf("%w: min relevance %.2f outside [0,1]", ErrInvalidCriteria, c.MinRelevance)
	}
	if c.FreshnessWindow < 0 {
		return fmt.Errorf("%w: negative freshness window", ErrInvalidCriteria)
	}
	for _, t := range c.OutletTiers {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown outlet tier %q", ErrInvalidCriteria, t)
		}
	}
	return nil
}

// Complete reports whether the criteria can drive scoring.
func (c TargetingCriteria) Complete() bool {
	return len(nonBlank(c.Keywords)) > 0 && c.FreshnessWindow > 0
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
