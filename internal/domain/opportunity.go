package domain

import (
	"time"

	"github.com/google/uuid"
)

// OpportunityStatus enumerates the review lifecycle of a match.
type OpportunityStatus string

const (
	StatusNew             OpportunityStatus = "NEW"
	StatusReviewed        OpportunityStatus = "REVIEWED"
	StatusAddedToCampaign OpportunityStatus = "ADDED_TO_CAMPAIGN"
	StatusDismissed       OpportunityStatus = "DISMISSED"
)

// Terminal reports whether no regular transition may leave the status.
func (s OpportunityStatus) Terminal() bool {
	return s == StatusAddedToCampaign || s == StatusDismissed
}

// Valid reports whether s is a known status.
func (s OpportunityStatus) Valid() bool {
	switch s {
	case StatusNew, StatusReviewed, StatusAddedToCampaign, StatusDismissed:
		return true
	default:
		return false
	}
}

var opportunityNamespace = uuid.MustParse("5b0d8d52-4f1e-4d7e-9d34-7f1c1f0d6a11")

// OpportunityID derives the stable identifier of the (organization, campaign,
// news item) triple so that rescans address the same record.
func OpportunityID(organizationID, campaignID, newsItemID string) string {
	return uuid.NewSHA1(opportunityNamespace, []byte(organizationID+"\x00"+campaignID+"\x00"+newsItemID)).String()
}

// MediaOpportunity is a scored match between a news item and a campaign.
type MediaOpportunity struct {
	ID               string            `json:"id"`
	OrganizationID   string            `json:"organization_id"`
	CampaignID       string            `json:"campaign_id"`
	NewsItemID       string            `json:"news_item_id"`
	Title            string            `json:"title"`
	Source           string            `json:"source"`
	URL              string            `json:"url"`
	PublishedAt      time.Time         `json:"published_at"`
	Relevance        float64           `json:"relevance"`
	Visibility       float64           `json:"visibility"`
	Freshness        float64           `json:"freshness"`
	OpportunityScore float64           `json:"opportunity_score"`
	Tier             Tier              `json:"tier"`
	MatchReasons     []string          `json:"match_reasons"`
	Keywords         []string          `json:"keywords"`
	Status           OpportunityStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// SameScores reports whether both records carry identical scores.
func (o MediaOpportunity) SameScores(other MediaOpportunity) bool {
	return o.Relevance == other.Relevance &&
		o.Visibility == other.Visibility &&
		o.Freshness == other.Freshness &&
		o.OpportunityScore == other.OpportunityScore &&
		o.Tier == other.Tier
}

// Rescored merges a fresh scoring result into an existing record. Identity,
// status and creation time are kept; UpdatedAt moves only if a score changed.
func (o MediaOpportunity) Rescored(fresh MediaOpportunity) MediaOpportunity {
	merged := o
	changed := !o.SameScores(fresh)

	merged.Title = fresh.Title
	merged.Source = fresh.Source
	merged.URL = fresh.URL
	merged.PublishedAt = fresh.PublishedAt
	merged.Relevance = fresh.Relevance
	merged.Visibility = fresh.Visibility
	merged.Freshness = fresh.Freshness
	merged.OpportunityScore = fresh.OpportunityScore
	merged.Tier = fresh.Tier
	merged.MatchReasons = fresh.MatchReasons
	merged.Keywords = fresh.Keywords
	if changed {
		merged.UpdatedAt = fresh.UpdatedAt
	}
	return merged
}
