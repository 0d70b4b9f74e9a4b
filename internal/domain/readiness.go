package domain

import "time"

// ReadinessStatus is the derived execution verdict of a campaign.
type ReadinessStatus string

const (
	ReadinessNotReady    ReadinessStatus = "NOT_READY"
	ReadinessNeedsReview ReadinessStatus = "NEEDS_REVIEW"
	ReadinessReady       ReadinessStatus = "READY"
	ReadinessExecuting   ReadinessStatus = "EXECUTING"
	ReadinessBlocked     ReadinessStatus = "BLOCKED"
)

// Severity orders statuses so the most severe applicable one wins.
func (s ReadinessStatus) Severity() int {
	switch s {
	case ReadinessBlocked:
		return 4
	case ReadinessNotReady:
		return 3
	case ReadinessNeedsReview:
		return 2
	default:
		return 1
	}
}

// MatchCounts aggregates opportunities by tier and by status.
type MatchCounts struct {
	Total          int                       `json:"total"`
	ByTier         map[Tier]int              `json:"by_tier"`
	ByStatus       map[OpportunityStatus]int `json:"by_status"`
	ApprovedByTier map[Tier]int              `json:"approved_by_tier"`
}

// Recommendations groups suggested actions by urgency.
type Recommendations struct {
	Critical    []string `json:"critical"`
	Important   []string `json:"important"`
	Suggestions []string `json:"suggestions"`
}

// ReadinessResult is recomputed on demand and never the source of truth.
type ReadinessResult struct {
	CampaignID      string          `json:"campaign_id"`
	OrganizationID  string          `json:"organization_id"`
	Status          ReadinessStatus `json:"readiness_status"`
	Counts          MatchCounts     `json:"counts"`
	Blockers        []string        `json:"blockers"`
	Warnings        []string        `json:"warnings"`
	Recommendations Recommendations `json:"recommendations"`
	CalculatedAt    time.Time       `json:"calculated_at"`
}

// ExecutionCheck is the slim answer of canExecuteCampaign.
type ExecutionCheck struct {
	CanExecute bool     `json:"can_execute"`
	Blockers   []string `json:"blockers"`
	Warnings   []string `json:"warnings"`
}

// TargetingSummary is the cheap read path: counts only.
type TargetingSummary struct {
	CampaignID       string            `json:"campaign_id"`
	OrganizationID   string            `json:"organization_id"`
	Counts           MatchCounts       `json:"counts"`
	Criteria         TargetingCriteria `json:"criteria"`
	CriteriaComplete bool              `json:"criteria_complete"`
}

// ApprovalPolicy drives one auto-approval run.
type ApprovalPolicy struct {
	MinScore float64 `json:"min_score"`
	MinTier  Tier    `json:"min_tier"`
	MaxCount int     `json:"max_count"`
	DryRun   bool    `json:"dry_run"`
}

// ApprovalResult reports what an auto-approval run did or would do.
type ApprovalResult struct {
	Approved int      `json:"approved"`
	Skipped  int      `json:"skipped"`
	MatchIDs []string `json:"match_ids"`
	DryRun   bool     `json:"dry_run"`
	Failures []string `json:"failures,omitempty"`
}
