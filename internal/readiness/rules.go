package readiness

import (
	"fmt"
	"time"

	"MediaRadar/internal/domain"
)

const (
	blockerClosed     = "campaign is closed"
	blockerPaused     = "campaign is paused"
	blockerIncomplete = "targeting criteria incomplete"
	blockerNoApproved = "no approved matches"
)

// snapshot is everything one readiness call reads from the repository.
type snapshot struct {
	campaign    domain.Campaign
	criteria    domain.TargetingCriteria
	hasCriteria bool
	matches     []domain.MediaOpportunity
}

type verdict struct {
	status          domain.ReadinessStatus
	counts          domain.MatchCounts
	blockers        []string
	warnings        []string
	needsReview     bool
	recommendations domain.Recommendations
}

type thresholds struct {
	minTierA        int
	lowScoreWarning float64
}

// rule inspects the snapshot and records blockers, warnings and advice.
type rule func(s snapshot, t thresholds, now time.Time, v *verdict)

// Blocker rules run before warning rules; the status is settled by the most
// severe blocker, warnings accumulate regardless.
var (
	blockerRules = []rule{campaignClosed, campaignPaused, criteriaIncomplete, noApprovedMatches}
	warningRules = []rule{tierAShortfall, pendingReview, staleApproved, lowApprovedScore, noMatchesYet}
)

func evaluate(s snapshot, t thresholds, now time.Time) verdict {
	v := verdict{counts: count(s.matches)}

	for _, r := range blockerRules {
		r(s, t, now, &v)
	}
	worst := domain.ReadinessStatus("")
	for _, msg := range v.blockers {
		if status := blockerStatus(msg); worst == "" || status.Severity() > worst.Severity() {
			worst = status
		}
	}
	for _, r := range warningRules {
		r(s, t, now, &v)
	}

	switch {
	case worst != "":
		v.status = worst
	case v.needsReview:
		v.status = domain.ReadinessNeedsReview
	case s.campaign.Status == domain.CampaignExecuting:
		v.status = domain.ReadinessExecuting
	default:
		v.status = domain.ReadinessReady
	}
	return v
}

func blockerStatus(msg string) domain.ReadinessStatus {
	switch msg {
	case blockerClosed, blockerPaused:
		return domain.ReadinessBlocked
	default:
		return domain.ReadinessNotReady
	}
}

func count(matches []domain.MediaOpportunity) domain.MatchCounts {
	c := domain.MatchCounts{
		ByTier:         map[domain.Tier]int{},
		ByStatus:       map[domain.OpportunityStatus]int{},
		ApprovedByTier: map[domain.Tier]int{},
	}
	for _, m := range matches {
		c.Total++
		c.ByTier[m.Tier]++
		c.ByStatus[m.Status]++
		if m.Status == domain.StatusAddedToCampaign {
			c.ApprovedByTier[m.Tier]++
		}
	}
	return c
}

func approved(matches []domain.MediaOpportunity) []domain.MediaOpportunity {
	var out []domain.MediaOpportunity
	for _, m := range matches {
		if m.Status == domain.StatusAddedToCampaign {
			out = append(out, m)
		}
	}
	return out
}

func campaignClosed(s snapshot, _ thresholds, _ time.Time, v *verdict) {
	if s.campaign.Status != domain.CampaignCompleted {
		return
	}
	v.blockers = append(v.blockers, blockerClosed)
	v.recommendations.Critical = append(v.recommendations.Critical, "campaign is completed; start a new campaign to keep collecting coverage")
}

func campaignPaused(s snapshot, _ thresholds, _ time.Time, v *verdict) {
	if s.campaign.Status != domain.CampaignPaused {
		return
	}
	v.blockers = append(v.blockers, blockerPaused)
	v.recommendations.Critical = append(v.recommendations.Critical, "resume the campaign before executing")
}

func criteriaIncomplete(s snapshot, _ thresholds, _ time.Time, v *verdict) {
	if s.hasCriteria && s.criteria.Complete() {
		return
	}
	v.blockers = append(v.blockers, blockerIncomplete)
	v.recommendations.Critical = append(v.recommendations.Critical, "add keywords and a freshness window to the targeting criteria")
}

func noApprovedMatches(_ snapshot, _ thresholds, _ time.Time, v *verdict) {
	if v.counts.ByStatus[domain.StatusAddedToCampaign] > 0 {
		return
	}
	v.blockers = append(v.blockers, blockerNoApproved)
	v.recommendations.Critical = append(v.recommendations.Critical, "approve at least one match, manually or with auto-approval")
}

func tierAShortfall(s snapshot, t thresholds, _ time.Time, v *verdict) {
	need := t.minTierA
	if s.campaign.MinTierAMatches > 0 {
		need = s.campaign.MinTierAMatches
	}
	have := v.counts.ApprovedByTier[domain.TierA]
	if need <= 0 || have >= need {
		return
	}
	v.needsReview = true
	v.warnings = append(v.warnings, fmt.Sprintf("only %d of %d required tier A matches approved", have, need))
	v.recommendations.Important = append(v.recommendations.Important, fmt.Sprintf("approve %d more tier A matches", need-have))
}

func pendingReview(_ snapshot, _ thresholds, _ time.Time, v *verdict) {
	pending := v.counts.ByStatus[domain.StatusNew] + v.counts.ByStatus[domain.StatusReviewed]
	if pending == 0 {
		return
	}
	v.warnings = append(v.warnings, fmt.Sprintf("%d matches awaiting review", pending))
	v.recommendations.Important = append(v.recommendations.Important, fmt.Sprintf("review %d pending matches", pending))
}

func staleApproved(s snapshot, _ thresholds, now time.Time, v *verdict) {
	window := s.criteria.FreshnessWindow
	if !s.hasCriteria || window <= 0 {
		return
	}
	stale := 0
	for _, m := range approved(s.matches) {
		if !m.PublishedAt.IsZero() && now.Sub(m.PublishedAt) > window {
			stale++
		}
	}
	if stale == 0 {
		return
	}
	v.warnings = append(v.warnings, fmt.Sprintf("%d approved matches are older than the %s freshness window", stale, window))
	v.recommendations.Suggestions = append(v.recommendations.Suggestions, "replace stale approved matches with recent coverage")
}

func lowApprovedScore(s snapshot, t thresholds, _ time.Time, v *verdict) {
	list := approved(s.matches)
	if len(list) == 0 || t.lowScoreWarning <= 0 {
		return
	}
	var sum float64
	for _, m := range list {
		sum += m.OpportunityScore
	}
	avg := sum / float64(len(list))
	if avg >= t.lowScoreWarning {
		return
	}
	v.warnings = append(v.warnings, fmt.Sprintf("average approved score %.2f is below %.2f", avg, t.lowScoreWarning))
	v.recommendations.Suggestions = append(v.recommendations.Suggestions, "raise the auto-approval score floor or tighten targeting")
}

func noMatchesYet(s snapshot, _ thresholds, _ time.Time, v *verdict) {
	if v.counts.Total > 0 || !s.hasCriteria || !s.criteria.Complete() {
		return
	}
	v.recommendations.Suggestions = append(v.recommendations.Suggestions, "broaden keywords or topics to attract more matches")
}
