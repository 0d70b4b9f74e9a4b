// Package approval bulk-promotes eligible matches into their campaign.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/opportunity"
	"MediaRadar/internal/readiness"
	"MediaRadar/internal/retry"
)

// Approver performs the conditional NEW/REVIEWED -> ADDED_TO_CAMPAIGN move.
type Approver interface {
	Approve(ctx context.Context, current domain.MediaOpportunity) (domain.MediaOpportunity, error)
}

// Refresher recomputes readiness after a batch changed the opportunity set.
type Refresher interface {
	Refresh(ctx context.Context, req readiness.Request)
}

// Deps wires the engine collaborators.
type Deps struct {
	Store     opportunity.Store
	Approver  Approver
	Readiness Refresher
	Logger    *slog.Logger
	Retry     retry.Policy
}

// Engine applies an approval policy to a campaign.
type Engine struct {
	store     opportunity.Store
	approver  Approver
	readiness Refresher
	logger    *slog.Logger
	retry     retry.Policy
}

// NewEngine validates the wiring.
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Store == nil || deps.Approver == nil {
		return nil, fmt.Errorf("approval engine: store and approver are required")
	}
	if deps.Retry.MaxTries == 0 {
		deps.Retry = retry.DefaultPolicy()
	}
	if deps.Retry.Logger == nil {
		deps.Retry.Logger = deps.Logger
	}
	return &Engine{
		store:     deps.Store,
		approver:  deps.Approver,
		readiness: deps.Readiness,
		logger:    deps.Logger,
		retry:     deps.Retry,
	}, nil
}

// ValidatePolicy rejects thresholds outside their domain.
func ValidatePolicy(p domain.ApprovalPolicy) error {
	if p.MinScore < 0 || p.MinScore > 1 {
		return fmt.Errorf("%w: min score %.2f outside [0,1]", domain.ErrInvalidCriteria, p.MinScore)
	}
	if p.MinTier != "" && !p.MinTier.Valid() {
		return fmt.Errorf("%w: unknown min tier %q", domain.ErrInvalidCriteria, p.MinTier)
	}
	if p.MaxCount < 0 {
		return fmt.Errorf("%w: negative max count", domain.ErrInvalidCriteria)
	}
	return nil
}

// Select returns the candidates a policy would approve, best first. It is the
// only selection path for both dry and real runs.
func Select(matches []domain.MediaOpportunity, p domain.ApprovalPolicy) []domain.MediaOpportunity {
	var candidates []domain.MediaOpportunity
	for _, m := range matches {
		if m.Status != domain.StatusNew && m.Status != domain.StatusReviewed {
			continue
		}
		if m.OpportunityScore < p.MinScore {
			continue
		}
		if !effectiveTier(m).AtLeast(p.MinTier) {
			continue
		}
		candidates = append(candidates, m)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.OpportunityScore != b.OpportunityScore {
			return a.OpportunityScore > b.OpportunityScore
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.Before(b.PublishedAt)
		}
		return a.ID < b.ID
	})

	if p.MaxCount > 0 && len(candidates) > p.MaxCount {
		candidates = candidates[:p.MaxCount]
	}
	return candidates
}

// Unrated outlets select as tier C.
func effectiveTier(m domain.MediaOpportunity) domain.Tier {
	if m.Tier.Valid() {
		return m.Tier
	}
	return domain.TierC
}

// AutoApproveMatches promotes the policy's selection. Candidates that lost a
// race or were otherwise not transitioned are counted as skipped; the batch
// never aborts on a single candidate.
func (e *Engine) AutoApproveMatches(ctx context.Context, organizationID, campaignID string, policy domain.ApprovalPolicy) (domain.ApprovalResult, error) {
	if err := ValidatePolicy(policy); err != nil {
		return domain.ApprovalResult{}, err
	}
	if _, err := retry.Do(ctx, e.retry, "get campaign", func(ctx context.Context) (domain.Campaign, error) {
		return e.store.GetCampaign(ctx, organizationID, campaignID)
	}); err != nil {
		return domain.ApprovalResult{}, fmt.Errorf("load campaign %s: %w", campaignID, err)
	}
	matches, err := retry.Do(ctx, e.retry, "list opportunities", func(ctx context.Context) ([]domain.MediaOpportunity, error) {
		return e.store.ListOpportunities(ctx, organizationID, campaignID)
	})
	if err != nil {
		return domain.ApprovalResult{}, fmt.Errorf("list opportunities for campaign %s: %w", campaignID, err)
	}

	selected := Select(matches, policy)
	result := domain.ApprovalResult{DryRun: policy.DryRun, MatchIDs: []string{}}

	if policy.DryRun {
		for _, m := range selected {
			result.MatchIDs = append(result.MatchIDs, m.ID)
		}
		result.Approved = len(selected)
		return result, nil
	}

	for _, m := range selected {
		_, err := e.approver.Approve(ctx, m)
		switch {
		case err == nil:
			result.Approved++
			result.MatchIDs = append(result.MatchIDs, m.ID)
		case errors.Is(err, domain.ErrInvalidTransition):
			result.Skipped++
		default:
			result.Skipped++
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", m.ID, err))
		}
	}

	if e.logger != nil {
		e.logger.Info("auto-approval finished",
			"campaign", campaignID,
			"candidates", len(selected),
			"approved", result.Approved,
			"skipped", result.Skipped,
		)
	}
	if result.Approved > 0 && e.readiness != nil {
		e.readiness.Refresh(ctx, readiness.Request{CampaignID: campaignID, OrganizationID: organizationID})
	}
	return result, nil
}
