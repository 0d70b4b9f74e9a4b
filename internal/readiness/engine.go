// Package readiness derives a campaign's execution verdict from its
// opportunity set and targeting criteria.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"MediaRadar/internal/clock"
	"MediaRadar/internal/domain"
	"MediaRadar/internal/opportunity"
	"MediaRadar/internal/ports"
	"MediaRadar/internal/retry"
)

// Request addresses one campaign of one organization.
type Request struct {
	CampaignID     string `json:"campaign_id"`
	OrganizationID string `json:"organization_id"`
}

// Matcher rescores a news item under explicit criteria.
type Matcher interface {
	Match(ctx context.Context, item domain.NewsItem, organizationID, campaignID string, criteria domain.TargetingCriteria, generation int64) (opportunity.Outcome, error)
}

// Options tunes rule thresholds and batch behavior.
type Options struct {
	MinTierAMatches    int
	LowScoreWarning    float64
	MonitorConcurrency int
	MonitorTimeout     time.Duration
	RematchWindow      time.Duration
	RematchTimeout     time.Duration
	Retry              retry.Policy
}

// DefaultOptions mirrors the shipped configuration.
func DefaultOptions() Options {
	return Options{
		MinTierAMatches:    1,
		LowScoreWarning:    0.4,
		MonitorConcurrency: 4,
		MonitorTimeout:     10 * time.Second,
		RematchWindow:      7 * 24 * time.Hour,
		RematchTimeout:     5 * time.Minute,
		Retry:              retry.DefaultPolicy(),
	}
}

// Deps wires the engine collaborators.
type Deps struct {
	Repository ports.Repository
	Matcher    Matcher
	Clock      ports.Clock
	Events     ports.EventSink
	Logger     *slog.Logger
	Options    Options
}

// Engine holds no campaign state besides the last status it reported per
// campaign, used to decide when readiness changed.
type Engine struct {
	repo    ports.Repository
	matcher Matcher
	clock   ports.Clock
	events  ports.EventSink
	logger  *slog.Logger
	opts    Options
	tracker *tracker
	sweeps  sync.WaitGroup
}

// NewEngine fills defaults for zero options.
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("readiness engine: repository is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	opts := deps.Options
	def := DefaultOptions()
	if opts == (Options{}) {
		opts = def
	}
	if opts.MinTierAMatches < 0 {
		opts.MinTierAMatches = 0
	}
	if opts.MonitorConcurrency <= 0 {
		opts.MonitorConcurrency = def.MonitorConcurrency
	}
	if opts.MonitorTimeout <= 0 {
		opts.MonitorTimeout = def.MonitorTimeout
	}
	if opts.RematchWindow <= 0 {
		opts.RematchWindow = def.RematchWindow
	}
	if opts.RematchTimeout <= 0 {
		opts.RematchTimeout = def.RematchTimeout
	}
	if opts.Retry.MaxTries == 0 {
		opts.Retry = def.Retry
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = deps.Logger
	}
	return &Engine{
		repo:    deps.Repository,
		matcher: deps.Matcher,
		clock:   deps.Clock,
		events:  deps.Events,
		logger:  deps.Logger,
		opts:    opts,
		tracker: newTracker(),
	}, nil
}

// CalculateReadiness evaluates every rule over one repository snapshot.
func (e *Engine) CalculateReadiness(ctx context.Context, req Request) (domain.ReadinessResult, error) {
	snap, err := e.load(ctx, req)
	if err != nil {
		return domain.ReadinessResult{}, err
	}
	now := e.clock.Now()
	v := evaluate(snap, e.thresholds(), now)
	result := domain.ReadinessResult{
		CampaignID:      req.CampaignID,
		OrganizationID:  req.OrganizationID,
		Status:          v.status,
		Counts:          v.counts,
		Blockers:        nonNil(v.blockers),
		Warnings:        nonNil(v.warnings),
		Recommendations: v.recommendations,
		CalculatedAt:    now,
	}
	e.observe(ctx, result)
	return result, nil
}

// CanExecuteCampaign answers with the same evaluation as CalculateReadiness.
func (e *Engine) CanExecuteCampaign(ctx context.Context, req Request) (domain.ExecutionCheck, error) {
	result, err := e.CalculateReadiness(ctx, req)
	if err != nil {
		return domain.ExecutionCheck{}, err
	}
	return domain.ExecutionCheck{
		CanExecute: result.Status == domain.ReadinessReady,
		Blockers:   result.Blockers,
		Warnings:   result.Warnings,
	}, nil
}

// GetRecommendations returns the advice part of the evaluation.
func (e *Engine) GetRecommendations(ctx context.Context, req Request) (domain.Recommendations, error) {
	result, err := e.CalculateReadiness(ctx, req)
	if err != nil {
		return domain.Recommendations{}, err
	}
	return result.Recommendations, nil
}

// GetTargetingSummary counts matches without running any rule.
func (e *Engine) GetTargetingSummary(ctx context.Context, req Request) (domain.TargetingSummary, error) {
	snap, err := e.load(ctx, req)
	if err != nil {
		return domain.TargetingSummary{}, err
	}
	return domain.TargetingSummary{
		CampaignID:       req.CampaignID,
		OrganizationID:   req.OrganizationID,
		Counts:           count(snap.matches),
		Criteria:         snap.criteria,
		CriteriaComplete: snap.hasCriteria && snap.criteria.Complete(),
	}, nil
}

// Wait blocks until every background rematch sweep has finished.
func (e *Engine) Wait() {
	e.sweeps.Wait()
}

func (e *Engine) thresholds() thresholds {
	return thresholds{minTierA: e.opts.MinTierAMatches, lowScoreWarning: e.opts.LowScoreWarning}
}

func (e *Engine) load(ctx context.Context, req Request) (snapshot, error) {
	campaign, err := retry.Do(ctx, e.opts.Retry, "get campaign", func(ctx context.Context) (domain.Campaign, error) {
		return e.repo.GetCampaign(ctx, req.OrganizationID, req.CampaignID)
	})
	if err != nil {
		return snapshot{}, fmt.Errorf("load campaign %s: %w", req.CampaignID, err)
	}

	snap := snapshot{campaign: campaign, hasCriteria: true}
	snap.criteria, err = retry.Do(ctx, e.opts.Retry, "get criteria", func(ctx context.Context) (domain.TargetingCriteria, error) {
		return e.repo.GetCriteria(ctx, req.OrganizationID, req.CampaignID)
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		snap.hasCriteria = false
	case err != nil:
		return snapshot{}, fmt.Errorf("load criteria for campaign %s: %w", req.CampaignID, err)
	}

	snap.matches, err = retry.Do(ctx, e.opts.Retry, "list opportunities", func(ctx context.Context) ([]domain.MediaOpportunity, error) {
		return e.repo.ListOpportunities(ctx, req.OrganizationID, req.CampaignID)
	})
	if err != nil {
		return snapshot{}, fmt.Errorf("list opportunities for campaign %s: %w", req.CampaignID, err)
	}
	return snap, nil
}

func (e *Engine) observe(ctx context.Context, result domain.ReadinessResult) {
	previous, changed := e.tracker.observe(result.OrganizationID, result.CampaignID, result.Status)
	if !changed {
		return
	}
	e.debug("readiness changed", "campaign", result.CampaignID, "from", previous, "to", result.Status)
	e.publish(ctx, domain.Event{
		Type:           domain.EventReadinessChanged,
		CampaignID:     result.CampaignID,
		OrganizationID: result.OrganizationID,
		OccurredAt:     result.CalculatedAt,
		Payload: domain.ReadinessChange{
			Previous: previous,
			Current:  result.Status,
			Result:   result,
		},
	})
}

func (e *Engine) publish(ctx context.Context, event domain.Event) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, event); err != nil && e.logger != nil {
		e.logger.Warn("publish event failed", "type", event.Type, "campaign", event.CampaignID, "error", err)
	}
}

func (e *Engine) debug(msg string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// tracker remembers the last reported status per campaign.
type tracker struct {
	mu   sync.Mutex
	last map[string]domain.ReadinessStatus
}

func newTracker() *tracker {
	return &tracker{last: map[string]domain.ReadinessStatus{}}
}

// observe records status and reports the previous one when it differs. The
// first observation of a campaign counts as a change from the empty status.
func (t *tracker) observe(organizationID, campaignID string, status domain.ReadinessStatus) (domain.ReadinessStatus, bool) {
	key := organizationID + "/" + campaignID
	t.mu.Lock()
	defer t.mu.Unlock()
	previous, seen := t.last[key]
	if seen && previous == status {
		return previous, false
	}
	t.last[key] = status
	return previous, true
}
