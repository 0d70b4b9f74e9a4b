// Package opportunity turns scores into persisted opportunity records and
// drives their review lifecycle against the repository.
package opportunity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"MediaRadar/internal/clock"
	"MediaRadar/internal/domain"
	"MediaRadar/internal/lifecycle"
	"MediaRadar/internal/ports"
	"MediaRadar/internal/retry"
	"MediaRadar/internal/scoring"
)

// Store is the slice of the repository the service needs.
type Store interface {
	ports.CampaignRepository
	ports.OpportunityRepository
}

// Deps wires the service collaborators.
type Deps struct {
	Store  Store
	Scorer *scoring.Scorer
	Clock  ports.Clock
	Events ports.EventSink
	Logger *slog.Logger
	Retry  retry.Policy
}

// Service scores news items into opportunities and applies transitions.
type Service struct {
	store  Store
	scorer *scoring.Scorer
	clock  ports.Clock
	events ports.EventSink
	logger *slog.Logger
	retry  retry.Policy
}

// Outcome describes one scoreAndUpsert call.
type Outcome struct {
	Opportunity domain.MediaOpportunity
	Score       scoring.Score
	Matched     bool
	Created     bool
}

// NewService validates the wiring.
func NewService(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("opportunity service: store is required")
	}
	if deps.Scorer == nil {
		return nil, fmt.Errorf("opportunity service: scorer is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Retry.MaxTries == 0 {
		deps.Retry = retry.DefaultPolicy()
	}
	if deps.Retry.Logger == nil {
		deps.Retry.Logger = deps.Logger
	}
	return &Service{
		store:  deps.Store,
		scorer: deps.Scorer,
		clock:  deps.Clock,
		events: deps.Events,
		logger: deps.Logger,
		retry:  deps.Retry,
	}, nil
}

// staleAttempts bounds how often ScoreAndUpsert rescores after the criteria
// changed under it.
const staleAttempts = 3

// ScoreAndUpsert scores item against the campaign's stored criteria and
// persists the match. Non-matching items leave any existing record untouched.
// The write is guarded by the criteria generation; a concurrent criteria
// update makes it rescore under the new criteria.
func (s *Service) ScoreAndUpsert(ctx context.Context, item domain.NewsItem, organizationID, campaignID string) (Outcome, error) {
	for attempt := 1; ; attempt++ {
		criteria, err := retry.Do(ctx, s.retry, "get criteria", func(ctx context.Context) (domain.TargetingCriteria, error) {
			return s.store.GetCriteria(ctx, organizationID, campaignID)
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("load criteria for campaign %s: %w", campaignID, err)
		}

		out, err := s.Match(ctx, item, organizationID, campaignID, criteria, criteria.Generation)
		if errors.Is(err, domain.ErrStaleGeneration) && attempt < staleAttempts {
			s.debug("criteria changed while scoring", "item", item.ID, "campaign", campaignID, "generation", criteria.Generation)
			continue
		}
		return out, err
	}
}

// Match scores item against criteria already in hand. A non-zero generation
// makes the write conditional on the criteria still being current.
func (s *Service) Match(ctx context.Context, item domain.NewsItem, organizationID, campaignID string, criteria domain.TargetingCriteria, generation int64) (Outcome, error) {
	now := s.clock.Now()
	score, err := s.scorer.Score(item, criteria, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("score item %s: %w", item.ID, err)
	}
	if !score.Match {
		s.debug("item did not match", "item", item.ID, "campaign", campaignID, "relevance", score.Relevance)
		return Outcome{Score: score}, nil
	}

	record := Build(item, organizationID, campaignID, score, now)
	stored, created, err := s.store.UpsertOpportunity(ctx, record, generation)
	if err != nil {
		return Outcome{Score: score}, fmt.Errorf("upsert opportunity for item %s: %w", item.ID, err)
	}

	if created {
		s.publish(ctx, domain.Event{
			Type:           domain.EventOpportunityCreated,
			CampaignID:     campaignID,
			OrganizationID: organizationID,
			Payload:        stored,
		})
	}
	return Outcome{Opportunity: stored, Score: score, Matched: true, Created: created}, nil
}

// Build assembles the record for a matching score.
func Build(item domain.NewsItem, organizationID, campaignID string, score scoring.Score, now time.Time) domain.MediaOpportunity {
	return domain.MediaOpportunity{
		ID:               domain.OpportunityID(organizationID, campaignID, item.ID),
		OrganizationID:   organizationID,
		CampaignID:       campaignID,
		NewsItemID:       item.ID,
		Title:            item.Title,
		Source:           item.Source,
		URL:              item.URL,
		PublishedAt:      item.PublishedAt,
		Relevance:        score.Relevance,
		Visibility:       score.Visibility,
		Freshness:        score.Freshness,
		OpportunityScore: score.OpportunityScore,
		Tier:             score.Tier,
		MatchReasons:     score.MatchReasons,
		Keywords:         score.Keywords,
		Status:           domain.StatusNew,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Transition applies a review action. The stored status is compared and
// swapped atomically, so a concurrent writer makes this call fail with
// domain.ErrInvalidTransition.
func (s *Service) Transition(ctx context.Context, organizationID, id string, action lifecycle.Action) (domain.MediaOpportunity, error) {
	current, err := s.get(ctx, organizationID, id)
	if err != nil {
		return domain.MediaOpportunity{}, err
	}
	next, err := lifecycle.Apply(current, action, s.clock.Now())
	if err != nil {
		return current, fmt.Errorf("opportunity %s: %w", id, err)
	}
	return s.commit(ctx, current, next, false)
}

// Approve moves a NEW or REVIEWED record to ADDED_TO_CAMPAIGN.
func (s *Service) Approve(ctx context.Context, current domain.MediaOpportunity) (domain.MediaOpportunity, error) {
	next, err := lifecycle.AddToCampaign(current, s.clock.Now())
	if err != nil {
		return current, fmt.Errorf("opportunity %s: %w", current.ID, err)
	}
	return s.commit(ctx, current, next, false)
}

// Correct is the administrative override that may leave a terminal state.
func (s *Service) Correct(ctx context.Context, organizationID, id string, to domain.OpportunityStatus) (domain.MediaOpportunity, error) {
	current, err := s.get(ctx, organizationID, id)
	if err != nil {
		return domain.MediaOpportunity{}, err
	}
	next, err := lifecycle.Correct(current, to, s.clock.Now())
	if err != nil {
		return current, fmt.Errorf("opportunity %s: %w", id, err)
	}
	if s.logger != nil {
		s.logger.Warn("administrative correction", "opportunity", id, "from", current.Status, "to", to)
	}
	return s.commit(ctx, current, next, true)
}

func (s *Service) commit(ctx context.Context, current, next domain.MediaOpportunity, correction bool) (domain.MediaOpportunity, error) {
	stored, err := s.store.TransitionStatus(ctx, current.OrganizationID, current.ID, current.Status, next.Status, next.UpdatedAt)
	if err != nil {
		return current, fmt.Errorf("transition opportunity %s: %w", current.ID, err)
	}
	s.publish(ctx, domain.Event{
		Type:           domain.EventOpportunityTransitioned,
		CampaignID:     stored.CampaignID,
		OrganizationID: stored.OrganizationID,
		Payload: domain.TransitionChange{
			From:        current.Status,
			To:          stored.Status,
			Opportunity: stored,
			Correction:  correction,
		},
	})
	return stored, nil
}

func (s *Service) get(ctx context.Context, organizationID, id string) (domain.MediaOpportunity, error) {
	opp, err := retry.Do(ctx, s.retry, "get opportunity", func(ctx context.Context) (domain.MediaOpportunity, error) {
		return s.store.GetOpportunity(ctx, organizationID, id)
	})
	if err != nil {
		return domain.MediaOpportunity{}, fmt.Errorf("load opportunity %s: %w", id, err)
	}
	return opp, nil
}

func (s *Service) publish(ctx context.Context, event domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil && s.logger != nil {
		s.logger.Warn("publish event failed", "type", event.Type, "campaign", event.CampaignID, "error", err)
	}
}

func (s *Service) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
