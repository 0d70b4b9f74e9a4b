// Package usecase exposes the MediaRadar operations to driving adapters
// (HTTP API, CLI, scheduler).
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"MediaRadar/internal/approval"
	"MediaRadar/internal/clock"
	"MediaRadar/internal/domain"
	"MediaRadar/internal/lifecycle"
	"MediaRadar/internal/opportunity"
	"MediaRadar/internal/ports"
	"MediaRadar/internal/readiness"
)

// ServiceDeps wires the engines behind the facade.
type ServiceDeps struct {
	Repository    ports.Repository
	Opportunities *opportunity.Service
	Readiness     *readiness.Engine
	Approval      *approval.Engine
	Clock         ports.Clock
	Logger        *slog.Logger
}

// Service is the single entry point used by the API and the CLI.
type Service struct {
	repo          ports.Repository
	opportunities *opportunity.Service
	readiness     *readiness.Engine
	approval      *approval.Engine
	clock         ports.Clock
	logger        *slog.Logger
}

// NewService validates the wiring.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Repository == nil || deps.Opportunities == nil || deps.Readiness == nil || deps.Approval == nil {
		return nil, fmt.Errorf("usecase service: repository and engines are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	return &Service{
		repo:          deps.Repository,
		opportunities: deps.Opportunities,
		readiness:     deps.Readiness,
		approval:      deps.Approval,
		clock:         deps.Clock,
		logger:        deps.Logger,
	}, nil
}

// SaveCampaign creates or updates a campaign. A missing ID is generated.
func (s *Service) SaveCampaign(ctx context.Context, campaign domain.Campaign) (domain.Campaign, error) {
	if strings.TrimSpace(campaign.OrganizationID) == "" {
		return domain.Campaign{}, fmt.Errorf("%w: organization is required", domain.ErrInvalidCriteria)
	}
	switch campaign.Status {
	case "":
		campaign.Status = domain.CampaignDraft
	case domain.CampaignDraft, domain.CampaignActive, domain.CampaignExecuting, domain.CampaignPaused, domain.CampaignCompleted:
	default:
		return domain.Campaign{}, fmt.Errorf("%w: unknown campaign status %q", domain.ErrInvalidCriteria, campaign.Status)
	}
	if campaign.MinTierAMatches < 0 {
		return domain.Campaign{}, fmt.Errorf("%w: negative tier A minimum", domain.ErrInvalidCriteria)
	}

	now := s.clock.Now()
	if campaign.ID == "" {
		campaign.ID = uuid.NewString()
	}
	if existing, err := s.repo.GetCampaign(ctx, campaign.OrganizationID, campaign.ID); err == nil {
		campaign.CreatedAt = existing.CreatedAt
	} else {
		campaign.CreatedAt = now
	}
	campaign.UpdatedAt = now

	if err := s.repo.SaveCampaign(ctx, campaign); err != nil {
		return domain.Campaign{}, fmt.Errorf("save campaign %s: %w", campaign.ID, err)
	}
	if s.logger != nil {
		s.logger.Info("campaign saved", "organization", campaign.OrganizationID, "campaign", campaign.ID, "status", campaign.Status)
	}
	s.readiness.Refresh(ctx, readiness.Request{OrganizationID: campaign.OrganizationID, CampaignID: campaign.ID})
	return campaign, nil
}

// GetCampaign returns one campaign.
func (s *Service) GetCampaign(ctx context.Context, organizationID, campaignID string) (domain.Campaign, error) {
	return s.repo.GetCampaign(ctx, organizationID, campaignID)
}

// ListCampaigns returns the organization's campaigns.
func (s *Service) ListCampaigns(ctx context.Context, organizationID string) ([]domain.Campaign, error) {
	return s.repo.ListCampaigns(ctx, organizationID)
}

// ListOpportunities returns the campaign's opportunities.
func (s *Service) ListOpportunities(ctx context.Context, organizationID, campaignID string) ([]domain.MediaOpportunity, error) {
	if _, err := s.repo.GetCampaign(ctx, organizationID, campaignID); err != nil {
		return nil, err
	}
	return s.repo.ListOpportunities(ctx, organizationID, campaignID)
}

// GetOpportunity returns one opportunity.
func (s *Service) GetOpportunity(ctx context.Context, organizationID, id string) (domain.MediaOpportunity, error) {
	return s.repo.GetOpportunity(ctx, organizationID, id)
}

// ScoreAndUpsertOpportunity keeps the item for later rematches and scores it
// against the campaign's current criteria.
func (s *Service) ScoreAndUpsertOpportunity(ctx context.Context, item domain.NewsItem, organizationID, campaignID string) (opportunity.Outcome, error) {
	if strings.TrimSpace(item.ID) == "" {
		return opportunity.Outcome{}, fmt.Errorf("%w: news item id is required", domain.ErrInvalidCriteria)
	}
	if err := s.repo.SaveNewsItems(ctx, []domain.NewsItem{item}); err != nil {
		return opportunity.Outcome{}, fmt.Errorf("save news item %s: %w", item.ID, err)
	}
	return s.opportunities.ScoreAndUpsert(ctx, item, organizationID, campaignID)
}

// TransitionOpportunity applies a named reviewer action.
func (s *Service) TransitionOpportunity(ctx context.Context, organizationID, id, action string) (domain.MediaOpportunity, error) {
	a, err := lifecycle.ParseAction(action)
	if err != nil {
		return domain.MediaOpportunity{}, err
	}
	opp, err := s.opportunities.Transition(ctx, organizationID, id, a)
	if err != nil {
		return domain.MediaOpportunity{}, err
	}
	s.readiness.Refresh(ctx, readiness.Request{OrganizationID: organizationID, CampaignID: opp.CampaignID})
	return opp, nil
}

// CorrectOpportunity is the administrative override out of terminal states.
func (s *Service) CorrectOpportunity(ctx context.Context, organizationID, id string, to domain.OpportunityStatus) (domain.MediaOpportunity, error) {
	opp, err := s.opportunities.Correct(ctx, organizationID, id, to)
	if err != nil {
		return domain.MediaOpportunity{}, err
	}
	s.readiness.Refresh(ctx, readiness.Request{OrganizationID: organizationID, CampaignID: opp.CampaignID})
	return opp, nil
}

// CalculateReadiness evaluates every readiness rule on one snapshot.
func (s *Service) CalculateReadiness(ctx context.Context, organizationID, campaignID string) (domain.ReadinessResult, error) {
	return s.readiness.CalculateReadiness(ctx, request(organizationID, campaignID))
}

// CanExecuteCampaign answers the execution gate.
func (s *Service) CanExecuteCampaign(ctx context.Context, organizationID, campaignID string) (domain.ExecutionCheck, error) {
	return s.readiness.CanExecuteCampaign(ctx, request(organizationID, campaignID))
}

// GetRecommendations returns the tiered recommendations only.
func (s *Service) GetRecommendations(ctx context.Context, organizationID, campaignID string) (domain.Recommendations, error) {
	return s.readiness.GetRecommendations(ctx, request(organizationID, campaignID))
}

// GetTargetingSummary is the cheap counts-only read.
func (s *Service) GetTargetingSummary(ctx context.Context, organizationID, campaignID string) (domain.TargetingSummary, error) {
	return s.readiness.GetTargetingSummary(ctx, request(organizationID, campaignID))
}

// MonitorCampaignsReadiness computes readiness for many campaigns at once.
func (s *Service) MonitorCampaignsReadiness(ctx context.Context, organizationID string, statuses ...domain.CampaignStatus) (readiness.MonitorReport, error) {
	return s.readiness.MonitorCampaignsReadiness(ctx, organizationID, statuses...)
}

// AutoApproveMatches applies or previews an approval policy.
func (s *Service) AutoApproveMatches(ctx context.Context, organizationID, campaignID string, policy domain.ApprovalPolicy) (domain.ApprovalResult, error) {
	return s.approval.AutoApproveMatches(ctx, organizationID, campaignID, policy)
}

// UpdateTargetingCriteria stores new criteria and optionally starts a
// background rematch. It returns the new criteria generation.
func (s *Service) UpdateTargetingCriteria(ctx context.Context, organizationID, campaignID string, criteria domain.TargetingCriteria, triggerRematch bool) (int64, error) {
	return s.readiness.UpdateTargetingCriteria(ctx, organizationID, campaignID, criteria, triggerRematch)
}

// Wait blocks until background rematches finish.
func (s *Service) Wait() {
	s.readiness.Wait()
}

func request(organizationID, campaignID string) readiness.Request {
	return readiness.Request{OrganizationID: organizationID, CampaignID: campaignID}
}
