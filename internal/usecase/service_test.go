package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"MediaRadar/internal/domain"
)

func TestServiceEndToEnd(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	ctx := context.Background()
	s.seedCampaign(t, "c-1", domain.CampaignActive, aiCriteria())

	check, err := s.service.CanExecuteCampaign(ctx, org, "c-1")
	if err != nil {
		t.Fatalf("CanExecuteCampaign: %v", err)
	}
	if check.CanExecute {
		t.Fatalf("campaign without approved matches must not execute")
	}

	out, err := s.service.ScoreAndUpsertOpportunity(ctx, fundingItem("n-1"), org, "c-1")
	if err != nil {
		t.Fatalf("ScoreAndUpsertOpportunity: %v", err)
	}
	if !out.Created || out.Opportunity.Status != domain.StatusNew {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	news, err := s.repo.ListNewsSince(ctx, now.Add(-24*time.Hour))
	if err != nil || len(news) != 1 {
		t.Fatalf("news item should be kept for rematches: %v %d", err, len(news))
	}

	result, err := s.service.AutoApproveMatches(ctx, org, "c-1", domain.ApprovalPolicy{MinScore: 0.5, MinTier: domain.TierB, MaxCount: 5})
	if err != nil {
		t.Fatalf("AutoApproveMatches: %v", err)
	}
	if result.Approved != 1 {
		t.Fatalf("approved = %d", result.Approved)
	}

	check, err = s.service.CanExecuteCampaign(ctx, org, "c-1")
	if err != nil {
		t.Fatalf("CanExecuteCampaign: %v", err)
	}
	if !check.CanExecute {
		t.Fatalf("campaign should be ready, blockers=%v warnings=%v", check.Blockers, check.Warnings)
	}

	if _, err := s.service.TransitionOpportunity(ctx, org, out.Opportunity.ID, "dismiss"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("terminal record must not move, err = %v", err)
	}

	fixed, err := s.service.CorrectOpportunity(ctx, org, out.Opportunity.ID, domain.StatusReviewed)
	if err != nil {
		t.Fatalf("CorrectOpportunity: %v", err)
	}
	if fixed.Status != domain.StatusReviewed {
		t.Fatalf("status = %s", fixed.Status)
	}
	if s.sink.count(domain.EventReadinessChanged) < 2 {
		t.Fatalf("expected readiness changes to be announced")
	}
}

func TestServiceTransitionUnknownAction(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	if _, err := s.service.TransitionOpportunity(context.Background(), org, "x", "promote"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestServiceSaveCampaign(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	ctx := context.Background()

	created, err := s.service.SaveCampaign(ctx, domain.Campaign{OrganizationID: org, Name: "Launch"})
	if err != nil {
		t.Fatalf("SaveCampaign: %v", err)
	}
	if created.ID == "" || created.Status != domain.CampaignDraft || !created.CreatedAt.Equal(now) {
		t.Fatalf("unexpected campaign: %+v", created)
	}

	s.clock.Advance(time.Hour)
	created.Status = domain.CampaignActive
	updated, err := s.service.SaveCampaign(ctx, created)
	if err != nil {
		t.Fatalf("SaveCampaign update: %v", err)
	}
	if !updated.CreatedAt.Equal(now) || !updated.UpdatedAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("timestamps: %+v", updated)
	}

	if _, err := s.service.SaveCampaign(ctx, domain.Campaign{OrganizationID: org, Status: "archived"}); !errors.Is(err, domain.ErrInvalidCriteria) {
		t.Fatalf("err = %v, want ErrInvalidCriteria", err)
	}
	if _, err := s.service.SaveCampaign(ctx, domain.Campaign{}); !errors.Is(err, domain.ErrInvalidCriteria) {
		t.Fatalf("missing organization: err = %v", err)
	}
}

func TestServiceListOpportunitiesUnknownCampaign(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	if _, err := s.service.ListOpportunities(context.Background(), org, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestServiceScoreRequiresItemID(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	s.seedCampaign(t, "c-1", domain.CampaignActive, aiCriteria())
	if _, err := s.service.ScoreAndUpsertOpportunity(context.Background(), domain.NewsItem{Title: "AI"}, org, "c-1"); !errors.Is(err, domain.ErrInvalidCriteria) {
		t.Fatalf("err = %v, want ErrInvalidCriteria", err)
	}
}

func TestServiceRematchThroughFacade(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	ctx := context.Background()
	s.seedCampaign(t, "c-1", domain.CampaignActive, &domain.TargetingCriteria{Keywords: []string{"robotics"}, FreshnessWindow: 48 * time.Hour})
	if err := s.repo.SaveNewsItems(ctx, []domain.NewsItem{fundingItem("n-1")}); err != nil {
		t.Fatalf("SaveNewsItems: %v", err)
	}

	gen, err := s.service.UpdateTargetingCriteria(ctx, org, "c-1", *aiCriteria(), true)
	if err != nil {
		t.Fatalf("UpdateTargetingCriteria: %v", err)
	}
	if gen != 2 {
		t.Fatalf("generation = %d, want 2", gen)
	}
	s.service.Wait()

	opps, err := s.service.ListOpportunities(ctx, org, "c-1")
	if err != nil {
		t.Fatalf("ListOpportunities: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("rematch should have created one opportunity, got %d", len(opps))
	}
	if s.sink.count(domain.EventRematchCompleted) != 1 {
		t.Fatalf("expected one rematch-completed event")
	}
}
