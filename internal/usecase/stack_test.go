package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"MediaRadar/internal/approval"
	"MediaRadar/internal/clock"
	"MediaRadar/internal/domain"
	"MediaRadar/internal/infrastructure/storage/memory"
	"MediaRadar/internal/opportunity"
	"MediaRadar/internal/readiness"
	"MediaRadar/internal/scoring"
)

var now = time.Date(2025, time.November, 8, 12, 0, 0, 0, time.UTC)

const org = "org-1"

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingSink) Publish(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) count(t domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type stack struct {
	service       *Service
	opportunities *opportunity.Service
	repo          *memory.Repository
	sink          *recordingSink
	clock         *clock.Fixed
}

func newStack(t *testing.T) stack {
	t.Helper()

	repo := memory.New()
	fixed := clock.NewFixed(now)
	sink := &recordingSink{}
	scorer, err := scoring.NewScorer(scoring.Config{}, scoring.NewTierTable(map[string]domain.Tier{
		"techwire": domain.TierA,
		"daily":    domain.TierB,
	}))
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	opps, err := opportunity.NewService(opportunity.Deps{Store: repo, Scorer: scorer, Clock: fixed, Events: sink})
	if err != nil {
		t.Fatalf("opportunity.NewService: %v", err)
	}
	ready, err := readiness.NewEngine(readiness.Deps{Repository: repo, Matcher: opps, Clock: fixed, Events: sink})
	if err != nil {
		t.Fatalf("readiness.NewEngine: %v", err)
	}
	approvals, err := approval.NewEngine(approval.Deps{Store: repo, Approver: opps, Readiness: ready})
	if err != nil {
		t.Fatalf("approval.NewEngine: %v", err)
	}
	svc, err := NewService(ServiceDeps{
		Repository:    repo,
		Opportunities: opps,
		Readiness:     ready,
		Approval:      approvals,
		Clock:         fixed,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return stack{service: svc, opportunities: opps, repo: repo, sink: sink, clock: fixed}
}

func (s stack) seedCampaign(t *testing.T, id string, status domain.CampaignStatus, criteria *domain.TargetingCriteria) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.service.SaveCampaign(ctx, domain.Campaign{ID: id, OrganizationID: org, Status: status}); err != nil {
		t.Fatalf("SaveCampaign: %v", err)
	}
	if criteria != nil {
		if _, err := s.service.UpdateTargetingCriteria(ctx, org, id, *criteria, false); err != nil {
			t.Fatalf("UpdateTargetingCriteria: %v", err)
		}
	}
}

func aiCriteria() *domain.TargetingCriteria {
	return &domain.TargetingCriteria{Keywords: []string{"AI", "funding"}, FreshnessWindow: 48 * time.Hour}
}

func fundingItem(id string) domain.NewsItem {
	return domain.NewsItem{
		ID:          id,
		Title:       "Startup raises AI funding round",
		Source:      "TechWire",
		URL:         "https://techwire.example/" + id,
		PublishedAt: now.Add(-2 * time.Hour),
	}
}
