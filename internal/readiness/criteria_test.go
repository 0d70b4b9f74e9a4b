package readiness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/infrastructure/storage/memory"
)

func seedNews(t *testing.T, repo interface {
	SaveNewsItems(context.Context, []domain.NewsItem) error
}) {
	t.Helper()
	items := []domain.NewsItem{
		{ID: "ai", Title: "Startup raises AI funding round", Source: "TechWire", PublishedAt: now.Add(-3 * time.Hour)},
		{ID: "robots", Title: "Robotics maker opens factory", Source: "Daily", PublishedAt: now.Add(-2 * time.Hour)},
		{ID: "ancient", Title: "AI winter remembered", Source: "TechWire", PublishedAt: now.Add(-30 * 24 * time.Hour)},
	}
	if err := repo.SaveNewsItems(context.Background(), items); err != nil {
		t.Fatalf("SaveNewsItems: %v", err)
	}
}

func TestUpdateTargetingCriteriaValidatesFirst(t *testing.T) {
	t.Parallel()

	h := newHarness(t, memory.New())
	seedCampaign(t, h.repo, "c-1", domain.CampaignActive, completeCriteria())
	ctx := context.Background()

	_, err := h.engine.UpdateTargetingCriteria(ctx, org, "c-1", domain.TargetingCriteria{Keywords: []string{"ai"}, MinRelevance: 3}, false)
	if !errors.Is(err, domain.ErrInvalidCriteria) {
		t.Fatalf("err = %v, want ErrInvalidCriteria", err)
	}
	_, err = h.engine.UpdateTargetingCriteria(ctx, org, "c-1", domain.TargetingCriteria{}, true)
	if !errors.Is(err, domain.ErrInvalidCriteria) {
		t.Fatalf("rematch with empty criteria err = %v, want ErrInvalidCriteria", err)
	}

	stored, err := h.repo.GetCriteria(ctx, org, "c-1")
	if err != nil {
		t.Fatalf("GetCriteria: %v", err)
	}
	if stored.Generation != 1 || stored.Keywords[0] != "AI" {
		t.Fatalf("rejected update was applied: %+v", stored)
	}

	if _, err := h.engine.UpdateTargetingCriteria(ctx, org, "missing", *completeCriteria(), false); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown campaign err = %v, want ErrNotFound", err)
	}
}

func TestUpdateTargetingCriteriaWithoutRematchStoresOnly(t *testing.T) {
	t.Parallel()

	h := newHarness(t, memory.New())
	seedCampaign(t, h.repo, "c-1", domain.CampaignActive, nil)
	seedNews(t, h.repo)

	gen, err := h.engine.UpdateTargetingCriteria(context.Background(), org, "c-1", *completeCriteria(), false)
	if err != nil {
		t.Fatalf("UpdateTargetingCriteria: %v", err)
	}
	h.engine.Wait()
	if gen != 1 {
		t.Fatalf("generation = %d, want 1", gen)
	}
	list, _ := h.repo.ListOpportunities(context.Background(), org, "c-1")
	if len(list) != 0 {
		t.Fatalf("no rematch requested but %d records exist", len(list))
	}
	if n := len(h.sink.ofType(domain.EventRematchCompleted)); n != 0 {
		t.Fatalf("rematch events = %d", n)
	}
}

func TestRematchRescoresRecentWindow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, memory.New())
	seedCampaign(t, h.repo, "c-1", domain.CampaignActive, nil)
	seedNews(t, h.repo)

	ctx, cancel := context.WithCancel(context.Background())
	gen, err := h.engine.UpdateTargetingCriteria(ctx, org, "c-1", *completeCriteria(), true)
	cancel()
	if err != nil {
		t.Fatalf("UpdateTargetingCriteria: %v", err)
	}
	h.engine.Wait()

	list, _ := h.repo.ListOpportunities(context.Background(), org, "c-1")
	if len(list) != 1 || list[0].NewsItemID != "ai" {
		t.Fatalf("records = %+v, want only the recent AI item", list)
	}

	events := h.sink.ofType(domain.EventRematchCompleted)
	if len(events) != 1 {
		t.Fatalf("rematch events = %d, want 1", len(events))
	}
	report := events[0].Payload.(domain.RematchReport)
	if report.Generation != gen || report.Scanned != 2 || report.Upserted != 1 || report.Superseded {
		t.Fatalf("report = %+v", report)
	}
}

type gatedRepo struct {
	*memory.Repository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedRepo) ListNewsSince(ctx context.Context, since time.Time) ([]domain.NewsItem, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.Repository.ListNewsSince(ctx, since)
}

func TestSupersededRematchLeavesNoStaleWrites(t *testing.T) {
	t.Parallel()

	repo := &gatedRepo{
		Repository: memory.New(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	h := newHarness(t, repo)
	seedCampaign(t, repo, "c-1", domain.CampaignActive, nil)
	seedNews(t, repo)
	ctx := context.Background()

	first, err := h.engine.UpdateTargetingCriteria(ctx, org, "c-1", domain.TargetingCriteria{Keywords: []string{"AI"}, FreshnessWindow: 48 * time.Hour}, true)
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	<-repo.entered

	second, err := h.engine.UpdateTargetingCriteria(ctx, org, "c-1", domain.TargetingCriteria{Keywords: []string{"robotics"}, FreshnessWindow: 48 * time.Hour}, true)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	close(repo.release)
	h.engine.Wait()

	list, _ := repo.ListOpportunities(ctx, org, "c-1")
	if len(list) != 1 || list[0].NewsItemID != "robots" {
		t.Fatalf("records = %+v, want only the robotics match", list)
	}

	reports := map[int64]domain.RematchReport{}
	for _, e := range h.sink.ofType(domain.EventRematchCompleted) {
		r := e.Payload.(domain.RematchReport)
		reports[r.Generation] = r
	}
	if !reports[first].Superseded {
		t.Fatalf("first sweep should be superseded: %+v", reports[first])
	}
	if reports[second].Superseded || reports[second].Upserted != 1 {
		t.Fatalf("second sweep report = %+v", reports[second])
	}
}
