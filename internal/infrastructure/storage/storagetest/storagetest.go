// Package storagetest is a conformance suite shared by every repository
// driver.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/ports"
)

// Factory returns a fresh, empty repository.
type Factory func(t *testing.T) ports.Repository

var base = time.Date(2025, time.November, 8, 10, 0, 0, 0, time.UTC)

// Run executes the whole suite against the driver.
func Run(t *testing.T, newRepo Factory) {
	t.Run("Campaigns", func(t *testing.T) { testCampaigns(t, newRepo(t)) })
	t.Run("Criteria", func(t *testing.T) { testCriteria(t, newRepo(t)) })
	t.Run("Upsert", func(t *testing.T) { testUpsert(t, newRepo(t)) })
	t.Run("StaleGeneration", func(t *testing.T) { testStaleGeneration(t, newRepo(t)) })
	t.Run("Transition", func(t *testing.T) { testTransition(t, newRepo(t)) })
	t.Run("ConcurrentTransition", func(t *testing.T) { testConcurrentTransition(t, newRepo(t)) })
	t.Run("News", func(t *testing.T) { testNews(t, newRepo(t)) })
}

func seedCampaign(t *testing.T, repo ports.Repository, org, id string, status domain.CampaignStatus) {
	t.Helper()
	err := repo.SaveCampaign(context.Background(), domain.Campaign{
		ID:             id,
		OrganizationID: org,
		Name:           "campaign " + id,
		Status:         status,
		CreatedAt:      base,
		UpdatedAt:      base,
	})
	if err != nil {
		t.Fatalf("SaveCampaign: %v", err)
	}
}

func opportunity(org, campaign, news string, score float64) domain.MediaOpportunity {
	return domain.MediaOpportunity{
		ID:               domain.OpportunityID(org, campaign, news),
		OrganizationID:   org,
		CampaignID:       campaign,
		NewsItemID:       news,
		Title:            "title " + news,
		PublishedAt:      base,
		Relevance:        score,
		Visibility:       0.7,
		Freshness:        0.5,
		OpportunityScore: score,
		Tier:             domain.TierB,
		MatchReasons:     []string{"relevance"},
		Status:           domain.StatusNew,
		CreatedAt:        base,
		UpdatedAt:        base,
	}
}

func testCampaigns(t *testing.T, repo ports.Repository) {
	defer repo.Close()
	ctx := context.Background()

	seedCampaign(t, repo, "org-1", "c-2", domain.CampaignActive)
	seedCampaign(t, repo, "org-1", "c-1", domain.CampaignPaused)
	seedCampaign(t, repo, "org-2", "c-3", domain.CampaignDraft)

	got, err := repo.GetCampaign(ctx, "org-1", "c-2")
	if err != nil {
		t.Fatalf("GetCampaign: %v", err)
	}
	if got.Status != domain.CampaignActive || got.Name != "campaign c-2" {
		t.Fatalf("unexpected campaign: %+v", got)
	}

	if _, err := repo.GetCampaign(ctx, "org-2", "c-2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cross-tenant read err = %v, want ErrNotFound", err)
	}

	list, err := repo.ListCampaigns(ctx, "org-1")
	if err != nil {
		t.Fatalf("ListCampaigns: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c-1" || list[1].ID != "c-2" {
		t.Fatalf("ListCampaigns = %+v", list)
	}

	scannable, err := repo.ListScannableCampaigns(ctx)
	if err != nil {
		t.Fatalf("ListScannableCampaigns: %v", err)
	}
	if len(scannable) != 2 {
		t.Fatalf("scannable = %d campaigns, want 2", len(scannable))
	}
}

func testCriteria(t *testing.T, repo ports.Repository) {
	defer repo.Close()
	ctx := context.Background()

	if _, err := repo.PutCriteria(ctx, "org-1", "missing", domain.TargetingCriteria{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("criteria for unknown campaign err = %v", err)
	}

	seedCampaign(t, repo, "org-1", "c-1", domain.CampaignActive)
	if _, err := repo.GetCriteria(ctx, "org-1", "c-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetCriteria before put err = %v", err)
	}

	first, err := repo.PutCriteria(ctx, "org-1", "c-1", domain.TargetingCriteria{Keywords: []string{"ai"}, FreshnessWindow: time.Hour})
	if err != nil {
		t.Fatalf("PutCriteria: %v", err)
	}
	second, err := repo.PutCriteria(ctx, "org-1", "c-1", domain.TargetingCriteria{Keywords: []string{"robots"}, FreshnessWindow: 2 * time.Hour})
	if err != nil {
		t.Fatalf("PutCriteria: %v", err)
	}
	if second != first+1 {
		t.Fatalf("generation %d -> %d, want +1", first, second)
	}

	got, err := repo.GetCriteria(ctx, "org-1", "c-1")
	if err != nil {
		t.Fatalf("GetCriteria: %v", err)
	}
	if got.Generation != second || len(got.Keywords) != 1 || got.Keywords[0] != "robots" || got.FreshnessWindow != 2*time.Hour {
		t.Fatalf("unexpected criteria: %+v", got)
	}
}

func testUpsert(t *testing.T, repo ports.Repository) {
	defer repo.Close()
	ctx := context.Background()
	seedCampaign(t, repo, "org-1", "c-1", domain.CampaignActive)

	opp := opportunity("org-1", "c-1", "n-1", 0.8)
	stored, created, err := repo.UpsertOpportunity(ctx, opp, 0)
	if err != nil {
		t.Fatalf("UpsertOpportunity: %v", err)
	}
	if !created || stored.Status != domain.StatusNew {
		t.Fatalf("first upsert: created=%v status=%s", created, stored.Status)
	}

	if _, err := repo.TransitionStatus(ctx, "org-1", opp.ID, domain.StatusNew, domain.StatusReviewed, base.Add(time.Minute)); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}

	same := opp
	same.UpdatedAt = base.Add(time.Hour)
	same.Status = domain.StatusNew
	stored, created, err = repo.UpsertOpportunity(ctx, same, 0)
	if err != nil {
		t.Fatalf("UpsertOpportunity: %v", err)
	}
	if created {
		t.Fatalf("rescan must not create a duplicate")
	}
	if stored.Status != domain.StatusReviewed {
		t.Fatalf("rescan overwrote status: %s", stored.Status)
	}
	if !stored.UpdatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("unchanged scores must not bump updatedAt, got %v", stored.UpdatedAt)
	}

	changed := opp
	changed.OpportunityScore = 0.9
	changed.UpdatedAt = base.Add(2 * time.Hour)
	stored, _, err = repo.UpsertOpportunity(ctx, changed, 0)
	if err != nil {
		t.Fatalf("UpsertOpportunity: %v", err)
	}
	if !stored.UpdatedAt.Equal(base.Add(2*time.Hour)) || stored.OpportunityScore != 0.9 {
		t.Fatalf("rescored record = %+v", stored)
	}

	list, err := repo.ListOpportunities(ctx, "org-1", "c-1")
	if err != nil {
		t.Fatalf("ListOpportunities: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListOpportunities = %d records, want 1", len(list))
	}
	if list[0].Status != domain.StatusReviewed || !list[0].CreatedAt.Equal(base) {
		t.Fatalf("listed record = %+v", list[0])
	}

	if _, err := repo.GetOpportunity(ctx, "org-2", opp.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cross-tenant opportunity read err = %v", err)
	}
}

func testStaleGeneration(t *testing.T, repo ports.Repository) {
	defer repo.Close()
	ctx := context.Background()
	seedCampaign(t, repo, "org-1", "c-1", domain.CampaignActive)

	gen, err := repo.PutCriteria(ctx, "org-1", "c-1", domain.TargetingCriteria{Keywords: []string{"ai"}, FreshnessWindow: time.Hour})
	if err != nil {
		t.Fatalf("PutCriteria: %v", err)
	}
	if _, err := repo.PutCriteria(ctx, "org-1", "c-1", domain.TargetingCriteria{Keywords: []string{"ml"}, FreshnessWindow: time.Hour}); err != nil {
		t.Fatalf("PutCriteria: %v", err)
	}

	opp := opportunity("org-1", "c-1", "n-1", 0.5)
	if _, _, err := repo.UpsertOpportunity(ctx, opp, gen); !errors.Is(err, domain.ErrStaleGeneration) {
		t.Fatalf("stale upsert err = %v, want ErrStaleGeneration", err)
	}
	if _, err := repo.GetOpportunity(ctx, "org-1", opp.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("stale upsert left a record behind: %v", err)
	}
	if _, _, err := repo.UpsertOpportunity(ctx, opp, gen+1); err != nil {
		t.Fatalf("current generation upsert: %v", err)
	}
}

func testTransition(t *testing.T, repo ports.Repository) {
	defer repo.Close()
	ctx := context.Background()
	seedCampaign(t, repo, "org-1", "c-1", domain.CampaignActive)
	opp := opportunity("org-1", "c-1", "n-1", 0.8)
	if _, _, err := repo.UpsertOpportunity(ctx, opp, 0); err != nil {
		t.Fatalf("UpsertOpportunity: %v", err)
	}

	at := base.Add(time.Hour)
	got, err := repo.TransitionStatus(ctx, "org-1", opp.ID, domain.StatusNew, domain.StatusAddedToCampaign, at)
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if got.Status != domain.StatusAddedToCampaign || !got.UpdatedAt.Equal(at) {
		t.Fatalf("transitioned record = %+v", got)
	}

	_, err = repo.TransitionStatus(ctx, "org-1", opp.ID, domain.StatusNew, domain.StatusDismissed, at)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("stale CAS err = %v, want ErrInvalidTransition", err)
	}

	_, err = repo.TransitionStatus(ctx, "org-1", "nope", domain.StatusNew, domain.StatusDismissed, at)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown id err = %v, want ErrNotFound", err)
	}
}

func testConcurrentTransition(t *testing.T, repo ports.Repository) {
	defer repo.Close()
	ctx := context.Background()
	seedCampaign(t, repo, "org-1", "c-1", domain.CampaignActive)
	opp := opportunity("org-1", "c-1", "n-1", 0.8)
	if _, _, err := repo.UpsertOpportunity(ctx, opp, 0); err != nil {
		t.Fatalf("UpsertOpportunity: %v", err)
	}

	const racers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.TransitionStatus(ctx, "org-1", opp.ID, domain.StatusNew, domain.StatusAddedToCampaign, base)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrInvalidTransition):
				losses++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || losses != racers-1 {
		t.Fatalf("wins=%d losses=%d, want exactly one winner", wins, losses)
	}
}

func testNews(t *testing.T, repo ports.Repository) {
	defer repo.Close()
	ctx := context.Background()

	items := []domain.NewsItem{
		{ID: "old", Title: "old", PublishedAt: base.Add(-48 * time.Hour)},
		{ID: "b", Title: "b", PublishedAt: base, Keywords: []string{"ai"}},
		{ID: "a", Title: "a", PublishedAt: base.Add(-time.Hour)},
	}
	if err := repo.SaveNewsItems(ctx, items); err != nil {
		t.Fatalf("SaveNewsItems: %v", err)
	}
	if err := repo.SaveNewsItems(ctx, items[:1]); err != nil {
		t.Fatalf("SaveNewsItems again: %v", err)
	}

	// A rescan replaces the stored text and moves the item in time.
	rescanned := domain.NewsItem{ID: "b", Title: "b corrected", Description: "updated body", PublishedAt: base.Add(-30 * time.Minute), Keywords: []string{"ai"}}
	if err := repo.SaveNewsItems(ctx, []domain.NewsItem{rescanned}); err != nil {
		t.Fatalf("SaveNewsItems rescan: %v", err)
	}

	got, err := repo.ListNewsSince(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ListNewsSince: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("ListNewsSince = %+v", got)
	}
	if len(got[1].Keywords) != 1 || got[1].Keywords[0] != "ai" {
		t.Fatalf("keywords lost: %+v", got[1])
	}
	if got[1].Title != "b corrected" || got[1].Description != "updated body" {
		t.Fatalf("rescan should replace the stored item, got %+v", got[1])
	}
	if !got[1].PublishedAt.Equal(rescanned.PublishedAt) {
		t.Fatalf("published at = %v, want %v", got[1].PublishedAt, rescanned.PublishedAt)
	}

	later, err := repo.ListNewsSince(ctx, base.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("ListNewsSince: %v", err)
	}
	if len(later) != 0 {
		t.Fatalf("stale time index entry survived the rescan: %+v", later)
	}
}
