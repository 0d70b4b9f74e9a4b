package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"MediaRadar/internal/domain"
)

type fakeSource struct {
	items []domain.NewsItem
	err   error
}

func (f fakeSource) FetchDaily(context.Context, time.Time) ([]domain.NewsItem, error) {
	return f.items, f.err
}

type captureNotifier struct{ digests []string }

func (c *captureNotifier) PublishDigest(_ context.Context, digest string) error {
	c.digests = append(c.digests, digest)
	return nil
}

type ingestCounter struct {
	runs   int
	items  int
	failed int
}

func (c *ingestCounter) ObserveIngest(items int, err error) {
	c.runs++
	c.items += items
	if err != nil {
		c.failed++
	}
}

func newPipeline(s stack, src fakeSource, notifier *captureNotifier, observer *ingestCounter) *Pipeline {
	deps := PipelineDeps{
		Source:      src,
		News:        s.repo,
		Campaigns:   s.repo,
		Matcher:     s.opportunities,
		Observer:    observer,
		Concurrency: 4,
	}
	if notifier != nil {
		deps.Notifier = notifier
	}
	return NewPipeline(deps)
}

func TestPipelineIngest(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	s.seedCampaign(t, "c-1", domain.CampaignActive, aiCriteria())
	s.seedCampaign(t, "c-2", domain.CampaignPaused, aiCriteria())
	s.seedCampaign(t, "c-3", domain.CampaignActive, nil)

	src := fakeSource{items: []domain.NewsItem{
		fundingItem("n-1"),
		{ID: "n-2", Title: "Local bakery wins award", Source: "daily", PublishedAt: now},
	}}
	notifier := &captureNotifier{}
	observer := &ingestCounter{}
	p := newPipeline(s, src, notifier, observer)

	report, err := p.Ingest(context.Background(), now)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if report.Fetched != 2 || report.Campaigns != 1 || report.Scored != 2 || report.Matched != 1 || len(report.Created) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(notifier.digests) != 1 || !strings.Contains(notifier.digests[0], "Startup raises AI funding round") {
		t.Fatalf("unexpected digests: %v", notifier.digests)
	}

	report, err = p.Ingest(context.Background(), now)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if report.Matched != 1 || len(report.Created) != 0 {
		t.Fatalf("rescans must not create duplicates: %+v", report)
	}
	if len(notifier.digests) != 1 {
		t.Fatalf("no digest expected without new opportunities")
	}
	if observer.runs != 2 || observer.items != 4 || observer.failed != 0 {
		t.Fatalf("observer: %+v", observer)
	}

	opps, err := s.repo.ListOpportunities(context.Background(), org, "c-1")
	if err != nil || len(opps) != 1 {
		t.Fatalf("opportunities: %v %d", err, len(opps))
	}
}

func TestPipelinePartialFetch(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	s.seedCampaign(t, "c-1", domain.CampaignActive, aiCriteria())

	src := fakeSource{items: []domain.NewsItem{fundingItem("n-1")}, err: errors.New("site down")}
	observer := &ingestCounter{}
	report, err := newPipeline(s, src, nil, observer).Ingest(context.Background(), now)
	if err == nil || !strings.Contains(err.Error(), "site down") {
		t.Fatalf("expected the site error to surface, got %v", err)
	}
	if len(report.Created) != 1 {
		t.Fatalf("healthy items should still be scored: %+v", report)
	}
	if observer.failed != 1 {
		t.Fatalf("observer should see the failure")
	}
}

func TestPipelineFetchFailure(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	_, err := newPipeline(s, fakeSource{err: errors.New("offline")}, nil, &ingestCounter{}).Ingest(context.Background(), now)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestBuildDigestMessage(t *testing.T) {
	t.Parallel()

	msg := buildDigestMessage([]domain.MediaOpportunity{
		{Title: "low", OpportunityScore: 0.3},
		{Title: "high", OpportunityScore: 0.9},
		{Title: "mid", OpportunityScore: 0.6},
	}, 2)
	if !strings.HasPrefix(msg, "3 new media opportunities") {
		t.Fatalf("unexpected header: %q", msg)
	}
	if strings.Index(msg, "high") > strings.Index(msg, "mid") {
		t.Fatalf("best opportunities first: %q", msg)
	}
	if strings.Contains(msg, "- low") || !strings.Contains(msg, "and 1 more") {
		t.Fatalf("digest should be capped: %q", msg)
	}
}
