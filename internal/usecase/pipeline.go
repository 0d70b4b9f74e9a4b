package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/ports"
	"MediaRadar/internal/readiness"
)

// IngestObserver records pipeline runs (metrics).
type IngestObserver interface {
	ObserveIngest(items int, err error)
}

// PipelineDeps wires all driven adapters into the ingest pipeline.
type PipelineDeps struct {
	Source      ports.NewsSource
	News        ports.NewsRepository
	Campaigns   ports.CampaignRepository
	Matcher     readiness.Matcher
	Notifier    ports.Notifier
	Observer    IngestObserver
	Concurrency int
	DigestSize  int
	Logger      *slog.Logger
}

// Pipeline fetches the day's news and scores it against every scannable
// campaign.
type Pipeline struct {
	source      ports.NewsSource
	news        ports.NewsRepository
	campaigns   ports.CampaignRepository
	matcher     readiness.Matcher
	notifier    ports.Notifier
	observer    IngestObserver
	concurrency int
	digestSize  int
	logger      *slog.Logger
}

// IngestReport summarizes one pipeline run.
type IngestReport struct {
	Day        time.Time                 `json:"day"`
	Fetched    int                       `json:"fetched"`
	Campaigns  int                       `json:"campaigns"`
	Scored     int                       `json:"scored"`
	Matched    int                       `json:"matched"`
	Superseded int                       `json:"superseded"`
	Failed     int                       `json:"failed"`
	Created    []domain.MediaOpportunity `json:"created"`
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Concurrency <= 0 {
		deps.Concurrency = 8
	}
	if deps.DigestSize <= 0 {
		deps.DigestSize = 10
	}
	return &Pipeline{
		source:      deps.Source,
		news:        deps.News,
		campaigns:   deps.Campaigns,
		matcher:     deps.Matcher,
		notifier:    deps.Notifier,
		observer:    deps.Observer,
		concurrency: deps.Concurrency,
		digestSize:  deps.DigestSize,
		logger:      deps.Logger,
	}
}

type target struct {
	campaign domain.Campaign
	criteria domain.TargetingCriteria
}

// Ingest runs one day. Site failures still let the other sites' items
// through; they are returned joined with any scoring failure.
func (p *Pipeline) Ingest(ctx context.Context, day time.Time) (report IngestReport, err error) {
	report.Day = day
	defer func() {
		if p.observer != nil {
			p.observer.ObserveIngest(report.Fetched, err)
		}
	}()

	if p.source == nil || p.matcher == nil || p.campaigns == nil {
		return report, fmt.Errorf("pipeline is not fully configured")
	}

	items, fetchErr := p.source.FetchDaily(ctx, day)
	if fetchErr != nil && len(items) == 0 {
		return report, fmt.Errorf("fetch daily: %w", fetchErr)
	}
	if fetchErr != nil {
		p.warn("some sites failed", "error", fetchErr)
	}
	report.Fetched = len(items)

	if p.news != nil && len(items) > 0 {
		if err := p.news.SaveNewsItems(ctx, items); err != nil {
			return report, fmt.Errorf("save news items: %w", err)
		}
	}

	targets, err := p.targets(ctx)
	if err != nil {
		return report, err
	}
	report.Campaigns = len(targets)

	var (
		mu       sync.Mutex
		failures []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, t := range targets {
		for _, item := range items {
			g.Go(func() error {
				out, mErr := p.matcher.Match(gctx, item, t.campaign.OrganizationID, t.campaign.ID, t.criteria, t.criteria.Generation)

				mu.Lock()
				defer mu.Unlock()
				report.Scored++
				switch {
				case errors.Is(mErr, domain.ErrStaleGeneration):
					report.Superseded++
				case mErr != nil:
					report.Failed++
					failures = append(failures, fmt.Errorf("campaign %s item %s: %w", t.campaign.ID, item.ID, mErr))
				case out.Matched:
					report.Matched++
					if out.Created {
						report.Created = append(report.Created, out.Opportunity)
					}
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	p.info("ingest finished",
		"day", day.Format("2006-01-02"),
		"fetched", report.Fetched,
		"campaigns", report.Campaigns,
		"matched", report.Matched,
		"created", len(report.Created),
		"failed", report.Failed)

	if err := p.notify(ctx, report); err != nil {
		p.warn("digest delivery failed", "error", err)
	}

	if len(failures) > 0 {
		failures = append([]error{fmt.Errorf("%d of %d scorings failed: %w", report.Failed, report.Scored, domain.ErrPartialBatchFailure)}, failures...)
	}
	if fetchErr != nil {
		failures = append(failures, fmt.Errorf("fetch daily: %w", fetchErr))
	}
	return report, errors.Join(failures...)
}

func (p *Pipeline) targets(ctx context.Context) ([]target, error) {
	campaigns, err := p.campaigns.ListScannableCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scannable campaigns: %w", err)
	}

	var out []target
	for _, c := range campaigns {
		criteria, err := p.campaigns.GetCriteria(ctx, c.OrganizationID, c.ID)
		if errors.Is(err, domain.ErrNotFound) {
			p.debug("campaign without criteria", "campaign", c.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("criteria of %s: %w", c.ID, err)
		}
		if !criteria.Complete() {
			p.debug("campaign criteria incomplete", "campaign", c.ID)
			continue
		}
		out = append(out, target{campaign: c, criteria: criteria})
	}
	return out, nil
}

func (p *Pipeline) notify(ctx context.Context, report IngestReport) error {
	if p.notifier == nil || len(report.Created) == 0 {
		return nil
	}
	return p.notifier.PublishDigest(ctx, buildDigestMessage(report.Created, p.digestSize))
}

// buildDigestMessage lists the best new opportunities first.
func buildDigestMessage(created []domain.MediaOpportunity, limit int) string {
	sorted := append([]domain.MediaOpportunity(nil), created...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OpportunityScore > sorted[j].OpportunityScore
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%d new media opportunities\n\n", len(created))
	for i, opp := range sorted {
		if i == limit {
			fmt.Fprintf(&b, "... and %d more\n", len(sorted)-limit)
			break
		}
		fmt.Fprintf(&b, "- %s\nScore: %.2f (%s, campaign %s)\n%s\n\n",
			opp.Title,
			opp.OpportunityScore,
			opp.Source,
			opp.CampaignID,
			opp.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (p *Pipeline) debug(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Pipeline) info(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
