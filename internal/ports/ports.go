package ports

import (
	"context"
	"time"

	"MediaRadar/internal/domain"
)

// NewsSource pulls fresh news items from upstream providers.
type NewsSource interface {
	FetchDaily(ctx context.Context, day time.Time) ([]domain.NewsItem, error)
}

// CampaignRepository stores campaigns and their targeting criteria.
// Every call is scoped by organization for tenant isolation.
type CampaignRepository interface {
	GetCampaign(ctx context.Context, organizationID, campaignID string) (domain.Campaign, error)
	ListCampaigns(ctx context.Context, organizationID string) ([]domain.Campaign, error)
	ListScannableCampaigns(ctx context.Context) ([]domain.Campaign, error)
	SaveCampaign(ctx context.Context, campaign domain.Campaign) error
	GetCriteria(ctx context.Context, organizationID, campaignID string) (domain.TargetingCriteria, error)
	// PutCriteria replaces the criteria and returns the bumped generation.
	PutCriteria(ctx context.Context, organizationID, campaignID string, criteria domain.TargetingCriteria) (int64, error)
}

// OpportunityRepository stores media opportunities.
type OpportunityRepository interface {
	GetOpportunity(ctx context.Context, organizationID, id string) (domain.MediaOpportunity, error)
	ListOpportunities(ctx context.Context, organizationID, campaignID string) ([]domain.MediaOpportunity, error)
	// UpsertOpportunity inserts or rescores in place. A non-zero generation is
	// checked against the stored criteria atomically with the write and
	// mismatches fail with domain.ErrStaleGeneration.
	UpsertOpportunity(ctx context.Context, opp domain.MediaOpportunity, generation int64) (domain.MediaOpportunity, bool, error)
	// TransitionStatus moves the record from -> to only if its stored status is
	// still from; otherwise it fails with domain.ErrInvalidTransition.
	TransitionStatus(ctx context.Context, organizationID, id string, from, to domain.OpportunityStatus, at time.Time) (domain.MediaOpportunity, error)
}

// NewsRepository keeps ingested news items for rematch sweeps.
type NewsRepository interface {
	SaveNewsItems(ctx context.Context, items []domain.NewsItem) error
	ListNewsSince(ctx context.Context, since time.Time) ([]domain.NewsItem, error)
}

// Repository is the full storage collaborator.
type Repository interface {
	CampaignRepository
	OpportunityRepository
	NewsRepository
	Close() error
}

// Clock is injected for freshness math and deterministic tests.
type Clock interface {
	Now() time.Time
}

// EventSink receives core notifications.
type EventSink interface {
	Publish(ctx context.Context, event domain.Event) error
}

// TierSource resolves outlet tiers from a reputation provider.
type TierSource interface {
	FetchTiers(ctx context.Context) (map[string]domain.Tier, error)
}

// Notifier streams short messages to chat channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
