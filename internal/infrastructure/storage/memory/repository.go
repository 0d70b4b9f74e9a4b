// Package memory is an in-process repository. A single mutex serializes
// writes, which gives TransitionStatus its compare-and-swap semantics.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/ports"
)

// Repository keeps everything in maps.
type Repository struct {
	mu            sync.RWMutex
	campaigns     map[string]domain.Campaign
	criteria      map[string]domain.TargetingCriteria
	opportunities map[string]domain.MediaOpportunity
	news          map[string]domain.NewsItem
}

var _ ports.Repository = (*Repository)(nil)

// New returns an empty repository.
func New() *Repository {
	return &Repository{
		campaigns:     map[string]domain.Campaign{},
		criteria:      map[string]domain.TargetingCriteria{},
		opportunities: map[string]domain.MediaOpportunity{},
		news:          map[string]domain.NewsItem{},
	}
}

func scopedKey(organizationID, id string) string {
	return organizationID + "/" + id
}

// GetCampaign returns one campaign of the organization.
func (r *Repository) GetCampaign(ctx context.Context, organizationID, campaignID string) (domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[scopedKey(organizationID, campaignID)]
	if !ok {
		return domain.Campaign{}, fmt.Errorf("campaign %s: %w", campaignID, domain.ErrNotFound)
	}
	return c, nil
}

// ListCampaigns returns the organization's campaigns ordered by ID.
func (r *Repository) ListCampaigns(ctx context.Context, organizationID string) ([]domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Campaign
	for _, c := range r.campaigns {
		if c.OrganizationID == organizationID {
			out = append(out, c)
		}
	}
	sortCampaigns(out)
	return out, nil
}

// ListScannableCampaigns returns campaigns of every organization that accept news.
func (r *Repository) ListScannableCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Campaign
	for _, c := range r.campaigns {
		if c.Scannable() {
			out = append(out, c)
		}
	}
	sortCampaigns(out)
	return out, nil
}

// SaveCampaign inserts or replaces a campaign.
func (r *Repository) SaveCampaign(ctx context.Context, campaign domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[scopedKey(campaign.OrganizationID, campaign.ID)] = campaign
	return nil
}

// GetCriteria returns the campaign's current criteria.
func (r *Repository) GetCriteria(ctx context.Context, organizationID, campaignID string) (domain.TargetingCriteria, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.criteria[scopedKey(organizationID, campaignID)]
	if !ok {
		return domain.TargetingCriteria{}, fmt.Errorf("criteria for %s: %w", campaignID, domain.ErrNotFound)
	}
	return cloneCriteria(c), nil
}

// PutCriteria replaces the criteria and bumps the generation.
func (r *Repository) PutCriteria(ctx context.Context, organizationID, campaignID string, criteria domain.TargetingCriteria) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := scopedKey(organizationID, campaignID)
	if _, ok := r.campaigns[key]; !ok {
		return 0, fmt.Errorf("campaign %s: %w", campaignID, domain.ErrNotFound)
	}
	criteria = cloneCriteria(criteria)
	criteria.Generation = r.criteria[key].Generation + 1
	r.criteria[key] = criteria
	return criteria.Generation, nil
}

// GetOpportunity returns one opportunity of the organization.
func (r *Repository) GetOpportunity(ctx context.Context, organizationID, id string) (domain.MediaOpportunity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	opp, ok := r.opportunities[id]
	if !ok || opp.OrganizationID != organizationID {
		return domain.MediaOpportunity{}, fmt.Errorf("opportunity %s: %w", id, domain.ErrNotFound)
	}
	return cloneOpportunity(opp), nil
}

// ListOpportunities returns a campaign's opportunities ordered by ID.
func (r *Repository) ListOpportunities(ctx context.Context, organizationID, campaignID string) ([]domain.MediaOpportunity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.MediaOpportunity
	for _, opp := range r.opportunities {
		if opp.OrganizationID == organizationID && opp.CampaignID == campaignID {
			out = append(out, cloneOpportunity(opp))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertOpportunity inserts a new record or rescores the existing one.
func (r *Repository) UpsertOpportunity(ctx context.Context, opp domain.MediaOpportunity, generation int64) (domain.MediaOpportunity, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if generation != 0 {
		current := r.criteria[scopedKey(opp.OrganizationID, opp.CampaignID)].Generation
		if current != generation {
			return domain.MediaOpportunity{}, false, fmt.Errorf("upsert %s at generation %d (current %d): %w", opp.ID, generation, current, domain.ErrStaleGeneration)
		}
	}

	if existing, ok := r.opportunities[opp.ID]; ok {
		merged := existing.Rescored(opp)
		r.opportunities[opp.ID] = cloneOpportunity(merged)
		return merged, false, nil
	}

	if opp.Status == "" {
		opp.Status = domain.StatusNew
	}
	r.opportunities[opp.ID] = cloneOpportunity(opp)
	return opp, true, nil
}

// TransitionStatus applies from -> to only if the stored status is still from.
func (r *Repository) TransitionStatus(ctx context.Context, organizationID, id string, from, to domain.OpportunityStatus, at time.Time) (domain.MediaOpportunity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	opp, ok := r.opportunities[id]
	if !ok || opp.OrganizationID != organizationID {
		return domain.MediaOpportunity{}, fmt.Errorf("opportunity %s: %w", id, domain.ErrNotFound)
	}
	if opp.Status != from {
		return cloneOpportunity(opp), fmt.Errorf("opportunity %s is %s, expected %s: %w", id, opp.Status, from, domain.ErrInvalidTransition)
	}
	opp.Status = to
	opp.UpdatedAt = at
	r.opportunities[id] = opp
	return cloneOpportunity(opp), nil
}

// SaveNewsItems stores items by ID; the latest save of an item wins.
func (r *Repository) SaveNewsItems(ctx context.Context, items []domain.NewsItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		item.Keywords = append([]string(nil), item.Keywords...)
		r.news[item.ID] = item
	}
	return nil
}

// ListNewsSince returns items published at or after since, oldest first.
func (r *Repository) ListNewsSince(ctx context.Context, since time.Time) ([]domain.NewsItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.NewsItem
	for _, item := range r.news {
		if !item.PublishedAt.Before(since) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.Before(out[j].PublishedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Close is a no-op.
func (r *Repository) Close() error {
	return nil
}

func sortCampaigns(cs []domain.Campaign) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].OrganizationID != cs[j].OrganizationID {
			return cs[i].OrganizationID < cs[j].OrganizationID
		}
		return cs[i].ID < cs[j].ID
	})
}

func cloneCriteria(c domain.TargetingCriteria) domain.TargetingCriteria {
	c.Keywords = append([]string(nil), c.Keywords...)
	c.Topics = append([]string(nil), c.Topics...)
	c.OutletTiers = append([]domain.Tier(nil), c.OutletTiers...)
	c.Regions = append([]string(nil), c.Regions...)
	return c
}

func cloneOpportunity(o domain.MediaOpportunity) domain.MediaOpportunity {
	o.MatchReasons = append([]string(nil), o.MatchReasons...)
	o.Keywords = append([]string(nil), o.Keywords...)
	return o
}
