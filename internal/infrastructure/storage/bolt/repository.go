package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/ports"
)

var (
	bucketCampaigns     = []byte("campaigns")
	bucketCriteria      = []byte("criteria")
	bucketOpportunities = []byte("opportunities")
	bucketCampaignIndex = []byte("opportunities_by_campaign")
	bucketNews          = []byte("news")
	bucketNewsByTime    = []byte("news_by_time")
)

// Repository implements ports.Repository on top of BoltDB. Every write runs
// in a single db.Update transaction, so conditional updates are atomic.
type Repository struct {
	db *bolt.DB
}

var _ ports.Repository = (*Repository)(nil)

// Open creates the file and buckets if needed.
func Open(path string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCampaigns, bucketCriteria, bucketOpportunities, bucketCampaignIndex, bucketNews, bucketNewsByTime} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the database file.
func (r *Repository) Close() error {
	return r.db.Close()
}

func scopedKey(parts ...string) []byte {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte('/')
		}
		buf.WriteString(p)
	}
	return buf.Bytes()
}

// makeIndexKey orders news by publication time, then ID.
func makeIndexKey(t time.Time, id string) []byte {
	key := make([]byte, 8+len(id))
	binary.BigEndian.PutUint64(key[:8], uint64(t.UnixNano()))
	copy(key[8:], id)
	return key
}

// GetCampaign returns one campaign of the organization.
func (r *Repository) GetCampaign(ctx context.Context, organizationID, campaignID string) (domain.Campaign, error) {
	var c domain.Campaign
	err := r.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCampaigns).Get(scopedKey(organizationID, campaignID))
		if data == nil {
			return fmt.Errorf("campaign %s: %w", campaignID, domain.ErrNotFound)
		}
		return json.Unmarshal(data, &c)
	})
	return c, err
}

// ListCampaigns returns the organization's campaigns ordered by ID.
func (r *Repository) ListCampaigns(ctx context.Context, organizationID string) ([]domain.Campaign, error) {
	var out []domain.Campaign
	prefix := scopedKey(organizationID, "")
	err := r.view(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCampaigns).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var campaign domain.Campaign
			if err := json.Unmarshal(v, &campaign); err != nil {
				return fmt.Errorf("failed to unmarshal campaign: %w", err)
			}
			out = append(out, campaign)
		}
		return nil
	})
	return out, err
}

// ListScannableCampaigns returns campaigns of every organization that accept news.
func (r *Repository) ListScannableCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	var out []domain.Campaign
	err := r.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCampaigns).ForEach(func(_, v []byte) error {
			var campaign domain.Campaign
			if err := json.Unmarshal(v, &campaign); err != nil {
				return fmt.Errorf("failed to unmarshal campaign: %w", err)
			}
			if campaign.Scannable() {
				out = append(out, campaign)
			}
			return nil
		})
	})
	return out, err
}

// SaveCampaign inserts or replaces a campaign.
func (r *Repository) SaveCampaign(ctx context.Context, campaign domain.Campaign) error {
	return r.update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(campaign)
		if err != nil {
			return fmt.Errorf("failed to marshal campaign: %w", err)
		}
		return tx.Bucket(bucketCampaigns).Put(scopedKey(campaign.OrganizationID, campaign.ID), data)
	})
}

// GetCriteria returns the campaign's current criteria.
func (r *Repository) GetCriteria(ctx context.Context, organizationID, campaignID string) (domain.TargetingCriteria, error) {
	var c domain.TargetingCriteria
	err := r.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCriteria).Get(scopedKey(organizationID, campaignID))
		if data == nil {
			return fmt.Errorf("criteria for %s: %w", campaignID, domain.ErrNotFound)
		}
		return json.Unmarshal(data, &c)
	})
	return c, err
}

// PutCriteria replaces the criteria and bumps the generation.
func (r *Repository) PutCriteria(ctx context.Context, organizationID, campaignID string, criteria domain.TargetingCriteria) (int64, error) {
	var generation int64
	err := r.update(func(tx *bolt.Tx) error {
		key := scopedKey(organizationID, campaignID)
		if tx.Bucket(bucketCampaigns).Get(key) == nil {
			return fmt.Errorf("campaign %s: %w", campaignID, domain.ErrNotFound)
		}
		current, err := generationOf(tx, key)
		if err != nil {
			return err
		}
		generation = current + 1
		criteria.Generation = generation

		data, err := json.Marshal(criteria)
		if err != nil {
			return fmt.Errorf("failed to marshal criteria: %w", err)
		}
		return tx.Bucket(bucketCriteria).Put(key, data)
	})
	return generation, err
}

// GetOpportunity returns one opportunity of the organization.
func (r *Repository) GetOpportunity(ctx context.Context, organizationID, id string) (domain.MediaOpportunity, error) {
	var opp domain.MediaOpportunity
	err := r.view(func(tx *bolt.Tx) error {
		var err error
		opp, err = getOpportunity(tx, organizationID, id)
		return err
	})
	return opp, err
}

// ListOpportunities returns a campaign's opportunities ordered by ID.
func (r *Repository) ListOpportunities(ctx context.Context, organizationID, campaignID string) ([]domain.MediaOpportunity, error) {
	var out []domain.MediaOpportunity
	prefix := scopedKey(organizationID, campaignID, "")
	err := r.view(func(tx *bolt.Tx) error {
		opps := tx.Bucket(bucketOpportunities)
		c := tx.Bucket(bucketCampaignIndex).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			data := opps.Get(v)
			if data == nil {
				continue
			}
			var opp domain.MediaOpportunity
			if err := json.Unmarshal(data, &opp); err != nil {
				return fmt.Errorf("failed to unmarshal opportunity: %w", err)
			}
			out = append(out, opp)
		}
		return nil
	})
	return out, err
}

// UpsertOpportunity inserts a new record or rescores the existing one.
func (r *Repository) UpsertOpportunity(ctx context.Context, opp domain.MediaOpportunity, generation int64) (domain.MediaOpportunity, bool, error) {
	var (
		result  domain.MediaOpportunity
		created bool
	)
	err := r.update(func(tx *bolt.Tx) error {
		if generation != 0 {
			current, err := generationOf(tx, scopedKey(opp.OrganizationID, opp.CampaignID))
			if err != nil {
				return err
			}
			if current != generation {
				return fmt.Errorf("upsert %s at generation %d (current %d): %w", opp.ID, generation, current, domain.ErrStaleGeneration)
			}
		}

		existing, err := getOpportunity(tx, opp.OrganizationID, opp.ID)
		switch {
		case err == nil:
			result = existing.Rescored(opp)
		case isNotFound(err):
			if opp.Status == "" {
				opp.Status = domain.StatusNew
			}
			result, created = opp, true
			indexKey := scopedKey(opp.OrganizationID, opp.CampaignID, opp.ID)
			if err := tx.Bucket(bucketCampaignIndex).Put(indexKey, []byte(opp.ID)); err != nil {
				return fmt.Errorf("failed to add to campaign index: %w", err)
			}
		default:
			return err
		}
		return putOpportunity(tx, result)
	})
	if err != nil {
		return domain.MediaOpportunity{}, false, err
	}
	return result, created, nil
}

// TransitionStatus applies from -> to only if the stored status is still from.
func (r *Repository) TransitionStatus(ctx context.Context, organizationID, id string, from, to domain.OpportunityStatus, at time.Time) (domain.MediaOpportunity, error) {
	var result domain.MediaOpportunity
	err := r.update(func(tx *bolt.Tx) error {
		opp, err := getOpportunity(tx, organizationID, id)
		if err != nil {
			return err
		}
		if opp.Status != from {
			result = opp
			return fmt.Errorf("opportunity %s is %s, expected %s: %w", id, opp.Status, from, domain.ErrInvalidTransition)
		}
		opp.Status = to
		opp.UpdatedAt = at
		result = opp
		return putOpportunity(tx, opp)
	})
	return result, err
}

// SaveNewsItems stores items by ID and indexes them by publication time.
// Re-saving an item replaces it and moves its index entry.
func (r *Repository) SaveNewsItems(ctx context.Context, items []domain.NewsItem) error {
	return r.update(func(tx *bolt.Tx) error {
		news := tx.Bucket(bucketNews)
		byTime := tx.Bucket(bucketNewsByTime)
		for _, item := range items {
			if prev := news.Get([]byte(item.ID)); prev != nil {
				var old domain.NewsItem
				if err := json.Unmarshal(prev, &old); err != nil {
					return fmt.Errorf("failed to unmarshal news item: %w", err)
				}
				if !old.PublishedAt.IsZero() {
					if err := byTime.Delete(makeIndexKey(old.PublishedAt, old.ID)); err != nil {
						return fmt.Errorf("failed to unindex news item: %w", err)
					}
				}
			}
			data, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("failed to marshal news item: %w", err)
			}
			if err := news.Put([]byte(item.ID), data); err != nil {
				return fmt.Errorf("failed to store news item: %w", err)
			}
			if item.PublishedAt.IsZero() {
				continue
			}
			if err := byTime.Put(makeIndexKey(item.PublishedAt, item.ID), []byte(item.ID)); err != nil {
				return fmt.Errorf("failed to index news item: %w", err)
			}
		}
		return nil
	})
}

// ListNewsSince returns items published at or after since, oldest first.
func (r *Repository) ListNewsSince(ctx context.Context, since time.Time) ([]domain.NewsItem, error) {
	var out []domain.NewsItem
	err := r.view(func(tx *bolt.Tx) error {
		news := tx.Bucket(bucketNews)
		c := tx.Bucket(bucketNewsByTime).Cursor()
		for k, v := c.Seek(makeIndexKey(since, "")); k != nil; k, v = c.Next() {
			data := news.Get(v)
			if data == nil {
				continue
			}
			var item domain.NewsItem
			if err := json.Unmarshal(data, &item); err != nil {
				return fmt.Errorf("failed to unmarshal news item: %w", err)
			}
			out = append(out, item)
		}
		return nil
	})
	return out, err
}

func (r *Repository) view(fn func(tx *bolt.Tx) error) error {
	err := r.db.View(fn)
	return classify(err)
}

func (r *Repository) update(fn func(tx *bolt.Tx) error) error {
	err := r.db.Update(fn)
	return classify(err)
}

func getOpportunity(tx *bolt.Tx, organizationID, id string) (domain.MediaOpportunity, error) {
	data := tx.Bucket(bucketOpportunities).Get([]byte(id))
	if data == nil {
		return domain.MediaOpportunity{}, fmt.Errorf("opportunity %s: %w", id, domain.ErrNotFound)
	}
	var opp domain.MediaOpportunity
	if err := json.Unmarshal(data, &opp); err != nil {
		return domain.MediaOpportunity{}, fmt.Errorf("failed to unmarshal opportunity: %w", err)
	}
	if opp.OrganizationID != organizationID {
		return domain.MediaOpportunity{}, fmt.Errorf("opportunity %s: %w", id, domain.ErrNotFound)
	}
	return opp, nil
}

func putOpportunity(tx *bolt.Tx, opp domain.MediaOpportunity) error {
	data, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("failed to marshal opportunity: %w", err)
	}
	if err := tx.Bucket(bucketOpportunities).Put([]byte(opp.ID), data); err != nil {
		return fmt.Errorf("failed to store opportunity: %w", err)
	}
	return nil
}

func generationOf(tx *bolt.Tx, key []byte) (int64, error) {
	data := tx.Bucket(bucketCriteria).Get(key)
	if data == nil {
		return 0, nil
	}
	var c domain.TargetingCriteria
	if err := json.Unmarshal(data, &c); err != nil {
		return 0, fmt.Errorf("failed to unmarshal criteria: %w", err)
	}
	return c.Generation, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// classify leaves domain errors alone and marks storage failures as
// unavailable so read paths can retry them.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrStaleGeneration):
		return err
	case errors.Is(err, bolt.ErrDatabaseNotOpen), errors.Is(err, bolt.ErrTimeout):
		return fmt.Errorf("%w: %w", domain.ErrRepositoryUnavailable, err)
	default:
		return err
	}
}
