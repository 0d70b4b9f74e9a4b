package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/ports"
)

var opportunityColumns = []string{
	"id", "organization_id", "campaign_id", "news_item_id", "title", "source", "url",
	"published_at", "relevance", "visibility", "freshness", "opportunity_score", "tier",
	"match_reasons", "keywords", "status", "created_at", "updated_at",
}

var campaignColumns = []string{
	"organization_id", "id", "name", "status", "min_tier_a_matches", "created_at", "updated_at",
}

var newsColumns = []string{
	"id", "title", "description", "url", "source", "published_at", "category", "keywords", "region",
}

// newsUpsertSuffix makes the latest scan of an item win.
const newsUpsertSuffix = `ON CONFLICT (id) DO UPDATE SET
	title = excluded.title,
	description = excluded.description,
	url = excluded.url,
	source = excluded.source,
	published_at = excluded.published_at,
	category = excluded.category,
	keywords = excluded.keywords,
	region = excluded.region`

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Repository persists campaigns, criteria, opportunities and news in SQLite.
type Repository struct {
	db *sql.DB
}

var _ ports.Repository = (*Repository)(nil)

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers, which keeps read-then-write
	// transactions free of SQLITE_BUSY upgrades.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return &Repository{db: db}, nil
}

// NewRepository wraps an existing handle whose schema is already applied.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// GetCampaign returns one campaign of the organization.
func (r *Repository) GetCampaign(ctx context.Context, organizationID, campaignID string) (domain.Campaign, error) {
	query, args, err := sq.Select(campaignColumns...).From("campaigns").
		Where(sq.Eq{"organization_id": organizationID, "id": campaignID}).ToSql()
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("build campaign query: %w", err)
	}
	c, err := scanCampaign(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Campaign{}, fmt.Errorf("campaign %s: %w", campaignID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Campaign{}, unavailable("get campaign", err)
	}
	return c, nil
}

// ListCampaigns returns the organization's campaigns ordered by ID.
func (r *Repository) ListCampaigns(ctx context.Context, organizationID string) ([]domain.Campaign, error) {
	return r.listCampaigns(ctx, sq.Select(campaignColumns...).From("campaigns").
		Where(sq.Eq{"organization_id": organizationID}).OrderBy("id"))
}

// ListScannableCampaigns returns campaigns of every organization that accept news.
func (r *Repository) ListScannableCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	statuses := []string{
		string(domain.CampaignDraft),
		string(domain.CampaignActive),
		string(domain.CampaignExecuting),
	}
	return r.listCampaigns(ctx, sq.Select(campaignColumns...).From("campaigns").
		Where(sq.Eq{"status": statuses}).OrderBy("organization_id", "id"))
}

func (r *Repository) listCampaigns(ctx context.Context, builder sq.SelectBuilder) ([]domain.Campaign, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build campaigns query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query campaigns", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, unavailable("scan campaign", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("rows iteration", err)
	}
	return out, nil
}

// SaveCampaign inserts or replaces a campaign.
func (r *Repository) SaveCampaign(ctx context.Context, c domain.Campaign) error {
	query, args, err := sq.Insert("campaigns").Columns(campaignColumns...).
		Values(c.OrganizationID, c.ID, c.Name, string(c.Status), c.MinTierAMatches, toMillis(c.CreatedAt), toMillis(c.UpdatedAt)).
		Suffix(`ON CONFLICT (organization_id, id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			min_tier_a_matches = excluded.min_tier_a_matches,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build campaign upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return unavailable("upsert campaign", err)
	}
	return nil
}

// GetCriteria returns the campaign's current criteria.
func (r *Repository) GetCriteria(ctx context.Context, organizationID, campaignID string) (domain.TargetingCriteria, error) {
	query, args, err := sq.Select("payload", "generation").From("targeting_criteria").
		Where(sq.Eq{"organization_id": organizationID, "campaign_id": campaignID}).ToSql()
	if err != nil {
		return domain.TargetingCriteria{}, fmt.Errorf("build criteria query: %w", err)
	}

	var (
		payload    string
		generation int64
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&payload, &generation)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TargetingCriteria{}, fmt.Errorf("criteria for %s: %w", campaignID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.TargetingCriteria{}, unavailable("get criteria", err)
	}

	var c domain.TargetingCriteria
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return domain.TargetingCriteria{}, fmt.Errorf("decode criteria: %w", err)
	}
	c.Generation = generation
	return c, nil
}

// PutCriteria replaces the criteria and bumps the generation in one transaction.
func (r *Repository) PutCriteria(ctx context.Context, organizationID, campaignID string, criteria domain.TargetingCriteria) (int64, error) {
	var generation int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireCampaign(ctx, tx, organizationID, campaignID); err != nil {
			return err
		}
		current, err := currentGeneration(ctx, tx, organizationID, campaignID)
		if err != nil {
			return err
		}
		generation = current + 1
		criteria.Generation = generation

		payload, err := json.Marshal(criteria)
		if err != nil {
			return fmt.Errorf("encode criteria: %w", err)
		}
		query, args, err := sq.Insert("targeting_criteria").
			Columns("organization_id", "campaign_id", "payload", "generation", "updated_at").
			Values(organizationID, campaignID, string(payload), generation, toMillis(criteria.UpdatedAt)).
			Suffix(`ON CONFLICT (organization_id, campaign_id) DO UPDATE SET
				payload = excluded.payload,
				generation = excluded.generation,
				updated_at = excluded.updated_at`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build criteria upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return unavailable("upsert criteria", err)
		}
		return nil
	})
	return generation, err
}

// GetOpportunity returns one opportunity of the organization.
func (r *Repository) GetOpportunity(ctx context.Context, organizationID, id string) (domain.MediaOpportunity, error) {
	return getOpportunity(ctx, r.db, organizationID, id)
}

// ListOpportunities returns a campaign's opportunities ordered by ID.
func (r *Repository) ListOpportunities(ctx context.Context, organizationID, campaignID string) ([]domain.MediaOpportunity, error) {
	query, args, err := sq.Select(opportunityColumns...).From("opportunities").
		Where(sq.Eq{"organization_id": organizationID, "campaign_id": campaignID}).
		OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build opportunities query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query opportunities", err)
	}
	defer rows.Close()

	var out []domain.MediaOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, unavailable("scan opportunity", err)
		}
		out = append(out, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("rows iteration", err)
	}
	return out, nil
}

// UpsertOpportunity inserts a new record or rescores the existing one inside
// a transaction that also checks the criteria generation.
func (r *Repository) UpsertOpportunity(ctx context.Context, opp domain.MediaOpportunity, generation int64) (domain.MediaOpportunity, bool, error) {
	var (
		result  domain.MediaOpportunity
		created bool
	)
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if generation != 0 {
			current, err := currentGeneration(ctx, tx, opp.OrganizationID, opp.CampaignID)
			if err != nil {
				return err
			}
			if current != generation {
				return fmt.Errorf("upsert %s at generation %d (current %d): %w", opp.ID, generation, current, domain.ErrStaleGeneration)
			}
		}

		existing, err := getOpportunity(ctx, tx, opp.OrganizationID, opp.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if opp.Status == "" {
				opp.Status = domain.StatusNew
			}
			result, created = opp, true
			return insertOpportunity(ctx, tx, opp)
		case err != nil:
			return err
		}

		result = existing.Rescored(opp)
		return rescoreOpportunity(ctx, tx, result)
	})
	if err != nil {
		return domain.MediaOpportunity{}, false, err
	}
	return result, created, nil
}

// TransitionStatus is a conditional UPDATE on the current status.
func (r *Repository) TransitionStatus(ctx context.Context, organizationID, id string, from, to domain.OpportunityStatus, at time.Time) (domain.MediaOpportunity, error) {
	var result domain.MediaOpportunity
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		query, args, err := sq.Update("opportunities").
			Set("status", string(to)).
			Set("updated_at", toMillis(at)).
			Where(sq.Eq{"id": id, "organization_id": organizationID, "status": string(from)}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build transition: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return unavailable("transition opportunity", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return unavailable("transition rows affected", err)
		}

		current, err := getOpportunity(ctx, tx, organizationID, id)
		if err != nil {
			return err
		}
		result = current
		if affected == 0 {
			return fmt.Errorf("opportunity %s is %s, expected %s: %w", id, current.Status, from, domain.ErrInvalidTransition)
		}
		return nil
	})
	return result, err
}

// SaveNewsItems upserts items by ID; the latest save wins.
func (r *Repository) SaveNewsItems(ctx context.Context, items []domain.NewsItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, item := range items {
			keywords, err := json.Marshal(nonNil(item.Keywords))
			if err != nil {
				return fmt.Errorf("encode keywords: %w", err)
			}
			query, args, err := sq.Insert("news_items").Columns(newsColumns...).
				Values(item.ID, item.Title, item.Description, item.URL, item.Source,
					toMillis(item.PublishedAt), item.Category, string(keywords), item.Region).
				Suffix(newsUpsertSuffix).
				ToSql()
			if err != nil {
				return fmt.Errorf("build news insert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return unavailable("insert news item", err)
			}
		}
		return nil
	})
}

// ListNewsSince returns items published at or after since, oldest first.
func (r *Repository) ListNewsSince(ctx context.Context, since time.Time) ([]domain.NewsItem, error) {
	query, args, err := sq.Select(newsColumns...).From("news_items").
		Where(sq.GtOrEq{"published_at": toMillis(since)}).
		OrderBy("published_at", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build news query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query news items", err)
	}
	defer rows.Close()

	var out []domain.NewsItem
	for rows.Next() {
		var (
			item      domain.NewsItem
			published int64
			keywords  string
		)
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.URL, &item.Source,
			&published, &item.Category, &keywords, &item.Region); err != nil {
			return nil, unavailable("scan news item", err)
		}
		item.PublishedAt = fromMillis(published)
		if err := json.Unmarshal([]byte(keywords), &item.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("rows iteration", err)
	}
	return out, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func requireCampaign(ctx context.Context, q querier, organizationID, campaignID string) error {
	query, args, err := sq.Select("1").From("campaigns").
		Where(sq.Eq{"organization_id": organizationID, "id": campaignID}).ToSql()
	if err != nil {
		return fmt.Errorf("build campaign lookup: %w", err)
	}
	var one int
	err = q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("campaign %s: %w", campaignID, domain.ErrNotFound)
	}
	if err != nil {
		return unavailable("lookup campaign", err)
	}
	return nil
}

func currentGeneration(ctx context.Context, q querier, organizationID, campaignID string) (int64, error) {
	query, args, err := sq.Select("generation").From("targeting_criteria").
		Where(sq.Eq{"organization_id": organizationID, "campaign_id": campaignID}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build generation query: %w", err)
	}
	var generation int64
	err = q.QueryRowContext(ctx, query, args...).Scan(&generation)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("read generation", err)
	}
	return generation, nil
}

func getOpportunity(ctx context.Context, q querier, organizationID, id string) (domain.MediaOpportunity, error) {
	query, args, err := sq.Select(opportunityColumns...).From("opportunities").
		Where(sq.Eq{"id": id, "organization_id": organizationID}).ToSql()
	if err != nil {
		return domain.MediaOpportunity{}, fmt.Errorf("build opportunity query: %w", err)
	}
	opp, err := scanOpportunity(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MediaOpportunity{}, fmt.Errorf("opportunity %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.MediaOpportunity{}, unavailable("get opportunity", err)
	}
	return opp, nil
}

func insertOpportunity(ctx context.Context, q querier, o domain.MediaOpportunity) error {
	reasons, keywords, err := encodeLists(o)
	if err != nil {
		return err
	}
	query, args, err := sq.Insert("opportunities").Columns(opportunityColumns...).
		Values(o.ID, o.OrganizationID, o.CampaignID, o.NewsItemID, o.Title, o.Source, o.URL,
			toMillis(o.PublishedAt), o.Relevance, o.Visibility, o.Freshness, o.OpportunityScore,
			string(o.Tier), reasons, keywords, string(o.Status), toMillis(o.CreatedAt), toMillis(o.UpdatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build opportunity insert: %w", err)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return unavailable("insert opportunity", err)
	}
	return nil
}

// rescoreOpportunity never touches status or created_at.
func rescoreOpportunity(ctx context.Context, q querier, o domain.MediaOpportunity) error {
	reasons, keywords, err := encodeLists(o)
	if err != nil {
		return err
	}
	query, args, err := sq.Update("opportunities").
		Set("title", o.Title).
		Set("source", o.Source).
		Set("url", o.URL).
		Set("published_at", toMillis(o.PublishedAt)).
		Set("relevance", o.Relevance).
		Set("visibility", o.Visibility).
		Set("freshness", o.Freshness).
		Set("opportunity_score", o.OpportunityScore).
		Set("tier", string(o.Tier)).
		Set("match_reasons", reasons).
		Set("keywords", keywords).
		Set("updated_at", toMillis(o.UpdatedAt)).
		Where(sq.Eq{"id": o.ID, "organization_id": o.OrganizationID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build opportunity update: %w", err)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return unavailable("update opportunity", err)
	}
	return nil
}

func scanCampaign(row rowScanner) (domain.Campaign, error) {
	var (
		c                domain.Campaign
		status           string
		created, updated int64
	)
	if err := row.Scan(&c.OrganizationID, &c.ID, &c.Name, &status, &c.MinTierAMatches, &created, &updated); err != nil {
		return domain.Campaign{}, err
	}
	c.Status = domain.CampaignStatus(status)
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}

func scanOpportunity(row rowScanner) (domain.MediaOpportunity, error) {
	var (
		o                           domain.MediaOpportunity
		published, created, updated int64
		tier, status                string
		reasons, keywords           string
	)
	err := row.Scan(&o.ID, &o.OrganizationID, &o.CampaignID, &o.NewsItemID, &o.Title, &o.Source, &o.URL,
		&published, &o.Relevance, &o.Visibility, &o.Freshness, &o.OpportunityScore, &tier,
		&reasons, &keywords, &status, &created, &updated)
	if err != nil {
		return domain.MediaOpportunity{}, err
	}
	o.PublishedAt = fromMillis(published)
	o.CreatedAt = fromMillis(created)
	o.UpdatedAt = fromMillis(updated)
	o.Tier = domain.Tier(tier)
	o.Status = domain.OpportunityStatus(status)
	if err := json.Unmarshal([]byte(reasons), &o.MatchReasons); err != nil {
		return domain.MediaOpportunity{}, fmt.Errorf("decode match reasons: %w", err)
	}
	if err := json.Unmarshal([]byte(keywords), &o.Keywords); err != nil {
		return domain.MediaOpportunity{}, fmt.Errorf("decode keywords: %w", err)
	}
	return o, nil
}

func encodeLists(o domain.MediaOpportunity) (string, string, error) {
	reasons, err := json.Marshal(nonNil(o.MatchReasons))
	if err != nil {
		return "", "", fmt.Errorf("encode match reasons: %w", err)
	}
	keywords, err := json.Marshal(nonNil(o.Keywords))
	if err != nil {
		return "", "", fmt.Errorf("encode keywords: %w", err)
	}
	return string(reasons), string(keywords), nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrRepositoryUnavailable, err)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}
