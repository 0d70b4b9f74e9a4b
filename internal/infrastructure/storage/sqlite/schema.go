package sqlite

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS campaigns (
		organization_id    TEXT NOT NULL,
		id                 TEXT NOT NULL,
		name               TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL,
		min_tier_a_matches INTEGER NOT NULL DEFAULT 0,
		created_at         INTEGER NOT NULL DEFAULT 0,
		updated_at         INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (organization_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS targeting_criteria (
		organization_id TEXT NOT NULL,
		campaign_id     TEXT NOT NULL,
		payload         TEXT NOT NULL,
		generation      INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (organization_id, campaign_id)
	)`,
	`CREATE TABLE IF NOT EXISTS opportunities (
		id                TEXT PRIMARY KEY,
		organization_id   TEXT NOT NULL,
		campaign_id       TEXT NOT NULL,
		news_item_id      TEXT NOT NULL,
		title             TEXT NOT NULL DEFAULT '',
		source            TEXT NOT NULL DEFAULT '',
		url               TEXT NOT NULL DEFAULT '',
		published_at      INTEGER NOT NULL DEFAULT 0,
		relevance         REAL NOT NULL,
		visibility        REAL NOT NULL,
		freshness         REAL NOT NULL,
		opportunity_score REAL NOT NULL,
		tier              TEXT NOT NULL,
		match_reasons     TEXT NOT NULL DEFAULT '[]',
		keywords          TEXT NOT NULL DEFAULT '[]',
		status            TEXT NOT NULL,
		created_at        INTEGER NOT NULL,
		updated_at        INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_opportunities_campaign ON opportunities (organization_id, campaign_id)`,
	`CREATE TABLE IF NOT EXISTS news_items (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL DEFAULT '',
		description  TEXT NOT NULL DEFAULT '',
		url          TEXT NOT NULL DEFAULT '',
		source       TEXT NOT NULL DEFAULT '',
		published_at INTEGER NOT NULL DEFAULT 0,
		category     TEXT NOT NULL DEFAULT '',
		keywords     TEXT NOT NULL DEFAULT '[]',
		region       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_news_items_published ON news_items (published_at)`,
}
