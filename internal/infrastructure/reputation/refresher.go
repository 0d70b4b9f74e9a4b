package reputation

import (
	"context"
	"log/slog"
	"time"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/ports"
	"MediaRadar/internal/scoring"
)

// Refresher keeps a scorer tier table in sync with a TierSource. Static
// entries from configuration win over remote ones.
type Refresher struct {
	source   ports.TierSource
	table    *scoring.TierTable
	static   map[string]domain.Tier
	interval time.Duration
	logger   *slog.Logger
}

// NewRefresher builds a refresher; interval <= 0 disables the loop.
func NewRefresher(source ports.TierSource, table *scoring.TierTable, static map[string]domain.Tier, interval time.Duration, logger *slog.Logger) *Refresher {
	return &Refresher{
		source:   source,
		table:    table,
		static:   static,
		interval: interval,
		logger:   logger,
	}
}

// Refresh performs one sync. On failure the table keeps its previous content.
func (r *Refresher) Refresh(ctx context.Context) error {
	remote, err := r.source.FetchTiers(ctx)
	if err != nil {
		return err
	}
	merged := make(map[string]domain.Tier, len(remote)+len(r.static))
	for k, v := range remote {
		merged[k] = v
	}
	for k, v := range r.static {
		merged[k] = v
	}
	r.table.Replace(merged)
	if r.logger != nil {
		r.logger.Info("outlet tiers refreshed", "remote", len(remote), "total", r.table.Len())
	}
	return nil
}

// Run refreshes immediately and then on every tick until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	r.refreshLogged(ctx)
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshLogged(ctx)
		}
	}
}

func (r *Refresher) refreshLogged(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil && r.logger != nil {
		r.logger.Warn("outlet tier refresh failed", "error", err)
	}
}
