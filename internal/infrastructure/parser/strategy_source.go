package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"MediaRadar/internal/config"
	"MediaRadar/internal/domain"
	"MediaRadar/internal/ports"
	"MediaRadar/internal/scanner"
)

// StrategySource implements NewsSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	logger   *slog.Logger
}

var _ ports.NewsSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		logger:   log,
	}
}

// FetchDaily runs every configured site. A failing site does not hide the
// items of the others; its error is joined into the returned error.
func (s *StrategySource) FetchDaily(ctx context.Context, day time.Time) ([]domain.NewsItem, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.debug("fetch daily", "sites", len(s.sites), "day", day.Format("2006-01-02"))

	var (
		aggregated []domain.NewsItem
		errs       []error
	)
	for _, site := range s.sites {
		s.debug("process site", "site", site.Name, "scanner", site.Scanner, "categories", len(site.Categories))
		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			errs = append(errs, fmt.Errorf("site %s: %w", site.Name, err))
			continue
		}

		req := scanner.Request{
			Day:        day,
			SiteName:   site.Name,
			Region:     site.Region,
			Options:    site.Options,
			Categories: toScannerCategories(site.Categories),
		}

		results, err := strategy.Scan(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("scan site %s: %w", site.Name, err))
			continue
		}

		for i := range results {
			if results[i].Source == "" {
				results[i].Source = site.Name
			}
			if results[i].Region == "" {
				results[i].Region = site.Region
			}
			results[i].ID = itemID(site.Name, results[i].ID)
		}
		s.debug("site produced items", "site", site.Name, "count", len(results))
		aggregated = append(aggregated, results...)
	}

	s.debug("strategy source done", "total_items", len(aggregated), "failed_sites", len(errs))
	return aggregated, errors.Join(errs...)
}

// itemID scopes scanner ids by site so two outlets never collide.
func itemID(site, id string) string {
	prefix := strings.ToLower(site) + ":"
	if strings.HasPrefix(id, prefix) {
		return id
	}
	return prefix + id
}

func toScannerCategories(cfg []config.CategoryConfig) []scanner.Category {
	categories := make([]scanner.Category, 0, len(cfg))
	for _, cat := range cfg {
		categories = append(categories, scanner.Category{
			Name: cat.Name,
			URL:  cat.URL,
		})
	}
	return categories
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
