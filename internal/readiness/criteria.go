package readiness

import (
	"context"
	"errors"
	"fmt"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/retry"
	"MediaRadar/internal/scoring"
)

// UpdateTargetingCriteria replaces the campaign's criteria and returns the new
// generation. With triggerRematch the recent news window is rescored in the
// background; the sweep outlives ctx and reports through a rematch-completed
// event. A later update supersedes a running sweep.
func (e *Engine) UpdateTargetingCriteria(ctx context.Context, organizationID, campaignID string, criteria domain.TargetingCriteria, triggerRematch bool) (int64, error) {
	if err := criteria.Validate(); err != nil {
		return 0, err
	}
	if triggerRematch {
		if err := scoring.ValidateCriteria(criteria); err != nil {
			return 0, err
		}
		if e.matcher == nil {
			return 0, fmt.Errorf("rematch requested but no matcher is configured")
		}
	}

	criteria.UpdatedAt = e.clock.Now()
	generation, err := e.repo.PutCriteria(ctx, organizationID, campaignID, criteria)
	if err != nil {
		return 0, fmt.Errorf("store criteria for campaign %s: %w", campaignID, err)
	}
	criteria.Generation = generation
	e.debug("criteria updated", "campaign", campaignID, "generation", generation, "rematch", triggerRematch)

	req := Request{CampaignID: campaignID, OrganizationID: organizationID}
	e.refresh(ctx, req)

	if triggerRematch {
		e.sweeps.Add(1)
		go e.rematch(context.WithoutCancel(ctx), req, criteria)
	}
	return generation, nil
}

// Refresh recomputes readiness so that a change is announced. Errors are
// logged; callers use it after writes that already succeeded.
func (e *Engine) Refresh(ctx context.Context, req Request) {
	e.refresh(ctx, req)
}

func (e *Engine) refresh(ctx context.Context, req Request) {
	if _, err := e.CalculateReadiness(ctx, req); err != nil && e.logger != nil {
		e.logger.Warn("readiness refresh failed", "campaign", req.CampaignID, "error", err)
	}
}

func (e *Engine) rematch(ctx context.Context, req Request, criteria domain.TargetingCriteria) {
	defer e.sweeps.Done()
	ctx, cancel := context.WithTimeout(ctx, e.opts.RematchTimeout)
	defer cancel()

	report := e.sweep(ctx, req, criteria)
	if report.Upserted > 0 {
		e.refresh(ctx, req)
	}

	if e.logger != nil {
		e.logger.Info("rematch finished",
			"campaign", req.CampaignID,
			"generation", report.Generation,
			"scanned", report.Scanned,
			"upserted", report.Upserted,
			"failed", report.Failed,
			"superseded", report.Superseded,
		)
	}
	e.publish(ctx, domain.Event{
		Type:           domain.EventRematchCompleted,
		CampaignID:     req.CampaignID,
		OrganizationID: req.OrganizationID,
		Payload:        report,
	})
}

func (e *Engine) sweep(ctx context.Context, req Request, criteria domain.TargetingCriteria) domain.RematchReport {
	report := domain.RematchReport{Generation: criteria.Generation}

	current, err := retry.Do(ctx, e.opts.Retry, "get criteria", func(ctx context.Context) (domain.TargetingCriteria, error) {
		return e.repo.GetCriteria(ctx, req.OrganizationID, req.CampaignID)
	})
	if err != nil {
		report.Error = err.Error()
		return report
	}
	if current.Generation != criteria.Generation {
		report.Superseded = true
		return report
	}

	since := e.clock.Now().Add(-e.opts.RematchWindow)
	items, err := retry.Do(ctx, e.opts.Retry, "list news", func(ctx context.Context) ([]domain.NewsItem, error) {
		return e.repo.ListNewsSince(ctx, since)
	})
	if err != nil {
		report.Error = err.Error()
		return report
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			report.Error = err.Error()
			return report
		}
		report.Scanned++
		out, err := e.matcher.Match(ctx, item, req.OrganizationID, req.CampaignID, criteria, criteria.Generation)
		switch {
		case errors.Is(err, domain.ErrStaleGeneration):
			report.Superseded = true
			return report
		case err != nil:
			report.Failed++
			if report.Error == "" {
				report.Error = err.Error()
			}
		case out.Matched:
			report.Upserted++
		}
	}
	return report
}
