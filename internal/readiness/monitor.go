package readiness

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/retry"
)

// CampaignReadiness is one entry of a monitor report. Exactly one of Result
// and Error is set.
type CampaignReadiness struct {
	CampaignID string                  `json:"campaign_id"`
	Status     domain.CampaignStatus   `json:"campaign_status"`
	Result     *domain.ReadinessResult `json:"result,omitempty"`
	Error      string                  `json:"error,omitempty"`
	err        error
}

// Err returns the per-campaign failure.
func (c CampaignReadiness) Err() error {
	return c.err
}

// MonitorReport joins the per-campaign outcomes of a batch.
type MonitorReport struct {
	OrganizationID string              `json:"organization_id"`
	Campaigns      []CampaignReadiness `json:"campaigns"`
	Failed         int                 `json:"failed"`
}

// Err classifies a report with failed entries as a partial batch failure.
func (r MonitorReport) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d campaigns failed: %w", r.Failed, len(r.Campaigns), domain.ErrPartialBatchFailure)
}

// MonitorCampaignsReadiness computes readiness for every campaign of the
// organization, optionally only those in the given statuses. Failures and
// timeouts are reported per campaign; the call itself only fails when the
// campaign list cannot be read.
func (e *Engine) MonitorCampaignsReadiness(ctx context.Context, organizationID string, statuses ...domain.CampaignStatus) (MonitorReport, error) {
	campaigns, err := retry.Do(ctx, e.opts.Retry, "list campaigns", func(ctx context.Context) ([]domain.Campaign, error) {
		return e.repo.ListCampaigns(ctx, organizationID)
	})
	if err != nil {
		return MonitorReport{}, fmt.Errorf("list campaigns of %s: %w", organizationID, err)
	}

	wanted := map[domain.CampaignStatus]bool{}
	for _, s := range statuses {
		wanted[s] = true
	}
	var selected []domain.Campaign
	for _, c := range campaigns {
		if len(wanted) == 0 || wanted[c.Status] {
			selected = append(selected, c)
		}
	}

	entries := make([]CampaignReadiness, len(selected))
	var g errgroup.Group
	g.SetLimit(e.opts.MonitorConcurrency)
	for i, c := range selected {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, e.opts.MonitorTimeout)
			defer cancel()

			entry := CampaignReadiness{CampaignID: c.ID, Status: c.Status}
			result, err := e.CalculateReadiness(cctx, Request{CampaignID: c.ID, OrganizationID: organizationID})
			if err != nil {
				entry.err = err
				entry.Error = err.Error()
			} else {
				entry.Result = &result
			}
			entries[i] = entry
			return nil
		})
	}
	_ = g.Wait()

	report := MonitorReport{OrganizationID: organizationID, Campaigns: entries}
	for _, entry := range entries {
		if entry.err != nil {
			report.Failed++
		}
	}
	if report.Failed > 0 && e.logger != nil {
		e.logger.Warn("readiness monitor finished with failures", "organization", organizationID, "failed", report.Failed, "total", len(entries))
	}
	return report, nil
}
