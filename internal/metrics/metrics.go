// Package metrics exposes Prometheus instrumentation for the radar.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"MediaRadar/internal/domain"
)

// Metrics holds all Prometheus metrics for MediaRadar.
type Metrics struct {
	EventsTotal           *prometheus.CounterVec
	OpportunitiesCreated  prometheus.Counter
	TransitionsTotal      *prometheus.CounterVec
	ReadinessChangesTotal *prometheus.CounterVec
	CampaignReadiness     *prometheus.GaugeVec
	RematchesTotal        *prometheus.CounterVec
	IngestedItemsTotal    prometheus.Counter
	IngestRunsTotal       *prometheus.CounterVec

	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaradar_events_total",
				Help: "Total number of core events observed on the bus",
			},
			[]string{"type"},
		),
		OpportunitiesCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mediaradar_opportunities_created_total",
				Help: "Total number of new media opportunities",
			},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaradar_opportunity_transitions_total",
				Help: "Total number of opportunity status transitions",
			},
			[]string{"to", "correction"},
		),
		ReadinessChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaradar_readiness_changes_total",
				Help: "Total number of campaign readiness status changes",
			},
			[]string{"status"},
		),
		CampaignReadiness: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mediaradar_campaign_readiness",
				Help: "Current readiness status per campaign (1 for the active status)",
			},
			[]string{"organization", "campaign", "status"},
		),
		RematchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaradar_rematches_total",
				Help: "Total number of finished rematch sweeps",
			},
			[]string{"outcome"},
		),
		IngestedItemsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mediaradar_ingested_items_total",
				Help: "Total number of news items fetched by the ingest pipeline",
			},
		),
		IngestRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaradar_ingest_runs_total",
				Help: "Total number of ingest pipeline runs",
			},
			[]string{"result"},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaradar_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediaradar_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.EventsTotal,
		m.OpportunitiesCreated,
		m.TransitionsTotal,
		m.ReadinessChangesTotal,
		m.CampaignReadiness,
		m.RematchesTotal,
		m.IngestedItemsTotal,
		m.IngestRunsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
	)

	return m
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveEvent is an event bus handler that keeps counters and the readiness
// gauge in step with the core.
func (m *Metrics) ObserveEvent(_ context.Context, event domain.Event) error {
	m.EventsTotal.WithLabelValues(string(event.Type)).Inc()

	switch payload := event.Payload.(type) {
	case domain.MediaOpportunity:
		if event.Type == domain.EventOpportunityCreated {
			m.OpportunitiesCreated.Inc()
		}
	case domain.TransitionChange:
		correction := "false"
		if payload.Correction {
			correction = "true"
		}
		m.TransitionsTotal.WithLabelValues(string(payload.To), correction).Inc()
	case domain.ReadinessChange:
		m.ReadinessChangesTotal.WithLabelValues(string(payload.Current)).Inc()
		if payload.Previous != "" {
			m.CampaignReadiness.WithLabelValues(event.OrganizationID, event.CampaignID, string(payload.Previous)).Set(0)
		}
		m.CampaignReadiness.WithLabelValues(event.OrganizationID, event.CampaignID, string(payload.Current)).Set(1)
	case domain.RematchReport:
		outcome := "completed"
		switch {
		case payload.Superseded:
			outcome = "superseded"
		case payload.Error != "":
			outcome = "failed"
		}
		m.RematchesTotal.WithLabelValues(outcome).Inc()
	}
	return nil
}

// ObserveIngest records one pipeline run.
func (m *Metrics) ObserveIngest(items int, err error) {
	m.IngestedItemsTotal.Add(float64(items))
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.IngestRunsTotal.WithLabelValues(result).Inc()
}
