// Package api serves the MediaRadar operations over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/metrics"
	"MediaRadar/internal/opportunity"
	"MediaRadar/internal/readiness"
)

// Radar is the use-case surface the API drives.
type Radar interface {
	SaveCampaign(ctx context.Context, campaign domain.Campaign) (domain.Campaign, error)
	GetCampaign(ctx context.Context, organizationID, campaignID string) (domain.Campaign, error)
	ListCampaigns(ctx context.Context, organizationID string) ([]domain.Campaign, error)
	ListOpportunities(ctx context.Context, organizationID, campaignID string) ([]domain.MediaOpportunity, error)
	GetOpportunity(ctx context.Context, organizationID, id string) (domain.MediaOpportunity, error)
	ScoreAndUpsertOpportunity(ctx context.Context, item domain.NewsItem, organizationID, campaignID string) (opportunity.Outcome, error)
	TransitionOpportunity(ctx context.Context, organizationID, id, action string) (domain.MediaOpportunity, error)
	CorrectOpportunity(ctx context.Context, organizationID, id string, to domain.OpportunityStatus) (domain.MediaOpportunity, error)
	CalculateReadiness(ctx context.Context, organizationID, campaignID string) (domain.ReadinessResult, error)
	CanExecuteCampaign(ctx context.Context, organizationID, campaignID string) (domain.ExecutionCheck, error)
	GetRecommendations(ctx context.Context, organizationID, campaignID string) (domain.Recommendations, error)
	GetTargetingSummary(ctx context.Context, organizationID, campaignID string) (domain.TargetingSummary, error)
	MonitorCampaignsReadiness(ctx context.Context, organizationID string, statuses ...domain.CampaignStatus) (readiness.MonitorReport, error)
	AutoApproveMatches(ctx context.Context, organizationID, campaignID string, policy domain.ApprovalPolicy) (domain.ApprovalResult, error)
	UpdateTargetingCriteria(ctx context.Context, organizationID, campaignID string, criteria domain.TargetingCriteria, triggerRematch bool) (int64, error)
}

// Options configures the server.
type Options struct {
	ListenAddr    string
	APIKey        string
	DefaultPolicy domain.ApprovalPolicy
	Metrics       *metrics.Metrics
	Version       string
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	radar      Radar
	opts       Options
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(radar Radar, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = ":8080"
	}
	s := &Server{
		router:    chi.NewRouter(),
		radar:     radar,
		opts:      opts,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.opts.Metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1/organizations/{org}", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/readiness", s.handleMonitor)

		r.Get("/campaigns", s.handleListCampaigns)
		r.Post("/campaigns", s.handleSaveCampaign)
		r.Route("/campaigns/{campaign}", func(r chi.Router) {
			r.Get("/", s.handleGetCampaign)
			r.Put("/", s.handleSaveCampaign)
			r.Put("/criteria", s.handleUpdateCriteria)
			r.Get("/opportunities", s.handleListOpportunities)
			r.Post("/opportunities", s.handleScore)
			r.Get("/readiness", s.handleReadiness)
			r.Get("/can-execute", s.handleCanExecute)
			r.Get("/recommendations", s.handleRecommendations)
			r.Get("/summary", s.handleSummary)
			r.Post("/auto-approve", s.handleAutoApprove)
		})

		r.Get("/opportunities/{id}", s.handleGetOpportunity)
		r.Post("/opportunities/{id}/transitions", s.handleTransition)
		r.Post("/opportunities/{id}/corrections", s.handleCorrection)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.opts.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.opts.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
