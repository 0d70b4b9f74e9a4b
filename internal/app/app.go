package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"MediaRadar/internal/api"
	"MediaRadar/internal/approval"
	"MediaRadar/internal/clock"
	"MediaRadar/internal/config"
	"MediaRadar/internal/domain"
	"MediaRadar/internal/events"
	"MediaRadar/internal/infrastructure/parser"
	"MediaRadar/internal/infrastructure/reputation"
	"MediaRadar/internal/infrastructure/scheduler"
	"MediaRadar/internal/infrastructure/storage"
	"MediaRadar/internal/infrastructure/telegram"
	"MediaRadar/internal/logging"
	"MediaRadar/internal/metrics"
	"MediaRadar/internal/opportunity"
	"MediaRadar/internal/ports"
	"MediaRadar/internal/readiness"
	"MediaRadar/internal/scanner"
	"MediaRadar/internal/scoring"
	"MediaRadar/internal/usecase"
)

const dedupeWindow = 4096

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	version string

	repo      ports.Repository
	bus       *events.Bus
	readiness *readiness.Engine
	service   *usecase.Service
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	refresher *reputation.Refresher

	metrics       *metrics.Metrics
	metricsServer *metrics.Server
	apiServer     *api.Server
}

// Options tweaks wiring for callers such as tests and the CLI.
type Options struct {
	Clock   ports.Clock
	Version string
}

// New builds the full application from configuration.
func New(cfg config.Config, baseLogger *slog.Logger, opts Options) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}

	repo, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}

	a := &Application{cfg: cfg, logger: baseLogger, version: opts.Version, repo: repo}
	if err := a.wire(opts.Clock); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) wire(clk ports.Clock) error {
	cfg := a.cfg
	log := a.logger

	a.bus = events.NewBus(logging.Component(log, "events"), events.Options{Clock: clk})
	a.bus.Subscribe("audit", func(_ context.Context, e domain.Event) error {
		log.Debug("event", "type", e.Type, "organization", e.OrganizationID, "campaign", e.CampaignID, "event_id", e.ID)
		return nil
	})
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		a.bus.Subscribe("metrics", a.metrics.ObserveEvent)
		a.metricsServer = metrics.NewServer(a.metrics, cfg.Metrics.ListenAddr, cfg.Metrics.Path, logging.Component(log, "metrics"))
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
		a.bus.SubscribeTypes("telegram",
			events.Dedupe(dedupeWindow, telegram.EventHandler(notifier)),
			domain.EventReadinessChanged, domain.EventRematchCompleted)
	}

	static := cfg.SourceTiers()
	tiers := scoring.NewTierTable(static)
	if cfg.Reputation.URL != "" {
		client := reputation.NewClient(cfg.Reputation.URL, cfg.Reputation.APIKey)
		a.refresher = reputation.NewRefresher(client, tiers, static, cfg.Reputation.RefreshInterval, logging.Component(log, "reputation"))
	}

	scorer, err := scoring.NewScorer(cfg.ScorerConfig(), tiers)
	if err != nil {
		return fmt.Errorf("build scorer: %w", err)
	}

	opps, err := opportunity.NewService(opportunity.Deps{
		Store:  a.repo,
		Scorer: scorer,
		Clock:  clk,
		Events: a.bus,
		Logger: logging.Component(log, "opportunity"),
	})
	if err != nil {
		return err
	}

	a.readiness, err = readiness.NewEngine(readiness.Deps{
		Repository: a.repo,
		Matcher:    opps,
		Clock:      clk,
		Events:     a.bus,
		Logger:     logging.Component(log, "readiness"),
		Options: readiness.Options{
			MinTierAMatches:    cfg.Readiness.MinTierAMatches,
			LowScoreWarning:    cfg.Readiness.LowScoreWarning,
			MonitorConcurrency: cfg.Readiness.MonitorConcurrency,
			MonitorTimeout:     cfg.Readiness.MonitorTimeout,
			RematchWindow:      cfg.Readiness.RematchWindow,
			RematchTimeout:     cfg.Readiness.RematchTimeout,
		},
	})
	if err != nil {
		return err
	}

	approvals, err := approval.NewEngine(approval.Deps{
		Store:     a.repo,
		Approver:  opps,
		Readiness: a.readiness,
		Logger:    logging.Component(log, "approval"),
	})
	if err != nil {
		return err
	}

	a.service, err = usecase.NewService(usecase.ServiceDeps{
		Repository:    a.repo,
		Opportunities: opps,
		Readiness:     a.readiness,
		Approval:      approvals,
		Clock:         clk,
		Logger:        logging.Component(log, "service"),
	})
	if err != nil {
		return err
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewListingScanner("listing", nil, parser.DefaultSelectors(), logging.Component(log, "scanner.listing")))
	registry.Register(parser.NewArxivScanner(nil, logging.Component(log, "scanner.arxiv")))
	source := parser.NewStrategySource(registry, cfg.Sites, logging.Component(log, "source"))

	deps := usecase.PipelineDeps{
		Source:    source,
		News:      a.repo,
		Campaigns: a.repo,
		Matcher:   opps,
		Notifier:  notifier,
		Logger:    logging.Component(log, "pipeline"),
	}
	if a.metrics != nil {
		deps.Observer = a.metrics
	}
	a.pipeline = usecase.NewPipeline(deps)
	a.scheduler = usecase.NewScheduler(
		scheduler.NewTickerScheduler(cfg.Scheduler.Interval, cfg.Scheduler.Location()),
		a.pipeline,
		logging.Component(log, "scheduler"),
	)

	a.apiServer = api.NewServer(a.service, api.Options{
		ListenAddr:    cfg.API.ListenAddr,
		APIKey:        cfg.API.APIKey,
		DefaultPolicy: cfg.ApprovalPolicy(),
		Metrics:       a.metrics,
		Version:       a.version,
	}, logging.Component(log, "api"))
	return nil
}

// Service exposes the use-case facade (CLI commands).
func (a *Application) Service() *usecase.Service {
	return a.service
}

// Metrics returns the registry holder, nil when metrics are disabled.
func (a *Application) Metrics() *metrics.Metrics {
	return a.metrics
}

// RunOnce performs a single ingest for the given moment.
func (a *Application) RunOnce(ctx context.Context, day time.Time) (usecase.IngestReport, error) {
	if a.refresher != nil {
		if err := a.refresher.Refresh(ctx); err != nil {
			a.logger.Warn("outlet tier refresh failed, using configured tiers", "error", err)
		}
	}
	return a.pipeline.Ingest(ctx, day.In(a.cfg.Scheduler.Location()))
}

// Serve runs the API, metrics endpoint, scheduler and reputation refresh
// until SIGINT/SIGTERM or a server failure.
func (a *Application) Serve(ctx context.Context) error {
	a.logger.Info("starting mediaradar",
		"api_addr", a.cfg.API.ListenAddr,
		"storage", a.cfg.Storage.Driver,
		"sites", len(a.cfg.Sites),
		"metrics", a.cfg.Metrics.Enabled)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)

	if a.refresher != nil {
		go a.refresher.Run(ctx)
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server error", "error", runErr)
		cancel()
	}

	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown stops servers and the scheduler, then releases storage.
func (a *Application) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Error("scheduler stop error", "error", err)
	}
	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}
	return a.Close()
}

// Close waits for background rematches, drains the event bus and closes
// storage.
func (a *Application) Close() error {
	a.readiness.Wait()
	if err := a.bus.Close(); err != nil {
		a.logger.Error("event bus close error", "error", err)
	}
	if err := a.repo.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}
