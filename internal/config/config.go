package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/scoring"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "MEDIARADAR_CONFIG"
	logLevelEnv       = "MEDIARADAR_LOG_LEVEL"
	storageDriverEnv  = "MEDIARADAR_STORAGE_DRIVER"
	storagePathEnv    = "MEDIARADAR_STORAGE_PATH"
	apiAddrEnv        = "MEDIARADAR_API_ADDR"
	apiKeyEnv         = "MEDIARADAR_API_KEY"
	reputationKeyEnv  = "REPUTATION_API_KEY"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Storage       StorageConfig      `yaml:"storage"`
	Scoring       ScoringConfig      `yaml:"scoring"`
	Readiness     ReadinessConfig    `yaml:"readiness"`
	Approval      ApprovalConfig     `yaml:"approval"`
	API           APIConfig          `yaml:"api"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Reputation    ReputationConfig   `yaml:"reputation"`
	Notifications NotificationConfig `yaml:"notifications"`
	Sites         []SiteConfig       `yaml:"sites"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig picks the repository driver.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// ScoringConfig holds the composite weights and the outlet tier table.
type ScoringConfig struct {
	Weights    WeightsConfig     `yaml:"weights"`
	Notable    float64           `yaml:"notable"`
	Visibility VisibilityConfig  `yaml:"visibility"`
	Sources    map[string]string `yaml:"sources"`
}

// WeightsConfig must sum to 1.
type WeightsConfig struct {
	Relevance  float64 `yaml:"relevance"`
	Visibility float64 `yaml:"visibility"`
	Freshness  float64 `yaml:"freshness"`
}

// VisibilityConfig maps tiers to visibility sub-scores.
type VisibilityConfig struct {
	A       float64 `yaml:"a"`
	B       float64 `yaml:"b"`
	C       float64 `yaml:"c"`
	Unknown float64 `yaml:"unknown"`
}

// ReadinessConfig tunes rules and the batch monitor.
type ReadinessConfig struct {
	MinTierAMatches    int           `yaml:"minTierAMatches"`
	LowScoreWarning    float64       `yaml:"lowScoreWarning"`
	MonitorConcurrency int           `yaml:"monitorConcurrency"`
	MonitorTimeout     time.Duration `yaml:"monitorTimeout"`
	RematchWindow      time.Duration `yaml:"rematchWindow"`
	RematchTimeout     time.Duration `yaml:"rematchTimeout"`
}

// ApprovalConfig is the default policy for scheduled and CLI approvals.
type ApprovalConfig struct {
	MinScore float64 `yaml:"minScore"`
	MinTier  string  `yaml:"minTier"`
	MaxCount int     `yaml:"maxCount"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// APIKey enables bearer authentication on /api/v1 when set.
	APIKey string `yaml:"apiKey"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
	Path       string `yaml:"path"`
}

// SchedulerConfig defines how often the ingest pipeline should run.
type SchedulerConfig struct {
	Interval time.Duration  `yaml:"interval"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// ReputationConfig points at the outlet reputation service.
type ReputationConfig struct {
	URL             string        `yaml:"url"`
	APIKey          string        `yaml:"apiKey"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// SiteConfig describes a single news site with its scanner strategy.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Scanner    string            `yaml:"scanner"`
	Region     string            `yaml:"region"`
	Categories []CategoryConfig  `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// CategoryConfig holds the concrete listing pages to crawl.
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads YAML configuration from path, or from MEDIARADAR_CONFIG when
// path is empty, and applies environment overrides. A missing default file
// falls back to defaults; an explicit path must be readable.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err != nil && explicit:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		case err != nil:
			slog.Warn("config file unreadable, using defaults", "path", path, "error", err)
		default:
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	return cfg, nil
}

// Validate reports every setting that would make startup unsafe.
func (c Config) Validate() error {
	var errs []error
	if _, err := scoring.NewScorer(c.ScorerConfig(), nil); err != nil {
		errs = append(errs, fmt.Errorf("scoring: %w", err))
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverBolt:
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage: %s driver needs a path", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}
	for source, tier := range c.Scoring.Sources {
		if _, ok := domain.ParseTier(tier); !ok {
			errs = append(errs, fmt.Errorf("scoring: source %s has unknown tier %q", source, tier))
		}
	}
	if c.Approval.MinTier != "" {
		if _, ok := domain.ParseTier(c.Approval.MinTier); !ok {
			errs = append(errs, fmt.Errorf("approval: unknown min tier %q", c.Approval.MinTier))
		}
	}
	if c.Approval.MinScore < 0 || c.Approval.MinScore > 1 {
		errs = append(errs, fmt.Errorf("approval: min score %.2f outside [0,1]", c.Approval.MinScore))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler: interval must be positive"))
	}
	for _, site := range c.Sites {
		if site.Name == "" || site.Scanner == "" {
			errs = append(errs, fmt.Errorf("sites: entry %q needs a name and a scanner", site.Name))
		}
	}
	return errors.Join(errs...)
}

// ScorerConfig converts the scoring section for scoring.NewScorer.
func (c Config) ScorerConfig() scoring.Config {
	return scoring.Config{
		Weights: scoring.Weights{
			Relevance:  c.Scoring.Weights.Relevance,
			Visibility: c.Scoring.Weights.Visibility,
			Freshness:  c.Scoring.Weights.Freshness,
		},
		Visibility: scoring.VisibilityTable{
			A:       c.Scoring.Visibility.A,
			B:       c.Scoring.Visibility.B,
			C:       c.Scoring.Visibility.C,
			Unknown: c.Scoring.Visibility.Unknown,
		},
		Notable: c.Scoring.Notable,
	}
}

// SourceTiers returns the configured outlet table, dropping bad entries.
func (c Config) SourceTiers() map[string]domain.Tier {
	out := make(map[string]domain.Tier, len(c.Scoring.Sources))
	for source, raw := range c.Scoring.Sources {
		if tier, ok := domain.ParseTier(raw); ok {
			out[source] = tier
		}
	}
	return out
}

// ApprovalPolicy is the configured default auto-approval policy.
func (c Config) ApprovalPolicy() domain.ApprovalPolicy {
	tier, _ := domain.ParseTier(c.Approval.MinTier)
	if c.Approval.MinTier == "" {
		tier = ""
	}
	return domain.ApprovalPolicy{
		MinScore: c.Approval.MinScore,
		MinTier:  tier,
		MaxCount: c.Approval.MaxCount,
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(storageDriverEnv); v != "" {
		c.Storage.Driver = v
	}

	if v := os.Getenv(storagePathEnv); v != "" {
		c.Storage.Path = v
	}

	if v := os.Getenv(apiAddrEnv); v != "" {
		c.API.ListenAddr = v
	}

	if v := os.Getenv(apiKeyEnv); v != "" {
		c.API.APIKey = v
	}

	if v := os.Getenv(reputationKeyEnv); v != "" {
		c.Reputation.APIKey = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.Warn("unknown timezone, using default", "timezone", tz, "default", defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Storage.Driver != "" {
		base.Storage.Driver = override.Storage.Driver
	}
	if override.Storage.Path != "" {
		base.Storage.Path = override.Storage.Path
	}

	if override.Scoring.Weights != (WeightsConfig{}) {
		base.Scoring.Weights = override.Scoring.Weights
	}
	if override.Scoring.Visibility != (VisibilityConfig{}) {
		base.Scoring.Visibility = override.Scoring.Visibility
	}
	if override.Scoring.Notable > 0 {
		base.Scoring.Notable = override.Scoring.Notable
	}
	if len(override.Scoring.Sources) > 0 {
		base.Scoring.Sources = override.Scoring.Sources
	}

	if override.Readiness.MinTierAMatches > 0 {
		base.Readiness.MinTierAMatches = override.Readiness.MinTierAMatches
	}
	if override.Readiness.LowScoreWarning > 0 {
		base.Readiness.LowScoreWarning = override.Readiness.LowScoreWarning
	}
	if override.Readiness.MonitorConcurrency > 0 {
		base.Readiness.MonitorConcurrency = override.Readiness.MonitorConcurrency
	}
	if override.Readiness.MonitorTimeout > 0 {
		base.Readiness.MonitorTimeout = override.Readiness.MonitorTimeout
	}
	if override.Readiness.RematchWindow > 0 {
		base.Readiness.RematchWindow = override.Readiness.RematchWindow
	}
	if override.Readiness.RematchTimeout > 0 {
		base.Readiness.RematchTimeout = override.Readiness.RematchTimeout
	}

	if override.Approval != (ApprovalConfig{}) {
		base.Approval = override.Approval
	}

	if override.API.ListenAddr != "" {
		base.API.ListenAddr = override.API.ListenAddr
	}
	if override.API.APIKey != "" {
		base.API.APIKey = override.API.APIKey
	}

	if override.Metrics.Enabled {
		base.Metrics.Enabled = true
	}
	if override.Metrics.ListenAddr != "" {
		base.Metrics.ListenAddr = override.Metrics.ListenAddr
	}
	if override.Metrics.Path != "" {
		base.Metrics.Path = override.Metrics.Path
	}

	if override.Scheduler.Interval > 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Reputation.URL != "" {
		base.Reputation.URL = override.Reputation.URL
	}
	if override.Reputation.APIKey != "" {
		base.Reputation.APIKey = override.Reputation.APIKey
	}
	if override.Reputation.RefreshInterval > 0 {
		base.Reputation.RefreshInterval = override.Reputation.RefreshInterval
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Storage: StorageConfig{Driver: DriverSQLite, Path: "data/mediaradar.db"},
		Scoring: ScoringConfig{
			Weights:    WeightsConfig{Relevance: 0.5, Visibility: 0.3, Freshness: 0.2},
			Notable:    scoring.DefaultNotable,
			Visibility: VisibilityConfig{A: 1.0, B: 0.7, C: 0.4, Unknown: 0.2},
		},
		Readiness: ReadinessConfig{
			MinTierAMatches:    1,
			LowScoreWarning:    0.4,
			MonitorConcurrency: 4,
			MonitorTimeout:     10 * time.Second,
			RematchWindow:      7 * 24 * time.Hour,
			RematchTimeout:     5 * time.Minute,
		},
		Approval:  ApprovalConfig{MinScore: 0.7, MinTier: "B", MaxCount: 10},
		API:       APIConfig{ListenAddr: ":8080"},
		Metrics:   MetricsConfig{Enabled: true, ListenAddr: ":9090", Path: "/metrics"},
		Scheduler: SchedulerConfig{Interval: time.Hour, Timezone: defaultTimezone, location: tz},
		Reputation: ReputationConfig{
			RefreshInterval: 6 * time.Hour,
		},
	}
}
