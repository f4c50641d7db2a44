// Package core contains the business logic for Meridian: the timeline
// orchestrator, the response-to-event translator, identifier generation,
// knowledge graph merging and configuration.
package core

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/meridian/pkg/models"
)

// ConfigFileName is the base name of the configuration file (without the
// .yaml extension Viper appends).
const ConfigFileName = ".meridian"

// ConfigurationManager loads and validates .meridian.yaml.
type ConfigurationManager interface {
	Load() (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files.
type viperConfigManager struct {
	// basePath is the root directory where .meridian.yaml resides.
	basePath string
}

// NewConfigurationManager creates a new ConfigurationManager that reads
// configuration files relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *models.Config {
	return &models.Config{
		Mode: models.SourceScripted,
		IDs:  models.IDCounter,
		Service: models.ServiceConfig{
			BaseURL: "http://localhost:8000",
			TopK:    5,
		},
		Scenarios: models.ScenarioConfig{
			Dir:   "scenarios",
			Watch: false,
		},
		GraphBaseFile: "graph.yaml",
		Playback: models.PlaybackConfig{
			WarmupMs:   DefaultWarmupMs,
			MaxDelayMs: DefaultMaxDelayMs,
		},
		Log: models.LogConfig{
			Level: "info",
		},
		EventsFile: ".meridian/events.jsonl",
		Store: models.StoreConfig{
			Driver: "sqlite",
			DSN:    ".meridian/decisions.db",
		},
		Transcripts: models.TranscriptConfig{
			Backend: "file",
			Dir:     ".meridian/transcripts",
		},
		ServerAddr: ":8080",
	}
}

// Load reads .meridian.yaml from the base path using Viper. MERIDIAN_*
// environment variables override file values. If the file does not exist,
// defaults (plus environment overrides) are returned.
func (cm *viperConfigManager) Load() (*models.Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("MERIDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set Viper defaults so missing keys fall back gracefully.
	v.SetDefault("mode", string(cfg.Mode))
	v.SetDefault("ids", string(cfg.IDs))
	v.SetDefault("service.base_url", cfg.Service.BaseURL)
	v.SetDefault("service.top_k", cfg.Service.TopK)
	v.SetDefault("scenarios.dir", cfg.Scenarios.Dir)
	v.SetDefault("scenarios.watch", cfg.Scenarios.Watch)
	v.SetDefault("graph.base_file", cfg.GraphBaseFile)
	v.SetDefault("playback.warmup_ms", cfg.Playback.WarmupMs)
	v.SetDefault("playback.max_delay_ms", cfg.Playback.MaxDelayMs)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("events.file", cfg.EventsFile)
	v.SetDefault("store.driver", cfg.Store.Driver)
	v.SetDefault("store.dsn", cfg.Store.DSN)
	v.SetDefault("transcripts.backend", cfg.Transcripts.Backend)
	v.SetDefault("transcripts.dir", cfg.Transcripts.Dir)
	v.SetDefault("transcripts.redis_url", cfg.Transcripts.RedisURL)
	v.SetDefault("server.addr", cfg.ServerAddr)
	v.SetDefault("notifications.slack_webhook", cfg.SlackWebhook)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading %s.yaml: %w", ConfigFileName, err)
		}
	}

	// Map nested YAML keys to the Config fields.
	cfg.Mode = models.SourceMode(v.GetString("mode"))
	cfg.IDs = models.IDStrategy(v.GetString("ids"))
	cfg.Service.BaseURL = v.GetString("service.base_url")
	cfg.Service.TopK = v.GetInt("service.top_k")
	cfg.Scenarios.Dir = v.GetString("scenarios.dir")
	cfg.Scenarios.Watch = v.GetBool("scenarios.watch")
	cfg.GraphBaseFile = v.GetString("graph.base_file")
	cfg.Playback.WarmupMs = v.GetInt("playback.warmup_ms")
	cfg.Playback.MaxDelayMs = v.GetInt("playback.max_delay_ms")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.File = v.GetString("log.file")
	cfg.EventsFile = v.GetString("events.file")
	cfg.Store.Driver = v.GetString("store.driver")
	cfg.Store.DSN = v.GetString("store.dsn")
	cfg.Transcripts.Backend = v.GetString("transcripts.backend")
	cfg.Transcripts.Dir = v.GetString("transcripts.dir")
	cfg.Transcripts.RedisURL = v.GetString("transcripts.redis_url")
	cfg.ServerAddr = v.GetString("server.addr")
	cfg.SlackWebhook = v.GetString("notifications.slack_webhook")

	return cfg, nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateConfig checks the configuration for invalid values and returns a
// clear error message identifying every problem.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	switch cfg.Mode {
	case models.SourceLive, models.SourceScripted:
	default:
		errs = append(errs, fmt.Sprintf("mode %q is invalid, must be one of: live, scripted", cfg.Mode))
	}

	switch cfg.IDs {
	case models.IDCounter, models.IDUUID:
	default:
		errs = append(errs, fmt.Sprintf("ids %q is invalid, must be one of: counter, uuid", cfg.IDs))
	}

	if cfg.Mode == models.SourceLive {
		if u, err := url.Parse(cfg.Service.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("service.base_url %q must be an absolute URL in live mode", cfg.Service.BaseURL))
		}
	}

	if cfg.Service.TopK < 1 {
		errs = append(errs, fmt.Sprintf("service.top_k must be positive, got %d", cfg.Service.TopK))
	}

	if cfg.Scenarios.Dir == "" {
		errs = append(errs, "scenarios.dir must not be empty")
	}

	if cfg.Playback.WarmupMs < 0 {
		errs = append(errs, fmt.Sprintf("playback.warmup_ms must be non-negative, got %d", cfg.Playback.WarmupMs))
	}

	if cfg.Playback.MaxDelayMs < 0 {
		errs = append(errs, fmt.Sprintf("playback.max_delay_ms must be non-negative, got %d", cfg.Playback.MaxDelayMs))
	}

	if !validLogLevels[cfg.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid, must be one of: debug, info, warn, error", cfg.Log.Level))
	}

	switch cfg.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is invalid, must be one of: sqlite, postgres", cfg.Store.Driver))
	}

	switch cfg.Transcripts.Backend {
	case "file":
		if cfg.Transcripts.Dir == "" {
			errs = append(errs, "transcripts.dir must not be empty for the file backend")
		}
	case "redis":
		if cfg.Transcripts.RedisURL == "" {
			errs = append(errs, "transcripts.redis_url must be set for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("transcripts.backend %q is invalid, must be one of: file, redis", cfg.Transcripts.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
