// Package internal provides the App struct that wires all components of
// Meridian together and initializes the CLI layer.
package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/valter-silva-au/meridian/internal/cli"
	"github.com/valter-silva-au/meridian/internal/core"
	"github.com/valter-silva-au/meridian/internal/integration"
	"github.com/valter-silva-au/meridian/internal/observability"
	"github.com/valter-silva-au/meridian/internal/storage"
	"github.com/valter-silva-au/meridian/pkg/models"
)

// HomeEnv overrides base path discovery.
const HomeEnv = "MERIDIAN_HOME"

// App holds all service dependencies of a Meridian process.
type App struct {
	BasePath string
	Config   *models.Config
	Logger   *zap.Logger

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Storage layer
	Scenarios   storage.ScenarioStore
	Transcripts storage.TranscriptStore
	Decisions   storage.DecisionStore
	BaseGraph   models.KnowledgeGraph

	// Integration services
	Intelligence integration.IntelligenceService

	// Core services
	Timeline core.TimelineOrchestrator

	// Observability
	EventLog    observability.EventLog
	Recorder    *observability.Recorder
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp creates and wires all components. basePath is the directory that
// holds .meridian.yaml; relative paths in the configuration resolve
// against it. On error, anything already opened is closed again.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}
	ok := false
	defer func() {
		if !ok {
			_ = app.Close()
		}
	}()

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	logFile := cfg.Log.File
	if logFile != "" {
		logFile = app.resolve(logFile)
	}
	app.Logger, err = observability.NewLogger(cfg.Log.Level, logFile)
	if err != nil {
		return nil, err
	}

	// --- Observability ---
	app.EventLog, err = observability.NewJSONLEventLog(app.resolve(cfg.EventsFile))
	if err != nil {
		// Non-fatal: the timeline runs without an activity log.
		app.Logger.Warn("event log disabled", zap.Error(err))
		app.EventLog = nil
	}
	if app.EventLog != nil {
		app.Recorder = observability.NewRecorder(app.EventLog, nil)
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, observability.DefaultAlertThresholds(), nil)
	}
	if cfg.SlackWebhook != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.SlackWebhook)
	}

	// --- Storage layer ---
	app.Scenarios = storage.NewScenarioStore(app.resolve(cfg.Scenarios.Dir))
	if err := app.Scenarios.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		app.Logger.Warn("scenario directory missing", zap.String("dir", cfg.Scenarios.Dir))
	}
	app.BaseGraph, err = storage.LoadGraph(app.resolve(cfg.GraphBaseFile))
	if err != nil {
		return nil, err
	}
	app.Transcripts, err = storage.NewTranscriptStore(cfg.Transcripts, basePath)
	if err != nil {
		return nil, err
	}
	dsn := cfg.Store.DSN
	if isSQLite(cfg.Store.Driver) && dsn != "" && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		dsn = app.resolve(dsn)
	}
	app.Decisions, err = storage.NewDecisionStore(cfg.Store.Driver, dsn)
	if err != nil {
		return nil, err
	}

	// --- Integration services ---
	app.Intelligence, err = integration.NewIntelligenceService(*cfg, app.Scenarios)
	if err != nil {
		return nil, err
	}

	// --- Core services ---
	app.Timeline = app.NewTimeline(core.NewRealClock())

	app.Logger.Debug("meridian initialized",
		zap.String("base_path", basePath),
		zap.String("mode", string(cfg.Mode)),
		zap.Int("scenarios", len(app.Scenarios.List())),
	)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = cfg
	cli.Logger = app.Logger
	cli.Timeline = app.Timeline
	cli.NewTimeline = app.NewTimeline
	cli.Scenarios = app.Scenarios
	cli.Intelligence = app.Intelligence
	cli.Transcripts = app.Transcripts
	cli.Decisions = app.Decisions

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	ok = true
	return app, nil
}

// NewTimeline builds an orchestrator over the app's collaborators driven
// by clock. Commands that replay scenarios pass a manual clock.
func (a *App) NewTimeline(clock core.Clock) core.TimelineOrchestrator {
	deps := core.TimelineDeps{
		Scenarios: a.Scenarios,
		Source:    a.Intelligence,
		Clock:     clock,
		IDs:       core.NewIDGenerator(a.Config.IDs),
		Logger:    a.Logger,
		BaseGraph: a.BaseGraph,
		Warmup:    time.Duration(a.Config.Playback.WarmupMs) * time.Millisecond,
		MaxDelay:  time.Duration(a.Config.Playback.MaxDelayMs) * time.Millisecond,
	}
	// Nil interface values must stay nil, not typed nils.
	if a.Recorder != nil {
		deps.EventLogger = a.Recorder
	}
	if a.Transcripts != nil {
		deps.Transcripts = a.Transcripts
	}
	if a.Decisions != nil {
		deps.Decisions = a.Decisions
	}
	if a.Notifier != nil {
		deps.Notifier = a.Notifier
	}
	return core.NewTimelineOrchestrator(deps)
}

// Close stops the timeline and releases stores, the event log and the
// logger. It is safe to call on a partially initialized App.
func (a *App) Close() error {
	var errs []error
	if a.Timeline != nil {
		a.Timeline.Close()
	}
	if a.Decisions != nil {
		errs = append(errs, a.Decisions.Close())
	}
	if a.Transcripts != nil {
		errs = append(errs, a.Transcripts.Close())
	}
	if a.EventLog != nil {
		errs = append(errs, a.EventLog.Close())
	}
	if a.Logger != nil {
		// Sync on stderr fails on some platforms; nothing to report.
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}

func (a *App) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.BasePath, path)
}

func isSQLite(driver string) bool {
	d := strings.ToLower(strings.TrimSpace(driver))
	return d == "" || d == "sqlite"
}

// ResolveBasePath determines the Meridian base directory. It checks the
// MERIDIAN_HOME env var, then walks up from the current directory looking
// for .meridian.yaml, then falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	cwd := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName+".yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}
