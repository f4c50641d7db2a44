package cli

import (
	"go.uber.org/zap"

	"github.com/valter-silva-au/meridian/internal/core"
	"github.com/valter-silva-au/meridian/internal/integration"
	"github.com/valter-silva-au/meridian/internal/observability"
	"github.com/valter-silva-au/meridian/internal/storage"
	"github.com/valter-silva-au/meridian/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath string
	Config   *models.Config
	Logger   *zap.Logger

	Timeline     core.TimelineOrchestrator
	Scenarios    storage.ScenarioStore
	Intelligence integration.IntelligenceService
	Transcripts  storage.TranscriptStore
	Decisions    storage.DecisionStore

	// NewTimeline builds an orchestrator with the shared collaborators
	// on the given clock. replay uses it with a ManualClock.
	NewTimeline func(clock core.Clock) core.TimelineOrchestrator
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)

func logger() *zap.Logger {
	if Logger == nil {
		return zap.NewNop()
	}
	return Logger
}
