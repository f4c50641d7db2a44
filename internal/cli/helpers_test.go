package cli

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/valter-silva-au/meridian/internal/core"
	"github.com/valter-silva-au/meridian/internal/integration"
	"github.com/valter-silva-au/meridian/internal/observability"
	"github.com/valter-silva-au/meridian/internal/storage"
	"github.com/valter-silva-au/meridian/pkg/models"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// withGlobals restores every package-level service and flag after the test.
func withGlobals(t *testing.T) {
	t.Helper()
	origBase, origCfg, origLogger := BasePath, Config, Logger
	origTimeline, origScenarios, origIntel := Timeline, Scenarios, Intelligence
	origTranscripts, origDecisions, origFactory := Transcripts, Decisions, NewTimeline
	origEventLog, origAlerts, origMetrics, origNotifier := EventLog, AlertEngine, MetricsCalc, Notifier
	origFlags := []any{scenariosJSON, scenariosCheck, replayJSON, replayResolve, replayDecision, replayReply, metricsJSON, metricsSince, alertsNotify}

	t.Cleanup(func() {
		BasePath, Config, Logger = origBase, origCfg, origLogger
		Timeline, Scenarios, Intelligence = origTimeline, origScenarios, origIntel
		Transcripts, Decisions, NewTimeline = origTranscripts, origDecisions, origFactory
		EventLog, AlertEngine, MetricsCalc, Notifier = origEventLog, origAlerts, origMetrics, origNotifier
		scenariosJSON = origFlags[0].(bool)
		scenariosCheck = origFlags[1].(bool)
		replayJSON = origFlags[2].(bool)
		replayResolve = origFlags[3].(bool)
		replayDecision = origFlags[4].(string)
		replayReply = origFlags[5].(string)
		metricsJSON = origFlags[6].(bool)
		metricsSince = origFlags[7].(string)
		alertsNotify = origFlags[8].(bool)
	})
}

// scriptedRig wires the package globals to a scripted orchestrator over the
// bundled scenarios, with file transcripts and a sqlite decision ledger.
type scriptedRig struct {
	clock *core.ManualClock
	orch  core.TimelineOrchestrator
}

func newScriptedRig(t *testing.T) *scriptedRig {
	t.Helper()
	withGlobals(t)

	scenarios := storage.NewScenarioStore("../../scenarios")
	if err := scenarios.Load(); err != nil {
		t.Fatalf("loading scenarios: %v", err)
	}
	intel := integration.NewScriptedIntelligence(scenarios)

	dir := t.TempDir()
	transcripts := storage.NewFileTranscriptStore(filepath.Join(dir, "transcripts"))
	decisions, err := storage.NewDecisionStore("sqlite", filepath.Join(dir, "decisions.db"))
	if err != nil {
		t.Fatalf("opening decision store: %v", err)
	}
	t.Cleanup(func() { _ = decisions.Close() })

	eventLog, err := observability.NewJSONLEventLog(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		t.Fatalf("opening event log: %v", err)
	}
	t.Cleanup(func() { _ = eventLog.Close() })
	recorder := observability.NewRecorder(eventLog, nil)

	build := func(clock core.Clock) core.TimelineOrchestrator {
		return core.NewTimelineOrchestrator(core.TimelineDeps{
			Scenarios:   scenarios,
			Source:      intel,
			Clock:       clock,
			EventLogger: recorder,
			Transcripts: transcripts,
			Decisions:   decisions,
		})
	}

	clock := core.NewManualClock(testStart)
	orch := build(clock)
	t.Cleanup(orch.Close)

	BasePath = dir
	Config = core.DefaultConfig()
	Timeline = orch
	Scenarios = scenarios
	Intelligence = intel
	Transcripts = transcripts
	Decisions = decisions
	NewTimeline = build
	EventLog = eventLog
	MetricsCalc = observability.NewMetricsCalculator(eventLog)
	AlertEngine = observability.NewAlertEngine(eventLog, observability.DefaultAlertThresholds(), nil)

	return &scriptedRig{clock: clock, orch: orch}
}

// runCommand executes the root command with args and returns its stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := Execute()
	return stdout.String(), err
}

// findLearn returns the learn payload of the first learn event.
func findLearn(snap models.Snapshot) *models.LearnPayload {
	for _, ev := range snap.Events {
		if ev.Kind == models.EventLearn {
			return ev.Learn
		}
	}
	return nil
}
