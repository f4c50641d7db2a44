package cli

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/meridian/internal/core"
	"github.com/valter-silva-au/meridian/internal/observability"
)

// --- parseSinceDuration unit tests ---

func TestParseSinceDuration(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		errMsg  string
	}{
		{"empty defaults to 7d", "", false, ""},
		{"whitespace defaults to 7d", "  ", false, ""},
		{"valid 7d", "7d", false, ""},
		{"valid 30d", "30d", false, ""},
		{"valid 24h", "24h", false, ""},
		{"invalid suffix", "abc", true, "unsupported duration format"},
		{"invalid day number", "xd", true, "invalid day duration"},
		{"invalid hour number", "yh", true, "invalid hour duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSinceDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error %q should contain %q", err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseSinceDuration_Window(t *testing.T) {
	got, err := parseSinceDuration("24h")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Now().UTC().Add(-24 * time.Hour)
	if diff := want.Sub(got); diff < 0 || diff > time.Minute {
		t.Errorf("parseSinceDuration(24h) = %v, want about %v", got, want)
	}
}

// --- metricsCmd tests ---

type metricsMock struct {
	calcFn func(since time.Time) (*observability.Metrics, error)
}

func (m *metricsMock) Calculate(since time.Time) (*observability.Metrics, error) {
	return m.calcFn(since)
}

func TestMetricsCmd_NilCalculator(t *testing.T) {
	withGlobals(t)
	MetricsCalc = nil

	_, err := runCommand(t, "metrics")
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestMetricsCmd_InvalidSince(t *testing.T) {
	withGlobals(t)
	MetricsCalc = &metricsMock{calcFn: func(time.Time) (*observability.Metrics, error) {
		return &observability.Metrics{}, nil
	}}

	_, err := runCommand(t, "metrics", "--since", "abc")
	if err == nil || !strings.Contains(err.Error(), "unsupported duration format") {
		t.Fatalf("expected duration error, got %v", err)
	}
}

func TestMetricsCmd_CalculatorError(t *testing.T) {
	withGlobals(t)
	Decisions = nil
	MetricsCalc = &metricsMock{calcFn: func(time.Time) (*observability.Metrics, error) {
		return nil, errors.New("disk on fire")
	}}

	_, err := runCommand(t, "metrics")
	if err == nil || !strings.Contains(err.Error(), "disk on fire") {
		t.Fatalf("expected calculator error, got %v", err)
	}
}

func TestMetricsCmd_TableAfterReplay(t *testing.T) {
	newScriptedRig(t)

	clock := core.NewManualClock(testStart)
	orch := NewTimeline(clock)
	if _, err := replay(orch, clock, "report-export-blank"); err != nil {
		t.Fatalf("replay: %v", err)
	}
	orch.Close()

	out, err := runCommand(t, "metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	for _, want := range []string{
		"Runs started:            1",
		"Runs resolved:           1 (100%)",
		"Agent messages:          3",
		"Gaps detected:           1",
		"Drafts approved:         1",
		"gap_detection:",
		"Decision ledger:",
		"approved:            1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMetricsCmd_JSON(t *testing.T) {
	withGlobals(t)
	Decisions = nil
	MetricsCalc = &metricsMock{calcFn: func(time.Time) (*observability.Metrics, error) {
		return &observability.Metrics{
			RunsStarted:  4,
			RunsResolved: 1,
			EventCount:   42,
			EventsByKind: map[string]int{"suggestion": 3},
		}, nil
	}}

	out, err := runCommand(t, "metrics", "--json")
	if err != nil {
		t.Fatalf("metrics --json: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if got["runs_started"] != float64(4) || got["event_count"] != float64(42) {
		t.Errorf("unexpected counts: %v", got)
	}
	if got["resolution_rate"] != 0.25 {
		t.Errorf("resolution_rate = %v, want 0.25", got["resolution_rate"])
	}
	if _, ok := got["decisions"]; ok {
		t.Error("decisions should be omitted without a ledger")
	}
}
