package observability

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestLog(t *testing.T) EventLog {
	t.Helper()
	log, err := NewJSONLEventLog(filepath.Join(t.TempDir(), "nested", "events.jsonl"))
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestEventLog_WriteAndRead(t *testing.T) {
	log := newTestLog(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	events := []Event{
		{Time: now, Level: "INFO", Type: "scenario.started", RunID: "run-1", Message: "scenario started", Data: map[string]any{"scenario_id": "advance-property-date"}},
		{Time: now.Add(time.Second), Level: "WARN", Type: "query.failed", RunID: "run-1", Message: "intelligence query failed"},
	}
	for _, e := range events {
		if err := log.Write(e); err != nil {
			t.Fatalf("writing event: %v", err)
		}
	}

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 events, got %d", len(result))
	}
	if result[0].Type != "scenario.started" || result[0].Data["scenario_id"] != "advance-property-date" {
		t.Errorf("first event = %+v", result[0])
	}
	if result[1].Level != "WARN" || result[1].RunID != "run-1" {
		t.Errorf("second event = %+v", result[1])
	}
}

func TestEventLog_Filters(t *testing.T) {
	log := newTestLog(t)
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	events := []Event{
		{Time: base, Level: "INFO", Type: "scenario.started", RunID: "run-1"},
		{Time: base.Add(time.Minute), Level: "WARN", Type: "query.failed", RunID: "run-1"},
		{Time: base.Add(2 * time.Minute), Level: "INFO", Type: "scenario.started", RunID: "run-2"},
	}
	for _, e := range events {
		if err := log.Write(e); err != nil {
			t.Fatalf("writing event: %v", err)
		}
	}

	since := base.Add(30 * time.Second)
	until := base.Add(90 * time.Second)
	tests := []struct {
		name   string
		filter EventFilter
		want   int
	}{
		{name: "all", filter: EventFilter{}, want: 3},
		{name: "type", filter: EventFilter{Type: "scenario.started"}, want: 2},
		{name: "level", filter: EventFilter{Level: "WARN"}, want: 1},
		{name: "run", filter: EventFilter{RunID: "run-2"}, want: 1},
		{name: "since", filter: EventFilter{Since: &since}, want: 2},
		{name: "window", filter: EventFilter{Since: &since, Until: &until}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := log.Read(tt.filter)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestEventLog_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	if err := os.WriteFile(path, []byte("not json\n\n{\"type\":\"timeline.reset\",\"level\":\"INFO\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	log, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatalf("opening: %v", err)
	}
	defer log.Close()

	got, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 1 || got[0].Type != "timeline.reset" {
		t.Errorf("events = %+v", got)
	}
}

func TestEventLog_ConcurrentWrites(t *testing.T) {
	log := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = log.Write(Event{Time: time.Now().UTC(), Level: "INFO", Type: "timeline.event_appended"})
		}()
	}
	wg.Wait()

	got, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("got %d events, want 20", len(got))
	}
}

func TestRecorder_LogEvent(t *testing.T) {
	log := newTestLog(t)
	at := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	rec := NewRecorder(log, func() time.Time { return at })

	if err := rec.LogEvent("query.failed", map[string]any{"run_id": "run-7", "error": "connection refused"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if err := rec.LogEvent("timeline.reset", map[string]any{}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if err := rec.LogEvent("custom.thing_happened", nil); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	got, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}

	failed := got[0]
	if failed.Level != "WARN" || failed.RunID != "run-7" || failed.Message != "intelligence query failed" {
		t.Errorf("failed event = %+v", failed)
	}
	if _, ok := failed.Data["run_id"]; ok {
		t.Error("run_id should be lifted out of data")
	}
	if !failed.Time.Equal(at) {
		t.Errorf("time = %v, want %v", failed.Time, at)
	}
	if got[1].Level != "INFO" || got[1].Data != nil {
		t.Errorf("reset event = %+v", got[1])
	}
	if got[2].Message != "custom thing_happened" {
		t.Errorf("fallback message = %q", got[2].Message)
	}
}
