package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Event is one line of the domain event log.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"` // INFO, WARN
	Type    string         `json:"type"`  // e.g. "scenario.started", "draft.approved"
	RunID   string         `json:"run_id,omitempty"`
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// EventFilter specifies criteria for reading events.
type EventFilter struct {
	Since *time.Time
	Until *time.Time
	Type  string
	Level string
	RunID string
}

// EventLog defines the interface for writing and reading events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

// jsonlEventLog implements EventLog using an append-only JSONL file.
type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLEventLog opens (creating if needed) the JSONL event log at path.
func NewJSONLEventLog(path string) (EventLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating event log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, file: f}, nil
}

func (l *jsonlEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read scans the log and returns the events matching filter. Malformed lines
// are skipped.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if matchesEventFilter(event, filter) {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}
	return events, nil
}

func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

func matchesEventFilter(event Event, filter EventFilter) bool {
	if filter.Since != nil && event.Time.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.Time.After(*filter.Until) {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.Level != "" && event.Level != filter.Level {
		return false
	}
	if filter.RunID != "" && event.RunID != filter.RunID {
		return false
	}
	return true
}

// Recorder turns orchestrator events into EventLog lines. It satisfies the
// orchestrator's event logger.
type Recorder struct {
	log EventLog
	now func() time.Time
}

// NewRecorder creates a Recorder writing to log. A nil now uses wall time.
func NewRecorder(log EventLog, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{log: log, now: now}
}

// LogEvent records eventType with data. The run id is lifted out of data.
func (r *Recorder) LogEvent(eventType string, data map[string]any) error {
	ev := Event{
		Time:    r.now().UTC(),
		Level:   levelFor(eventType),
		Type:    eventType,
		Message: messageFor(eventType),
	}
	if len(data) > 0 {
		ev.Data = make(map[string]any, len(data))
		for k, v := range data {
			if k == "run_id" {
				ev.RunID, _ = v.(string)
				continue
			}
			ev.Data[k] = v
		}
		if len(ev.Data) == 0 {
			ev.Data = nil
		}
	}
	return r.log.Write(ev)
}

func levelFor(eventType string) string {
	if strings.HasSuffix(eventType, "_failed") || strings.HasSuffix(eventType, ".failed") {
		return "WARN"
	}
	return "INFO"
}

var eventMessages = map[string]string{
	"scenario.started":        "scenario started",
	"scenario.ended":          "scenario ran out of messages",
	"message.sent":            "agent message sent",
	"query.completed":         "intelligence query completed",
	"query.failed":            "intelligence query failed",
	"issue.resolved":          "issue resolved",
	"gap.checked":             "knowledge gap checked",
	"gap.check_failed":        "knowledge gap check failed",
	"draft.generated":         "KB draft generated",
	"draft.generation_failed": "KB draft generation failed",
	"draft.approved":          "KB draft approved",
	"draft.rejected":          "KB draft rejected",
	"graph.updated":           "knowledge graph updated",
	"timeline.event_appended": "timeline event appended",
	"timeline.reset":          "timeline reset",
}

func messageFor(eventType string) string {
	if m, ok := eventMessages[eventType]; ok {
		return m
	}
	return strings.ReplaceAll(eventType, ".", " ")
}
