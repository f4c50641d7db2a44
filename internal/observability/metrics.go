package observability

import (
	"fmt"
	"time"
)

// Metrics holds copilot activity derived from the event log.
type Metrics struct {
	RunsStarted    int            `json:"runs_started" yaml:"runs_started"`
	RunsResolved   int            `json:"runs_resolved" yaml:"runs_resolved"`
	RunsReset      int            `json:"runs_reset" yaml:"runs_reset"`
	AgentMessages  int            `json:"agent_messages" yaml:"agent_messages"`
	EventsByKind   map[string]int `json:"events_by_kind" yaml:"events_by_kind"`
	QueryFailures  int            `json:"query_failures" yaml:"query_failures"`
	GapsDetected   int            `json:"gaps_detected" yaml:"gaps_detected"`
	DraftsCreated  int            `json:"drafts_created" yaml:"drafts_created"`
	DraftsApproved int            `json:"drafts_approved" yaml:"drafts_approved"`
	DraftsRejected int            `json:"drafts_rejected" yaml:"drafts_rejected"`
	EventCount     int            `json:"event_count" yaml:"event_count"`
	OldestEvent    *time.Time     `json:"oldest_event,omitempty" yaml:"oldest_event,omitempty"`
	NewestEvent    *time.Time     `json:"newest_event,omitempty" yaml:"newest_event,omitempty"`
}

// ResolutionRate is the share of started runs that were resolved.
func (m *Metrics) ResolutionRate() float64 {
	if m.RunsStarted == 0 {
		return 0
	}
	return float64(m.RunsResolved) / float64(m.RunsStarted)
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{EventsByKind: make(map[string]int)}
	m.EventCount = len(events)

	for i, event := range events {
		t := event.Time
		if i == 0 {
			m.OldestEvent = &t
		}
		m.NewestEvent = &t

		switch event.Type {
		case "scenario.started":
			m.RunsStarted++
		case "issue.resolved":
			m.RunsResolved++
		case "timeline.reset":
			m.RunsReset++
		case "message.sent":
			m.AgentMessages++
		case "timeline.event_appended":
			if kind, ok := event.Data["kind"].(string); ok {
				m.EventsByKind[kind]++
				if kind == "gap_detection" {
					m.GapsDetected++
				}
			}
		case "query.failed":
			m.QueryFailures++
		case "draft.generated":
			m.DraftsCreated++
		case "draft.approved":
			m.DraftsApproved++
		case "draft.rejected":
			m.DraftsRejected++
		}
	}

	return m, nil
}
