package observability

import (
	"fmt"
	"sort"
	"time"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire.
type AlertThresholds struct {
	// QueryFailures within WindowHours that raise an alert.
	QueryFailures int `yaml:"query_failures" json:"query_failures"`
	WindowHours   int `yaml:"window_hours" json:"window_hours"`
	// DraftReviewHours is how long a generated draft may wait for review.
	DraftReviewHours int `yaml:"draft_review_hours" json:"draft_review_hours"`
	// MaxGapBacklog is how many detected gaps may lack an approved draft.
	MaxGapBacklog int `yaml:"max_gap_backlog" json:"max_gap_backlog"`
}

// DefaultAlertThresholds returns the default thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		QueryFailures:    3,
		WindowHours:      1,
		DraftReviewHours: 24,
		MaxGapBacklog:    5,
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine over eventLog. A nil now uses wall
// time.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds, now func() time.Time) AlertEngine {
	if now == nil {
		now = time.Now
	}
	return &alertEngine{eventLog: eventLog, thresholds: thresholds, now: now}
}

func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now().UTC()
	var alerts []Alert

	failures, err := ae.checkQueryFailures(now)
	if err != nil {
		return nil, fmt.Errorf("checking query failures: %w", err)
	}
	alerts = append(alerts, failures...)

	drafts, err := ae.checkUnreviewedDrafts(now)
	if err != nil {
		return nil, fmt.Errorf("checking unreviewed drafts: %w", err)
	}
	alerts = append(alerts, drafts...)

	backlog, err := ae.checkGapBacklog(now)
	if err != nil {
		return nil, fmt.Errorf("checking gap backlog: %w", err)
	}
	alerts = append(alerts, backlog...)

	return alerts, nil
}

// checkQueryFailures alerts when the intelligence service keeps failing.
func (ae *alertEngine) checkQueryFailures(now time.Time) ([]Alert, error) {
	since := now.Add(-time.Duration(ae.thresholds.WindowHours) * time.Hour)
	events, err := ae.eventLog.Read(EventFilter{Type: "query.failed", Since: &since})
	if err != nil {
		return nil, err
	}
	if len(events) < ae.thresholds.QueryFailures || ae.thresholds.QueryFailures <= 0 {
		return nil, nil
	}
	return []Alert{{
		ID:          "query-failures",
		Condition:   "intelligence_unreachable",
		Severity:    SeverityHigh,
		Message:     fmt.Sprintf("%d intelligence queries failed in the last %d hours", len(events), ae.thresholds.WindowHours),
		TriggeredAt: now,
	}}, nil
}

// checkUnreviewedDrafts alerts on drafts generated long ago and never
// approved or rejected.
func (ae *alertEngine) checkUnreviewedDrafts(now time.Time) ([]Alert, error) {
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return nil, err
	}

	generated := make(map[string]time.Time)
	for _, event := range events {
		draftID, _ := event.Data["draft_id"].(string)
		if draftID == "" {
			continue
		}
		switch event.Type {
		case "draft.generated":
			generated[draftID] = event.Time
		case "draft.approved", "draft.rejected":
			delete(generated, draftID)
		}
	}

	threshold := time.Duration(ae.thresholds.DraftReviewHours) * time.Hour
	var ids []string
	for id, at := range generated {
		if now.Sub(at) > threshold {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var alerts []Alert
	for _, id := range ids {
		alerts = append(alerts, Alert{
			ID:          fmt.Sprintf("draft-%s", id),
			Condition:   "draft_awaiting_review",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("KB draft %s has waited for review more than %d hours", id, ae.thresholds.DraftReviewHours),
			TriggeredAt: now,
		})
	}
	return alerts, nil
}

// checkGapBacklog alerts when many tickets have a detected gap and no
// approved draft.
func (ae *alertEngine) checkGapBacklog(now time.Time) ([]Alert, error) {
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return nil, err
	}

	draftTicket := make(map[string]string)
	open := make(map[string]bool)
	for _, event := range events {
		ticket, _ := event.Data["ticket_number"].(string)
		switch event.Type {
		case "gap.checked":
			if isGap, _ := event.Data["is_gap"].(bool); isGap && ticket != "" {
				open[ticket] = true
			}
		case "draft.generated":
			if id, _ := event.Data["draft_id"].(string); id != "" {
				draftTicket[id] = ticket
			}
		case "draft.approved":
			id, _ := event.Data["draft_id"].(string)
			delete(open, draftTicket[id])
		}
	}

	if len(open) <= ae.thresholds.MaxGapBacklog {
		return nil, nil
	}
	return []Alert{{
		ID:          "gap-backlog",
		Condition:   "gap_backlog_too_large",
		Severity:    SeverityLow,
		Message:     fmt.Sprintf("%d tickets have knowledge gaps without an approved article, exceeding the maximum of %d", len(open), ae.thresholds.MaxGapBacklog),
		TriggeredAt: now,
	}}, nil
}
