package core

import (
	"context"
	"errors"

	"github.com/valter-silva-au/meridian/pkg/models"
)

// ErrScenarioNotFound is returned when a scenario id is unknown.
var ErrScenarioNotFound = errors.New("scenario not found")

// ErrDraftNotFound is returned when no learn event carries the draft id.
var ErrDraftNotFound = errors.New("draft not found")

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// IntelligenceService is the event source the orchestrator calls for query
// classification, gap detection and draft review. Implementations live in
// the integration package.
type IntelligenceService interface {
	Query(ctx context.Context, query string) (*models.QueryResponse, error)
	CheckGap(ctx context.Context, ticketNumber string) (*models.GapCheckResponse, error)
	GenerateDraft(ctx context.Context, ticketNumber string) (*models.DraftResponse, error)
	ApproveDraft(ctx context.Context, draftID string) (*models.DecisionResponse, error)
	RejectDraft(ctx context.Context, draftID string) (*models.DecisionResponse, error)
}

// ScenarioSource provides scenario definitions.
// This interface is defined locally in core to avoid importing storage.
type ScenarioSource interface {
	Get(id string) (*models.Scenario, error)
	List() []models.ScenarioSummary
}

// TranscriptArchiver stores finished runs.
// This interface is defined locally in core to avoid importing storage.
type TranscriptArchiver interface {
	Archive(ctx context.Context, t models.Transcript) error
}

// DecisionRecorder stores draft review decisions.
// This interface is defined locally in core to avoid importing storage.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, d models.Decision) error
}

// GapNotifier announces detected knowledge gaps outside the timeline.
// This interface is defined locally in core to avoid importing observability.
type GapNotifier interface {
	NotifyGap(ctx context.Context, scenario models.ScenarioSummary, gap models.GapPayload) error
}
