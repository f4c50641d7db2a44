package models

import "time"

// Decision records a reviewer's verdict on a KB draft and whether the
// intelligence service acknowledged it.
type Decision struct {
	DraftID      string      `json:"draft_id" yaml:"draft_id"`
	Status       DraftStatus `json:"status" yaml:"status"`
	RunID        string      `json:"run_id" yaml:"run_id"`
	ScenarioID   string      `json:"scenario_id" yaml:"scenario_id"`
	Title        string      `json:"title,omitempty" yaml:"title,omitempty"`
	SourceTicket string      `json:"source_ticket,omitempty" yaml:"source_ticket,omitempty"`
	Acknowledged bool        `json:"acknowledged" yaml:"acknowledged"`
	RemoteError  string      `json:"remote_error,omitempty" yaml:"remote_error,omitempty"`
	RemoteDocID  string      `json:"remote_doc_id,omitempty" yaml:"remote_doc_id,omitempty"`
	DecidedAt    time.Time   `json:"decided_at" yaml:"decided_at"`
}

// DecisionStats aggregates the decision ledger.
type DecisionStats struct {
	Approved       int `json:"approved" yaml:"approved"`
	Rejected       int `json:"rejected" yaml:"rejected"`
	Unacknowledged int `json:"unacknowledged" yaml:"unacknowledged"`
}

// TranscriptOutcome says why a run was archived.
type TranscriptOutcome string

const (
	OutcomeSuperseded TranscriptOutcome = "superseded"
	OutcomeReset      TranscriptOutcome = "reset"
	OutcomeClosed     TranscriptOutcome = "closed"
)

// Transcript is an archived run.
type Transcript struct {
	RunID      string            `json:"run_id" yaml:"run_id"`
	ScenarioID string            `json:"scenario_id" yaml:"scenario_id"`
	Outcome    TranscriptOutcome `json:"outcome" yaml:"outcome"`
	Resolved   bool              `json:"resolved" yaml:"resolved"`
	ArchivedAt time.Time         `json:"archived_at" yaml:"archived_at"`
	Snapshot   Snapshot          `json:"snapshot" yaml:"snapshot"`
}
