package models

// Phase is the lifecycle state of a conversation run.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhasePlaying       Phase = "playing"
	PhaseAwaitingAgent Phase = "awaiting_agent"
	PhaseEnded         Phase = "ended"
	PhaseResolved      Phase = "resolved"
)

// Snapshot is an immutable copy of the orchestrator state that callers
// render from.
type Snapshot struct {
	RunID               string                 `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	ScenarioID          string                 `json:"scenario_id,omitempty" yaml:"scenario_id,omitempty"`
	Phase               Phase                  `json:"phase" yaml:"phase"`
	IsPlaying           bool                   `json:"is_playing" yaml:"is_playing"`
	IsResolved          bool                   `json:"is_resolved" yaml:"is_resolved"`
	CurrentMessageIndex int                    `json:"current_message_index" yaml:"current_message_index"`
	Messages            []ChatMessage          `json:"messages" yaml:"messages"`
	Events              []CopilotEvent         `json:"events" yaml:"events"`
	SuggestedReplies    []string               `json:"suggested_replies,omitempty" yaml:"suggested_replies,omitempty"`
	ComposeText         string                 `json:"compose_text,omitempty" yaml:"compose_text,omitempty"`
	GraphUpdates        []KnowledgeGraphUpdate `json:"graph_updates,omitempty" yaml:"graph_updates,omitempty"`
	Notes               []string               `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// FindLearnEvent returns the learn event for a draft, if present.
func (s Snapshot) FindLearnEvent(draftID string) (CopilotEvent, bool) {
	for _, e := range s.Events {
		if e.Kind == EventLearn && e.Learn != nil && e.Learn.DraftID == draftID {
			return e, true
		}
	}
	return CopilotEvent{}, false
}

// CountKind returns how many events of kind k the snapshot holds.
func (s Snapshot) CountKind(k EventKind) int {
	n := 0
	for _, e := range s.Events {
		if e.Kind == k {
			n++
		}
	}
	return n
}
