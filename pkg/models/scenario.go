package models

// ScenarioMessage is one scripted conversational turn.
type ScenarioMessage struct {
	Role    Sender `json:"role" yaml:"role"`
	Text    string `json:"text" yaml:"text"`
	DelayMs int    `json:"delay_ms" yaml:"delay_ms"`
}

// FollowUpTrigger adds scripted copilot reactions after a customer message
// that is not the query trigger.
type FollowUpTrigger struct {
	AfterMessageIndex int                `json:"after_message_index" yaml:"after_message_index"`
	Thinking          []string           `json:"thinking,omitempty" yaml:"thinking,omitempty"`
	Suggestion        *SuggestionPayload `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Events            []CopilotEvent     `json:"events,omitempty" yaml:"events,omitempty"`
}

// ReplyTrigger reveals suggested reply chips after a customer message.
type ReplyTrigger struct {
	AfterMessageIndex int      `json:"after_message_index" yaml:"after_message_index"`
	Replies           []string `json:"replies" yaml:"replies"`
}

// GraphTrigger reveals part of the knowledge graph after a customer message.
// A zero DelayMs means the default delay.
type GraphTrigger struct {
	AfterMessageIndex int                  `json:"after_message_index" yaml:"after_message_index"`
	DelayMs           int                  `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`
	Update            KnowledgeGraphUpdate `json:"update" yaml:"update"`
}

// ScriptedResponses are canned intelligence-service answers used when the
// copilot runs without a live backend.
type ScriptedResponses struct {
	Query *QueryResponse    `json:"query,omitempty" yaml:"query,omitempty"`
	Gap   *GapCheckResponse `json:"gap,omitempty" yaml:"gap,omitempty"`
	Draft *DraftResponse    `json:"draft,omitempty" yaml:"draft,omitempty"`
}

// Scenario is a static script for a simulated support interaction.
type Scenario struct {
	ID                string             `json:"id" yaml:"id"`
	Title             string             `json:"title" yaml:"title"`
	Description       string             `json:"description,omitempty" yaml:"description,omitempty"`
	CustomerName      string             `json:"customer_name" yaml:"customer_name"`
	AgentName         string             `json:"agent_name" yaml:"agent_name"`
	Messages          []ScenarioMessage  `json:"messages" yaml:"messages"`
	QueryTriggerIndex int                `json:"query_trigger_index" yaml:"query_trigger_index"`
	QueryText         string             `json:"query_text" yaml:"query_text"`
	FollowUps         []FollowUpTrigger  `json:"follow_ups,omitempty" yaml:"follow_ups,omitempty"`
	ReplyTriggers     []ReplyTrigger     `json:"reply_triggers,omitempty" yaml:"reply_triggers,omitempty"`
	GraphTriggers     []GraphTrigger     `json:"graph_triggers,omitempty" yaml:"graph_triggers,omitempty"`
	TicketNumber      string             `json:"ticket_number,omitempty" yaml:"ticket_number,omitempty"`
	IsGapScenario     bool               `json:"is_gap_scenario" yaml:"is_gap_scenario"`
	Responses         *ScriptedResponses `json:"responses,omitempty" yaml:"responses,omitempty"`
}

// FollowUpAt returns the follow-up configured for a message index.
func (s *Scenario) FollowUpAt(index int) (FollowUpTrigger, bool) {
	for _, f := range s.FollowUps {
		if f.AfterMessageIndex == index {
			return f, true
		}
	}
	return FollowUpTrigger{}, false
}

// RepliesAt returns the reply chips configured for a message index.
func (s *Scenario) RepliesAt(index int) (ReplyTrigger, bool) {
	for _, r := range s.ReplyTriggers {
		if r.AfterMessageIndex == index {
			return r, true
		}
	}
	return ReplyTrigger{}, false
}

// GraphUpdatesAt returns every graph trigger configured for a message index.
func (s *Scenario) GraphUpdatesAt(index int) []GraphTrigger {
	var out []GraphTrigger
	for _, g := range s.GraphTriggers {
		if g.AfterMessageIndex == index {
			out = append(out, g)
		}
	}
	return out
}

// ScenarioSummary is the listing view of a scenario.
type ScenarioSummary struct {
	ID            string `json:"id" yaml:"id"`
	Title         string `json:"title" yaml:"title"`
	Description   string `json:"description,omitempty" yaml:"description,omitempty"`
	MessageCount  int    `json:"message_count" yaml:"message_count"`
	TicketNumber  string `json:"ticket_number,omitempty" yaml:"ticket_number,omitempty"`
	IsGapScenario bool   `json:"is_gap_scenario" yaml:"is_gap_scenario"`
}

// Summary returns the listing view of s.
func (s *Scenario) Summary() ScenarioSummary {
	return ScenarioSummary{
		ID:            s.ID,
		Title:         s.Title,
		Description:   s.Description,
		MessageCount:  len(s.Messages),
		TicketNumber:  s.TicketNumber,
		IsGapScenario: s.IsGapScenario,
	}
}
