package models

// EventKind discriminates the payload carried by a CopilotEvent.
type EventKind string

const (
	EventThinking        EventKind = "thinking"
	EventToolCall        EventKind = "tool_call"
	EventKBResult        EventKind = "kb_result"
	EventTicketResult    EventKind = "ticket_result"
	EventSuggestion      EventKind = "suggestion"
	EventGapDetection    EventKind = "gap_detection"
	EventLearn           EventKind = "learn"
	EventKnowledgeGained EventKind = "knowledge_gained"
	EventSimilarDetected EventKind = "similar_detected"
)

// ValidEventKinds lists every kind the timeline understands.
var ValidEventKinds = []EventKind{
	EventThinking,
	EventToolCall,
	EventKBResult,
	EventTicketResult,
	EventSuggestion,
	EventGapDetection,
	EventLearn,
	EventKnowledgeGained,
	EventSimilarDetected,
}

// DraftStatus is the review state of a learn event. The zero value means
// the draft has not been reviewed yet.
type DraftStatus string

const (
	DraftPending  DraftStatus = ""
	DraftApproved DraftStatus = "approved"
	DraftRejected DraftStatus = "rejected"
)

// Tool call status values.
const (
	ToolStatusRunning   = "running"
	ToolStatusCompleted = "completed"
)

// CopilotEvent is one entry of the copilot activity timeline. Exactly one
// payload pointer is set, matching Kind. DelayMs is relative to the previous
// event of the same batch.
type CopilotEvent struct {
	ID      string    `json:"id" yaml:"id"`
	Kind    EventKind `json:"type" yaml:"type"`
	DelayMs int       `json:"delay" yaml:"delay"`

	Thinking   *ThinkingPayload   `json:"thinking,omitempty" yaml:"thinking,omitempty"`
	ToolCall   *ToolCallPayload   `json:"tool_call,omitempty" yaml:"tool_call,omitempty"`
	Results    *ResultsPayload    `json:"results,omitempty" yaml:"results,omitempty"`
	Suggestion *SuggestionPayload `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Gap        *GapPayload        `json:"gap,omitempty" yaml:"gap,omitempty"`
	Learn      *LearnPayload      `json:"learn,omitempty" yaml:"learn,omitempty"`
	Knowledge  *KnowledgePayload  `json:"knowledge,omitempty" yaml:"knowledge,omitempty"`
}

// ThinkingPayload is an ordered list of reasoning steps.
type ThinkingPayload struct {
	Steps []string `json:"steps" yaml:"steps"`
}

// ToolCallPayload describes a tool invocation and its outcome.
type ToolCallPayload struct {
	Tool   string         `json:"tool" yaml:"tool"`
	Status string         `json:"status" yaml:"status"`
	Input  map[string]any `json:"input,omitempty" yaml:"input,omitempty"`
	Output map[string]any `json:"output,omitempty" yaml:"output,omitempty"`
}

// ResultsPayload carries retrieved documents for kb_result, ticket_result
// and similar_detected events.
type ResultsPayload struct {
	Category string       `json:"category" yaml:"category"`
	Message  string       `json:"message,omitempty" yaml:"message,omitempty"`
	Results  []ResultItem `json:"results" yaml:"results"`
}

// SuggestionPayload is a recommended next step for the agent. Reply is a
// ready-to-send draft and may be empty.
type SuggestionPayload struct {
	Title    string   `json:"title" yaml:"title"`
	Actions  []string `json:"actions" yaml:"actions"`
	Reply    string   `json:"reply,omitempty" yaml:"reply,omitempty"`
	SourceID string   `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
}

// GapPayload reports a knowledge gap found for a resolved ticket.
type GapPayload struct {
	TicketNumber string  `json:"ticket_number" yaml:"ticket_number"`
	Category     string  `json:"category" yaml:"category"`
	Module       string  `json:"module" yaml:"module"`
	Similarity   float64 `json:"similarity" yaml:"similarity"`
	Message      string  `json:"message" yaml:"message"`
}

// LearnPayload is a generated KB draft awaiting review.
type LearnPayload struct {
	DraftID      string      `json:"draft_id" yaml:"draft_id"`
	Title        string      `json:"title" yaml:"title"`
	SourceTicket string      `json:"source_ticket" yaml:"source_ticket"`
	DetectedGap  string      `json:"detected_gap" yaml:"detected_gap"`
	Summary      string      `json:"summary" yaml:"summary"`
	Status       DraftStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// KnowledgePayload announces knowledge picked up during the conversation.
type KnowledgePayload struct {
	Title  string `json:"title" yaml:"title"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Clone returns a deep copy of the event so snapshots never alias the
// orchestrator's internal state.
func (e CopilotEvent) Clone() CopilotEvent {
	out := e
	if e.Thinking != nil {
		t := *e.Thinking
		t.Steps = append([]string(nil), e.Thinking.Steps...)
		out.Thinking = &t
	}
	if e.ToolCall != nil {
		t := *e.ToolCall
		t.Input = cloneMap(e.ToolCall.Input)
		t.Output = cloneMap(e.ToolCall.Output)
		out.ToolCall = &t
	}
	if e.Results != nil {
		r := *e.Results
		r.Results = append([]ResultItem(nil), e.Results.Results...)
		out.Results = &r
	}
	if e.Suggestion != nil {
		s := *e.Suggestion
		s.Actions = append([]string(nil), e.Suggestion.Actions...)
		out.Suggestion = &s
	}
	if e.Gap != nil {
		g := *e.Gap
		out.Gap = &g
	}
	if e.Learn != nil {
		l := *e.Learn
		out.Learn = &l
	}
	if e.Knowledge != nil {
		k := *e.Knowledge
		out.Knowledge = &k
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
