// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the Meridian timeline as MCP tools, so an AI assistant can drive a support
// conversation and review the copilot's knowledge-base drafts.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/meridian/internal/core"
	"github.com/valter-silva-au/meridian/internal/observability"
	"github.com/valter-silva-au/meridian/pkg/models"
)

// Server wraps the timeline orchestrator and exposes it as MCP tools.
type Server struct {
	server      *gomcp.Server
	timeline    core.TimelineOrchestrator
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
}

// NewServer creates a new MCP server over timeline. metricsCalc and
// alertEngine may be nil if observability is disabled.
func NewServer(timeline core.TimelineOrchestrator, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		timeline:    timeline,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "meridian", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type listScenariosInput struct{}

type scenarioOutput struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	MessageCount  int    `json:"message_count"`
	TicketNumber  string `json:"ticket_number,omitempty"`
	IsGapScenario bool   `json:"is_gap_scenario"`
}

type listScenariosOutput struct {
	Scenarios []scenarioOutput `json:"scenarios"`
	Count     int              `json:"count"`
}

type startScenarioInput struct {
	ScenarioID string `json:"scenario_id" jsonschema:"required,the scenario to play (see list_scenarios)"`
}

type sendMessageInput struct {
	Text string `json:"text" jsonschema:"required,the agent reply to send to the customer"`
}

type draftInput struct {
	DraftID string `json:"draft_id" jsonschema:"required,the KB draft identifier shown on the learn event (e.g. DRAFT-CS-DEMO-001)"`
}

type addNoteInput struct {
	Text string `json:"text" jsonschema:"required,a free-form note to attach to the current run"`
}

type emptyInput struct{}

type messageOutput struct {
	Sender string `json:"sender"`
	Name   string `json:"name"`
	Text   string `json:"text"`
}

type eventOutput struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Summary string `json:"summary"`
}

type draftOutput struct {
	DraftID      string `json:"draft_id"`
	Title        string `json:"title"`
	SourceTicket string `json:"source_ticket,omitempty"`
	Status       string `json:"status"`
}

type timelineOutput struct {
	RunID            string          `json:"run_id,omitempty"`
	ScenarioID       string          `json:"scenario_id,omitempty"`
	Phase            string          `json:"phase"`
	IsResolved       bool            `json:"is_resolved"`
	Messages         []messageOutput `json:"messages"`
	Events           []eventOutput   `json:"events"`
	Drafts           []draftOutput   `json:"drafts"`
	SuggestedReplies []string        `json:"suggested_replies"`
	ComposeText      string          `json:"compose_text,omitempty"`
	Notes            []string        `json:"notes"`
}

type graphOutput struct {
	Nodes []models.GraphNode `json:"nodes"`
	Edges []models.GraphEdge `json:"edges"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	RunsStarted    int            `json:"runs_started"`
	RunsResolved   int            `json:"runs_resolved"`
	ResolutionRate float64        `json:"resolution_rate"`
	AgentMessages  int            `json:"agent_messages"`
	EventsByKind   map[string]int `json:"events_by_kind"`
	QueryFailures  int            `json:"query_failures"`
	GapsDetected   int            `json:"gaps_detected"`
	DraftsCreated  int            `json:"drafts_created"`
	DraftsApproved int            `json:"drafts_approved"`
	DraftsRejected int            `json:"drafts_rejected"`
	EventCount     int            `json:"event_count"`
	OldestEvent    string         `json:"oldest_event,omitempty"`
	NewestEvent    string         `json:"newest_event,omitempty"`
}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_scenarios",
		Description: "List the support conversations that can be played.",
	}, s.handleListScenarios)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "start_scenario",
		Description: "Start playing a scenario. Any running conversation is abandoned. Returns the timeline.",
	}, s.handleStartScenario)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "send_agent_message",
		Description: "Send an agent reply to the customer and continue the conversation.",
	}, s.handleSendAgentMessage)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "resolve_issue",
		Description: "Mark the current conversation resolved. Gap scenarios then run knowledge-gap detection and draft a KB article.",
	}, s.handleResolveIssue)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "approve_draft",
		Description: "Approve a KB article draft produced after a knowledge gap.",
	}, s.handleApproveDraft)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "reject_draft",
		Description: "Reject a KB article draft produced after a knowledge gap.",
	}, s.handleRejectDraft)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "add_note",
		Description: "Attach a free-form agent note to the current conversation.",
	}, s.handleAddNote)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "reset",
		Description: "Abandon the current conversation and return to idle.",
	}, s.handleReset)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_timeline",
		Description: "Get the conversation transcript and the copilot activity timeline of the current run.",
	}, s.handleGetTimeline)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_knowledge_graph",
		Description: "Get the customer knowledge graph, including nodes revealed by the current run.",
	}, s.handleGetKnowledgeGraph)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated copilot metrics from the event log: runs, resolutions, gaps and draft reviews.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (intelligence service failures, drafts awaiting review, gap backlog).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleListScenarios(_ context.Context, _ *gomcp.CallToolRequest, _ listScenariosInput) (*gomcp.CallToolResult, listScenariosOutput, error) {
	summaries := s.timeline.Scenarios()
	out := listScenariosOutput{
		Scenarios: make([]scenarioOutput, len(summaries)),
		Count:     len(summaries),
	}
	for i, sc := range summaries {
		out.Scenarios[i] = scenarioOutput(sc)
	}
	return nil, out, nil
}

func (s *Server) handleStartScenario(_ context.Context, _ *gomcp.CallToolRequest, input startScenarioInput) (*gomcp.CallToolResult, timelineOutput, error) {
	if input.ScenarioID == "" {
		return errorResult("scenario_id is required"), emptyTimelineOutput(), nil
	}
	if !s.timeline.StartScenario(input.ScenarioID) {
		return errorResult(fmt.Sprintf("unknown scenario %q", input.ScenarioID)), emptyTimelineOutput(), nil
	}
	return nil, toTimelineOutput(s.timeline.Snapshot()), nil
}

func (s *Server) handleSendAgentMessage(_ context.Context, _ *gomcp.CallToolRequest, input sendMessageInput) (*gomcp.CallToolResult, timelineOutput, error) {
	if strings.TrimSpace(input.Text) == "" {
		return errorResult("text is required"), emptyTimelineOutput(), nil
	}
	if !s.timeline.SendAgentMessage(input.Text) {
		return errorResult("no conversation is running"), emptyTimelineOutput(), nil
	}
	return nil, toTimelineOutput(s.timeline.Snapshot()), nil
}

func (s *Server) handleResolveIssue(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, timelineOutput, error) {
	if !s.timeline.ResolveIssue() {
		return errorResult("nothing to resolve: start a scenario first"), emptyTimelineOutput(), nil
	}
	return nil, toTimelineOutput(s.timeline.Snapshot()), nil
}

func (s *Server) handleApproveDraft(_ context.Context, _ *gomcp.CallToolRequest, input draftInput) (*gomcp.CallToolResult, timelineOutput, error) {
	return s.decide(input.DraftID, s.timeline.ApproveDraft)
}

func (s *Server) handleRejectDraft(_ context.Context, _ *gomcp.CallToolRequest, input draftInput) (*gomcp.CallToolResult, timelineOutput, error) {
	return s.decide(input.DraftID, s.timeline.RejectDraft)
}

func (s *Server) decide(draftID string, fn func(string) error) (*gomcp.CallToolResult, timelineOutput, error) {
	if draftID == "" {
		return errorResult("draft_id is required"), emptyTimelineOutput(), nil
	}
	if err := fn(draftID); err != nil {
		if errors.Is(err, core.ErrDraftNotFound) {
			return errorResult(fmt.Sprintf("no draft %q on the timeline", draftID)), emptyTimelineOutput(), nil
		}
		return errorResult(err.Error()), emptyTimelineOutput(), nil
	}
	return nil, toTimelineOutput(s.timeline.Snapshot()), nil
}

func (s *Server) handleAddNote(_ context.Context, _ *gomcp.CallToolRequest, input addNoteInput) (*gomcp.CallToolResult, timelineOutput, error) {
	if strings.TrimSpace(input.Text) == "" {
		return errorResult("text is required"), emptyTimelineOutput(), nil
	}
	if !s.timeline.AddNote(input.Text) {
		return errorResult("no conversation is running"), emptyTimelineOutput(), nil
	}
	return nil, toTimelineOutput(s.timeline.Snapshot()), nil
}

func (s *Server) handleReset(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, timelineOutput, error) {
	s.timeline.Reset()
	return nil, toTimelineOutput(s.timeline.Snapshot()), nil
}

func (s *Server) handleGetTimeline(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, timelineOutput, error) {
	return nil, toTimelineOutput(s.timeline.Snapshot()), nil
}

func (s *Server) handleGetKnowledgeGraph(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, graphOutput, error) {
	g := s.timeline.KnowledgeGraph()
	out := graphOutput{Nodes: g.Nodes, Edges: g.Edges}
	if out.Nodes == nil {
		out.Nodes = []models.GraphNode{}
	}
	if out.Edges == nil {
		out.Edges = []models.GraphEdge{}
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (observability may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		RunsStarted:    metrics.RunsStarted,
		RunsResolved:   metrics.RunsResolved,
		ResolutionRate: metrics.ResolutionRate(),
		AgentMessages:  metrics.AgentMessages,
		EventsByKind:   metrics.EventsByKind,
		QueryFailures:  metrics.QueryFailures,
		GapsDetected:   metrics.GapsDetected,
		DraftsCreated:  metrics.DraftsCreated,
		DraftsApproved: metrics.DraftsApproved,
		DraftsRejected: metrics.DraftsRejected,
		EventCount:     metrics.EventCount,
	}
	if out.EventsByKind == nil {
		out.EventsByKind = make(map[string]int)
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (observability may be disabled)"), getAlertsOutput{Alerts: []alertOutput{}}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{Alerts: []alertOutput{}}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func toTimelineOutput(snap models.Snapshot) timelineOutput {
	out := emptyTimelineOutput()
	out.RunID = snap.RunID
	out.ScenarioID = snap.ScenarioID
	out.Phase = string(snap.Phase)
	out.IsResolved = snap.IsResolved
	out.ComposeText = snap.ComposeText

	for _, m := range snap.Messages {
		out.Messages = append(out.Messages, messageOutput{Sender: string(m.Sender), Name: m.Name, Text: m.Text})
	}
	for _, ev := range snap.Events {
		out.Events = append(out.Events, eventOutput{ID: ev.ID, Type: string(ev.Kind), Summary: summarizeEvent(ev)})
		if ev.Kind == models.EventLearn && ev.Learn != nil {
			status := string(ev.Learn.Status)
			if status == "" {
				status = "pending"
			}
			out.Drafts = append(out.Drafts, draftOutput{
				DraftID:      ev.Learn.DraftID,
				Title:        ev.Learn.Title,
				SourceTicket: ev.Learn.SourceTicket,
				Status:       status,
			})
		}
	}
	out.SuggestedReplies = append(out.SuggestedReplies, snap.SuggestedReplies...)
	out.Notes = append(out.Notes, snap.Notes...)
	return out
}

// summarizeEvent renders a one-line description of a timeline event.
func summarizeEvent(ev models.CopilotEvent) string {
	switch {
	case ev.Thinking != nil:
		return strings.Join(ev.Thinking.Steps, " / ")
	case ev.ToolCall != nil:
		return fmt.Sprintf("%s (%s)", ev.ToolCall.Tool, ev.ToolCall.Status)
	case ev.Results != nil:
		titles := make([]string, 0, len(ev.Results.Results))
		for _, r := range ev.Results.Results {
			titles = append(titles, r.Title)
		}
		if len(titles) == 0 {
			return ev.Results.Message
		}
		return fmt.Sprintf("%d %s results: %s", len(titles), ev.Results.Category, strings.Join(titles, "; "))
	case ev.Suggestion != nil:
		return ev.Suggestion.Title
	case ev.Gap != nil:
		return fmt.Sprintf("%s: %s", ev.Gap.TicketNumber, ev.Gap.Message)
	case ev.Learn != nil:
		return fmt.Sprintf("draft %s: %s", ev.Learn.DraftID, ev.Learn.Title)
	case ev.Knowledge != nil:
		return ev.Knowledge.Title
	}
	return ""
}

func emptyTimelineOutput() timelineOutput {
	return timelineOutput{
		Phase:            string(models.PhaseIdle),
		Messages:         []messageOutput{},
		Events:           []eventOutput{},
		Drafts:           []draftOutput{},
		SuggestedReplies: []string{},
		Notes:            []string{},
	}
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{EventsByKind: make(map[string]int)}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
