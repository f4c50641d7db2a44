package core

import (
	"fmt"
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/valter-silva-au/meridian/pkg/models"
)

// GapThreshold is the resolution similarity below which the intelligence
// service reports a knowledge gap.
const GapThreshold = 0.40

const (
	queryPreviewRunes = 60
	draftSummaryRunes = 500
)

// Per-event delays of generated batches, in milliseconds relative to the
// previous event of the batch.
const (
	delayQueryThinking = 0
	delayToolCall      = 600
	delayResults       = 500
	delaySuggestion    = 700
	delayGap           = 400
	delayLearn         = 600
)

// Percent converts a 0..1 score into a whole percentage, rounding half up.
// The product is snapped to 1e-6 first so binary noise such as
// 0.285*100 = 28.499999999999996 still rounds to 29.
func Percent(v float64) int {
	x := math.Round(v*100*1e6) / 1e6
	return int(math.Floor(x + 0.5))
}

// ScheduledEvent is an event paired with its offset from the start of its
// batch.
type ScheduledEvent struct {
	Event  models.CopilotEvent
	Offset time.Duration
}

// Stagger computes the absolute offset of every event in a batch: the
// running sum of its own delay and the delays of all events before it.
// Negative delays count as zero.
func Stagger(events []models.CopilotEvent) []ScheduledEvent {
	out := make([]ScheduledEvent, 0, len(events))
	var total time.Duration
	for _, e := range events {
		if e.DelayMs > 0 {
			total += time.Duration(e.DelayMs) * time.Millisecond
		}
		out = append(out, ScheduledEvent{Event: e, Offset: total})
	}
	return out
}

// BuildQueryEvents translates a query response into the timeline batch
// shown while the copilot "works": a reasoning summary, the three tool
// calls, result cards and, when derivable, a suggestion.
func BuildQueryEvents(ids IDGenerator, query string, resp *models.QueryResponse) []models.CopilotEvent {
	if resp == nil {
		resp = &models.QueryResponse{}
	}
	predicted := resp.PredictedType

	steps := []string{
		fmt.Sprintf("Analyzing query: %q", truncateRunes(query, queryPreviewRunes, "...")),
		fmt.Sprintf("Classified as %s (%d%% confidence)", predicted, Percent(resp.ConfidenceScores[predicted])),
		fmt.Sprintf("Found %d primary results", len(resp.PrimaryResults)),
	}
	if len(resp.PrimaryResults) > 0 {
		top := resp.PrimaryResults[0]
		steps = append(steps, fmt.Sprintf("Top match: %s (%d%% similarity)", top.Title, Percent(top.Score)))
	}

	events := []models.CopilotEvent{
		{
			ID:       ids.NewID("evt"),
			Kind:     models.EventThinking,
			DelayMs:  delayQueryThinking,
			Thinking: &models.ThinkingPayload{Steps: steps},
		},
		{
			ID:      ids.NewID("evt"),
			Kind:    models.EventToolCall,
			DelayMs: delayToolCall,
			ToolCall: &models.ToolCallPayload{
				Tool:   "classify_intent",
				Status: models.ToolStatusCompleted,
				Input:  map[string]any{"query": query},
				Output: map[string]any{
					"predicted_type":    predicted,
					"confidence_scores": copyScores(resp.ConfidenceScores),
				},
			},
		},
		searchToolEvent(ids, "search_kb", query, categoryResults(resp, models.CategoryKB)),
		searchToolEvent(ids, "search_tickets", query, categoryResults(resp, models.CategoryTicket)),
	}

	if len(resp.PrimaryResults) > 0 {
		events = append(events, resultEvent(ids, predicted, "", resp.PrimaryResults))
	}

	keys := make([]string, 0, len(resp.SecondaryResults))
	for k := range resp.SecondaryResults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		results := resp.SecondaryResults[k]
		if len(results) == 0 {
			continue
		}
		events = append(events, resultEvent(ids, k, fmt.Sprintf("Related %s results", k), results))
	}

	if s := BuildSuggestion(resp); s != nil {
		events = append(events, models.CopilotEvent{
			ID:         ids.NewID("evt"),
			Kind:       models.EventSuggestion,
			DelayMs:    delaySuggestion,
			Suggestion: s,
		})
	}

	return events
}

// categoryResults returns the result list the service found for category:
// the primary list when it was the predicted category, else the matching
// secondary slice.
func categoryResults(resp *models.QueryResponse, category string) []models.ResultItem {
	if resp.PredictedType == category {
		return resp.PrimaryResults
	}
	return resp.SecondaryResults[category]
}

func searchToolEvent(ids IDGenerator, tool, query string, results []models.ResultItem) models.CopilotEvent {
	topMatch := ""
	if len(results) > 0 {
		topMatch = results[0].Title
	}
	return models.CopilotEvent{
		ID:      ids.NewID("evt"),
		Kind:    models.EventToolCall,
		DelayMs: delayToolCall,
		ToolCall: &models.ToolCallPayload{
			Tool:   tool,
			Status: models.ToolStatusCompleted,
			Input:  map[string]any{"query": query},
			Output: map[string]any{
				"results_count": len(results),
				"top_match":     topMatch,
			},
		},
	}
}

func resultEvent(ids IDGenerator, category, message string, results []models.ResultItem) models.CopilotEvent {
	kind := models.EventKBResult
	if category == models.CategoryTicket {
		kind = models.EventTicketResult
	}
	return models.CopilotEvent{
		ID:      ids.NewID("evt"),
		Kind:    kind,
		DelayMs: delayResults,
		Results: &models.ResultsPayload{
			Category: category,
			Message:  message,
			Results:  append([]models.ResultItem(nil), results...),
		},
	}
}

// BuildSuggestion derives the agent's next step from the top primary
// result. It returns nil when there are no primary results or the predicted
// category has no playbook. Only script suggestions carry a reply draft.
func BuildSuggestion(resp *models.QueryResponse) *models.SuggestionPayload {
	if resp == nil || len(resp.PrimaryResults) == 0 {
		return nil
	}
	top := resp.PrimaryResults[0]

	switch resp.PredictedType {
	case models.CategoryScript:
		var actions []string
		if inputs := metadataString(top.Metadata, "inputs"); inputs != "" {
			actions = append(actions, "Verify required inputs: "+inputs)
		}
		actions = append(actions,
			fmt.Sprintf("Confirm the customer's environment matches %s", top.Title),
			fmt.Sprintf("Escalate to Tier 3 for script execution (%s)", top.DocID),
		)
		return &models.SuggestionPayload{
			Title:    "Run backend script: " + top.Title,
			Actions:  actions,
			Reply:    fmt.Sprintf("Thanks for the details. This needs a backend data correction, so I'm escalating it to our Tier 3 team to run script %s (%s). I'll follow up as soon as it has been applied.", top.DocID, top.Title),
			SourceID: top.DocID,
			Category: models.CategoryScript,
		}

	case models.CategoryKB:
		origin := "Seed article authored by the support team"
		if isLearnedArticle(top) {
			origin = "Learned article generated from a previously resolved ticket"
		}
		return &models.SuggestionPayload{
			Title: "Share KB article: " + top.Title,
			Actions: []string{
				fmt.Sprintf("Review %s: %s", top.DocID, top.Title),
				"Walk the customer through the article's resolution steps",
				origin,
			},
			SourceID: top.DocID,
			Category: models.CategoryKB,
		}

	case models.CategoryTicket:
		return &models.SuggestionPayload{
			Title: "Reuse prior resolution: " + top.Title,
			Actions: []string{
				fmt.Sprintf("Review how %s was resolved", top.DocID),
				"Adapt the prior resolution to this customer's setup",
				"Confirm the fix with the customer before closing",
			},
			SourceID: top.DocID,
			Category: models.CategoryTicket,
		}
	}
	return nil
}

// isLearnedArticle reports whether a KB result was synthesized from a ticket
// rather than seeded.
func isLearnedArticle(item models.ResultItem) bool {
	switch metadataString(item.Metadata, "source_type") {
	case "SYNTH_FROM_TICKET", "GENERATED", "LEARNED":
		return true
	}
	return false
}

// BuildGapEvents translates a gap-check response. A response without a gap
// produces no events.
func BuildGapEvents(ids IDGenerator, resp *models.GapCheckResponse) []models.CopilotEvent {
	if resp == nil || !resp.IsGap {
		return nil
	}
	return []models.CopilotEvent{{
		ID:      ids.NewID("evt"),
		Kind:    models.EventGapDetection,
		DelayMs: delayGap,
		Gap: &models.GapPayload{
			TicketNumber: resp.TicketNumber,
			Category:     resp.Category,
			Module:       resp.Module,
			Similarity:   resp.ResolutionSimilarity,
			Message: fmt.Sprintf("No KB article covers this %s issue in %s: best match was %d%% similar, below the %d%% threshold",
				resp.Category, resp.Module, Percent(resp.ResolutionSimilarity), Percent(GapThreshold)),
		},
	}}
}

// BuildDraftEvents translates a draft-generation response. A response
// without a draft identifier produces no events.
func BuildDraftEvents(ids IDGenerator, resp *models.DraftResponse) []models.CopilotEvent {
	if resp == nil || resp.DraftID == "" {
		return nil
	}
	return []models.CopilotEvent{{
		ID:      ids.NewID("evt"),
		Kind:    models.EventLearn,
		DelayMs: delayLearn,
		Learn: &models.LearnPayload{
			DraftID:      resp.DraftID,
			Title:        resp.Title,
			SourceTicket: resp.SourceTicket,
			DetectedGap:  fmt.Sprintf("No existing KB article for %s issues in %s", resp.Category, resp.Module),
			Summary:      truncateRunes(resp.Body, draftSummaryRunes, ""),
		},
	}}
}

// truncateRunes cuts s to at most n runes, appending suffix when it cut.
func truncateRunes(s string, n int, suffix string) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + suffix
}

func metadataString(m map[string]any, key string) string {
	if v, ok := m[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

func copyScores(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
