package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/valter-silva-au/meridian/internal/core"
	"github.com/valter-silva-au/meridian/pkg/models"
)

// describeEvent renders a copilot event as a single line.
func describeEvent(ev models.CopilotEvent) string {
	switch ev.Kind {
	case models.EventThinking:
		if ev.Thinking != nil && len(ev.Thinking.Steps) > 0 {
			return "thinking: " + strings.Join(ev.Thinking.Steps, " / ")
		}
		return "thinking"
	case models.EventToolCall:
		if ev.ToolCall != nil {
			return fmt.Sprintf("tool %s (%s)", ev.ToolCall.Tool, ev.ToolCall.Status)
		}
	case models.EventKBResult, models.EventTicketResult, models.EventSimilarDetected:
		if ev.Results != nil {
			line := fmt.Sprintf("%s: %d result(s)", ev.Results.Category, len(ev.Results.Results))
			if len(ev.Results.Results) > 0 {
				top := ev.Results.Results[0]
				line += fmt.Sprintf(", top %q %d%%", top.Title, core.Percent(top.Score))
			}
			return line
		}
	case models.EventSuggestion:
		if ev.Suggestion != nil {
			return "suggestion: " + ev.Suggestion.Title
		}
	case models.EventGapDetection:
		if ev.Gap != nil {
			return fmt.Sprintf("knowledge gap on %s (%s, best match %d%%)",
				ev.Gap.TicketNumber, ev.Gap.Module, core.Percent(ev.Gap.Similarity))
		}
	case models.EventLearn:
		if ev.Learn != nil {
			status := string(ev.Learn.Status)
			if status == "" {
				status = "pending"
			}
			return fmt.Sprintf("KB draft %s %q [%s]", ev.Learn.DraftID, ev.Learn.Title, status)
		}
	case models.EventKnowledgeGained:
		if ev.Knowledge != nil {
			return "learned: " + ev.Knowledge.Title
		}
	}
	return string(ev.Kind)
}

// pendingDraft returns the first learn event still awaiting review.
func pendingDraft(snap models.Snapshot) (models.LearnPayload, bool) {
	for _, ev := range snap.Events {
		if ev.Kind == models.EventLearn && ev.Learn != nil && ev.Learn.Status == models.DraftPending {
			return *ev.Learn, true
		}
	}
	return models.LearnPayload{}, false
}

// writeTranscript prints the conversation, the copilot timeline and any
// notes of a snapshot.
func writeTranscript(w io.Writer, snap models.Snapshot) {
	fmt.Fprintf(w, "Run %s (%s), phase %s", snap.RunID, snap.ScenarioID, snap.Phase)
	if snap.IsResolved {
		fmt.Fprint(w, ", resolved")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\nConversation (%d messages):\n", len(snap.Messages))
	for _, m := range snap.Messages {
		fmt.Fprintf(w, "  %s [%s] %s: %s\n", m.Timestamp, m.Sender, m.Name, m.Text)
	}

	fmt.Fprintf(w, "\nCopilot timeline (%d events):\n", len(snap.Events))
	for _, ev := range snap.Events {
		fmt.Fprintf(w, "  %-18s %s\n", ev.Kind, describeEvent(ev))
	}

	if len(snap.Notes) > 0 {
		fmt.Fprintln(w, "\nNotes:")
		for _, n := range snap.Notes {
			fmt.Fprintf(w, "  - %s\n", n)
		}
	}
}
