package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valter-silva-au/meridian/internal/core"
	"github.com/valter-silva-au/meridian/pkg/models"
)

var (
	replayJSON     bool
	replayResolve  bool
	replayDecision string
	replayReply    string
)

// maxReplayTurns bounds the agent turns of a replay.
const maxReplayTurns = 200

const defaultReplayReply = "Thanks, let me look into that for you."

var replayCmd = &cobra.Command{
	Use:   "replay <scenario-id>",
	Short: "Play a scenario headless on a simulated clock",
	Long: `Play a scenario from start to finish without waiting for real time.

Whenever the customer is waiting, the agent answers with the prefilled
reply, the first suggested reply chip, or --reply. At the end the issue
is resolved (unless --resolve=false) and the KB draft, if any, is
approved or rejected according to --decision. The final transcript and
copilot timeline are printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if NewTimeline == nil {
			return fmt.Errorf("timeline factory not initialized")
		}
		switch replayDecision {
		case "approve", "reject", "none":
		default:
			return fmt.Errorf("--decision must be one of: approve, reject, none")
		}

		clock := core.NewManualClock(time.Now().UTC())
		orch := NewTimeline(clock)
		defer orch.Close()

		snap, err := replay(orch, clock, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if replayJSON {
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting snapshot as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		writeTranscript(out, snap)
		return nil
	},
}

// replay drives a run on clock until the conversation ends, then resolves
// and reviews the draft as configured.
func replay(orch core.TimelineOrchestrator, clock *core.ManualClock, scenarioID string) (models.Snapshot, error) {
	if !orch.StartScenario(scenarioID) {
		return models.Snapshot{}, fmt.Errorf("unknown scenario %q", scenarioID)
	}

	for turn := 0; ; turn++ {
		settle(orch, clock)
		snap := orch.Snapshot()
		if snap.Phase != models.PhaseAwaitingAgent {
			break
		}
		if turn >= maxReplayTurns {
			return snap, fmt.Errorf("scenario %s did not finish after %d agent turns", scenarioID, maxReplayTurns)
		}
		orch.SendAgentMessage(replyFor(snap))
	}

	if !replayResolve {
		return orch.Snapshot(), nil
	}
	orch.ResolveIssue()
	settle(orch, clock)

	if replayDecision == "none" {
		return orch.Snapshot(), nil
	}
	draft, ok := pendingDraft(orch.Snapshot())
	if !ok {
		return orch.Snapshot(), nil
	}
	decide := orch.ApproveDraft
	if replayDecision == "reject" {
		decide = orch.RejectDraft
	}
	if err := decide(draft.DraftID); err != nil && !errors.Is(err, core.ErrDraftNotFound) {
		return orch.Snapshot(), fmt.Errorf("reviewing draft %s: %w", draft.DraftID, err)
	}
	settle(orch, clock)
	logger().Debug("replay finished", zap.String("scenario_id", scenarioID), zap.String("draft_id", draft.DraftID))
	return orch.Snapshot(), nil
}

// settle fires every pending timer, letting remote calls land in between.
func settle(orch core.TimelineOrchestrator, clock *core.ManualClock) {
	for {
		orch.Wait()
		if !clock.Step() {
			return
		}
	}
}

func replyFor(snap models.Snapshot) string {
	if snap.ComposeText != "" {
		return snap.ComposeText
	}
	if len(snap.SuggestedReplies) > 0 {
		return snap.SuggestedReplies[0]
	}
	if replayReply != "" {
		return replayReply
	}
	return defaultReplayReply
}

func init() {
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Output the final snapshot as JSON")
	replayCmd.Flags().BoolVar(&replayResolve, "resolve", true, "Resolve the issue once the conversation ends")
	replayCmd.Flags().StringVar(&replayDecision, "decision", "approve", "What to do with a generated KB draft: approve, reject or none")
	replayCmd.Flags().StringVar(&replayReply, "reply", "", "Agent reply used when no suggestion is available")
	rootCmd.AddCommand(replayCmd)
}
