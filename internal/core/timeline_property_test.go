package core

import (
	"testing"
	"time"

	"github.com/valter-silva-au/meridian/pkg/models"
	"pgregory.net/rapid"
)

// drawOps plays a random prefix of user actions against r so properties are
// checked from arbitrary mid-run states.
func drawOps(rt *rapid.T, r *testRig) {
	ops := rapid.SliceOfN(rapid.IntRange(0, 4), 0, 8).Draw(rt, "ops")
	for _, op := range ops {
		switch op {
		case 0:
			r.orch.StartScenario(rapid.SampledFrom([]string{"advance-date", "blank-pdf"}).Draw(rt, "scenario"))
		case 1:
			ms := rapid.IntRange(1, 5000).Draw(rt, "advance_ms")
			r.advance(time.Duration(ms) * time.Millisecond)
		case 2:
			r.orch.SendAgentMessage(rapid.StringMatching(`[a-z]{1,12}`).Draw(rt, "text"))
		case 3:
			r.orch.ResolveIssue()
		case 4:
			r.settle()
		}
	}
}

// Feature: meridian, Property 2: Starting a scenario clears the run
// Right after StartScenario, before any timer fires, messages and events are
// empty and the current index is -1, whatever ran before.
func TestProperty2_StartClearsState(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := buildRig(gapService(), supportScenario(), gapScenario())
		defer r.orch.Close()

		drawOps(rt, r)
		id := rapid.SampledFrom([]string{"advance-date", "blank-pdf"}).Draw(rt, "start")
		if !r.orch.StartScenario(id) {
			rt.Fatalf("StartScenario(%q) returned false", id)
		}

		s := r.snap()
		if len(s.Messages) != 0 || len(s.Events) != 0 || s.CurrentMessageIndex != -1 {
			rt.Fatalf("state not cleared: %d messages, %d events, index %d", len(s.Messages), len(s.Events), s.CurrentMessageIndex)
		}
		if len(s.SuggestedReplies) != 0 || s.ComposeText != "" || s.IsResolved {
			rt.Fatalf("leftover run state: %+v", s)
		}
	})
}

// Feature: meridian, Property 3: Agent replies interleave in call order
// Sending after each customer message yields N agent entries, each following
// its customer entry, in the order they were sent.
func TestProperty3_AgentRepliesInterleave(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := buildRig(nil, supportScenario())
		defer r.orch.Close()

		texts := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,12}`), 1, 3).Draw(rt, "texts")
		r.orch.StartScenario("advance-date")
		for _, text := range texts {
			r.settle()
			if !r.orch.SendAgentMessage(text) {
				rt.Fatalf("SendAgentMessage(%q) returned false", text)
			}
		}
		r.settle()

		msgs := r.snap().Messages
		var agent []string
		for i, m := range msgs {
			if m.Sender != models.SenderAgent {
				continue
			}
			agent = append(agent, m.Text)
			if i == 0 || msgs[i-1].Sender != models.SenderCustomer {
				rt.Fatalf("agent message %d does not follow a customer message: %+v", i, msgs)
			}
		}
		if len(agent) != len(texts) {
			rt.Fatalf("agent messages = %v, want %v", agent, texts)
		}
		for i := range texts {
			if agent[i] != texts[i] {
				rt.Fatalf("agent message %d = %q, want %q", i, agent[i], texts[i])
			}
		}
	})
}

// Feature: meridian, Property 4: Reset stops all growth
// After Reset, advancing time never adds messages or events.
func TestProperty4_ResetStopsGrowth(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := buildRig(gapService(), supportScenario(), gapScenario())
		defer r.orch.Close()

		drawOps(rt, r)
		r.orch.Reset()
		before := r.snap()

		r.advance(time.Duration(rapid.IntRange(0, 60).Draw(rt, "seconds")) * time.Second)
		r.settle()

		after := r.snap()
		if len(after.Events) != len(before.Events) || len(after.Messages) != len(before.Messages) {
			rt.Fatalf("timeline grew after reset: events %d -> %d, messages %d -> %d",
				len(before.Events), len(after.Events), len(before.Messages), len(after.Messages))
		}
		if after.Phase != models.PhaseIdle {
			rt.Fatalf("phase after reset = %s, want idle", after.Phase)
		}
	})
}

// Feature: meridian, Property 6: Draft approval is idempotent
// Approving a draft any number of times leaves it approved, and a later
// reject does not flip it.
func TestProperty6_ApproveIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := buildRig(gapService(), gapScenario())
		defer r.orch.Close()

		r.orch.StartScenario("blank-pdf")
		r.settle()
		r.orch.ResolveIssue()
		r.settle()

		n := rapid.IntRange(1, 4).Draw(rt, "approvals")
		for i := 0; i < n; i++ {
			if err := r.orch.ApproveDraft("KB-DRAFT-1"); err != nil {
				rt.Fatalf("ApproveDraft: %v", err)
			}
		}
		if rapid.Bool().Draw(rt, "reject_after") {
			if err := r.orch.RejectDraft("KB-DRAFT-1"); err != nil {
				rt.Fatalf("RejectDraft: %v", err)
			}
		}
		r.orch.Wait()

		s := r.snap()
		ev, ok := s.FindLearnEvent("KB-DRAFT-1")
		if !ok || ev.Learn.Status != models.DraftApproved {
			rt.Fatalf("learn event status = %+v, want approved", ev.Learn)
		}
		if s.CountKind(models.EventLearn) != 1 {
			rt.Fatalf("learn events = %d, want 1", s.CountKind(models.EventLearn))
		}
	})
}
