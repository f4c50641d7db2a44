package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/meridian/pkg/models"
	"go.uber.org/zap"
)

// Playback timings, in milliseconds.
const (
	DefaultWarmupMs      = 800
	DefaultMaxDelayMs    = 3000
	DefaultGraphDelayMs  = 1500
	followUpThinkingMs   = 400
	followUpSuggestionMs = 500
	replyChipsMs         = 1500
	draftAfterGapMs      = 1500
)

// ErrClosed is returned by operations invoked after Close.
var ErrClosed = errors.New("timeline closed")

// TimelineDeps wires a TimelineOrchestrator. Scenarios and Source are
// required; every other collaborator may be nil.
type TimelineDeps struct {
	Scenarios ScenarioSource
	Source    IntelligenceService
	Clock     Clock
	IDs       IDGenerator
	// RunIDs names archived runs. Archives outlive the process, so nil
	// means NewUUIDIDGenerator rather than a counter.
	RunIDs      IDGenerator
	Logger      *zap.Logger
	EventLogger EventLogger
	Transcripts TranscriptArchiver
	Decisions   DecisionRecorder
	Notifier    GapNotifier
	BaseGraph   models.KnowledgeGraph
	// Warmup is the pause before the first scenario message. Zero means
	// DefaultWarmupMs.
	Warmup time.Duration
	// MaxDelay caps authored per-message delays. Zero means
	// DefaultMaxDelayMs.
	MaxDelay time.Duration
}

// TimelineOrchestrator drives a simulated support conversation and the
// copilot activity timeline that accompanies it. All methods are safe for
// concurrent use; state changes are serialized.
type TimelineOrchestrator interface {
	// StartScenario abandons the current run and starts a new one. It
	// returns false when the scenario id is unknown.
	StartScenario(id string) bool
	// SendAgentMessage appends an agent reply and resumes scripted playback.
	// Blank text or no active scenario is ignored and returns false.
	SendAgentMessage(text string) bool
	// ResolveIssue marks the run resolved and, for gap scenarios, kicks off
	// gap detection and draft generation. It returns false when there is
	// nothing to resolve.
	ResolveIssue() bool
	// ApproveDraft and RejectDraft set a learn event's status locally and
	// notify the intelligence service on a best-effort basis.
	ApproveDraft(draftID string) error
	RejectDraft(draftID string) error
	// AddNote attaches a free-form agent note to the run.
	AddNote(text string) bool
	// Reset returns to the idle state.
	Reset()
	// Close cancels every timer and in-flight call and waits for them.
	Close()
	// Closed reports whether Close has been called.
	Closed() bool
	// Wait blocks until in-flight remote calls have returned. It is meant
	// for drivers of a ManualClock.
	Wait()

	Snapshot() models.Snapshot
	// Subscribe returns a channel that always holds the latest snapshot
	// and a function that unsubscribes.
	Subscribe(buffer int) (<-chan models.Snapshot, func())
	// KnowledgeGraph returns the base graph merged with the run's updates.
	KnowledgeGraph() models.KnowledgeGraph
	Scenarios() []models.ScenarioSummary
}

type timelineOrchestrator struct {
	scenarios   ScenarioSource
	source      IntelligenceService
	clock       Clock
	ids         IDGenerator
	runIDs      IDGenerator
	log         *zap.Logger
	eventLogger EventLogger
	transcripts TranscriptArchiver
	decisions   DecisionRecorder
	notifier    GapNotifier
	baseGraph   models.KnowledgeGraph
	warmup      time.Duration
	maxDelay    time.Duration

	baseCtx    context.Context
	baseCancel context.CancelFunc
	inflight   sync.WaitGroup

	mu sync.Mutex
	// epoch invalidates timers and remote completions. It moves on start,
	// reset, resolve and close.
	epoch       uint64
	epochCtx    context.Context
	epochCancel context.CancelFunc
	timers      map[uint64]Timer
	timerSeq    uint64
	closed      bool

	scenario     *models.Scenario
	runID        string
	phase        models.Phase
	resolved     bool
	current      int
	messages     []models.ChatMessage
	events       []models.CopilotEvent
	replies      []string
	compose      string
	graphUpdates []models.KnowledgeGraphUpdate
	notes        []string
	triggered    map[int]bool
	queryFired   bool

	subs   map[uint64]chan models.Snapshot
	subSeq uint64
}

// NewTimelineOrchestrator creates an idle TimelineOrchestrator.
func NewTimelineOrchestrator(deps TimelineDeps) TimelineOrchestrator {
	o := &timelineOrchestrator{
		scenarios:   deps.Scenarios,
		source:      deps.Source,
		clock:       deps.Clock,
		ids:         deps.IDs,
		runIDs:      deps.RunIDs,
		log:         deps.Logger,
		eventLogger: deps.EventLogger,
		transcripts: deps.Transcripts,
		decisions:   deps.Decisions,
		notifier:    deps.Notifier,
		baseGraph:   deps.BaseGraph,
		warmup:      deps.Warmup,
		maxDelay:    deps.MaxDelay,
		timers:      make(map[uint64]Timer),
		subs:        make(map[uint64]chan models.Snapshot),
	}
	if o.clock == nil {
		o.clock = NewRealClock()
	}
	if o.ids == nil {
		o.ids = NewCounterIDGenerator(0)
	}
	if o.runIDs == nil {
		o.runIDs = NewUUIDIDGenerator()
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.warmup == 0 {
		o.warmup = DefaultWarmupMs * time.Millisecond
	}
	if o.maxDelay == 0 {
		o.maxDelay = DefaultMaxDelayMs * time.Millisecond
	}
	o.baseCtx, o.baseCancel = context.WithCancel(context.Background())
	o.epochCtx, o.epochCancel = context.WithCancel(o.baseCtx)
	o.clearLocked()
	return o
}

func (o *timelineOrchestrator) StartScenario(id string) bool {
	sc, err := o.scenarios.Get(id)
	if err != nil {
		o.log.Debug("ignoring start of unknown scenario", zap.String("scenario_id", id), zap.Error(err))
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}

	o.archiveLocked(models.OutcomeSuperseded)
	o.bumpEpochLocked()
	o.clearLocked()

	o.scenario = sc
	o.runID = o.runIDs.NewID("run")
	o.phase = models.PhasePlaying
	o.scheduleLocked(o.warmup, func() { o.advanceLocked(0) })

	o.log.Info("scenario started", zap.String("run_id", o.runID), zap.String("scenario_id", sc.ID))
	o.logEvent("scenario.started", map[string]any{
		"scenario_id": sc.ID,
		"messages":    len(sc.Messages),
	})
	o.publishLocked()
	return true
}

// advanceLocked plays the scenario message at index i. Only the message
// right after the current one may play; anything else is a stale timer.
func (o *timelineOrchestrator) advanceLocked(i int) {
	sc := o.scenario
	if sc == nil || o.resolved {
		return
	}
	if i != o.current+1 {
		o.log.Debug("dropping stale advance", zap.Int("index", i), zap.Int("current", o.current))
		return
	}
	if i >= len(sc.Messages) {
		o.endLocked()
		return
	}

	msg := sc.Messages[i]
	if msg.Role == models.SenderCustomer {
		o.appendMessageLocked(models.SenderCustomer, sc.CustomerName, msg.Text)
		o.current = i
		o.phase = models.PhaseAwaitingAgent
		o.runTriggersLocked(i)
		return
	}

	o.appendMessageLocked(models.SenderAgent, sc.AgentName, msg.Text)
	o.current = i
	if i+1 < len(sc.Messages) {
		o.phase = models.PhasePlaying
		next := i + 1
		o.scheduleLocked(o.cappedDelay(sc.Messages[next].DelayMs), func() { o.advanceLocked(next) })
		return
	}
	o.endLocked()
}

func (o *timelineOrchestrator) endLocked() {
	if o.phase == models.PhaseEnded {
		return
	}
	o.phase = models.PhaseEnded
	o.logEvent("scenario.ended", map[string]any{"messages": len(o.messages)})
}

// runTriggersLocked fires the reactions configured for a customer message.
// Each index triggers at most once per run.
func (o *timelineOrchestrator) runTriggersLocked(i int) {
	if o.triggered[i] {
		return
	}
	o.triggered[i] = true
	sc := o.scenario

	if i == sc.QueryTriggerIndex {
		if !o.queryFired {
			o.queryFired = true
			query := sc.QueryText
			if strings.TrimSpace(query) == "" {
				query = sc.Messages[i].Text
			}
			o.startQueryLocked(query)
		}
	} else if f, ok := sc.FollowUpAt(i); ok {
		o.scheduleBatchLocked(o.followUpEvents(f), 0)
	}

	if r, ok := sc.RepliesAt(i); ok && len(r.Replies) > 0 {
		replies := append([]string(nil), r.Replies...)
		o.scheduleLocked(replyChipsMs*time.Millisecond, func() {
			o.replies = replies
		})
	}

	for _, g := range sc.GraphUpdatesAt(i) {
		delay := g.DelayMs
		if delay <= 0 {
			delay = DefaultGraphDelayMs
		}
		update := g.Update
		o.scheduleLocked(time.Duration(delay)*time.Millisecond, func() {
			o.graphUpdates = append(o.graphUpdates, update)
			o.logEvent("graph.updated", map[string]any{
				"nodes": len(update.Nodes),
				"edges": len(update.Edges),
			})
		})
	}
}

// followUpEvents builds the scripted batch for a follow-up: thinking at
// 400 ms, the suggestion 500 ms later, then any extra scripted events.
func (o *timelineOrchestrator) followUpEvents(f models.FollowUpTrigger) []models.CopilotEvent {
	var events []models.CopilotEvent
	suggestionDelay := followUpSuggestionMs
	if len(f.Thinking) > 0 {
		events = append(events, models.CopilotEvent{
			ID:       o.ids.NewID("evt"),
			Kind:     models.EventThinking,
			DelayMs:  followUpThinkingMs,
			Thinking: &models.ThinkingPayload{Steps: append([]string(nil), f.Thinking...)},
		})
	} else {
		suggestionDelay += followUpThinkingMs
	}
	if f.Suggestion != nil {
		s := *f.Suggestion
		s.Actions = append([]string(nil), f.Suggestion.Actions...)
		events = append(events, models.CopilotEvent{
			ID:         o.ids.NewID("evt"),
			Kind:       models.EventSuggestion,
			DelayMs:    suggestionDelay,
			Suggestion: &s,
		})
	}
	for _, e := range f.Events {
		c := e.Clone()
		c.ID = o.ids.NewID("evt")
		events = append(events, c)
	}
	return events
}

func (o *timelineOrchestrator) startQueryLocked(query string) {
	o.appendEventLocked(models.CopilotEvent{
		ID:   o.ids.NewID("evt"),
		Kind: models.EventThinking,
		Thinking: &models.ThinkingPayload{Steps: []string{
			"Reading the customer's message",
			"Querying the intelligence engine",
		}},
	})

	epoch := o.epoch
	runID := o.runID
	o.goRemoteLocked(func(ctx context.Context) {
		resp, err := o.source.Query(ctx, query)

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.epoch != epoch || o.closed {
			return
		}
		if err != nil {
			o.log.Warn("intelligence query failed", zap.String("run_id", runID), zap.Error(err))
			o.logEvent("query.failed", map[string]any{"error": err.Error()})
			o.appendEventLocked(models.CopilotEvent{
				ID:   o.ids.NewID("evt"),
				Kind: models.EventThinking,
				Thinking: &models.ThinkingPayload{Steps: []string{
					"Intelligence engine unreachable",
					"The conversation may continue without suggestions",
				}},
			})
			o.publishLocked()
			return
		}
		if resp == nil {
			resp = &models.QueryResponse{}
		}

		o.logEvent("query.completed", map[string]any{
			"predicted_type": resp.PredictedType,
			"primary":        len(resp.PrimaryResults),
		})
		o.scheduleBatchLocked(BuildQueryEvents(o.ids, query, resp), 0)
		o.publishLocked()
	})
}

func (o *timelineOrchestrator) SendAgentMessage(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	sc := o.scenario
	if o.closed || sc == nil {
		return false
	}

	o.appendMessageLocked(models.SenderAgent, sc.AgentName, text)
	o.replies = nil
	o.compose = ""
	o.logEvent("message.sent", map[string]any{"length": len(text)})

	if !o.resolved {
		next := o.current + 1
		if next < len(sc.Messages) {
			o.phase = models.PhasePlaying
			o.scheduleLocked(o.cappedDelay(sc.Messages[next].DelayMs), func() { o.advanceLocked(next) })
		} else {
			o.endLocked()
		}
	}

	o.publishLocked()
	return true
}

func (o *timelineOrchestrator) ResolveIssue() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	sc := o.scenario
	if o.closed || sc == nil || o.resolved {
		return false
	}

	o.resolved = true
	o.phase = models.PhaseResolved
	o.bumpEpochLocked()

	o.log.Info("issue resolved", zap.String("run_id", o.runID), zap.String("ticket", sc.TicketNumber))
	o.logEvent("issue.resolved", map[string]any{
		"ticket_number": sc.TicketNumber,
		"gap_scenario":  sc.IsGapScenario,
	})

	if sc.TicketNumber != "" && sc.IsGapScenario {
		o.startGapCheckLocked(sc.TicketNumber)
	}

	o.publishLocked()
	return true
}

func (o *timelineOrchestrator) startGapCheckLocked(ticket string) {
	o.appendEventLocked(models.CopilotEvent{
		ID:   o.ids.NewID("evt"),
		Kind: models.EventThinking,
		Thinking: &models.ThinkingPayload{Steps: []string{
			fmt.Sprintf("Issue resolved, checking %s for knowledge gaps", ticket),
			"Comparing the resolution against existing KB articles",
		}},
	})

	epoch := o.epoch
	o.goRemoteLocked(func(ctx context.Context) {
		resp, err := o.source.CheckGap(ctx, ticket)

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.epoch != epoch || o.closed {
			return
		}
		if err != nil {
			o.log.Warn("gap check failed", zap.String("ticket", ticket), zap.Error(err))
			o.logEvent("gap.check_failed", map[string]any{"ticket_number": ticket, "error": err.Error()})
			return
		}
		if resp == nil {
			o.log.Warn("gap check returned no result", zap.String("ticket", ticket))
			return
		}

		o.logEvent("gap.checked", map[string]any{
			"ticket_number": ticket,
			"is_gap":        resp.IsGap,
			"similarity":    resp.ResolutionSimilarity,
		})
		events := BuildGapEvents(o.ids, resp)
		if len(events) == 0 {
			return
		}
		end := o.scheduleBatchLocked(events, 0)
		o.scheduleLocked(end+draftAfterGapMs*time.Millisecond, func() {
			o.startDraftLocked(ticket)
		})
	})
}

func (o *timelineOrchestrator) startDraftLocked(ticket string) {
	o.appendEventLocked(models.CopilotEvent{
		ID:   o.ids.NewID("evt"),
		Kind: models.EventThinking,
		Thinking: &models.ThinkingPayload{Steps: []string{
			fmt.Sprintf("Generating a KB draft from %s", ticket),
		}},
	})

	epoch := o.epoch
	o.goRemoteLocked(func(ctx context.Context) {
		resp, err := o.source.GenerateDraft(ctx, ticket)

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.epoch != epoch || o.closed {
			return
		}
		if err != nil {
			o.log.Warn("draft generation failed", zap.String("ticket", ticket), zap.Error(err))
			o.logEvent("draft.generation_failed", map[string]any{"ticket_number": ticket, "error": err.Error()})
			return
		}

		events := BuildDraftEvents(o.ids, resp)
		if len(events) == 0 {
			return
		}
		o.logEvent("draft.generated", map[string]any{"ticket_number": ticket, "draft_id": resp.DraftID})
		o.scheduleBatchLocked(events, 0)
		o.publishLocked()
	})
}

func (o *timelineOrchestrator) ApproveDraft(draftID string) error {
	return o.decideDraft(draftID, models.DraftApproved)
}

func (o *timelineOrchestrator) RejectDraft(draftID string) error {
	return o.decideDraft(draftID, models.DraftRejected)
}

// decideDraft reports status to the service and applies it to the matching
// learn event. The remote call is made for every decision, including drafts
// this run never showed. The local status is one-way: a conflicting
// decision on an already reviewed draft is sent but not applied or
// recorded.
func (o *timelineOrchestrator) decideDraft(draftID string, status models.DraftStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	var learn *models.LearnPayload
	for i := range o.events {
		if o.events[i].Kind == models.EventLearn && o.events[i].Learn != nil && o.events[i].Learn.DraftID == draftID {
			learn = o.events[i].Learn
			break
		}
	}

	decision := models.Decision{
		DraftID:   draftID,
		Status:    status,
		RunID:     o.runID,
		DecidedAt: o.clock.Now(),
	}
	if o.scenario != nil {
		decision.ScenarioID = o.scenario.ID
	}
	record := true
	if learn != nil {
		decision.Title = learn.Title
		decision.SourceTicket = learn.SourceTicket
		switch learn.Status {
		case models.DraftPending:
			learn.Status = status
			o.logEvent("draft."+string(status), map[string]any{"draft_id": draftID})
			o.publishLocked()
		case status:
		default:
			record = false
			o.log.Debug("draft already decided",
				zap.String("draft_id", draftID),
				zap.String("status", string(learn.Status)),
				zap.String("requested", string(status)))
		}
	}

	o.goRemoteLocked(func(ctx context.Context) {
		var resp *models.DecisionResponse
		var err error
		if status == models.DraftApproved {
			resp, err = o.source.ApproveDraft(ctx, draftID)
		} else {
			resp, err = o.source.RejectDraft(ctx, draftID)
		}
		if err != nil {
			o.log.Warn("draft decision not acknowledged", zap.String("draft_id", draftID), zap.String("status", string(status)), zap.Error(err))
			decision.RemoteError = err.Error()
		} else {
			decision.Acknowledged = true
			if resp != nil {
				decision.RemoteDocID = resp.DocID
			}
		}
		if record && o.decisions != nil {
			if err := o.decisions.RecordDecision(o.baseCtx, decision); err != nil {
				o.log.Warn("recording draft decision", zap.String("draft_id", draftID), zap.Error(err))
			}
		}
	})

	if learn == nil {
		return fmt.Errorf("deciding draft %s: %w", draftID, ErrDraftNotFound)
	}
	return nil
}

func (o *timelineOrchestrator) AddNote(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.scenario == nil {
		return false
	}
	o.notes = append(o.notes, text)
	o.publishLocked()
	return true
}

func (o *timelineOrchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.archiveLocked(models.OutcomeReset)
	o.bumpEpochLocked()
	o.clearLocked()
	o.logEvent("timeline.reset", nil)
	o.publishLocked()
}

func (o *timelineOrchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.archiveLocked(models.OutcomeClosed)
	o.closed = true
	o.bumpEpochLocked()
	o.mu.Unlock()

	o.inflight.Wait()
	o.baseCancel()

	o.mu.Lock()
	for id, ch := range o.subs {
		close(ch)
		delete(o.subs, id)
	}
	o.mu.Unlock()
}

func (o *timelineOrchestrator) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *timelineOrchestrator) Wait() {
	o.inflight.Wait()
}

func (o *timelineOrchestrator) Snapshot() models.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *timelineOrchestrator) Subscribe(buffer int) (<-chan models.Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.Snapshot, buffer)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	o.subSeq++
	id := o.subSeq
	o.subs[id] = ch
	ch <- o.snapshotLocked()

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
}

func (o *timelineOrchestrator) KnowledgeGraph() models.KnowledgeGraph {
	o.mu.Lock()
	defer o.mu.Unlock()
	return MergeGraph(o.baseGraph, o.graphUpdates...)
}

func (o *timelineOrchestrator) Scenarios() []models.ScenarioSummary {
	return o.scenarios.List()
}

// --- internals; every *Locked method requires o.mu ---

// clearLocked resets run state to the idle baseline.
func (o *timelineOrchestrator) clearLocked() {
	o.scenario = nil
	o.runID = ""
	o.phase = models.PhaseIdle
	o.resolved = false
	o.current = -1
	o.messages = nil
	o.events = nil
	o.replies = nil
	o.compose = ""
	o.graphUpdates = nil
	o.notes = nil
	o.triggered = make(map[int]bool)
	o.queryFired = false
}

// bumpEpochLocked stops every pending timer and cancels in-flight remote
// calls of the current epoch.
func (o *timelineOrchestrator) bumpEpochLocked() {
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
	o.epochCancel()
	o.epoch++
	o.epochCtx, o.epochCancel = context.WithCancel(o.baseCtx)
}

// scheduleLocked runs fn under o.mu after d, unless the epoch moved on or
// the timer was cancelled first.
func (o *timelineOrchestrator) scheduleLocked(d time.Duration, fn func()) {
	epoch := o.epoch
	o.timerSeq++
	id := o.timerSeq
	o.timers[id] = o.clock.AfterFunc(d, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if _, ok := o.timers[id]; !ok || o.epoch != epoch || o.closed {
			return
		}
		delete(o.timers, id)
		fn()
		o.publishLocked()
	})
}

// scheduleBatchLocked schedules a batch at cumulative offsets after base and
// returns the offset of its last event.
func (o *timelineOrchestrator) scheduleBatchLocked(events []models.CopilotEvent, base time.Duration) time.Duration {
	end := base
	for _, se := range Stagger(events) {
		ev := se.Event
		o.scheduleLocked(base+se.Offset, func() { o.appendEventLocked(ev) })
		end = base + se.Offset
	}
	return end
}

// goRemoteLocked runs fn on its own goroutine with the current epoch's
// context. Close waits for it.
func (o *timelineOrchestrator) goRemoteLocked(fn func(ctx context.Context)) {
	ctx := o.epochCtx
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		fn(ctx)
	}()
}

func (o *timelineOrchestrator) appendMessageLocked(sender models.Sender, name, text string) {
	o.messages = append(o.messages, models.ChatMessage{
		ID:        o.ids.NewID("msg"),
		Sender:    sender,
		Name:      name,
		Text:      text,
		Timestamp: o.clock.Now().Format("15:04"),
	})
}

func (o *timelineOrchestrator) appendEventLocked(ev models.CopilotEvent) {
	o.events = append(o.events, ev)
	if ev.Suggestion != nil && ev.Suggestion.Reply != "" {
		o.compose = ev.Suggestion.Reply
	}
	o.logEvent("timeline.event_appended", map[string]any{
		"event_id": ev.ID,
		"kind":     string(ev.Kind),
	})

	if ev.Gap != nil && o.notifier != nil && o.scenario != nil {
		summary := o.scenario.Summary()
		gap := *ev.Gap
		o.goRemoteLocked(func(ctx context.Context) {
			if err := o.notifier.NotifyGap(ctx, summary, gap); err != nil {
				o.log.Warn("gap notification failed", zap.String("ticket", gap.TicketNumber), zap.Error(err))
			}
		})
	}
}

// archiveLocked hands the current run to the transcript archive.
func (o *timelineOrchestrator) archiveLocked(outcome models.TranscriptOutcome) {
	if o.transcripts == nil || o.scenario == nil {
		return
	}
	t := models.Transcript{
		RunID:      o.runID,
		ScenarioID: o.scenario.ID,
		Outcome:    outcome,
		Resolved:   o.resolved,
		ArchivedAt: o.clock.Now(),
		Snapshot:   o.snapshotLocked(),
	}
	ctx := o.baseCtx
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		if err := o.transcripts.Archive(ctx, t); err != nil {
			o.log.Warn("archiving transcript", zap.String("run_id", t.RunID), zap.Error(err))
		}
	}()
}

func (o *timelineOrchestrator) cappedDelay(ms int) time.Duration {
	d := time.Duration(ms) * time.Millisecond
	if d < 0 {
		d = 0
	}
	if d > o.maxDelay {
		d = o.maxDelay
	}
	return d
}

func (o *timelineOrchestrator) snapshotLocked() models.Snapshot {
	s := models.Snapshot{
		RunID:               o.runID,
		Phase:               o.phase,
		IsPlaying:           o.phase == models.PhasePlaying || o.phase == models.PhaseAwaitingAgent,
		IsResolved:          o.resolved,
		CurrentMessageIndex: o.current,
		Messages:            append([]models.ChatMessage{}, o.messages...),
		Events:              make([]models.CopilotEvent, 0, len(o.events)),
		SuggestedReplies:    append([]string(nil), o.replies...),
		ComposeText:         o.compose,
		GraphUpdates:        append([]models.KnowledgeGraphUpdate(nil), o.graphUpdates...),
		Notes:               append([]string(nil), o.notes...),
	}
	if o.scenario != nil {
		s.ScenarioID = o.scenario.ID
	}
	for _, e := range o.events {
		s.Events = append(s.Events, e.Clone())
	}
	return s
}

// publishLocked offers the latest snapshot to every subscriber, replacing
// an unread older one.
func (o *timelineOrchestrator) publishLocked() {
	if len(o.subs) == 0 {
		return
	}
	snap := o.snapshotLocked()
	for _, ch := range o.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (o *timelineOrchestrator) logEvent(eventType string, data map[string]any) {
	if o.eventLogger == nil {
		return
	}
	if data == nil {
		data = make(map[string]any)
	}
	if o.runID != "" {
		data["run_id"] = o.runID
	}
	_ = o.eventLogger.LogEvent(eventType, data)
}
