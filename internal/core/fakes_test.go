package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/valter-silva-au/meridian/pkg/models"
)

// fakeScenarios implements ScenarioSource over an in-memory map.
type fakeScenarios map[string]*models.Scenario

func (f fakeScenarios) Get(id string) (*models.Scenario, error) {
	if s, ok := f[id]; ok {
		return s, nil
	}
	return nil, ErrScenarioNotFound
}

func (f fakeScenarios) List() []models.ScenarioSummary {
	var out []models.ScenarioSummary
	for _, s := range f {
		out = append(out, s.Summary())
	}
	return out
}

// fakeIntelligence implements IntelligenceService with canned answers and
// records every call.
type fakeIntelligence struct {
	mu sync.Mutex

	queryResp   *models.QueryResponse
	queryErr    error
	gapResp     *models.GapCheckResponse
	gapErr      error
	draftResp   *models.DraftResponse
	draftErr    error
	decisionErr error
	// blockOn makes Query wait for ctx cancellation when the query text
	// matches.
	blockOn string

	queries    []string
	gapChecks  []string
	drafts     []string
	approvals  []string
	rejections []string
}

func (f *fakeIntelligence) Query(ctx context.Context, query string) (*models.QueryResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	block := f.blockOn != "" && f.blockOn == query
	resp, err := f.queryResp, f.queryErr
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return resp, err
}

func (f *fakeIntelligence) CheckGap(_ context.Context, ticket string) (*models.GapCheckResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gapChecks = append(f.gapChecks, ticket)
	return f.gapResp, f.gapErr
}

func (f *fakeIntelligence) GenerateDraft(_ context.Context, ticket string) (*models.DraftResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, ticket)
	return f.draftResp, f.draftErr
}

func (f *fakeIntelligence) ApproveDraft(_ context.Context, id string) (*models.DecisionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvals = append(f.approvals, id)
	if f.decisionErr != nil {
		return nil, f.decisionErr
	}
	return &models.DecisionResponse{Status: "approved", DocID: "KB-" + id}, nil
}

func (f *fakeIntelligence) RejectDraft(_ context.Context, id string) (*models.DecisionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejections = append(f.rejections, id)
	if f.decisionErr != nil {
		return nil, f.decisionErr
	}
	return &models.DecisionResponse{Status: "rejected"}, nil
}

func (f *fakeIntelligence) calls() (queries, gaps, drafts, approvals, rejections int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries), len(f.gapChecks), len(f.drafts), len(f.approvals), len(f.rejections)
}

// fakeEventLogger records logged events.
type fakeEventLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *fakeEventLogger) LogEvent(eventType string, _ map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, eventType)
	return nil
}

func (l *fakeEventLogger) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// fakeArchive records archived transcripts.
type fakeArchive struct {
	mu          sync.Mutex
	transcripts []models.Transcript
}

func (a *fakeArchive) Archive(_ context.Context, t models.Transcript) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transcripts = append(a.transcripts, t)
	return nil
}

// fakeLedger records draft decisions.
type fakeLedger struct {
	mu        sync.Mutex
	decisions []models.Decision
}

func (l *fakeLedger) RecordDecision(_ context.Context, d models.Decision) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, d)
	return nil
}

// fakeNotifier records gap notifications.
type fakeNotifier struct {
	mu   sync.Mutex
	gaps []models.GapPayload
}

func (n *fakeNotifier) NotifyGap(_ context.Context, _ models.ScenarioSummary, gap models.GapPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gaps = append(n.gaps, gap)
	return nil
}

var errServiceDown = errors.New("connection refused")

// testRig bundles an orchestrator with its manual clock and fakes.
type testRig struct {
	t        *testing.T
	orch     TimelineOrchestrator
	clock    *ManualClock
	svc      *fakeIntelligence
	events   *fakeEventLogger
	archive  *fakeArchive
	ledger   *fakeLedger
	notifier *fakeNotifier
}

func newRig(t *testing.T, svc *fakeIntelligence, scenarios ...*models.Scenario) *testRig {
	t.Helper()
	r := buildRig(svc, scenarios...)
	r.t = t
	t.Cleanup(r.orch.Close)
	return r
}

// buildRig wires an orchestrator to a manual clock and fresh fakes. The
// caller closes it.
func buildRig(svc *fakeIntelligence, scenarios ...*models.Scenario) *testRig {
	if svc == nil {
		svc = &fakeIntelligence{queryResp: scriptQueryResponse()}
	}
	src := fakeScenarios{}
	for _, s := range scenarios {
		src[s.ID] = s
	}
	r := &testRig{
		clock:    NewManualClock(testEpoch),
		svc:      svc,
		events:   &fakeEventLogger{},
		archive:  &fakeArchive{},
		ledger:   &fakeLedger{},
		notifier: &fakeNotifier{},
	}
	r.orch = NewTimelineOrchestrator(TimelineDeps{
		Scenarios:   src,
		Source:      svc,
		Clock:       r.clock,
		IDs:         NewCounterIDGenerator(0),
		EventLogger: r.events,
		Transcripts: r.archive,
		Decisions:   r.ledger,
		Notifier:    r.notifier,
	})
	return r
}

// advance moves virtual time forward in small steps, letting remote calls
// complete between steps.
func (r *testRig) advance(d time.Duration) {
	const step = 50 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		r.orch.Wait()
		s := step
		if d-elapsed < step {
			s = d - elapsed
		}
		r.clock.Advance(s)
	}
	r.orch.Wait()
}

// settle runs every pending timer and remote call to completion.
func (r *testRig) settle() {
	for {
		r.orch.Wait()
		if !r.clock.Step() {
			return
		}
	}
}

func (r *testRig) snap() models.Snapshot {
	return r.orch.Snapshot()
}

// supportScenario is three customer turns: the query fires on the first,
// the second has a scripted follow-up, reply chips and a graph update.
func supportScenario() *models.Scenario {
	return &models.Scenario{
		ID:           "advance-date",
		Title:        "Property date stuck at month end",
		CustomerName: "Dana",
		AgentName:    "Sam",
		Messages: []models.ScenarioMessage{
			{Role: models.SenderCustomer, Text: "Our property date won't advance past month end."},
			{Role: models.SenderCustomer, Text: "It's Harbor View, we need it before rent posting.", DelayMs: 1200},
			{Role: models.SenderCustomer, Text: "That worked, thanks!", DelayMs: 9000},
		},
		QueryTriggerIndex: 0,
		QueryText:         "Property date will not advance past month end",
		FollowUps: []models.FollowUpTrigger{{
			AfterMessageIndex: 1,
			Thinking:          []string{"Customer confirmed the site name"},
			Suggestion: &models.SuggestionPayload{
				Title:   "Collect inputs",
				Actions: []string{"Record <SITE_NAME>"},
				Reply:   "Thanks, I have what I need.",
			},
		}},
		ReplyTriggers: []models.ReplyTrigger{{
			AfterMessageIndex: 1,
			Replies:           []string{"Let me check that now.", "Can you confirm the site?"},
		}},
		GraphTriggers: []models.GraphTrigger{{
			AfterMessageIndex: 1,
			Update: models.KnowledgeGraphUpdate{
				Nodes: []models.GraphNode{{ID: "site:harbor-view", Label: "Harbor View", Type: "site"}},
			},
		}},
		TicketNumber:  "CS-DEMO-003",
		IsGapScenario: false,
	}
}

// gapScenario is a single customer turn whose resolution runs gap detection.
func gapScenario() *models.Scenario {
	return &models.Scenario{
		ID:           "blank-pdf",
		Title:        "Rent roll export is blank",
		CustomerName: "Lee",
		AgentName:    "Sam",
		Messages: []models.ScenarioMessage{
			{Role: models.SenderCustomer, Text: "The Rent Roll Monthly PDF comes out blank."},
		},
		QueryTriggerIndex: 0,
		QueryText:         "Report export produces blank PDF",
		TicketNumber:      "CS-DEMO-001",
		IsGapScenario:     true,
	}
}

func gapService() *fakeIntelligence {
	return &fakeIntelligence{
		queryResp: &models.QueryResponse{PredictedType: "KB", ConfidenceScores: map[string]float64{"KB": 0.4}},
		gapResp: &models.GapCheckResponse{
			TicketNumber:         "CS-DEMO-001",
			IsGap:                true,
			ResolutionSimilarity: 0.22,
			Module:               "Reporting",
			Category:             "Report Export",
		},
		draftResp: &models.DraftResponse{
			DraftID:      "KB-DRAFT-1",
			Title:        "Blank PDF on Rent Roll export",
			Body:         "Clear the cached report template and re-run the export.",
			SourceTicket: "CS-DEMO-001",
			Module:       "Reporting",
			Category:     "Report Export",
		},
	}
}
