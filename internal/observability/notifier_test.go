package observability

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/meridian/pkg/models"
)

// captureServer records the last request body posted to it.
func captureServer(t *testing.T, status int) (*httptest.Server, *[]byte) {
	t.Helper()
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading request body: %v", err)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &body
}

func TestSlackNotifier_NoAlerts(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL)
	if err := n.Notify(context.Background(), nil); err != nil {
		t.Fatalf("Notify(nil): %v", err)
	}
	if err := n.Notify(context.Background(), []Alert{}); err != nil {
		t.Fatalf("Notify(empty): %v", err)
	}
	if called {
		t.Fatal("expected no HTTP request for empty alerts")
	}
}

func TestSlackNotifier_SendsAlerts(t *testing.T) {
	srv, body := captureServer(t, http.StatusOK)

	at := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	alerts := []Alert{
		{ID: "query-failures", Condition: "intelligence_unreachable", Severity: SeverityHigh, Message: "4 intelligence queries failed in the last 1 hours", TriggeredAt: at},
		{ID: "draft-DRAFT-CS-1", Condition: "draft_awaiting_review", Severity: SeverityMedium, Message: "KB draft DRAFT-CS-1 has waited for review more than 24 hours", TriggeredAt: at},
	}
	if err := NewSlackNotifier(srv.URL).Notify(context.Background(), alerts); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	var msg slackMessage
	if err := json.Unmarshal(*body, &msg); err != nil {
		t.Fatalf("unmarshaling request body: %v", err)
	}
	// header, alert, divider, alert
	if len(msg.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(msg.Blocks))
	}
	wantTypes := []string{"header", "section", "divider", "section"}
	for i, want := range wantTypes {
		if msg.Blocks[i].Type != want {
			t.Errorf("block %d type = %s, want %s", i, msg.Blocks[i].Type, want)
		}
	}
	if msg.Blocks[0].Text == nil || msg.Blocks[0].Text.Text != "Meridian Alert Summary" {
		t.Errorf("header = %+v", msg.Blocks[0].Text)
	}

	raw := string(*body)
	for _, want := range []string{"DRAFT-CS-1", "2026-01-15 10:30 UTC", "[HIGH]", "\U0001f534", "\U0001f7e1"} {
		if !strings.Contains(raw, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestSlackNotifier_NotifyGap(t *testing.T) {
	srv, body := captureServer(t, http.StatusOK)

	summary := models.ScenarioSummary{ID: "report-export-blank", Title: "Report export comes out blank"}
	gap := models.GapPayload{
		TicketNumber: "CS-DEMO-001",
		Module:       "Reporting",
		Similarity:   0.42,
		Message:      "No KB article covers this resolution",
	}
	if err := NewSlackNotifier(srv.URL).NotifyGap(context.Background(), summary, gap); err != nil {
		t.Fatalf("NotifyGap: %v", err)
	}

	var msg slackMessage
	if err := json.Unmarshal(*body, &msg); err != nil {
		t.Fatalf("unmarshaling request body: %v", err)
	}
	if len(msg.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(msg.Blocks))
	}
	if msg.Blocks[0].Text.Text != "Knowledge gap detected" {
		t.Errorf("header = %q", msg.Blocks[0].Text.Text)
	}
	fields := msg.Blocks[2].Fields
	if len(fields) != 4 {
		t.Fatalf("expected 4 fields, got %d", len(fields))
	}
	want := []string{
		"*Ticket*\nCS-DEMO-001",
		"*Conversation*\nReport export comes out blank",
		"*Module*\nReporting",
		"*Best match*\n42%",
	}
	for i, w := range want {
		if fields[i].Text != w {
			t.Errorf("field %d = %q, want %q", i, fields[i].Text, w)
		}
	}
}

func TestSlackNotifier_NotifyGapFallsBackToScenarioID(t *testing.T) {
	msg := buildGapMessage(models.ScenarioSummary{ID: "advance-property-date"}, models.GapPayload{})
	if got := msg.Blocks[2].Fields[1].Text; got != "*Conversation*\nadvance-property-date" {
		t.Errorf("conversation field = %q", got)
	}
}

func TestSlackNotifier_ServerError(t *testing.T) {
	srv, _ := captureServer(t, http.StatusInternalServerError)

	err := NewSlackNotifier(srv.URL).Notify(context.Background(), []Alert{{ID: "a", Severity: SeverityLow, TriggeredAt: time.Now().UTC()}})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %v, want status code", err)
	}
}

func TestSlackNotifier_CancelledContext(t *testing.T) {
	srv, _ := captureServer(t, http.StatusOK)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewSlackNotifier(srv.URL).NotifyGap(ctx, models.ScenarioSummary{ID: "x"}, models.GapPayload{})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
