package cli

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/meridian/internal/observability"
	"github.com/valter-silva-au/meridian/pkg/models"
)

type alertsMock struct {
	alerts []observability.Alert
	err    error
}

func (m *alertsMock) Evaluate() ([]observability.Alert, error) {
	return m.alerts, m.err
}

type notifierMock struct {
	sent [][]observability.Alert
	err  error
}

func (n *notifierMock) Notify(_ context.Context, alerts []observability.Alert) error {
	n.sent = append(n.sent, alerts)
	return n.err
}

func (n *notifierMock) NotifyGap(context.Context, models.ScenarioSummary, models.GapPayload) error {
	return nil
}

var sampleAlerts = []observability.Alert{
	{
		ID:          "query-failures",
		Condition:   "intelligence_unreachable",
		Severity:    observability.SeverityHigh,
		Message:     "4 intelligence queries failed in the last 1 hours",
		TriggeredAt: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	},
}

func TestAlertsCmd_NilEngine(t *testing.T) {
	withGlobals(t)
	AlertEngine = nil

	_, err := runCommand(t, "alerts")
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestAlertsCmd_NoAlerts(t *testing.T) {
	withGlobals(t)
	AlertEngine = &alertsMock{}

	out, err := runCommand(t, "alerts")
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if !strings.Contains(out, "No active alerts.") {
		t.Errorf("output = %q", out)
	}
}

func TestAlertsCmd_EvaluateError(t *testing.T) {
	withGlobals(t)
	AlertEngine = &alertsMock{err: errors.New("log unreadable")}

	_, err := runCommand(t, "alerts")
	if err == nil || !strings.Contains(err.Error(), "log unreadable") {
		t.Fatalf("expected evaluate error, got %v", err)
	}
}

func TestAlertsCmd_PrintsAlerts(t *testing.T) {
	withGlobals(t)
	AlertEngine = &alertsMock{alerts: sampleAlerts}

	out, err := runCommand(t, "alerts")
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	for _, want := range []string{"1 active alert(s)", "[HIGH] 4 intelligence queries failed", "triggered at 2026-03-02 09:30 UTC"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAlertsCmd_Notify(t *testing.T) {
	t.Run("without notifier", func(t *testing.T) {
		withGlobals(t)
		AlertEngine = &alertsMock{alerts: sampleAlerts}
		Notifier = nil

		_, err := runCommand(t, "alerts", "--notify")
		if err == nil || !strings.Contains(err.Error(), "slack_webhook") {
			t.Fatalf("expected missing notifier error, got %v", err)
		}
	})

	t.Run("sends", func(t *testing.T) {
		withGlobals(t)
		n := &notifierMock{}
		AlertEngine = &alertsMock{alerts: sampleAlerts}
		Notifier = n

		out, err := runCommand(t, "alerts", "--notify")
		if err != nil {
			t.Fatalf("alerts --notify: %v", err)
		}
		if len(n.sent) != 1 || len(n.sent[0]) != 1 {
			t.Fatalf("expected one notification with one alert, got %v", n.sent)
		}
		if !strings.Contains(out, "Alerts sent to Slack.") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("notifier error", func(t *testing.T) {
		withGlobals(t)
		AlertEngine = &alertsMock{alerts: sampleAlerts}
		Notifier = &notifierMock{err: errors.New("webhook returned 500")}

		_, err := runCommand(t, "alerts", "--notify")
		if err == nil || !strings.Contains(err.Error(), "webhook returned 500") {
			t.Fatalf("expected notifier error, got %v", err)
		}
	})

	t.Run("no alerts skips notify", func(t *testing.T) {
		withGlobals(t)
		n := &notifierMock{}
		AlertEngine = &alertsMock{}
		Notifier = n

		if _, err := runCommand(t, "alerts", "--notify"); err != nil {
			t.Fatalf("alerts --notify: %v", err)
		}
		if len(n.sent) != 0 {
			t.Errorf("expected no notification, got %d", len(n.sent))
		}
	})
}
