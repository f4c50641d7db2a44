package cli

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/valter-silva-au/meridian/internal/integration"
	"github.com/valter-silva-au/meridian/internal/storage"
	"github.com/valter-silva-au/meridian/pkg/models"
)

// downIntelligence is an intelligence service whose health check fails.
type downIntelligence struct {
	integration.IntelligenceService
}

func (downIntelligence) Health(context.Context) (*models.HealthResponse, error) {
	return nil, errors.New("connection refused")
}

func TestScenariosCmd_NilStore(t *testing.T) {
	withGlobals(t)
	Scenarios = nil

	_, err := runCommand(t, "scenarios")
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestScenariosCmd_Table(t *testing.T) {
	newScriptedRig(t)

	out, err := runCommand(t, "scenarios")
	if err != nil {
		t.Fatalf("scenarios: %v", err)
	}
	for _, want := range []string{"ID", "report-export-blank", "CS-DEMO-001 (gap)", "advance-property-date", "CS-DEMO-003"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Intelligence service") {
		t.Error("health should only be checked with --check")
	}
}

func TestScenariosCmd_JSON(t *testing.T) {
	newScriptedRig(t)

	out, err := runCommand(t, "scenarios", "--json")
	if err != nil {
		t.Fatalf("scenarios --json: %v", err)
	}
	var list []models.ScenarioSummary
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 scenarios, got %d", len(list))
	}
	byID := map[string]models.ScenarioSummary{}
	for _, s := range list {
		byID[s.ID] = s
	}
	if !byID["report-export-blank"].IsGapScenario {
		t.Error("report-export-blank should be a gap scenario")
	}
	if byID["advance-property-date"].IsGapScenario {
		t.Error("advance-property-date should not be a gap scenario")
	}
}

func TestScenariosCmd_Check(t *testing.T) {
	newScriptedRig(t)

	out, err := runCommand(t, "scenarios", "--check")
	if err != nil {
		t.Fatalf("scenarios --check: %v", err)
	}
	if !strings.Contains(out, "Intelligence service: scripted") {
		t.Errorf("output missing health status:\n%s", out)
	}
}

func TestScenariosCmd_CheckUnreachable(t *testing.T) {
	newScriptedRig(t)
	Intelligence = downIntelligence{}

	_, err := runCommand(t, "scenarios", "--check")
	if err == nil || !strings.Contains(err.Error(), "unreachable") {
		t.Fatalf("expected unreachable error, got %v", err)
	}
}

func TestScenariosShowCmd(t *testing.T) {
	newScriptedRig(t)

	out, err := runCommand(t, "scenarios", "show", "report-export-blank")
	if err != nil {
		t.Fatalf("scenarios show: %v", err)
	}
	for _, want := range []string{"id: report-export-blank", "ticket_number: CS-DEMO-001", "query_trigger_index: 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestScenariosShowCmd_Unknown(t *testing.T) {
	newScriptedRig(t)

	_, err := runCommand(t, "scenarios", "show", "no-such-scenario")
	if !errors.Is(err, storage.ErrScenarioNotFound) {
		t.Fatalf("expected ErrScenarioNotFound, got %v", err)
	}
}
