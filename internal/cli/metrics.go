package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/meridian/internal/observability"
	"github.com/valter-silva-au/meridian/pkg/models"
)

var (
	metricsJSON  bool
	metricsSince string
)

// metricsReport is the JSON shape of "meridian metrics --json".
type metricsReport struct {
	*observability.Metrics
	ResolutionRate float64               `json:"resolution_rate"`
	Decisions      *models.DecisionStats `json:"decisions,omitempty"`
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display copilot activity metrics",
	Long: `Display aggregated metrics derived from the event log.

Metrics include runs started and resolved, agent messages, copilot events
by kind, query failures, detected gaps and KB draft outcomes. When the
decision ledger is available its approved, rejected and unacknowledged
counts are shown too.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (observability may be disabled)")
		}

		sinceTime, err := parseSinceDuration(metricsSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		var stats *models.DecisionStats
		if Decisions != nil {
			s, err := Decisions.Stats(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("reading decision ledger: %w", err)
			}
			stats = &s
		}

		out := cmd.OutOrStdout()
		if metricsJSON {
			data, err := json.MarshalIndent(metricsReport{
				Metrics:        metrics,
				ResolutionRate: metrics.ResolutionRate(),
				Decisions:      stats,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "Metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		fmt.Fprintf(out, "  %-24s %d\n", "Events recorded:", metrics.EventCount)
		fmt.Fprintf(out, "  %-24s %d\n", "Runs started:", metrics.RunsStarted)
		fmt.Fprintf(out, "  %-24s %d (%.0f%%)\n", "Runs resolved:", metrics.RunsResolved, metrics.ResolutionRate()*100)
		fmt.Fprintf(out, "  %-24s %d\n", "Runs reset:", metrics.RunsReset)
		fmt.Fprintf(out, "  %-24s %d\n", "Agent messages:", metrics.AgentMessages)
		fmt.Fprintf(out, "  %-24s %d\n", "Query failures:", metrics.QueryFailures)
		fmt.Fprintf(out, "  %-24s %d\n", "Gaps detected:", metrics.GapsDetected)
		fmt.Fprintf(out, "  %-24s %d\n", "Drafts created:", metrics.DraftsCreated)
		fmt.Fprintf(out, "  %-24s %d\n", "Drafts approved:", metrics.DraftsApproved)
		fmt.Fprintf(out, "  %-24s %d\n", "Drafts rejected:", metrics.DraftsRejected)

		if len(metrics.EventsByKind) > 0 {
			fmt.Fprintln(out, "\n  Copilot events by kind:")
			kinds := make([]string, 0, len(metrics.EventsByKind))
			for k := range metrics.EventsByKind {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Fprintf(out, "    %-20s %d\n", k+":", metrics.EventsByKind[k])
			}
		}

		if stats != nil {
			fmt.Fprintln(out, "\n  Decision ledger:")
			fmt.Fprintf(out, "    %-20s %d\n", "approved:", stats.Approved)
			fmt.Fprintf(out, "    %-20s %d\n", "rejected:", stats.Rejected)
			fmt.Fprintf(out, "    %-20s %d\n", "unacknowledged:", stats.Unacknowledged)
		}

		if metrics.OldestEvent != nil {
			fmt.Fprintf(out, "\n  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Fprintf(out, "  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}

		return nil
	},
}

// parseSinceDuration parses a human-friendly duration string like "7d", "30d",
// or "24h" and returns the corresponding time in the past.
func parseSinceDuration(s string) (time.Time, error) {
	now := time.Now().UTC()
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, -7), nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day duration %q", s)
		}
		return now.AddDate(0, 0, -days), nil
	}

	if strings.HasSuffix(s, "h") {
		hours, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid hour duration %q", s)
		}
		return now.Add(-time.Duration(hours) * time.Hour), nil
	}

	return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 30d, 24h)", s)
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
