package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/meridian/internal/observability"
	"github.com/valter-silva-au/meridian/pkg/models"
)

// Dashboard panel indices.
const (
	panelRuns = iota
	panelDrafts
	panelAlerts
	panelCount
)

// recentDecisions is how many ledger rows the drafts panel lists.
const recentDecisions = 5

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	metrics   *observability.Metrics
	stats     *models.DecisionStats
	decisions []models.Decision
	alerts    []observability.Alert

	loading bool
	err     error
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	metrics   *observability.Metrics
	stats     *models.DecisionStats
	decisions []models.Decision
	alerts    []observability.Alert
	err       error
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	statusApproved = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusRejected = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusPending  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{
		activePanel: panelRuns,
		loading:     true,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadData
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.metrics = msg.metrics
		m.stats = msg.stats
		m.decisions = msg.decisions
		m.alerts = msg.alerts
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" Meridian Dashboard ")
	help := helpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}
	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	panels := []string{m.renderRunsPanel(), m.renderDraftsPanel(), m.renderAlertsPanel()}
	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		colWidth := availableWidth / panelCount
		for i := range panels {
			panels[i] = m.applyPanelStyle(i, panels[i], colWidth-4)
		}
		body = lipgloss.JoinHorizontal(lipgloss.Top, panels...)
	} else {
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		for i := range panels {
			panels[i] = m.applyPanelStyle(i, panels[i], panelWidth)
		}
		body = lipgloss.JoinVertical(lipgloss.Left, panels...)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderRunsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Runs (7d)"))
	b.WriteString("\n")

	if m.metrics == nil {
		b.WriteString("  No metrics available.")
		return b.String()
	}

	md := m.metrics
	lines := []struct {
		label string
		value int
	}{
		{"Started", md.RunsStarted},
		{"Resolved", md.RunsResolved},
		{"Reset", md.RunsReset},
		{"Replies", md.AgentMessages},
		{"Gaps", md.GapsDetected},
		{"Failures", md.QueryFailures},
	}
	for _, l := range lines {
		fmt.Fprintf(&b, "  %-14s %d\n", l.label, l.value)
	}
	fmt.Fprintf(&b, "\n  Resolution rate: %.0f%%", md.ResolutionRate()*100)

	return b.String()
}

func (m dashboardModel) renderDraftsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("KB drafts"))
	b.WriteString("\n")

	if m.stats == nil {
		b.WriteString("  Decision ledger not configured.")
		return b.String()
	}

	b.WriteString(statusApproved.Render(fmt.Sprintf("  %-14s %d", "approved", m.stats.Approved)))
	b.WriteString("\n")
	b.WriteString(statusRejected.Render(fmt.Sprintf("  %-14s %d", "rejected", m.stats.Rejected)))
	b.WriteString("\n")
	b.WriteString(statusPending.Render(fmt.Sprintf("  %-14s %d", "unacked", m.stats.Unacknowledged)))
	b.WriteString("\n")

	if len(m.decisions) > 0 {
		b.WriteString("\n  Recent:\n")
		for i, d := range m.decisions {
			if i == recentDecisions {
				break
			}
			fmt.Fprintf(&b, "  %s %s\n", styleForDraftStatus(d.Status).Render(string(d.Status)), d.DraftID)
		}
	}

	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		sev := styleForSeverity(string(a.Severity)).Render(fmt.Sprintf("[%s]", strings.ToUpper(string(a.Severity))))
		fmt.Fprintf(&b, "  %s %s\n", sev, a.Message)
	}
	fmt.Fprintf(&b, "\n  Total: %d alert(s)", len(m.alerts))

	return b.String()
}

func styleForDraftStatus(status models.DraftStatus) lipgloss.Style {
	switch status {
	case models.DraftApproved:
		return statusApproved
	case models.DraftRejected:
		return statusRejected
	default:
		return statusPending
	}
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return severityHigh
	case "medium":
		return severityMedium
	case "low":
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

func loadData() tea.Msg {
	var result dataLoadedMsg

	if MetricsCalc != nil {
		metrics, err := MetricsCalc.Calculate(time.Now().UTC().AddDate(0, 0, -7))
		if err != nil {
			result.err = fmt.Errorf("loading metrics: %w", err)
			return result
		}
		result.metrics = metrics
	}

	if Decisions != nil {
		ctx := context.Background()
		stats, err := Decisions.Stats(ctx)
		if err != nil {
			result.err = fmt.Errorf("loading decision stats: %w", err)
			return result
		}
		result.stats = &stats
		list, err := Decisions.List(ctx)
		if err != nil {
			result.err = fmt.Errorf("loading decisions: %w", err)
			return result
		}
		result.decisions = list
	}

	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			result.err = fmt.Errorf("loading alerts: %w", err)
			return result
		}
		// High first, then medium, then low.
		sort.SliceStable(alerts, func(i, j int) bool {
			return severityRank(string(alerts[i].Severity)) < severityRank(string(alerts[j].Severity))
		})
		result.alerts = alerts
	}

	return result
}

func severityRank(s string) int {
	switch s {
	case "high":
		return 0
	case "medium":
		return 1
	case "low":
		return 2
	default:
		return 3
	}
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for copilot metrics, drafts and alerts",
	Long: `Launch an interactive terminal dashboard showing run metrics, the KB
draft decision ledger and active alerts.

Navigate between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (observability may be disabled)")
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
