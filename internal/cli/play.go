package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/meridian/internal/core"
	"github.com/valter-silva-au/meridian/pkg/models"
)

var (
	customerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	agentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("150")).Bold(true)
	eventStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	gapStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	chipStyle     = lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("238")).
			Padding(0, 1)
)

// snapshotMsg carries a published timeline snapshot into the program.
type snapshotMsg models.Snapshot

// timelineClosedMsg is sent when the snapshot subscription ends.
type timelineClosedMsg struct{}

// actionDoneMsg reports the outcome of a timeline action.
type actionDoneMsg struct {
	status string
	err    error
}

type playModel struct {
	timeline    core.TimelineOrchestrator
	scenarioID  string
	snaps       <-chan models.Snapshot
	unsubscribe func()

	snap       models.Snapshot
	graphNodes int
	graphEdges int

	input    textinput.Model
	chat     viewport.Model
	copilot  viewport.Model
	noteMode bool
	chipIdx  int

	width  int
	height int
	status string
}

func newPlayModel(timeline core.TimelineOrchestrator, scenarioID string) playModel {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 2000
	input.Placeholder = "Type a reply, tab for a suggestion"
	input.Focus()

	snaps, unsubscribe := timeline.Subscribe(1)
	return playModel{
		timeline:    timeline,
		scenarioID:  scenarioID,
		snaps:       snaps,
		unsubscribe: unsubscribe,
		snap:        timeline.Snapshot(),
		input:       input,
		chat:        viewport.New(0, 0),
		copilot:     viewport.New(0, 0),
		status:      "waiting for the customer...",
	}
}

func waitForSnapshot(ch <-chan models.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return timelineClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m playModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForSnapshot(m.snaps))
}

func (m playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case snapshotMsg:
		m.setSnapshot(models.Snapshot(msg))
		return m, waitForSnapshot(m.snaps)

	case timelineClosedMsg:
		m.status = "timeline closed"
		return m, tea.Quit

	case actionDoneMsg:
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
		} else {
			m.status = msg.status
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderPanes()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.unsubscribe()
			return m, tea.Quit
		case "enter":
			return m, m.submit()
		case "tab":
			m.fillSuggestion()
			return m, nil
		case "ctrl+n":
			m.noteMode = !m.noteMode
			if m.noteMode {
				m.input.Placeholder = "Type a note for this run"
				m.status = "note mode"
			} else {
				m.input.Placeholder = "Type a reply, tab for a suggestion"
				m.status = "reply mode"
			}
			return m, nil
		case "ctrl+r":
			return m, resolveCmd(m.timeline)
		case "ctrl+a":
			return m, decideCmd(m.timeline, m.snap, true)
		case "ctrl+x":
			return m, decideCmd(m.timeline, m.snap, false)
		case "ctrl+s":
			return m, restartCmd(m.timeline, m.scenarioID)
		case "pgup":
			m.copilot.LineUp(4)
			return m, nil
		case "pgdown":
			m.copilot.LineDown(4)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *playModel) setSnapshot(snap models.Snapshot) {
	m.snap = snap
	g := m.timeline.KnowledgeGraph()
	m.graphNodes, m.graphEdges = len(g.Nodes), len(g.Edges)
	if snap.ComposeText != "" && m.input.Value() == "" && !m.noteMode {
		m.input.SetValue(snap.ComposeText)
		m.input.CursorEnd()
	}
	switch snap.Phase {
	case models.PhaseAwaitingAgent:
		m.status = "customer is waiting for a reply"
	case models.PhasePlaying:
		m.status = "customer is typing..."
	case models.PhaseEnded:
		m.status = "conversation ended, ctrl+r to resolve"
	case models.PhaseResolved:
		m.status = "resolved"
	}
	m.renderPanes()
}

// submit sends the input as an agent reply or, in note mode, a note.
func (m *playModel) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.Reset()
	m.chipIdx = 0
	timeline := m.timeline
	if m.noteMode {
		return func() tea.Msg {
			if !timeline.AddNote(text) {
				return actionDoneMsg{status: "no conversation to attach the note to"}
			}
			return actionDoneMsg{status: "note added"}
		}
	}
	return func() tea.Msg {
		if !timeline.SendAgentMessage(text) {
			return actionDoneMsg{status: "no conversation is running"}
		}
		return actionDoneMsg{status: "reply sent"}
	}
}

// fillSuggestion cycles the input through the compose text and the reply
// chips.
func (m *playModel) fillSuggestion() {
	var options []string
	if m.snap.ComposeText != "" {
		options = append(options, m.snap.ComposeText)
	}
	options = append(options, m.snap.SuggestedReplies...)
	if len(options) == 0 {
		return
	}
	m.input.SetValue(options[m.chipIdx%len(options)])
	m.input.CursorEnd()
	m.chipIdx++
}

func resolveCmd(timeline core.TimelineOrchestrator) tea.Cmd {
	return func() tea.Msg {
		if !timeline.ResolveIssue() {
			return actionDoneMsg{status: "nothing to resolve"}
		}
		return actionDoneMsg{status: "issue resolved"}
	}
}

func restartCmd(timeline core.TimelineOrchestrator, scenarioID string) tea.Cmd {
	return func() tea.Msg {
		if !timeline.StartScenario(scenarioID) {
			return actionDoneMsg{err: fmt.Errorf("unknown scenario %q", scenarioID)}
		}
		return actionDoneMsg{status: "scenario restarted"}
	}
}

func decideCmd(timeline core.TimelineOrchestrator, snap models.Snapshot, approve bool) tea.Cmd {
	draft, ok := pendingDraft(snap)
	if !ok {
		return func() tea.Msg { return actionDoneMsg{status: "no draft awaiting review"} }
	}
	return func() tea.Msg {
		if approve {
			if err := timeline.ApproveDraft(draft.DraftID); err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{status: "draft " + draft.DraftID + " approved"}
		}
		if err := timeline.RejectDraft(draft.DraftID); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "draft " + draft.DraftID + " rejected"}
	}
}

func (m *playModel) resize() {
	paneWidth := (m.width - 4) / 2
	if paneWidth < 20 {
		paneWidth = 20
	}
	paneHeight := m.height - 9
	if paneHeight < 5 {
		paneHeight = 5
	}
	m.chat.Width, m.chat.Height = paneWidth-4, paneHeight
	m.copilot.Width, m.copilot.Height = paneWidth-4, paneHeight
	m.input.Width = m.width - 4
}

func (m *playModel) renderPanes() {
	m.chat.SetContent(renderChat(m.snap))
	m.chat.GotoBottom()
	m.copilot.SetContent(renderCopilot(m.snap))
	m.copilot.GotoBottom()
}

func renderChat(snap models.Snapshot) string {
	if len(snap.Messages) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	for _, msg := range snap.Messages {
		style := agentStyle
		if msg.Sender == models.SenderCustomer {
			style = customerStyle
		}
		fmt.Fprintf(&b, "%s %s\n%s\n\n", style.Render(msg.Name), helpStyle.Render(msg.Timestamp), msg.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderCopilot(snap models.Snapshot) string {
	if len(snap.Events) == 0 {
		return "Copilot is listening."
	}
	var b strings.Builder
	for _, ev := range snap.Events {
		style := eventStyle
		if ev.Kind == models.EventGapDetection || ev.Kind == models.EventLearn {
			style = gapStyle
		}
		b.WriteString(style.Render("• " + describeEvent(ev)))
		b.WriteString("\n")
		if ev.Kind == models.EventSuggestion && ev.Suggestion != nil {
			for _, a := range ev.Suggestion.Actions {
				fmt.Fprintf(&b, "    - %s\n", a)
			}
		}
	}
	if len(snap.Notes) > 0 {
		b.WriteString("\n" + headerStyle.Render("Notes") + "\n")
		for _, n := range snap.Notes {
			fmt.Fprintf(&b, "  %s\n", n)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m playModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" Meridian ") + " " + m.snap.ScenarioID
	if m.snap.IsResolved {
		title += " " + severityLow.Render("[resolved]")
	}

	chat := panelStyle.Render(headerStyle.Render("Conversation") + "\n" + m.chat.View())
	copilot := activePanelStyle.Render(headerStyle.Render("Copilot") + "\n" + m.copilot.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, chat, copilot)

	var chips []string
	for _, r := range m.snap.SuggestedReplies {
		chips = append(chips, chipStyle.Render(r))
	}

	mode := "reply"
	if m.noteMode {
		mode = "note"
	}
	footer := helpStyle.Render(fmt.Sprintf(
		"%s | graph %d nodes, %d edges | mode %s\nenter: send | tab: suggestion | ctrl+n: note mode | ctrl+r: resolve | ctrl+a/ctrl+x: approve/reject draft | ctrl+s: restart | esc: quit",
		m.status, m.graphNodes, m.graphEdges, mode))

	parts := []string{title, body}
	if len(chips) > 0 {
		parts = append(parts, strings.Join(chips, " "))
	}
	parts = append(parts, m.input.View(), footer)
	return strings.Join(parts, "\n")
}

var playCmd = &cobra.Command{
	Use:   "play <scenario-id>",
	Short: "Play a scenario interactively in the terminal",
	Long: `Start a scenario and take the agent's seat. Customer messages arrive on
their scripted schedule; the copilot timeline updates alongside them.

Keys: enter sends the reply, tab cycles suggested replies, ctrl+r
resolves the issue, ctrl+a / ctrl+x approve or reject a KB draft,
ctrl+n toggles note mode, ctrl+s restarts and esc quits.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Timeline == nil {
			return fmt.Errorf("timeline not initialized")
		}
		model := newPlayModel(Timeline, args[0])
		if !Timeline.StartScenario(args[0]) {
			model.unsubscribe()
			return fmt.Errorf("unknown scenario %q", args[0])
		}

		p := tea.NewProgram(model, tea.WithAltScreen())
		final, err := p.Run()
		if err != nil {
			return err
		}
		if pm, ok := final.(playModel); ok {
			pm.unsubscribe()
		}
		writeTranscript(cmd.OutOrStdout(), Timeline.Snapshot())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
}
