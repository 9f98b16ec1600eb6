package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mpataki/ftry/internal/models"
)

// Sessions is the read side of the session store the browser needs.
type Sessions interface {
	ListSessions(ctx context.Context, limit int) ([]*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetTeamRuns(ctx context.Context, sessionID string) ([]*models.TeamRun, error)
	GetInterventions(ctx context.Context, sessionID string) ([]*models.Intervention, error)
	DeleteSession(ctx context.Context, id string) error
}

type View int

const (
	ViewSessionList View = iota
	ViewSessionDetail
	ViewLog
)

const listLimit = 50

type App struct {
	sessions Sessions

	view            View
	list            []*models.Session
	selectedIdx     int
	selected        *models.Session
	teamRuns        []*models.TeamRun
	interventions   []*models.Intervention
	selectedTeamIdx int

	logView viewport.Model
	help    help.Model

	width  int
	height int
	err    error
}

func NewApp(sessions Sessions) *App {
	return &App{
		sessions: sessions,
		view:     ViewSessionList,
		logView:  viewport.New(80, 20),
		help:     help.New(),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadSessions, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) hasRunningSessions() bool {
	for _, s := range a.list {
		if s.Status == models.SessionStatusRunning {
			return true
		}
	}
	return false
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		a.logView.Width = msg.Width
		a.logView.Height = max(msg.Height-4, 1)
		return a, nil

	case sessionsLoadedMsg:
		a.list = msg.sessions
		a.err = msg.err
		if a.selectedIdx >= len(a.list) {
			a.selectedIdx = max(len(a.list)-1, 0)
		}
		return a, nil

	case tickMsg:
		// Refresh while another process is still running a session.
		if a.view == ViewSessionList && a.hasRunningSessions() {
			return a, tea.Batch(a.loadSessions, a.tickCmd())
		}
		return a, a.tickCmd()

	case sessionDetailMsg:
		a.err = msg.err
		if msg.err == nil {
			a.selected = msg.session
			a.teamRuns = msg.teamRuns
			a.interventions = msg.interventions
			a.selectedTeamIdx = 0
			a.view = ViewSessionDetail
		}
		return a, nil

	case sessionDeletedMsg:
		a.err = msg.err
		return a, a.loadSessions

	case logLoadedMsg:
		if msg.err != nil {
			a.err = msg.err
			return a, nil
		}
		a.logView.SetContent(msg.content)
		a.logView.GotoTop()
		a.view = ViewLog
		return a, nil
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}

	switch a.view {
	case ViewSessionList:
		return a.handleListKey(msg)
	case ViewSessionDetail:
		return a.handleDetailKey(msg)
	case ViewLog:
		return a.handleLogKey(msg)
	}
	return a, nil
}

func (a *App) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, keys.Up):
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case key.Matches(msg, keys.Down):
		if a.selectedIdx < len(a.list)-1 {
			a.selectedIdx++
		}

	case key.Matches(msg, keys.Open):
		if len(a.list) > 0 {
			return a, a.loadDetail(a.list[a.selectedIdx].ID)
		}

	case key.Matches(msg, keys.Refresh):
		return a, a.loadSessions

	case key.Matches(msg, keys.Delete):
		if len(a.list) > 0 {
			return a, a.deleteSession(a.list[a.selectedIdx].ID)
		}
	}

	return a, nil
}

func (a *App) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		a.view = ViewSessionList
		a.selected = nil
		a.teamRuns = nil
		a.interventions = nil

	case key.Matches(msg, keys.Up):
		if a.selectedTeamIdx > 0 {
			a.selectedTeamIdx--
		}

	case key.Matches(msg, keys.Down):
		if a.selectedTeamIdx < len(a.teamRuns)-1 {
			a.selectedTeamIdx++
		}

	case key.Matches(msg, keys.Log):
		if a.selected != nil && a.selected.HITLLogPath != "" {
			return a, a.loadLog(a.selected.HITLLogPath)
		}
	}

	return a, nil
}

func (a *App) handleLogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Back) {
		a.view = ViewSessionDetail
		return a, nil
	}

	var cmd tea.Cmd
	a.logView, cmd = a.logView.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	switch a.view {
	case ViewSessionList:
		return a.viewSessionList()
	case ViewSessionDetail:
		return a.viewSessionDetail()
	case ViewLog:
		return a.viewLog()
	}
	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusSucceeded = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	decisionEdited = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func (a *App) viewSessionList() string {
	s := titleStyle.Render("ftry") + "\n\n"

	if a.err != nil {
		s += fmt.Sprintf("Error: %v\n", a.err)
	}

	if len(a.list) == 0 {
		s += "No sessions yet. Run 'ftry pop' to start one.\n"
	} else {
		s += "Recent Sessions\n"
		s += "───────────────\n"

		for i, session := range a.list {
			line := formatSessionLine(session)
			switch {
			case i == a.selectedIdx:
				line = selectedStyle.Render("▶ " + line)
			case session.Status != models.SessionStatusRunning:
				line = "  " + dimStyle.Render(line)
			default:
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + a.help.View(listKeys{})
	return s
}

func formatSessionLine(session *models.Session) string {
	return fmt.Sprintf("%s %-5s %s  %-6s  %s",
		session.ID[:min(8, len(session.ID))],
		session.Kind,
		formatStatus(session.Status),
		formatAge(session.CreatedAt),
		truncate(session.Source, 40),
	)
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func formatStatus(status models.SessionStatus) string {
	switch status {
	case models.SessionStatusRunning:
		return statusRunning.Render("● running")
	case models.SessionStatusSucceeded:
		return statusSucceeded.Render("✓ succeeded")
	case models.SessionStatusFailed:
		return statusFailed.Render("✗ failed")
	default:
		return string(status)
	}
}

func (a *App) viewSessionDetail() string {
	if a.selected == nil {
		return "No session selected"
	}
	session := a.selected

	header := fmt.Sprintf("Session %s: %s", session.ID, session.Kind)
	s := titleStyle.Render(header) + "  " + formatStatus(session.Status) + "\n\n"

	s += labelStyle.Render("Source: ") + session.Source + "\n"
	s += labelStyle.Render("Task:   ") + session.Task + "\n"
	if session.Error != "" {
		s += labelStyle.Render("Error:  ") + statusFailed.Render(session.Error) + "\n"
	}
	if session.HITLLogPath != "" {
		s += labelStyle.Render("HITL log: ") + dimStyle.Render(session.HITLLogPath) + "\n"
	}
	s += "\n"

	if len(a.teamRuns) > 0 {
		s += "Teams\n"
		s += "─────\n"
		for i, run := range a.teamRuns {
			line := formatTeamRunLine(run)
			if i == a.selectedTeamIdx {
				line = selectedStyle.Render("▶ " + line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
		if a.selectedTeamIdx < len(a.teamRuns) && a.teamRuns[a.selectedTeamIdx].Error != "" {
			s += "\n" + statusFailed.Render(a.teamRuns[a.selectedTeamIdx].Error) + "\n"
		}
		s += "\n"
	}

	if len(a.interventions) > 0 {
		s += "Interventions\n"
		s += "─────────────\n"
		for _, iv := range a.interventions {
			s += fmt.Sprintf("  #%-3d %-10s %s\n", iv.Seq, formatDecision(iv.Decision), truncate(oneLine(iv.Original), 50))
		}
		s += "\n"
	}

	s += a.help.View(detailKeys{})
	return s
}

func formatTeamRunLine(run *models.TeamRun) string {
	status := "○"
	switch run.Status {
	case models.TeamRunSucceeded:
		status = statusSucceeded.Render("✓")
	case models.TeamRunRunning:
		status = statusRunning.Render("●")
	case models.TeamRunFailed:
		status = statusFailed.Render("✗")
	}

	line := fmt.Sprintf("%d. %-20s %s", run.Index+1, run.Name, status)
	if run.StartedAt != nil && run.CompletedAt != nil {
		line += "  " + dimStyle.Render(formatDuration(run.CompletedAt.Sub(*run.StartedAt)))
	} else if run.StartedAt != nil && run.Status == models.TeamRunRunning {
		line += "  " + statusRunning.Render(formatDuration(time.Since(*run.StartedAt))+"...")
	}
	return line
}

func formatDecision(d models.Decision) string {
	switch d {
	case models.DecisionApproved:
		return statusSucceeded.Render(string(d))
	case models.DecisionEdited:
		return decisionEdited.Render(string(d))
	case models.DecisionRejected:
		return statusFailed.Render(string(d))
	default:
		return string(d)
	}
}

func (a *App) viewLog() string {
	return titleStyle.Render("HITL log") + "\n\n" + a.logView.View() + "\n" + a.help.View(logKeys{})
}

// Messages

type sessionsLoadedMsg struct {
	sessions []*models.Session
	err      error
}

type sessionDetailMsg struct {
	session       *models.Session
	teamRuns      []*models.TeamRun
	interventions []*models.Intervention
	err           error
}

type sessionDeletedMsg struct {
	id  string
	err error
}

type logLoadedMsg struct {
	content string
	err     error
}

// Commands

func (a *App) loadSessions() tea.Msg {
	sessions, err := a.sessions.ListSessions(context.Background(), listLimit)
	return sessionsLoadedMsg{sessions: sessions, err: err}
}

func (a *App) loadDetail(id string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		session, err := a.sessions.GetSession(ctx, id)
		if err != nil {
			return sessionDetailMsg{err: err}
		}

		runs, err := a.sessions.GetTeamRuns(ctx, id)
		if err != nil {
			return sessionDetailMsg{err: err}
		}

		ivs, err := a.sessions.GetInterventions(ctx, id)
		return sessionDetailMsg{session: session, teamRuns: runs, interventions: ivs, err: err}
	}
}

func (a *App) deleteSession(id string) tea.Cmd {
	return func() tea.Msg {
		err := a.sessions.DeleteSession(context.Background(), id)
		return sessionDeletedMsg{id: id, err: err}
	}
}

func (a *App) loadLog(path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return logLoadedMsg{err: fmt.Errorf("failed to read HITL log: %w", err)}
		}
		return logLoadedMsg{content: string(data)}
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
