package tui

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mpataki/ftry/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	sessions      []*models.Session
	teamRuns      map[string][]*models.TeamRun
	interventions map[string][]*models.Intervention
	deleted       []string
}

func (f *fakeSessions) ListSessions(_ context.Context, limit int) ([]*models.Session, error) {
	if len(f.sessions) > limit {
		return f.sessions[:limit], nil
	}
	return f.sessions, nil
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (*models.Session, error) {
	for _, s := range f.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, os.ErrNotExist
}

func (f *fakeSessions) GetTeamRuns(_ context.Context, id string) ([]*models.TeamRun, error) {
	return f.teamRuns[id], nil
}

func (f *fakeSessions) GetInterventions(_ context.Context, id string) ([]*models.Intervention, error) {
	return f.interventions[id], nil
}

func (f *fakeSessions) DeleteSession(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// step applies msg and runs any returned command once, feeding its message
// back into the model.
func step(t *testing.T, app *App, msg tea.Msg) {
	t.Helper()
	_, cmd := app.Update(msg)
	if cmd == nil {
		return
	}
	if next := cmd(); next != nil {
		if _, ok := next.(tea.BatchMsg); !ok {
			app.Update(next)
		}
	}
}

func newFake(t *testing.T) *fakeSessions {
	logPath := filepath.Join(t.TempDir(), "hitl.log")
	require.NoError(t, os.WriteFile(logPath, []byte("HITL Session Started\nIntervention #1\n"), 0o644))

	started := time.Now().Add(-time.Minute)
	done := time.Now()
	return &fakeSessions{
		sessions: []*models.Session{
			{ID: "11111111-aaaa", Kind: models.SessionKindTeams, Source: "teams.yaml", Task: "go", Status: models.SessionStatusFailed, Error: "1 of 2 teams failed: Beta", CreatedAt: time.Now()},
			{ID: "22222222-bbbb", Kind: models.SessionKindAgent, Source: "agent.yaml", Task: "hi", Status: models.SessionStatusSucceeded, HITLLogPath: logPath, CreatedAt: time.Now().Add(-2 * time.Hour)},
		},
		teamRuns: map[string][]*models.TeamRun{
			"11111111-aaaa": {
				{Index: 0, Name: "Alpha", Status: models.TeamRunSucceeded, StartedAt: &started, CompletedAt: &done},
				{Index: 1, Name: "Beta", Status: models.TeamRunFailed, Error: "config file not found: x.yaml"},
			},
		},
		interventions: map[string][]*models.Intervention{
			"22222222-bbbb": {{Seq: 1, Original: "hello\nthere", Decision: models.DecisionEdited}},
		},
	}
}

func TestSessionListAndDetail(t *testing.T) {
	fake := newFake(t)
	app := NewApp(fake)

	app.Update(app.loadSessions())
	view := app.View()
	assert.Contains(t, view, "11111111")
	assert.Contains(t, view, "teams.yaml")

	step(t, app, keyPress("enter"))
	require.Equal(t, ViewSessionDetail, app.view)
	view = app.View()
	assert.Contains(t, view, "Alpha")
	assert.Contains(t, view, "Beta")
	assert.Contains(t, view, "1 of 2 teams failed")

	step(t, app, keyPress("j"))
	assert.Equal(t, 1, app.selectedTeamIdx)
	assert.Contains(t, app.View(), "config file not found: x.yaml")

	step(t, app, keyPress("esc"))
	assert.Equal(t, ViewSessionList, app.view)
}

func TestHITLLogView(t *testing.T) {
	fake := newFake(t)
	app := NewApp(fake)
	app.Update(app.loadSessions())

	step(t, app, keyPress("j"))
	step(t, app, keyPress("enter"))
	require.Equal(t, ViewSessionDetail, app.view)
	assert.Contains(t, app.View(), "hello there")

	step(t, app, keyPress("l"))
	require.Equal(t, ViewLog, app.view)
	assert.Contains(t, app.View(), "Intervention #1")

	step(t, app, keyPress("esc"))
	assert.Equal(t, ViewSessionDetail, app.view)
}

func TestDeleteSession(t *testing.T) {
	fake := newFake(t)
	app := NewApp(fake)
	app.Update(app.loadSessions())

	step(t, app, keyPress("d"))
	assert.Equal(t, []string{"11111111-aaaa"}, fake.deleted)
}

func TestQuit(t *testing.T) {
	app := NewApp(&fakeSessions{})
	_, cmd := app.Update(keyPress("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "1m5s", formatDuration(65*time.Second))
	assert.Equal(t, "now", formatAge(time.Now()))
	assert.Equal(t, "a b c", oneLine("a\n b\tc"))
}
