package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mpataki/ftry/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "ftry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	session := &models.Session{
		ID:     "a1",
		Kind:   models.SessionKindTeams,
		Source: "teams.yaml",
		Task:   "build it",
		Status: models.SessionStatusRunning,
	}
	require.NoError(t, s.CreateSession(ctx, session))
	assert.False(t, session.CreatedAt.IsZero())

	got, err := s.GetSession(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionKindTeams, got.Kind)
	assert.Equal(t, "build it", got.Task)
	assert.Nil(t, got.CompletedAt)
	assert.WithinDuration(t, session.CreatedAt, got.CreatedAt, time.Second)

	done := time.Now()
	session.Status = models.SessionStatusFailed
	session.Error = "1 of 3 teams failed"
	session.CompletedAt = &done
	session.HITLLogPath = "/tmp/hitl.log"
	require.NoError(t, s.UpdateSession(ctx, session))

	got, err = s.GetSession(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFailed, got.Status)
	assert.Equal(t, "1 of 3 teams failed", got.Error)
	assert.Equal(t, "/tmp/hitl.log", got.HITLLogPath)
	require.NotNil(t, got.CompletedAt)
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetSession(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListSessionsNewestFirst(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.CreateSession(ctx, &models.Session{
			ID:        id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Kind:      models.SessionKindAgent,
			Source:    "agent.yaml",
			Task:      "t",
			Status:    models.SessionStatusSucceeded,
		}))
	}

	sessions, err := s.ListSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "new", sessions[0].ID)
	assert.Equal(t, "mid", sessions[1].ID)
}

func TestTeamRunsKeepInputOrder(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, &models.Session{ID: "s", Kind: models.SessionKindTeams, Source: "x", Task: "t", Status: models.SessionStatusRunning}))

	for _, idx := range []int{2, 0, 1} {
		run := &models.TeamRun{SessionID: "s", Index: idx, Name: "team", Status: models.TeamRunPending}
		require.NoError(t, s.CreateTeamRun(ctx, run))
		assert.NotZero(t, run.ID)

		if idx == 1 {
			now := time.Now()
			run.Status = models.TeamRunFailed
			run.Error = "boom"
			run.StartedAt = &now
			run.CompletedAt = &now
			require.NoError(t, s.UpdateTeamRun(ctx, run))
		}
	}

	runs, err := s.GetTeamRuns(ctx, "s")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for i, run := range runs {
		assert.Equal(t, i, run.Index)
	}
	assert.True(t, runs[1].Failed())
	assert.Equal(t, "boom", runs[1].Error)
	assert.NotNil(t, runs[1].StartedAt)
	assert.Nil(t, runs[0].StartedAt)
}

func TestInterventions(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, &models.Session{ID: "s", Kind: models.SessionKindAgent, Source: "x", Task: "t", Status: models.SessionStatusRunning}))

	require.NoError(t, s.RecordIntervention(ctx, "s", &models.Intervention{
		Seq: 1, Timestamp: time.Now(), Action: "AI_MESSAGE", Original: "hi", Decision: models.DecisionEdited, Edited: "hello",
	}))
	require.NoError(t, s.RecordIntervention(ctx, "s", &models.Intervention{
		Seq: 2, Timestamp: time.Now(), Action: "AI_MESSAGE", Original: "bye", Decision: models.DecisionRejected,
	}))

	n, err := s.CountInterventions(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ivs, err := s.GetInterventions(ctx, "s")
	require.NoError(t, err)
	require.Len(t, ivs, 2)
	assert.Equal(t, "hello", ivs[0].Edited)
	assert.Equal(t, models.DecisionRejected, ivs[1].Decision)

	require.NoError(t, s.DeleteSession(ctx, "s"))
	n, err = s.CountInterventions(ctx, "s")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFormatTimeAgo(t *testing.T) {
	assert.Equal(t, "just now", FormatTimeAgo(time.Now()))
	assert.Equal(t, "5m ago", FormatTimeAgo(time.Now().Add(-5*time.Minute-time.Second)))
	assert.Equal(t, "3h ago", FormatTimeAgo(time.Now().Add(-3*time.Hour-time.Second)))
}
