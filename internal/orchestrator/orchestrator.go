package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mpataki/ftry/internal/builder"
	"github.com/mpataki/ftry/internal/chat"
	"github.com/mpataki/ftry/internal/config"
	"github.com/mpataki/ftry/internal/console"
	"github.com/mpataki/ftry/internal/hitl"
	"github.com/mpataki/ftry/internal/llm"
	"github.com/mpataki/ftry/internal/logging"
	"github.com/mpataki/ftry/internal/manifest"
	"github.com/mpataki/ftry/internal/models"
	"github.com/mpataki/ftry/internal/storage"
	"github.com/mpataki/ftry/internal/workspace"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logging.NewLogger("orchestrator")

type Options struct {
	Storage *storage.Storage
	// Factory creates model clients; nil means llm.New.
	Factory llm.Factory
	Out     io.Writer

	// WorkspaceDir holds per-session scratch directories.
	WorkspaceDir string
	DefaultTask  string

	// HITL configures review sessions. Recorder and SessionID are set per run.
	HITL hitl.Options
}

type Orchestrator struct {
	storage      *storage.Storage
	builder      *builder.Builder
	out          *console.Writer
	workspaceDir string
	defaultTask  string
	hitl         hitl.Options
}

func New(opts Options) *Orchestrator {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.DefaultTask == "" {
		opts.DefaultTask = config.DefaultTask
	}
	if opts.WorkspaceDir == "" {
		opts.WorkspaceDir = os.TempDir()
	}

	return &Orchestrator{
		storage:      opts.Storage,
		builder:      builder.New(opts.Factory),
		out:          console.NewWriter(opts.Out),
		workspaceDir: opts.WorkspaceDir,
		defaultTask:  opts.DefaultTask,
		hitl:         opts.HITL,
	}
}

// RunAgent builds the agent at path and runs it once on task.
func (o *Orchestrator) RunAgent(ctx context.Context, path, task string, review bool) (*models.Session, error) {
	fmt.Fprintf(o.out, "Creating agent from file: %s\n", path)
	return o.runSession(ctx, models.SessionKindAgent, path, task, review, func(ctx context.Context) (chat.Runner, error) {
		return o.builder.BuildAgentFile(ctx, path)
	})
}

// RunTeam builds the team at path and runs it until its termination
// condition fires.
func (o *Orchestrator) RunTeam(ctx context.Context, path, task string, review bool) (*models.Session, error) {
	fmt.Fprintf(o.out, "Creating team from file: %s\n", path)
	return o.runSession(ctx, models.SessionKindTeam, path, task, review, func(ctx context.Context) (chat.Runner, error) {
		return o.builder.BuildTeamFile(ctx, path)
	})
}

func (o *Orchestrator) runSession(
	ctx context.Context,
	kind models.SessionKind,
	path, task string,
	review bool,
	build func(ctx context.Context) (chat.Runner, error),
) (*models.Session, error) {
	session, err := o.startSession(ctx, kind, path, task)
	if err != nil {
		return nil, err
	}

	var reviewer *hitl.Session
	if review {
		fmt.Fprintln(o.out, "Human-in-the-Loop mode enabled")
		opts := o.hitl
		opts.Recorder = o.storage
		opts.SessionID = session.ID
		reviewer, err = hitl.NewSession(opts)
		if err != nil {
			return session, o.finishSession(ctx, session, err)
		}
		defer reviewer.Close()
		session.HITLLogPath = reviewer.LogPath()
	}

	runner, err := build(ctx)
	if err == nil {
		err = o.run(ctx, runner, session.Task, "", reviewer)
	}
	return session, o.finishSession(ctx, session, err)
}

func (o *Orchestrator) run(ctx context.Context, runner chat.Runner, task, prefix string, reviewer *hitl.Session) error {
	stream := runner.RunStream(ctx, task)
	if reviewer != nil {
		stream = reviewer.Wrap(ctx, stream)
	}

	result, err := console.Render(ctx, stream, o.out, console.Options{Prefix: prefix})
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"runner":      runner.Name(),
		"messages":    len(result.Messages),
		"stop_reason": result.StopReason,
	}).Info("Run finished")
	return nil
}

// RunTeams runs every team of the multi-team file at path concurrently. A
// failing team never cancels its siblings; the session fails with a
// SessionFailedError once all of them have finished.
func (o *Orchestrator) RunTeams(ctx context.Context, path, task string) (*models.Session, []*models.TeamRun, error) {
	cfg, err := manifest.LoadTeams(path)
	if err != nil {
		return nil, nil, err
	}

	session, err := o.startSession(ctx, models.SessionKindTeams, path, task)
	if err != nil {
		return nil, nil, err
	}

	ws, err := workspace.Create(o.workspaceDir, session.ID)
	if err != nil {
		return session, nil, o.finishSession(ctx, session, err)
	}
	defer ws.Remove()

	runs := make([]*models.TeamRun, len(cfg.Teams))
	for i, entry := range cfg.Teams {
		runs[i] = &models.TeamRun{
			SessionID: session.ID,
			Index:     i,
			Name:      teamName(entry, i),
			Status:    models.TeamRunPending,
		}
		if err := o.storage.CreateTeamRun(ctx, runs[i]); err != nil {
			return session, nil, o.finishSession(ctx, session, err)
		}
	}

	// errgroup without a context: a failure must not cancel the other teams.
	var g errgroup.Group
	for i, entry := range cfg.Teams {
		g.Go(func() error {
			run := runs[i]
			o.updateTeamRun(ctx, run, models.TeamRunRunning, nil)

			err := o.RunSingleTeam(ctx, ws, i, entry, session.Task)
			if err != nil {
				o.updateTeamRun(ctx, run, models.TeamRunFailed, err)
			} else {
				o.updateTeamRun(ctx, run, models.TeamRunSucceeded, nil)
			}
			return nil
		})
	}
	g.Wait()

	failed := o.printSummary(runs)

	var sessionErr error
	if len(failed) > 0 {
		sessionErr = &SessionFailedError{SessionID: session.ID, Failed: failed, Total: len(runs)}
	}
	return session, runs, o.finishSession(ctx, session, sessionErr)
}

// RunSingleTeam builds and runs one entry of a multi-team file. Inline
// entries are written to a temporary team file in ws for the build; the file
// is gone by the time the team starts talking.
func (o *Orchestrator) RunSingleTeam(ctx context.Context, ws *workspace.Workspace, index int, entry models.TeamEntry, task string) (err error) {
	name := teamName(entry, index)
	logger := log.WithFields(logrus.Fields{
		"team":  name,
		"index": index,
	})
	fail := func(err error) error {
		logger.WithError(err).Error("Team failed")
		fmt.Fprintln(o.out, o.out.Style(console.FailureStyle, fmt.Sprintf("%s - Failed: %v", name, err)))
		return &TeamRunError{Team: name, Index: index, Err: err}
	}
	// A panicking team fails alone; its siblings keep running.
	defer func() {
		if r := recover(); r != nil {
			err = fail(fmt.Errorf("panic: %v", r))
		}
	}()

	fmt.Fprintf(o.out, "\nStarting %s...\n", name)
	logger.Info("Starting team")

	team, err := o.buildEntry(ctx, ws, entry)
	if err != nil {
		return fail(err)
	}

	if entry.Task != "" {
		task = entry.Task
	}
	if task == "" {
		task = o.defaultTask
	}

	fmt.Fprintf(o.out, "%s - Task: %s\n", name, task)
	fmt.Fprintf(o.out, "%s - Starting execution...\n", name)
	logger.WithField("task", task).Info("Running team")

	if err := o.run(ctx, team, task, name, nil); err != nil {
		return fail(err)
	}

	fmt.Fprintln(o.out, o.out.Style(console.SuccessStyle, fmt.Sprintf("%s - Completed successfully", name)))
	logger.Info("Team completed")
	return nil
}

func (o *Orchestrator) buildEntry(ctx context.Context, ws *workspace.Workspace, entry models.TeamEntry) (*chat.Team, error) {
	if entry.Config != "" {
		if _, err := os.Stat(entry.Config); err != nil {
			return nil, fmt.Errorf("config file not found: %s", entry.Config)
		}
		return o.builder.BuildTeamFile(ctx, entry.Config)
	}

	data, err := manifest.MaterializeTeam(entry)
	if err != nil {
		return nil, err
	}

	var team *chat.Team
	err = ws.WithTempFile("team_*.yaml", data, func(path string) error {
		team, err = o.builder.BuildTeamFile(ctx, path)
		return err
	})
	return team, err
}

func teamName(entry models.TeamEntry, index int) string {
	if entry.Name != "" {
		return entry.Name
	}
	return fmt.Sprintf("Team-%d", index+1)
}

// printSummary reports every team in input order and returns the names of
// the failed ones.
func (o *Orchestrator) printSummary(runs []*models.TeamRun) []string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(&b, "\n%s\n%s\n%s\n", rule, o.out.Style(console.HeaderStyle, "TEAMS EXECUTION SUMMARY"), rule)

	var failed []string
	for _, run := range runs {
		if run.Failed() {
			failed = append(failed, run.Name)
			b.WriteString(o.out.Style(console.FailureStyle, fmt.Sprintf("✗ %s: FAILED - %s", run.Name, run.Error)) + "\n")
		} else {
			b.WriteString(o.out.Style(console.SuccessStyle, fmt.Sprintf("✓ %s: SUCCESS", run.Name)) + "\n")
		}
	}

	fmt.Fprintf(&b, "\nSuccessful teams: %d\n", len(runs)-len(failed))
	fmt.Fprintf(&b, "Failed teams: %d\n", len(failed))
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\nFailed teams: %s\n", strings.Join(failed, ", "))
	} else {
		b.WriteString("\nAll teams completed successfully!\n")
	}

	io.WriteString(o.out, b.String())
	return failed
}

func (o *Orchestrator) startSession(ctx context.Context, kind models.SessionKind, path, task string) (*models.Session, error) {
	if task == "" {
		task = o.defaultTask
	}
	session := &models.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Kind:      kind,
		Source:    path,
		Task:      task,
		Status:    models.SessionStatusRunning,
	}
	if err := o.storage.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"session": session.ID,
		"kind":    kind,
		"source":  path,
	}).Info("Session started")
	return session, nil
}

// finishSession records the outcome of session and returns runErr.
func (o *Orchestrator) finishSession(ctx context.Context, session *models.Session, runErr error) error {
	now := time.Now()
	session.CompletedAt = &now
	session.Status = models.SessionStatusSucceeded
	if runErr != nil {
		session.Status = models.SessionStatusFailed
		session.Error = runErr.Error()
	}

	// The run context may already be cancelled; the outcome is still recorded.
	if err := o.storage.UpdateSession(context.WithoutCancel(ctx), session); err != nil {
		log.WithError(err).WithField("session", session.ID).Warn("Failed to record session outcome")
	}

	entry := log.WithFields(logrus.Fields{
		"session": session.ID,
		"status":  session.Status,
	})
	if runErr != nil {
		entry.WithError(runErr).Error("Session failed")
	} else {
		entry.Info("Session completed")
	}
	return runErr
}

func (o *Orchestrator) updateTeamRun(ctx context.Context, run *models.TeamRun, status models.TeamRunStatus, runErr error) {
	now := time.Now()
	run.Status = status
	switch status {
	case models.TeamRunRunning:
		run.StartedAt = &now
	case models.TeamRunSucceeded, models.TeamRunFailed:
		run.CompletedAt = &now
	}
	if runErr != nil {
		var teamErr *TeamRunError
		if errors.As(runErr, &teamErr) {
			runErr = teamErr.Err
		}
		run.Error = runErr.Error()
	}

	if err := o.storage.UpdateTeamRun(context.WithoutCancel(ctx), run); err != nil {
		log.WithError(err).WithField("team", run.Name).Warn("Failed to record team state")
	}
}

// Read methods for the history views

func (o *Orchestrator) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	return o.storage.ListSessions(ctx, limit)
}

func (o *Orchestrator) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return o.storage.GetSession(ctx, id)
}

func (o *Orchestrator) GetTeamRuns(ctx context.Context, sessionID string) ([]*models.TeamRun, error) {
	return o.storage.GetTeamRuns(ctx, sessionID)
}

func (o *Orchestrator) GetInterventions(ctx context.Context, sessionID string) ([]*models.Intervention, error) {
	return o.storage.GetInterventions(ctx, sessionID)
}

// DeleteSession removes a session's records and any scratch directory left
// behind by an interrupted run.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	if ws, err := workspace.Open(o.workspaceDir, id); err == nil {
		if err := ws.Remove(); err != nil {
			return err
		}
	}
	return o.storage.DeleteSession(ctx, id)
}
