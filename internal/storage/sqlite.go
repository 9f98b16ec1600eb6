package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mpataki/ftry/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session lookup matches nothing.
var ErrNotFound = errors.New("not found")

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Concurrent team runs share one connection so writes never hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		kind TEXT NOT NULL,
		source TEXT NOT NULL,
		task TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT,
		hitl_log_path TEXT
	);

	CREATE TABLE IF NOT EXISTS team_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		idx INTEGER NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		UNIQUE(session_id, idx)
	);

	CREATE TABLE IF NOT EXISTS interventions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		seq INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		action TEXT NOT NULL,
		original TEXT NOT NULL,
		decision TEXT NOT NULL,
		edited TEXT,
		UNIQUE(session_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	CREATE INDEX IF NOT EXISTS idx_team_runs_session ON team_runs(session_id);
	CREATE INDEX IF NOT EXISTS idx_interventions_session ON interventions(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) CreateSession(ctx context.Context, session *models.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, kind, source, task, status, hitl_log_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.CreatedAt, session.Kind, session.Source, session.Task, session.Status, session.HITLLogPath,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *Storage) UpdateSession(ctx context.Context, session *models.Session) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET completed_at = ?, status = ?, error = ?, hitl_log_path = ? WHERE id = ?`,
		session.CompletedAt, session.Status, session.Error, session.HITLLogPath, session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

const sessionColumns = `id, created_at, completed_at, kind, source, task, status, error, hitl_log_path`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var session models.Session
	var completedAt sql.NullTime
	var errText, logPath sql.NullString

	err := row.Scan(
		&session.ID, &session.CreatedAt, &completedAt, &session.Kind,
		&session.Source, &session.Task, &session.Status, &errText, &logPath,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}
	session.Error = errText.String
	session.HITLLogPath = logPath.String

	return &session, nil
}

func (s *Storage) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return session, nil
}

// ListSessions returns the most recent sessions first.
func (s *Storage) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM interventions WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM team_runs WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Storage) CreateTeamRun(ctx context.Context, run *models.TeamRun) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO team_runs (session_id, idx, name, status, error, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.SessionID, run.Index, run.Name, run.Status, run.Error, run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create team run: %w", err)
	}
	run.ID, err = result.LastInsertId()
	return err
}

func (s *Storage) UpdateTeamRun(ctx context.Context, run *models.TeamRun) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE team_runs SET name = ?, status = ?, error = ?, started_at = ?, completed_at = ? WHERE id = ?`,
		run.Name, run.Status, run.Error, run.StartedAt, run.CompletedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update team run: %w", err)
	}
	return nil
}

// GetTeamRuns returns the team runs of a session in input order.
func (s *Storage) GetTeamRuns(ctx context.Context, sessionID string) ([]*models.TeamRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, idx, name, status, error, started_at, completed_at
		 FROM team_runs WHERE session_id = ? ORDER BY idx`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load team runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.TeamRun
	for rows.Next() {
		var run models.TeamRun
		var errText sql.NullString
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&run.ID, &run.SessionID, &run.Index, &run.Name, &run.Status,
			&errText, &startedAt, &completedAt,
		)
		if err != nil {
			return nil, err
		}

		run.Error = errText.String
		if startedAt.Valid {
			run.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}

		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

func (s *Storage) RecordIntervention(ctx context.Context, sessionID string, iv *models.Intervention) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interventions (session_id, seq, created_at, action, original, decision, edited)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, iv.Seq, iv.Timestamp, iv.Action, iv.Original, iv.Decision, iv.Edited,
	)
	if err != nil {
		return fmt.Errorf("failed to record intervention: %w", err)
	}
	return nil
}

// GetInterventions returns a session's interventions in review order.
func (s *Storage) GetInterventions(ctx context.Context, sessionID string) ([]*models.Intervention, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, created_at, action, original, decision, edited
		 FROM interventions WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load interventions: %w", err)
	}
	defer rows.Close()

	var ivs []*models.Intervention
	for rows.Next() {
		var iv models.Intervention
		var edited sql.NullString
		if err := rows.Scan(&iv.Seq, &iv.Timestamp, &iv.Action, &iv.Original, &iv.Decision, &edited); err != nil {
			return nil, err
		}
		iv.Edited = edited.String
		ivs = append(ivs, &iv)
	}

	return ivs, rows.Err()
}

func (s *Storage) CountInterventions(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interventions WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count interventions: %w", err)
	}
	return n, nil
}

// FormatTimeAgo renders t relative to now for list views.
func FormatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}
