package models

import "time"

type TeamRunStatus string

const (
	TeamRunPending   TeamRunStatus = "pending"
	TeamRunRunning   TeamRunStatus = "running"
	TeamRunSucceeded TeamRunStatus = "succeeded"
	TeamRunFailed    TeamRunStatus = "failed"
)

// TeamRun is the outcome of one supervised team run. Index is the position
// of the team in its session's input list.
type TeamRun struct {
	ID          int64
	SessionID   string
	Index       int
	Name        string
	Status      TeamRunStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

func (r *TeamRun) Failed() bool {
	return r.Status == TeamRunFailed
}
