package models

import "time"

type SessionKind string

const (
	SessionKindAgent SessionKind = "agent"
	SessionKindTeam  SessionKind = "team"
	SessionKindTeams SessionKind = "teams"
)

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusSucceeded SessionStatus = "succeeded"
	SessionStatusFailed    SessionStatus = "failed"
)

type Session struct {
	ID          string
	CreatedAt   time.Time
	CompletedAt *time.Time
	Kind        SessionKind
	Source      string
	Task        string
	Status      SessionStatus
	Error       string
	HITLLogPath string
}
