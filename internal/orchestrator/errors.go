package orchestrator

import (
	"fmt"
	"strings"
)

// TeamRunError reports the failure of one team in a session.
type TeamRunError struct {
	Team  string
	Index int
	Err   error
}

func (e *TeamRunError) Error() string {
	return fmt.Sprintf("team %s failed: %v", e.Team, e.Err)
}

func (e *TeamRunError) Unwrap() error {
	return e.Err
}

// SessionFailedError is returned once every team of a multi-team session has
// finished and at least one of them failed.
type SessionFailedError struct {
	SessionID string
	Failed    []string
	Total     int
}

func (e *SessionFailedError) Error() string {
	return fmt.Sprintf("%d of %d teams failed: %s", len(e.Failed), e.Total, strings.Join(e.Failed, ", "))
}
