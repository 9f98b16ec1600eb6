package hitl

import (
	"errors"
	"fmt"
)

// ErrInputClosed is returned when operator input ends while a decision is
// still pending.
var ErrInputClosed = errors.New("operator input closed")

// ExternalEditorError reports a failed external editor session. It is logged
// and the review falls back to inline editing.
type ExternalEditorError struct {
	Editor string
	Err    error
}

func (e *ExternalEditorError) Error() string {
	return fmt.Sprintf("editor %s failed: %v", e.Editor, e.Err)
}

func (e *ExternalEditorError) Unwrap() error {
	return e.Err
}
