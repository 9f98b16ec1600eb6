package hitl

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
)

// runEditor runs the editor command (which may carry arguments, such as
// "code --wait") on path, attached to the process terminal. Callers discard
// any operator input still buffered in the session first.
func runEditor(ctx context.Context, editor, path string) error {
	fields := strings.Fields(editor)
	if len(fields) == 0 {
		return errors.New("no editor configured")
	}

	cmd := exec.CommandContext(ctx, fields[0], append(fields[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
