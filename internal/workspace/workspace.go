package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is a per-session scratch directory under the data dir. Files
// created through it live only as long as the callback that uses them.
type Workspace struct {
	Path string
}

func Create(baseDir string, sessionID string) (*Workspace, error) {
	path := filepath.Join(baseDir, fmt.Sprintf("session-%s", sessionID))

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}

	return &Workspace{Path: path}, nil
}

func Open(baseDir string, sessionID string) (*Workspace, error) {
	path := filepath.Join(baseDir, fmt.Sprintf("session-%s", sessionID))

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("workspace for session %s does not exist", sessionID)
	}

	return &Workspace{Path: path}, nil
}

// WithTempFile writes data to a new file in the workspace and hands its path
// to fn. The file is removed when fn returns, whatever the outcome.
func (w *Workspace) WithTempFile(pattern string, data []byte, fn func(path string) error) error {
	return WithTempFile(w.Path, pattern, data, fn)
}

// Remove deletes the workspace directory and anything left in it.
func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.Path); err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}
	return nil
}

// WithTempFile is the directory-level form of Workspace.WithTempFile. An
// empty dir means the system temp directory.
func WithTempFile(dir, pattern string, data []byte, fn func(path string) error) error {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	return fn(path)
}

// EnsureDir creates dir (and parents) if it does not exist yet.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
