package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/mpataki/ftry/internal/chat"
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	FailureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	prefixStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	stopStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))
)

// Writer serialises output from concurrent runs. Each block is written under
// one lock so lines from different teams never interleave mid-line.
type Writer struct {
	mu    sync.Mutex
	out   io.Writer
	plain bool
}

// NewWriter wraps out. Styling is disabled unless out is a terminal.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out, plain: !IsTerminal(out)}
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Write(p)
}

// Style renders text with s unless output is plain.
func (w *Writer) Style(s lipgloss.Style, text string) string {
	if w.plain {
		return text
	}
	return s.Render(text)
}

// block writes text with every line prefixed, as a single write.
func (w *Writer) block(prefix, text string) {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if prefix != "" {
			b.WriteString(w.Style(prefixStyle, "["+prefix+"]"))
			b.WriteString(" ")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	w.Write([]byte(b.String()))
}

type Options struct {
	// Prefix tags every output line, typically with the team name.
	Prefix string
}

// Render prints every event of stream to w and returns the final task
// result. A stream error or context cancellation ends rendering with that
// error.
func Render(ctx context.Context, stream chat.Stream, w *Writer, opts Options) (*chat.TaskResult, error) {
	var result *chat.TaskResult

	for ev, err := range stream {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch e := ev.(type) {
		case *chat.TextMessage:
			header := w.Style(HeaderStyle, fmt.Sprintf("---------- TextMessage (%s) ----------", e.Source))
			w.block(opts.Prefix, header+"\n"+e.Text)
		case *chat.SpeakerSelected:
			w.block(opts.Prefix, w.Style(dimStyle, fmt.Sprintf("---------- SelectSpeakerEvent (%s) ----------\n%s", e.Team, e.Speaker)))
		case *chat.TaskResult:
			result = e
			if e.StopReason != "" {
				w.block(opts.Prefix, w.Style(stopStyle, "Stop reason: "+e.StopReason))
			}
		default:
			if r, ok := ev.(chat.Reviewable); ok {
				header := w.Style(HeaderStyle, fmt.Sprintf("---------- %s (%s) ----------", r.Kind(), r.EventSource()))
				w.block(opts.Prefix, header+"\n"+r.Content())
			}
		}
	}

	if result == nil {
		return nil, fmt.Errorf("stream ended without a task result")
	}
	return result, nil
}
