package hitl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mpataki/ftry/internal/chat"
	"github.com/mpataki/ftry/internal/console"
	"github.com/mpataki/ftry/internal/logging"
	"github.com/mpataki/ftry/internal/models"
	"github.com/mpataki/ftry/internal/workspace"
	"github.com/sirupsen/logrus"
)

var log = logging.NewLogger("hitl")

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	approvedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	rejectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// Recorder persists interventions alongside the audit log.
type Recorder interface {
	RecordIntervention(ctx context.Context, sessionID string, iv *models.Intervention) error
}

// EditorFunc opens path in editor and returns once the operator is done.
type EditorFunc func(ctx context.Context, editor, path string) error

type Options struct {
	In  io.Reader
	Out io.Writer

	// Logging writes an audit file to LogDir.
	Logging bool
	LogDir  string

	// Editor is the external editor command; empty disables external editing.
	Editor    string
	RunEditor EditorFunc

	Recorder  Recorder
	SessionID string

	Now func() time.Time
}

// Session owns the state of one review session: the audit log, the
// intervention counter and the operator's terminal.
type Session struct {
	in        *bufio.Reader
	out       io.Writer
	plain     bool
	editor    string
	runEditor EditorFunc
	recorder  Recorder
	sessionID string
	now       func() time.Time

	logFile *os.File
	logPath string
	count   int
}

func NewSession(opts Options) (*Session, error) {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.RunEditor == nil {
		opts.RunEditor = runEditor
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		in:        bufio.NewReader(opts.In),
		out:       opts.Out,
		plain:     !console.IsTerminal(opts.Out),
		editor:    opts.Editor,
		runEditor: opts.RunEditor,
		recorder:  opts.Recorder,
		sessionID: opts.SessionID,
		now:       opts.Now,
	}

	if opts.Logging {
		if err := s.openLog(opts.LogDir); err != nil {
			return nil, err
		}
		fmt.Fprintf(s.out, "HITL logging enabled. Session log: %s\n", s.logPath)
	}

	return s, nil
}

func (s *Session) openLog(dir string) error {
	if err := workspace.EnsureDir(dir); err != nil {
		return err
	}

	started := s.now()
	f, path, err := createLog(dir, "hitl_session_"+started.Format("20060102_150405"))
	if err != nil {
		return err
	}

	header := fmt.Sprintf("HITL Session Started: %s\n%s\n\n", started.Format(time.RFC3339), strings.Repeat("=", 50))
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return fmt.Errorf("failed to write HITL log: %w", err)
	}

	s.logFile = f
	s.logPath = path
	return nil
}

// createLog creates a new log file named after stem. Sessions started in the
// same second get a numeric suffix so no two of them share a file.
func createLog(dir, stem string) (*os.File, string, error) {
	for n := 1; ; n++ {
		name := stem + ".log"
		if n > 1 {
			name = fmt.Sprintf("%s_%d.log", stem, n)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to open HITL log: %w", err)
		}
		return f, path, nil
	}
}

// LogPath is the audit log location, or "" when logging is disabled.
func (s *Session) LogPath() string {
	return s.logPath
}

// Count is the number of interventions so far.
func (s *Session) Count() int {
	return s.count
}

func (s *Session) Close() error {
	if s.logFile == nil {
		return nil
	}
	err := s.logFile.Close()
	s.logFile = nil
	return err
}

// Wrap forwards the events of stream in order, pausing on every reviewable
// event with non-blank content for an operator decision. Rejected events are
// dropped; edited ones are forwarded with the new content.
func (s *Session) Wrap(ctx context.Context, stream chat.Stream) chat.Stream {
	return func(yield func(chat.Event, error) bool) {
		fmt.Fprintln(s.out, "\nStarting Human-in-the-Loop session...")

		for ev, err := range stream {
			if err != nil {
				yield(nil, err)
				return
			}

			if r, ok := ev.(chat.Reviewable); ok && strings.TrimSpace(r.Content()) != "" {
				decision, content, err := s.Review(ctx, r)
				if err != nil {
					yield(nil, err)
					return
				}

				switch decision {
				case models.DecisionRejected:
					fmt.Fprintln(s.out, s.style(rejectedStyle, "Message rejected - skipping this event"))
					continue
				case models.DecisionEdited:
					r.SetContent(content)
					fmt.Fprintln(s.out, s.style(approvedStyle, "Message edited and approved - proceeding"))
				default:
					fmt.Fprintln(s.out, s.style(approvedStyle, "Message approved - proceeding"))
				}
			}

			if !yield(ev, nil) {
				return
			}
		}

		s.printSummary()
	}
}

// Review asks the operator for a decision on r and records it. The returned
// content is the text to forward; it is empty for rejections.
func (s *Session) Review(ctx context.Context, r chat.Reviewable) (models.Decision, string, error) {
	original := r.Content()
	decision, content, err := s.present(ctx, original, r.Kind())
	if err != nil {
		return "", "", err
	}

	s.count++
	iv := &models.Intervention{
		Seq:       s.count,
		Timestamp: s.now(),
		Action:    "AI_" + r.Kind(),
		Original:  original,
		Decision:  decision,
	}
	if decision == models.DecisionEdited {
		iv.Edited = content
	}
	s.record(ctx, iv)

	return decision, content, nil
}

func (s *Session) present(ctx context.Context, content, kind string) (models.Decision, string, error) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(s.out, "\n%s\n%s\n%s\n", rule, s.style(bannerStyle, fmt.Sprintf("AI %s REVIEW (Human-in-the-Loop)", kind)), rule)
	fmt.Fprintf(s.out, "The AI wants to send the following message:\n\n%s\n\n%s\n", content, strings.Repeat("-", 60))

	for {
		fmt.Fprintln(s.out, "What would you like to do?")
		fmt.Fprintln(s.out, s.style(helpStyle, "  [a] Approve - Send the message as-is"))
		fmt.Fprintln(s.out, s.style(helpStyle, "  [e] Edit - Modify the message before sending"))
		fmt.Fprintln(s.out, s.style(helpStyle, "  [r] Reject - Cancel this message"))
		fmt.Fprintln(s.out, s.style(helpStyle, "  [v] View - Show the message again"))
		fmt.Fprint(s.out, "\nYour choice [a/e/r/v]: ")

		choice, err := s.readChoice()
		if err != nil {
			return "", "", err
		}

		switch choice {
		case "a":
			return models.DecisionApproved, content, nil
		case "e":
			return s.edit(ctx, content)
		case "r":
			return models.DecisionRejected, "", nil
		case "v":
			fmt.Fprintf(s.out, "\nOriginal %s:\n%s\n", strings.ToLower(kind), content)
		default:
			fmt.Fprintln(s.out, "Invalid choice. Please enter 'a', 'e', 'r', or 'v'.")
		}
	}
}

func (s *Session) edit(ctx context.Context, content string) (models.Decision, string, error) {
	fmt.Fprintln(s.out, "\nChoose editing method:")
	fmt.Fprintln(s.out, s.style(helpStyle, "  [i] Inline - Edit directly in terminal"))
	fmt.Fprintln(s.out, s.style(helpStyle, "  [e] External - Use $EDITOR (if available)"))
	fmt.Fprint(s.out, "Editing method [i/e]: ")

	choice, err := s.readChoice()
	if err != nil {
		return "", "", err
	}

	if choice == "e" && s.editor != "" {
		s.discardTypeAhead()
		edited, err := s.editExternal(ctx, content)
		if err == nil {
			return resolveEdit(content, edited), editedOr(content, edited), nil
		}
		log.WithError(err).Warn("External editor failed, falling back to inline editing")
		fmt.Fprintf(s.out, "Error opening editor %s. Falling back to inline editing.\n", s.editor)
	}

	return s.editInline(content)
}

func (s *Session) editExternal(ctx context.Context, content string) (string, error) {
	var edited string
	err := workspace.WithTempFile("", "hitl_edit_*.txt", []byte(content), func(path string) error {
		if err := s.runEditor(ctx, s.editor, path); err != nil {
			return &ExternalEditorError{Editor: s.editor, Err: err}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return &ExternalEditorError{Editor: s.editor, Err: err}
		}
		edited = strings.TrimSpace(string(data))
		return nil
	})
	return edited, err
}

// discardTypeAhead drops input already buffered from the operator. The editor
// reads the terminal directly and would never see it.
func (s *Session) discardTypeAhead() {
	if n := s.in.Buffered(); n > 0 {
		s.in.Discard(n)
		log.WithField("bytes", n).Debug("Discarded type-ahead before starting the editor")
	}
}

// editInline reads replacement lines until a blank line or end of input.
func (s *Session) editInline(content string) (models.Decision, string, error) {
	fmt.Fprintln(s.out, "\nInline Editing Mode")
	fmt.Fprintln(s.out, "Enter your modified version (press Ctrl+D or empty line to finish):")
	fmt.Fprintf(s.out, "\nCurrent content:\n'%s'\n\nEnter modified content:\n", content)

	var lines []string
	for {
		line, err := s.in.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
		if err != nil {
			break
		}
	}

	edited := strings.TrimSpace(strings.Join(lines, "\n"))
	return resolveEdit(content, edited), editedOr(content, edited), nil
}

func resolveEdit(original, edited string) models.Decision {
	if edited != "" && edited != original {
		return models.DecisionEdited
	}
	return models.DecisionApproved
}

func editedOr(original, edited string) string {
	if edited != "" && edited != original {
		return edited
	}
	return original
}

func (s *Session) readChoice() (string, error) {
	line, err := s.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", ErrInputClosed
		}
		return "", fmt.Errorf("failed to read operator input: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}

func (s *Session) record(ctx context.Context, iv *models.Intervention) {
	if s.logFile != nil {
		if _, err := s.logFile.WriteString(formatIntervention(iv)); err != nil {
			log.WithError(err).Warn("Failed to write HITL log entry")
		}
	}

	if s.recorder != nil {
		if err := s.recorder.RecordIntervention(ctx, s.sessionID, iv); err != nil {
			log.WithFields(logrus.Fields{
				"session": s.sessionID,
				"seq":     iv.Seq,
			}).WithError(err).Warn("Failed to store intervention")
		}
	}
}

func formatIntervention(iv *models.Intervention) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] Intervention #%d\n", iv.Timestamp.Format(time.RFC3339Nano), iv.Seq)
	fmt.Fprintf(&b, "Action: %s\n", iv.Action)
	fmt.Fprintf(&b, "Original Content:\n%s\n", iv.Original)
	fmt.Fprintf(&b, "User Decision: %s\n", iv.Decision)
	if iv.Edited != "" && iv.Edited != iv.Original {
		fmt.Fprintf(&b, "Edited Content:\n%s\n", iv.Edited)
	}
	b.WriteString(strings.Repeat("-", 30) + "\n\n")
	return b.String()
}

func (s *Session) printSummary() {
	if s.count == 0 {
		return
	}
	fmt.Fprintln(s.out, "\nHITL Session Summary:")
	fmt.Fprintf(s.out, "   Total interventions: %d\n", s.count)
	if s.logPath != "" {
		fmt.Fprintf(s.out, "   Session log: %s\n", s.logPath)
	}
}

func (s *Session) style(st lipgloss.Style, text string) string {
	if s.plain {
		return text
	}
	return st.Render(text)
}
