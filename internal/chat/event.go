package chat

import (
	"context"
	"iter"
)

// Event is anything a running agent or team emits.
type Event interface {
	EventSource() string
}

// Reviewable is implemented by events carrying text an operator may approve,
// edit or reject before it continues downstream.
type Reviewable interface {
	Event
	Content() string
	SetContent(content string)
	Kind() string
}

// Stream is the event sequence produced by a run. A non-nil error ends it.
type Stream = iter.Seq2[Event, error]

// Runner is implemented by agents and teams.
type Runner interface {
	Name() string
	RunStream(ctx context.Context, task string) Stream
}

// TextMessage is a chat message produced by the user or an agent.
type TextMessage struct {
	Source string
	Text   string
}

func (m *TextMessage) EventSource() string { return m.Source }

func (m *TextMessage) Content() string { return m.Text }

func (m *TextMessage) SetContent(text string) { m.Text = text }

func (m *TextMessage) Kind() string { return "MESSAGE" }

// SpeakerSelected records the team's choice of the next speaker.
type SpeakerSelected struct {
	Team    string
	Speaker string
}

func (e *SpeakerSelected) EventSource() string { return e.Team }

// TaskResult is the final event of a run.
type TaskResult struct {
	Source     string
	Messages   []*TextMessage
	StopReason string
}

func (r *TaskResult) EventSource() string { return r.Source }
