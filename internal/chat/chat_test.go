package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mpataki/ftry/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	name    string
	replies []string
	calls   [][]llm.Message
	err     error
}

func (f *fakeModel) Model() string { return f.name }

func (f *fakeModel) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("no more replies")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func collect(t *testing.T, stream Stream) ([]Event, error) {
	t.Helper()
	var events []Event
	for ev, err := range stream {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func TestTerminationConditions(t *testing.T) {
	msg := &TextMessage{Source: "a", Text: "all done __END__"}
	plain := &TextMessage{Source: "a", Text: "still going"}

	assert.Empty(t, MaxTurns(3).Check(2, plain))
	assert.Contains(t, MaxTurns(3).Check(3, plain), "Maximum number of turns 3")

	assert.Empty(t, TextMention("__END__").Check(1, plain))
	assert.Contains(t, TextMention("__END__").Check(1, msg), "__END__")

	cond := Or(MaxTurns(5), TextMention("__END__"))
	assert.Empty(t, cond.Check(1, plain))
	assert.NotEmpty(t, cond.Check(1, msg))
	assert.NotEmpty(t, cond.Check(5, plain))
}

func TestAgentRunStream(t *testing.T) {
	model := &fakeModel{name: "m", replies: []string{"hello there"}}
	agent := NewAgent("greeter", "Greets people.", "You greet.", model)

	events, err := collect(t, agent.RunStream(context.Background(), "say hi"))
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "user", events[0].EventSource())
	assert.Equal(t, "hello there", events[1].(*TextMessage).Text)
	result := events[2].(*TaskResult)
	assert.Len(t, result.Messages, 2)

	require.Len(t, model.calls, 1)
	assert.Equal(t, llm.RoleSystem, model.calls[0][0].Role)
	assert.Equal(t, "You greet.", model.calls[0][0].Content)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Name: "user", Content: "say hi"}, model.calls[0][1])
}

func TestAgentRunStreamError(t *testing.T) {
	agent := NewAgent("a", "", "p", &fakeModel{err: errors.New("offline")})

	events, err := collect(t, agent.RunStream(context.Background(), "task"))
	assert.ErrorContains(t, err, "offline")
	assert.Len(t, events, 1)
}

func TestNewTeamValidation(t *testing.T) {
	a := NewAgent("a", "", "", &fakeModel{})
	_, err := NewTeam("t", nil, &fakeModel{}, "", MaxTurns(1))
	assert.Error(t, err)

	_, err = NewTeam("t", []*Agent{a, NewAgent("a", "", "", &fakeModel{})}, &fakeModel{}, "", MaxTurns(1))
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewTeam("t", []*Agent{a}, &fakeModel{}, "", nil)
	assert.Error(t, err)
}

func TestTeamStopsOnKeyword(t *testing.T) {
	writer := NewAgent("writer", "Writes drafts.", "You write.", &fakeModel{replies: []string{"draft one"}})
	editor := NewAgent("editor", "Edits drafts.", "You edit.", &fakeModel{replies: []string{"looks good __END__"}})
	selector := &fakeModel{replies: []string{"writer"}}

	team, err := NewTeam("pair", []*Agent{writer, editor}, selector, "Pick the next speaker.", Or(MaxTurns(10), TextMention("__END__")))
	require.NoError(t, err)

	events, err := collect(t, team.RunStream(context.Background(), "write a poem"))
	require.NoError(t, err)

	var speakers []string
	for _, ev := range events {
		if s, ok := ev.(*SpeakerSelected); ok {
			speakers = append(speakers, s.Speaker)
		}
	}
	// The second turn excludes the previous speaker, leaving only the editor.
	assert.Equal(t, []string{"writer", "editor"}, speakers)

	result, ok := events[len(events)-1].(*TaskResult)
	require.True(t, ok)
	assert.Contains(t, result.StopReason, "__END__")
	assert.Len(t, result.Messages, 3)

	require.Len(t, selector.calls, 1)
	prompt := selector.calls[0][0].Content
	assert.Contains(t, prompt, "Pick the next speaker.")
	assert.Contains(t, prompt, "writer: Writes drafts.")
	assert.Contains(t, prompt, "[writer, editor]")
	assert.Contains(t, prompt, "user: write a poem")
}

func TestTeamStopsOnMaxTurns(t *testing.T) {
	solo := NewAgent("solo", "", "", &fakeModel{replies: []string{"one", "two", "three"}})
	team, err := NewTeam("solo-team", []*Agent{solo}, &fakeModel{}, "", Or(MaxTurns(2), TextMention("__END__")))
	require.NoError(t, err)

	events, err := collect(t, team.RunStream(context.Background(), "go"))
	require.NoError(t, err)

	result := events[len(events)-1].(*TaskResult)
	assert.Contains(t, result.StopReason, "Maximum number of turns 2")
	assert.Len(t, result.Messages, 3)
}

func TestTeamHistorySeesConsumerEdits(t *testing.T) {
	first := &fakeModel{replies: []string{"original"}}
	second := &fakeModel{replies: []string{"ack __END__"}}
	a := NewAgent("a", "", "", first)
	b := NewAgent("b", "", "", second)
	team, err := NewTeam("t", []*Agent{a, b}, &fakeModel{replies: []string{"a"}}, "", Or(MaxTurns(5), TextMention("__END__")))
	require.NoError(t, err)

	for ev, err := range team.RunStream(context.Background(), "task") {
		require.NoError(t, err)
		if m, ok := ev.(*TextMessage); ok && m.Source == "a" {
			m.SetContent("edited")
		}
	}

	require.Len(t, second.calls, 1)
	last := second.calls[0][len(second.calls[0])-1]
	assert.Equal(t, "edited", last.Content)
	assert.Equal(t, "a", last.Name)
}

func TestTeamSelectorFallback(t *testing.T) {
	a := NewAgent("alpha", "", "", &fakeModel{replies: []string{"x"}})
	b := NewAgent("beta", "", "", &fakeModel{replies: []string{"y"}})
	c := NewAgent("gamma", "", "", &fakeModel{replies: []string{"z"}})
	team, err := NewTeam("t", []*Agent{a, b, c}, &fakeModel{replies: []string{"nobody in particular"}}, "", MaxTurns(1))
	require.NoError(t, err)

	events, err := collect(t, team.RunStream(context.Background(), "task"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", events[1].(*SpeakerSelected).Speaker)
}

func TestTeamPropagatesSelectorError(t *testing.T) {
	a := NewAgent("a", "", "", &fakeModel{})
	b := NewAgent("b", "", "", &fakeModel{})
	team, err := NewTeam("t", []*Agent{a, b}, &fakeModel{err: errors.New("rate limited")}, "", MaxTurns(1))
	require.NoError(t, err)

	_, err = collect(t, team.RunStream(context.Background(), "task"))
	assert.ErrorContains(t, err, "speaker selection")
}

func TestTeamStopsWhenContextCancelled(t *testing.T) {
	a := NewAgent("a", "", "", &fakeModel{replies: []string{"x"}})
	team, err := NewTeam("t", []*Agent{a}, &fakeModel{}, "", MaxTurns(3))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = collect(t, team.RunStream(ctx, "task"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchSpeaker(t *testing.T) {
	candidates := []*Agent{
		NewAgent("writer", "", "", nil),
		NewAgent("senior_writer", "", "", nil),
		NewAgent("critic", "", "", nil),
	}

	tests := []struct {
		reply string
		want  string
	}{
		{"critic", "critic"},
		{"  \"Critic\".", "critic"},
		{"I think senior_writer should go", "senior_writer"},
		{"critic, then writer", "critic"},
		{"nobody", ""},
	}
	for _, tt := range tests {
		got := matchSpeaker(tt.reply, candidates)
		if tt.want == "" {
			assert.Nil(t, got, tt.reply)
			continue
		}
		require.NotNil(t, got, tt.reply)
		assert.Equal(t, tt.want, got.Name(), tt.reply)
	}
}

func TestRenderSelectorPromptPlaceholders(t *testing.T) {
	out := renderSelectorPrompt("Pick from {participants}:\n{roles}", []*Agent{NewAgent("a", "does a", "", nil)}, nil)
	assert.Equal(t, "Pick from [a]:\na: does a", out)
	assert.False(t, strings.Contains(out, "Conversation:"))
}
