package chat

import (
	"context"
	"fmt"

	"github.com/mpataki/ftry/internal/llm"
)

const userSource = "user"

// Agent answers with a single model completion per turn.
type Agent struct {
	name         string
	description  string
	systemPrompt string
	model        llm.Client
}

func NewAgent(name, description, systemPrompt string, model llm.Client) *Agent {
	return &Agent{
		name:         name,
		description:  description,
		systemPrompt: systemPrompt,
		model:        model,
	}
}

func (a *Agent) Name() string {
	return a.name
}

func (a *Agent) Description() string {
	return a.description
}

func (a *Agent) SystemPrompt() string {
	return a.systemPrompt
}

// Reply produces the agent's next message for the conversation so far. The
// agent's own messages are sent as assistant turns, everyone else's as user
// turns tagged with the speaker name.
func (a *Agent) Reply(ctx context.Context, history []*TextMessage) (*TextMessage, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	if a.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt})
	}
	for _, m := range history {
		if m.Source == a.name {
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: m.Text})
			continue
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Name: m.Source, Content: m.Text})
	}

	text, err := a.model.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.name, err)
	}
	return &TextMessage{Source: a.name, Text: text}, nil
}

// RunStream runs the agent once against task. Consumers may edit the reply
// in place before resuming the stream.
func (a *Agent) RunStream(ctx context.Context, task string) Stream {
	return func(yield func(Event, error) bool) {
		taskMsg := &TextMessage{Source: userSource, Text: task}
		if !yield(taskMsg, nil) {
			return
		}

		reply, err := a.Reply(ctx, []*TextMessage{taskMsg})
		if err != nil {
			yield(nil, err)
			return
		}
		if !yield(reply, nil) {
			return
		}

		yield(&TaskResult{
			Source:   a.name,
			Messages: []*TextMessage{taskMsg, reply},
		}, nil)
	}
}
