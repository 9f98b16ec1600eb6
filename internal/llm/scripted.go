package llm

import (
	"context"
	"errors"

	"github.com/mpataki/ftry/internal/lua"
	"github.com/mpataki/ftry/internal/models"
)

// ScriptedClient answers completions with a Lua script. It is meant for
// offline runs and rehearsals of team configurations.
type ScriptedClient struct {
	model  string
	script *lua.Script
}

// NewScripted loads cfg.Script, or cfg.Name when it names a .lua file.
func NewScripted(cfg models.ModelConfig) (*ScriptedClient, error) {
	path := cfg.Script
	if path == "" && lua.IsScript(cfg.Name) {
		path = cfg.Name
	}
	if path == "" {
		return nil, errors.New("lua provider requires model.script")
	}

	script, err := lua.Load(path, cfg.Name)
	if err != nil {
		return nil, err
	}
	return &ScriptedClient{model: cfg.Name, script: script}, nil
}

func (c *ScriptedClient) Model() string {
	return c.model
}

func (c *ScriptedClient) Complete(ctx context.Context, messages []Message) (string, error) {
	in := make([]lua.Message, len(messages))
	for i, m := range messages {
		in[i] = lua.Message{Role: string(m.Role), Name: m.Name, Content: m.Content}
	}

	out, err := c.script.Complete(ctx, in)
	if err != nil {
		return "", &ModelInvocationError{Model: c.model, Err: err}
	}
	return out, nil
}
