package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/mpataki/ftry/internal/logging"
	"github.com/mpataki/ftry/internal/models"
)

var log = logging.NewLogger("llm")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Name    string
	Content string
}

// Client is a chat completion model.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Model() string
}

// Factory builds a client from a resolved model config.
type Factory func(cfg models.ModelConfig) (Client, error)

const (
	ProviderOpenAI      = "openai"
	ProviderAzureOpenAI = "azure-openai"
	ProviderLua         = "lua"
)

// New returns the client for cfg.Provider.
func New(cfg models.ModelConfig) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderAzureOpenAI:
		c, err := NewAzureOpenAI(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderLua:
		c, err := NewScripted(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}

type ModelInvocationError struct {
	Model string
	Err   error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("model %s invocation failed: %v", e.Model, e.Err)
}

func (e *ModelInvocationError) Unwrap() error {
	return e.Err
}
