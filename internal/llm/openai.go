package llm

import (
	"context"
	"errors"
	"os"
	"regexp"

	"github.com/mpataki/ftry/internal/models"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// OpenAIClient talks to the OpenAI or Azure OpenAI chat completions API.
type OpenAIClient struct {
	client   *openai.Client
	model    string
	provider string
}

// NewOpenAI builds an OpenAI client. cfg.Endpoint, then $OPENAI_BASE_URL,
// override the API base URL.
func NewOpenAI(cfg models.ModelConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	} else if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		clientCfg.BaseURL = base
	}

	return &OpenAIClient{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Name,
		provider: ProviderOpenAI,
	}
}

// NewAzureOpenAI builds an Azure OpenAI client. The model name is used as the
// deployment name.
func NewAzureOpenAI(cfg models.ModelConfig) (*OpenAIClient, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
	}
	if endpoint == "" {
		return nil, errors.New("azure-openai requires model.endpoint or AZURE_OPENAI_ENDPOINT")
	}

	clientCfg := openai.DefaultAzureConfig(cfg.APIKey, endpoint)
	if cfg.APIVersion != "" {
		clientCfg.APIVersion = cfg.APIVersion
	}

	return &OpenAIClient{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Name,
		provider: ProviderAzureOpenAI,
	}, nil
}

func (c *OpenAIClient) Model() string {
	return c.model
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Name:    sanitizeName(m.Name),
			Content: m.Content,
		})
	}

	log.WithFields(logrus.Fields{
		"provider": c.provider,
		"model":    c.model,
		"messages": len(messages),
	}).Debug("Sending chat completion request")

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &ModelInvocationError{Model: c.model, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ModelInvocationError{Model: c.model, Err: errors.New("no response choices returned")}
	}

	log.WithFields(logrus.Fields{
		"model":  c.model,
		"tokens": resp.Usage.TotalTokens,
	}).Debug("Chat completion received")

	return resp.Choices[0].Message.Content, nil
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// sanitizeName maps a participant name onto the characters the API accepts
// for the message name field.
func sanitizeName(name string) string {
	if name == "" {
		return ""
	}
	name = invalidNameChars.ReplaceAllString(name, "_")
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
