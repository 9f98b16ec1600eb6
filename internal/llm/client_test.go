package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mpataki/ftry/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Path     string
	Auth     string
	APIKey   string
	Model    string
	Messages []struct {
		Role    string `json:"role"`
		Name    string `json:"name"`
		Content string `json:"content"`
	}
}

func newCompletionServer(t *testing.T, reply string, status int) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		captured.Auth = r.Header.Get("Authorization")
		captured.APIKey = r.Header.Get("api-key")

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Name    string `json:"name"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		captured.Model = body.Model
		captured.Messages = body.Messages

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"model":   body.Model,
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": reply}, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestNewSelectsProvider(t *testing.T) {
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")

	c, err := New(models.ModelConfig{Name: "gpt-4o", Provider: "OpenAI", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)
	assert.Equal(t, "gpt-4o", c.Model())

	c, err = New(models.ModelConfig{Name: "gpt-4o", Provider: "azure-openai", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	_, err = New(models.ModelConfig{Name: "x", Provider: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unsupported model provider")
}

func TestAzureRequiresEndpoint(t *testing.T) {
	t.Setenv("AZURE_OPENAI_ENDPOINT", "")
	_, err := New(models.ModelConfig{Name: "gpt-4o", Provider: "azure-openai"})
	assert.Error(t, err)
}

func TestOpenAIComplete(t *testing.T) {
	srv, captured := newCompletionServer(t, "A helpful writer.", http.StatusOK)

	c := NewOpenAI(models.ModelConfig{Name: "gpt-4o", Provider: "openai", APIKey: "secret123", Endpoint: srv.URL + "/v1"})
	out, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Name: "project manager", Content: "hi"},
	})
	require.NoError(t, err)

	assert.Equal(t, "A helpful writer.", out)
	assert.Equal(t, "/v1/chat/completions", captured.Path)
	assert.Equal(t, "Bearer secret123", captured.Auth)
	assert.Equal(t, "gpt-4o", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "project_manager", captured.Messages[1].Name)
}

func TestAzureComplete(t *testing.T) {
	srv, captured := newCompletionServer(t, "ok", http.StatusOK)

	c, err := NewAzureOpenAI(models.ModelConfig{Name: "gpt-4o", Provider: "azure-openai", APIKey: "az-key", Endpoint: srv.URL})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.True(t, strings.HasPrefix(captured.Path, "/openai/deployments/"), captured.Path)
	assert.Equal(t, "az-key", captured.APIKey)
}

func TestCompleteWrapsAPIErrors(t *testing.T) {
	srv, _ := newCompletionServer(t, "", http.StatusInternalServerError)

	c := NewOpenAI(models.ModelConfig{Name: "gpt-4o", Provider: "openai", APIKey: "k", Endpoint: srv.URL + "/v1"})
	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

	var invocation *ModelInvocationError
	require.True(t, errors.As(err, &invocation))
	assert.Equal(t, "gpt-4o", invocation.Model)
}

func TestScriptedClient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echo.lua")
	require.NoError(t, os.WriteFile(path, []byte(`
function complete(messages)
  return "echo: " .. messages[#messages].content
end
`), 0o644))

	c, err := New(models.ModelConfig{Name: "echo", Provider: "lua", Script: path})
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "ping"}})
	require.NoError(t, err)
	assert.Equal(t, "echo: ping", out)

	c, err = New(models.ModelConfig{Name: path, Provider: "lua"})
	require.NoError(t, err)
	assert.Equal(t, path, c.Model())

	_, err = New(models.ModelConfig{Name: "echo", Provider: "lua"})
	assert.ErrorContains(t, err, "requires model.script")
}

func TestScriptedClientWrapsFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail.lua")
	require.NoError(t, os.WriteFile(path, []byte(`function complete(m) error("nope") end`), 0o644))

	c, err := NewScripted(models.ModelConfig{Name: "fail", Provider: "lua", Script: path})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), nil)
	var invocation *ModelInvocationError
	assert.True(t, errors.As(err, &invocation))
}
