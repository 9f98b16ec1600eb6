package models

import "gopkg.in/yaml.v3"

type ModelConfig struct {
	Name       string `yaml:"name"`
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api-key,omitempty"`
	Endpoint   string `yaml:"endpoint,omitempty"`
	APIVersion string `yaml:"api-version,omitempty"`
	Script     string `yaml:"script,omitempty"`
}

type AgentConfig struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Prompt      string       `yaml:"prompt"`
	Model       *ModelConfig `yaml:"model"`
}

// AgentRef points a team at an agent file. Agent is only decoded so that
// inline definitions can be reported instead of silently ignored.
type AgentRef struct {
	File  string         `yaml:"file,omitempty"`
	Agent map[string]any `yaml:"agent,omitempty"`
}

// UnmarshalYAML accepts any node so that malformed entries surface as invalid
// references during validation rather than as decode errors.
func (r *AgentRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		*r = AgentRef{}
		return nil
	}
	type plain AgentRef
	return node.Decode((*plain)(r))
}

type Termination struct {
	Keyword  string `yaml:"keyword"`
	MaxRound *int   `yaml:"max-round"`
}

type TeamConfig struct {
	Name        string       `yaml:"name"`
	Model       *ModelConfig `yaml:"model"`
	Prompt      string       `yaml:"prompt"`
	Termination *Termination `yaml:"termination"`
	Agents      []AgentRef   `yaml:"agents"`
}

// TeamEntry is one element of a multi-team file. Either Config names a team
// file or the remaining fields describe the team inline.
type TeamEntry struct {
	Name        string       `yaml:"name,omitempty"`
	Task        string       `yaml:"task,omitempty"`
	Config      string       `yaml:"config,omitempty"`
	Model       *ModelConfig `yaml:"model,omitempty"`
	Prompt      string       `yaml:"prompt,omitempty"`
	Termination *Termination `yaml:"termination,omitempty"`
	Agents      []AgentRef   `yaml:"agents,omitempty"`
}

type TeamsConfig struct {
	Teams []TeamEntry `yaml:"teams"`
}
