package manifest

import (
	"fmt"

	"github.com/mpataki/ftry/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTeamName   = "Generated Team"
	DefaultTeamPrompt = "You are coordinating a team. Select the next team member to speak."
	DefaultKeyword    = "__END__"
	DefaultMaxRound   = 10
)

func defaultTeamModel() *models.ModelConfig {
	return &models.ModelConfig{
		Name:     "gpt-4o-2024-08-06",
		Provider: "openai",
		APIKey:   "env:OAI_API_KEY",
	}
}

// InlineTeam fills the defaults for an inline team entry. Credentials are kept
// unresolved so the document can be written out and loaded like any team file.
func InlineTeam(entry models.TeamEntry) (*models.TeamConfig, error) {
	cfg := &models.TeamConfig{
		Name:        entry.Name,
		Model:       entry.Model,
		Prompt:      entry.Prompt,
		Termination: entry.Termination,
		Agents:      []models.AgentRef{},
	}
	if cfg.Name == "" {
		cfg.Name = DefaultTeamName
	}
	if cfg.Model == nil {
		cfg.Model = defaultTeamModel()
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultTeamPrompt
	}
	if cfg.Termination == nil {
		maxRound := DefaultMaxRound
		cfg.Termination = &models.Termination{Keyword: DefaultKeyword, MaxRound: &maxRound}
	}

	for i, ref := range entry.Agents {
		switch {
		case ref.File != "":
			cfg.Agents = append(cfg.Agents, models.AgentRef{File: ref.File})
		case ref.Agent != nil:
			return nil, &InvalidAgentReferenceError{Index: i, Reason: "inline agent definitions are not supported, use a 'file' reference"}
		default:
			return nil, &InvalidAgentReferenceError{Index: i, Reason: "missing the 'file' key"}
		}
	}

	return cfg, nil
}

// MaterializeTeam renders an inline team entry as a team YAML document.
func MaterializeTeam(entry models.TeamEntry) ([]byte, error) {
	cfg, err := InlineTeam(entry)
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render team config: %w", err)
	}
	return data, nil
}
