package manifest

import (
	"fmt"
	"strings"

	"github.com/mpataki/ftry/internal/models"
)

func ValidateModel(m *models.ModelConfig, prefix string) error {
	if m == nil {
		return &MissingConfigKeyError{Key: prefix}
	}
	if strings.TrimSpace(m.Name) == "" {
		return &MissingConfigKeyError{Key: prefix + ".name"}
	}
	if strings.TrimSpace(m.Provider) == "" {
		return &MissingConfigKeyError{Key: prefix + ".provider"}
	}
	return nil
}

// ValidateAgent checks the keys an agent cannot be built without.
func ValidateAgent(cfg *models.AgentConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return &MissingConfigKeyError{Key: "name"}
	}
	if strings.TrimSpace(cfg.Prompt) == "" {
		return &MissingConfigKeyError{Key: "prompt"}
	}
	return ValidateModel(cfg.Model, "model")
}

// ValidateTeam checks required keys and that every agent reference names a
// file. Inline agent definitions are not supported.
func ValidateTeam(cfg *models.TeamConfig) error {
	if err := ValidateModel(cfg.Model, "model"); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Prompt) == "" {
		return &MissingConfigKeyError{Key: "prompt"}
	}
	if cfg.Termination == nil {
		return &MissingConfigKeyError{Key: "termination"}
	}
	if strings.TrimSpace(cfg.Termination.Keyword) == "" {
		return &MissingConfigKeyError{Key: "termination.keyword"}
	}
	if cfg.Termination.MaxRound == nil {
		return &MissingConfigKeyError{Key: "termination.max-round"}
	}
	if *cfg.Termination.MaxRound < 1 {
		return &ConfigParseError{Err: fmt.Errorf("termination.max-round must be at least 1, got %d", *cfg.Termination.MaxRound)}
	}
	if cfg.Agents == nil {
		return &MissingConfigKeyError{Key: "agents"}
	}
	return validateAgentRefs(cfg.Agents)
}

func validateAgentRefs(refs []models.AgentRef) error {
	for i, ref := range refs {
		if ref.File != "" {
			continue
		}
		if ref.Agent != nil {
			return &InvalidAgentReferenceError{Index: i, Reason: "inline agent definitions are not supported, use a 'file' reference"}
		}
		return &InvalidAgentReferenceError{Index: i, Reason: "missing the 'file' key"}
	}
	return nil
}
