package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mpataki/ftry/internal/logging"
	"github.com/mpataki/ftry/internal/models"
	"gopkg.in/yaml.v3"
)

var log = logging.NewLogger("manifest")

const envPrefix = "env:"

// ReadFile decodes the YAML document at path into out.
func ReadFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ConfigNotFoundError{Path: path}
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return &ConfigParseError{Path: path, Err: err}
	}
	return nil
}

// ResolveModel returns a copy of m with an "env:NAME" api key replaced by the
// value of NAME. An unset variable leaves the key empty rather than failing.
func ResolveModel(m models.ModelConfig) models.ModelConfig {
	if len(m.APIKey) >= len(envPrefix) && strings.EqualFold(m.APIKey[:len(envPrefix)], envPrefix) {
		name := m.APIKey[len(envPrefix):]
		value, ok := os.LookupEnv(name)
		if !ok {
			log.WithField("variable", name).Warn("API key variable is not set; continuing without a key")
		}
		m.APIKey = value
	}
	return m
}

func resolveModelRef(m *models.ModelConfig) *models.ModelConfig {
	if m == nil {
		return nil
	}
	resolved := ResolveModel(*m)
	return &resolved
}

func LoadAgent(path string) (*models.AgentConfig, error) {
	var cfg models.AgentConfig
	if err := ReadFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.Model = resolveModelRef(cfg.Model)
	return &cfg, nil
}

func LoadTeam(path string) (*models.TeamConfig, error) {
	var cfg models.TeamConfig
	if err := ReadFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.Model = resolveModelRef(cfg.Model)
	return &cfg, nil
}

func LoadTeams(path string) (*models.TeamsConfig, error) {
	var doc map[string]any
	if err := ReadFile(path, &doc); err != nil {
		return nil, err
	}
	raw, ok := doc["teams"]
	if !ok {
		return nil, &MissingConfigKeyError{Key: "teams", Path: path}
	}
	if _, ok := raw.([]any); !ok {
		return nil, &ConfigParseError{Path: path, Err: errors.New("'teams' must be a list")}
	}

	var cfg models.TeamsConfig
	if err := ReadFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFiles loads variables from the given dotenv files in order. Values
// already present in the environment win, and missing files are skipped.
func LoadEnvFiles(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}
