package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const DefaultTask = "Please introduce yourselves and start working."

type Config struct {
	DataDir     string        `mapstructure:"data_dir"`
	DefaultTask string        `mapstructure:"default_task"`
	EnvFiles    []string      `mapstructure:"env_files"`
	HITL        HITLConfig    `mapstructure:"hitl"`
	Log         LoggingConfig `mapstructure:"log"`

	// Derived from DataDir after loading.
	DBPath string `mapstructure:"-"`
}

type HITLConfig struct {
	// Logging writes an audit file per HITL session.
	Logging bool   `mapstructure:"logging"`
	LogDir  string `mapstructure:"log_dir"`
	// Editor overrides $EDITOR for external editing.
	Editor string `mapstructure:"editor"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New loads settings from the default location (~/.ftry/config.yaml or
// $FTRY_DATA_DIR/config.yaml) and FTRY_* environment variables.
func New() (*Config, error) {
	return Load("")
}

// Load reads settings from path, or from the default location when path is
// empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("ftry")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, filepath.Join(homeDir, ".ftry"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("data_dir"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if c.HITL.LogDir == "" {
		c.HITL.LogDir = filepath.Join(c.DataDir, "hitl_logs")
	}
	if c.DefaultTask == "" {
		c.DefaultTask = DefaultTask
	}
	c.DBPath = filepath.Join(c.DataDir, "ftry.db")

	return &c, nil
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("default_task", DefaultTask)
	v.SetDefault("env_files", []string{".env.local", ".env"})
	v.SetDefault("hitl.logging", true)
	v.SetDefault("hitl.log_dir", "")
	v.SetDefault("hitl.editor", "")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
}

func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return nil
}

// Editor returns the configured editor, falling back to $EDITOR.
func (c *Config) Editor() string {
	if c.HITL.Editor != "" {
		return c.HITL.Editor
	}
	return os.Getenv("EDITOR")
}
