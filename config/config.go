// Package config loads tool configuration from .smallgiants/config.yaml
// files. User-level config in the home directory is loaded first, then
// project-level config in the working directory overrides it, and command
// line flags override both.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configDir = ".smallgiants"

// Config holds every tunable the CLI and MCP server accept.
type Config struct {
	BaseURL               string   `yaml:"base_url"`
	Model                 string   `yaml:"model"`
	Mode                  string   `yaml:"mode"`
	MaxTurns              int      `yaml:"max_turns"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
	Stream                bool     `yaml:"stream"`
	Retries               int      `yaml:"retries"`
	DenyPatterns          []string `yaml:"deny_patterns"`
	LogFile               string   `yaml:"log_file"`
}

// Default returns the built-in configuration before any file or flag is
// applied.
func Default() *Config {
	return &Config{
		BaseURL:               "http://localhost:11434",
		Model:                 "granite3.3:2b",
		Mode:                  "tools",
		MaxTurns:              10,
		RequestTimeoutSeconds: 120,
	}
}

// Load builds the effective configuration: defaults, then the user-level
// file, then the project-level file in workDir.
func Load(workDir string) (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, configDir, "config.yaml")
		if err := loadFromFile(userPath, cfg); err != nil {
			return nil, fmt.Errorf("user config %s: %w", userPath, err)
		}
	}

	projectPath := filepath.Join(workDir, configDir, "config.yaml")
	if err := loadFromFile(projectPath, cfg); err != nil {
		return nil, fmt.Errorf("project config %s: %w", projectPath, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile merges a YAML file into cfg. A missing file is not an
// error; fields present in the YAML overwrite the current values.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.MaxTurns < 1 {
		return fmt.Errorf("max_turns must be at least 1, got %d", c.MaxTurns)
	}
	if c.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("request_timeout_seconds must be at least 1, got %d", c.RequestTimeoutSeconds)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}
	return nil
}
