// Package config loads the voxlate configuration.
//
// Values are resolved in order: defaults, then an optional YAML file, then
// environment variables (a .env file in the working directory is loaded
// first if present). Environment always wins, so deploys can override a
// checked-in config file.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	// APIKey is the upstream API key. Env: OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the upstream API endpoint. Env: OPENAI_BASE_URL.
	BaseURL string `yaml:"base_url"`

	// Addr is the serve listen address. Env: VOXLATE_ADDR.
	Addr string `yaml:"addr"`

	// Model is the realtime model identifier. Env: VOXLATE_MODEL.
	Model string `yaml:"model"`

	// Voice is the remote voice for realtime sessions. Env: VOXLATE_VOICE.
	Voice string `yaml:"voice"`

	// Instructions is the realtime session system prompt.
	Instructions string `yaml:"instructions"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Addr: ":8080",
	}
}

// Load resolves the configuration. path may be empty to skip the file step.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()
	cfg.applyEnv()

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("VOXLATE_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("VOXLATE_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("VOXLATE_VOICE"); v != "" {
		c.Voice = v
	}
}

// Validate checks that required values are set.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (set OPENAI_API_KEY or api_key in the config file)")
	}
	return nil
}
