// Package config provides configuration loading and management for Accord.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/accordhq/accord/negotiation"
)

// Config represents the complete Accord configuration
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	NATS      NATSConfig      `yaml:"nats"`
	Mediation MediationConfig `yaml:"mediation"`
}

// ModelConfig configures the LLM model settings
type ModelConfig struct {
	// Default is the default model to use (e.g., "qwen2.5-coder:32b")
	Default string `yaml:"default"`
	// Endpoint is the OpenAI-compatible API endpoint (default: http://localhost:11434/v1)
	Endpoint string `yaml:"endpoint"`
	// Temperature controls randomness (0.0-1.0, default: 0.2)
	Temperature float64 `yaml:"temperature"`
	// Timeout is the maximum time to wait for model responses
	Timeout time.Duration `yaml:"timeout"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL
	URL string `yaml:"url"`
}

// MediationConfig configures the negotiation engine
type MediationConfig struct {
	// MaxCompromiseRounds caps negotiation rounds before escalation
	MaxCompromiseRounds int `yaml:"max_compromise_rounds"`
	// SelectionWindow is how long a round accepts selections (0 = no deadline)
	SelectionWindow time.Duration `yaml:"selection_window"`
	// DeadlinePolicy is what happens on round expiry: compromise or escalate
	DeadlinePolicy string `yaml:"deadline_policy"`
	// NearAgreementSpread flags disagreements whose amounts are this close
	NearAgreementSpread float64 `yaml:"near_agreement_spread"`
}

// EngineConfig projects the mediation settings onto the engine config.
func (m MediationConfig) EngineConfig() negotiation.Config {
	return negotiation.Config{
		MaxCompromiseRounds: m.MaxCompromiseRounds,
		SelectionWindow:     m.SelectionWindow,
		DeadlinePolicy:      negotiation.DeadlinePolicy(m.DeadlinePolicy),
		NearAgreementSpread: m.NearAgreementSpread,
	}
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Default:     "qwen2.5-coder:32b",
			Endpoint:    "http://localhost:11434/v1",
			Temperature: 0.2,
			Timeout:     5 * time.Minute,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Mediation: MediationConfig{
			MaxCompromiseRounds: 3,
			SelectionWindow:     0,
			DeadlinePolicy:      string(negotiation.DeadlineCompromise),
			NearAgreementSpread: 0.1,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Model.Default == "" {
		return fmt.Errorf("model.default is required")
	}
	if c.Model.Endpoint == "" {
		return fmt.Errorf("model.endpoint is required")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be between 0 and 1")
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if err := c.Mediation.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("mediation: %w", err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Model
	if other.Model.Default != "" {
		c.Model.Default = other.Model.Default
	}
	if other.Model.Endpoint != "" {
		c.Model.Endpoint = other.Model.Endpoint
	}
	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}
	if other.Model.Timeout != 0 {
		c.Model.Timeout = other.Model.Timeout
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	// Mediation
	if other.Mediation.MaxCompromiseRounds != 0 {
		c.Mediation.MaxCompromiseRounds = other.Mediation.MaxCompromiseRounds
	}
	if other.Mediation.SelectionWindow != 0 {
		c.Mediation.SelectionWindow = other.Mediation.SelectionWindow
	}
	if other.Mediation.DeadlinePolicy != "" {
		c.Mediation.DeadlinePolicy = other.Mediation.DeadlinePolicy
	}
	if other.Mediation.NearAgreementSpread != 0 {
		c.Mediation.NearAgreementSpread = other.Mediation.NearAgreementSpread
	}
}
