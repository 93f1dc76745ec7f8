package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelConfig describes one model endpoint.
type ModelConfig struct {
	// Type selects the provider implementation: "openai" or "anthropic".
	Type              string        `yaml:"type"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url,omitempty"`
	Temperature       float64       `yaml:"temperature,omitempty"`
	TopP              float64       `yaml:"top_p,omitempty"`
	MaxTokens         int           `yaml:"max_tokens,omitempty"`
	ParallelToolCalls *bool         `yaml:"parallel_tool_calls,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`
}

// HarnessConfig bounds one harness run.
type HarnessConfig struct {
	MaxIterations    int           `yaml:"max_iterations,omitempty"`
	ToolTimeout      time.Duration `yaml:"tool_timeout,omitempty"`
	MaxParallelCalls int           `yaml:"max_parallel_calls,omitempty"`
}

// Config is the immutable snapshot handed to each harness run.
type Config struct {
	Models   map[string]ModelConfig `yaml:"models"`
	Routing  string                 `yaml:"routing"`
	Response string                 `yaml:"response"`
	Harness  HarnessConfig          `yaml:"harness,omitempty"`
}

// LoadConfig loads and validates the configuration from a file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	if len(config.Models) == 0 {
		return fmt.Errorf("configuration defines no models")
	}
	for _, role := range []struct{ name, model string }{
		{"routing", config.Routing},
		{"response", config.Response},
	} {
		if role.model == "" {
			return fmt.Errorf("configuration is missing the %s model", role.name)
		}
		if _, exists := config.Models[role.model]; !exists {
			return fmt.Errorf("%s references non-existent model '%s'", role.name, role.model)
		}
	}
	for name, model := range config.Models {
		switch model.Type {
		case "openai", "anthropic":
		default:
			return fmt.Errorf("model '%s' has unknown provider type '%s'", name, model.Type)
		}
	}
	return nil
}

// GetModelConfig returns a model configuration by name.
func (c *Config) GetModelConfig(name string) (*ModelConfig, error) {
	model, exists := c.Models[name]
	if !exists {
		return nil, fmt.Errorf("model '%s' not found in configuration", name)
	}
	return &model, nil
}

// FetchWithDeadline races fetch against a deadline and falls back to a
// known-good value when the fetch loses. Used to take configuration
// snapshots from slow sources without stalling a turn.
func FetchWithDeadline[T any](ctx context.Context, timeout time.Duration, fetch func(context.Context) (T, error), fallback T) T {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fetch(ctx)
		ch <- outcome{value: v, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			slog.Warn("Configuration fetch failed, using fallback", "error", out.err)
			return fallback
		}
		return out.value
	case <-ctx.Done():
		slog.Warn("Configuration fetch timed out, using fallback", "timeout", timeout)
		return fallback
	}
}
