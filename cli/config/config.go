package config

import (
	"fmt"
	"time"
)

// Config represents a sluice.yaml configuration file.
// All values are optional and act as defaults for sluice extract flags.
// CLI flags always override config values.
type Config struct {
	SessionID string `yaml:"session_id"`
	RequestID string `yaml:"request_id"`

	Input       InputConfig                 `yaml:"input"`
	Limits      LimitsConfig                `yaml:"limits"`
	Budgets     BudgetsConfig               `yaml:"budgets"`
	ParseErrors ParseErrorsConfig           `yaml:"parse_errors"`
	Aliases     map[string]string           `yaml:"aliases"`
	Compounds   map[string]map[string]string `yaml:"compounds"`
	Policy      PolicyConfig                `yaml:"policy"`
	Adapter     AdapterConfig               `yaml:"adapter"`
}

// InputConfig holds input-shape defaults from the config file.
type InputConfig struct {
	// Format is "framed" (length-prefixed msgpack envelopes) or "raw".
	Format string `yaml:"format"`
	// ChunkSize is the synthetic fragment size for raw input.
	ChunkSize int `yaml:"chunk_size"`
}

// LimitsConfig holds component store ceilings.
type LimitsConfig struct {
	ComponentBytes int `yaml:"component_bytes"`
	Components     int `yaml:"components"`
}

// BudgetsConfig holds the advisory session timers.
type BudgetsConfig struct {
	Session      Duration `yaml:"session"`
	CompoundWait Duration `yaml:"compound_wait"`
}

// ParseErrorsConfig holds the rolling parse-error threshold.
type ParseErrorsConfig struct {
	Max    int      `yaml:"max"`
	Window Duration `yaml:"window"`
}

// PolicyConfig holds delivery policy defaults from the config file.
type PolicyConfig struct {
	Name          string   `yaml:"name"`
	FlushCount    int      `yaml:"flush_count"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// AdapterConfig holds notification adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
