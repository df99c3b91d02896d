package pipeline

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig reports a configuration value outside its allowed range.
var ErrInvalidConfig = errors.New("pipeline: invalid configuration")

// FilterConfig configures the relevance filter stage.
type FilterConfig struct {
	MaxIterations int     `yaml:"max_iterations"`
	Alpha         float64 `yaml:"alpha"`
	Seed          int64   `yaml:"seed"`
	Trees         int     `yaml:"trees"`

	// Importance is "permutation" or "splitstat".
	Importance string `yaml:"importance"`
}

// CoxConfig configures the per-genus Cox regression stage.
type CoxConfig struct {
	// Ridge is an L2 penalty weight applied to the genus coefficient;
	// zero disables the penalty.
	Ridge float64 `yaml:"ridge"`

	// StratifyByRisk stratifies the baseline hazard by risk group.
	StratifyByRisk bool `yaml:"stratify_by_risk"`
}

// Config is the YAML configuration of a full analysis run.
type Config struct {
	Clinical  string `yaml:"clinical"`
	Community string `yaml:"community"`

	// PresenceThreshold is the abundance percentage above which a genus
	// counts as present.
	PresenceThreshold float64 `yaml:"presence_threshold"`

	// MinPrevalence drops genera present in fewer samples than this.
	MinPrevalence int `yaml:"min_prevalence"`

	Filter FilterConfig `yaml:"filter"`
	Cox    CoxConfig    `yaml:"cox"`

	Output string `yaml:"output"`
	Plots  bool   `yaml:"plots"`
}

// DefaultConfig returns the run settings used by the study.
func DefaultConfig() *Config {
	return &Config{
		PresenceThreshold: 5,
		MinPrevalence:     3,
		Filter: FilterConfig{
			MaxIterations: 100,
			Alpha:         0.01,
			Trees:         500,
			Importance:    "permutation",
		},
		Output: "out",
	}
}

// Load reads and validates a YAML configuration file.  Fields absent from
// the file keep their defaults.
func Load(path string) (*Config, error) {

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration ranges.
func (c *Config) Validate() error {

	if c.Clinical == "" {
		return fmt.Errorf("%w: clinical table path is required", ErrInvalidConfig)
	}
	if c.Community == "" {
		return fmt.Errorf("%w: community table path is required", ErrInvalidConfig)
	}
	if c.PresenceThreshold < 0 || c.PresenceThreshold >= 100 {
		return fmt.Errorf("%w: presence_threshold %v outside [0, 100)", ErrInvalidConfig, c.PresenceThreshold)
	}
	if c.MinPrevalence < 0 {
		return fmt.Errorf("%w: min_prevalence must be nonnegative", ErrInvalidConfig)
	}
	if c.Filter.MaxIterations < 0 {
		return fmt.Errorf("%w: max_iterations must be nonnegative", ErrInvalidConfig)
	}
	if c.Filter.Alpha < 0.01 || c.Filter.Alpha > 0.05 {
		return fmt.Errorf("%w: alpha %v outside [0.01, 0.05]", ErrInvalidConfig, c.Filter.Alpha)
	}
	if c.Filter.Trees <= 0 {
		return fmt.Errorf("%w: trees must be positive", ErrInvalidConfig)
	}
	switch c.Filter.Importance {
	case "permutation", "splitstat":
	default:
		return fmt.Errorf("%w: importance must be permutation or splitstat, got %q",
			ErrInvalidConfig, c.Filter.Importance)
	}
	if c.Cox.Ridge < 0 {
		return fmt.Errorf("%w: ridge must be nonnegative", ErrInvalidConfig)
	}

	return nil
}
