// Package config loads the engine's file configuration. Every field has a
// working default so the engine runs with no config file at all; CLI flags
// override whatever the file says.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	yaml "gopkg.in/yaml.v2"
)

type Config struct {
	// Workers bounds the similarity stage's parallelism. 0 means one
	// worker per CPU.
	Workers int `yaml:"workers" default:"0"`

	// HorizonHours is the over-merge plausibility horizon.
	HorizonHours int `yaml:"horizon_hours" default:"12"`

	Sweep SweepConfig `yaml:"sweep"`
	NGram NGramConfig `yaml:"ngram"`

	// DatabaseURL enables the optional result store. Environment
	// references ($VAR) are expanded, matching how deployments pass
	// credentials.
	DatabaseURL string `yaml:"database_url" default:""`
}

type SweepConfig struct {
	From float64 `yaml:"from" default:"0.5"`
	To   float64 `yaml:"to" default:"1.0"`
	Step float64 `yaml:"step" default:"0.05"`
}

type NGramConfig struct {
	Min int `yaml:"min" default:"2"`
	Max int `yaml:"max" default:"10"`
}

// Load reads path, or returns pure defaults when path is empty.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg.DatabaseURL = os.ExpandEnv(cfg.DatabaseURL)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Workers < 0:
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	case c.HorizonHours <= 0:
		return fmt.Errorf("horizon_hours must be positive, got %d", c.HorizonHours)
	case c.Sweep.Step <= 0:
		return fmt.Errorf("sweep step must be positive, got %v", c.Sweep.Step)
	case c.Sweep.From > c.Sweep.To:
		return fmt.Errorf("sweep range [%v,%v] is empty", c.Sweep.From, c.Sweep.To)
	case c.NGram.Min < 2:
		return fmt.Errorf("ngram min must be at least 2, got %d", c.NGram.Min)
	case c.NGram.Min > c.NGram.Max:
		return fmt.Errorf("ngram range [%d,%d] is empty", c.NGram.Min, c.NGram.Max)
	}
	return nil
}

// Horizon returns the over-merge horizon as a duration.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.HorizonHours) * time.Hour
}
