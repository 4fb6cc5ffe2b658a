// Package config loads run configuration from yaml files, with defaults and
// flag overrides layered by the CLI.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"odeflow/internal/solve"
	"odeflow/internal/tableau"
)

const (
	DefaultMethod   = "dopri5"
	DefaultProblem  = "decay"
	DefaultT1       = 10.0
	DefaultAtol     = 1e-6
	DefaultRtol     = 1e-3
	DefaultMaxSteps = 1000000
)

type Config struct {
	Problem  string             `yaml:"problem"`
	Method   string             `yaml:"method"`
	T0       float64            `yaml:"t0"`
	T1       float64            `yaml:"t1"`
	Dt       float64            `yaml:"dt"`
	Adaptive bool               `yaml:"adaptive"`
	Atol     float64            `yaml:"atol"`
	Rtol     float64            `yaml:"rtol"`
	MaxSteps int                `yaml:"max_steps"`
	Dense    bool               `yaml:"dense"`
	Init     []float64          `yaml:"init"`
	Params   map[string]float64 `yaml:"params"`
}

func DefaultConfig() *Config {
	return &Config{
		Problem:  DefaultProblem,
		Method:   DefaultMethod,
		T0:       0,
		T1:       DefaultT1,
		Adaptive: true,
		Atol:     DefaultAtol,
		Rtol:     DefaultRtol,
		MaxSteps: DefaultMaxSteps,
		Dense:    true,
	}
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields the solver cannot default its way around.
func (c *Config) Validate() error {
	if c.T1 <= c.T0 {
		return fmt.Errorf("config: need t1 > t0, got [%g, %g]", c.T0, c.T1)
	}
	if _, err := tableau.Lookup(c.Method); err != nil {
		return err
	}
	if c.Adaptive {
		if c.Atol <= 0 || c.Rtol < 0 {
			return fmt.Errorf("config: adaptive stepping needs positive tolerances, got atol=%g rtol=%g", c.Atol, c.Rtol)
		}
	} else if c.Dt <= 0 {
		return fmt.Errorf("config: fixed-step mode needs dt > 0, got %g", c.Dt)
	}
	return nil
}

// SolveOptions translates the config into solver options.
func (c *Config) SolveOptions() solve.Options {
	return solve.Options{
		Method:      c.Method,
		Adaptive:    c.Adaptive,
		InitialStep: c.Dt,
		Atol:        c.Atol,
		Rtol:        c.Rtol,
		MaxSteps:    c.MaxSteps,
		Dense:       c.Dense,
	}
}
