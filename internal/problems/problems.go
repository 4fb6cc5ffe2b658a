// Package problems collects example ODE systems for the CLI and tests.
package problems

import (
	"fmt"
	"sort"

	"odeflow/internal/erk"
	"odeflow/internal/state"
)

// Problem is an example system with a default initial condition and
// tunable parameters.
type Problem interface {
	erk.System
	Name() string
	DefaultState() state.Tree
	Params() map[string]float64
	SetParam(name string, value float64) error
}

var registry = map[string]func() Problem{
	"decay":     func() Problem { return NewDecay() },
	"logistic":  func() Problem { return NewLogistic() },
	"harmonic":  func() Problem { return NewHarmonic() },
	"vanderpol": func() Problem { return NewVanDerPol() },
	"lorenz":    func() Problem { return NewLorenz() },
}

// New returns a fresh instance of the named problem.
func New(name string) (Problem, error) {
	mk, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("problems: unknown problem %q (have %v)", name, Names())
	}
	return mk(), nil
}

// Names lists the available problems in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func badParam(problem, name string) error {
	return fmt.Errorf("problems: %s has no parameter %q", problem, name)
}
