// Package erk implements the explicit Runge-Kutta stepping core: one tableau,
// one shared algorithm. A Stepper computes a single step — stage derivatives
// per the tableau, candidate solution, embedded error estimate, and the dense
// output segment — and leaves accept/reject and step sizing to the caller.
//
// A Stepper holds no mutable state, so independent trajectories may step
// concurrently through steppers sharing the same tableau.
package erk

import (
	"errors"
	"fmt"

	"odeflow/internal/interp"
	"odeflow/internal/state"
	"odeflow/internal/tableau"
)

// System is the vector field dy/dt = f(t, y). Implementations must return a
// tree with the same leaf shape as y and may be called concurrently for
// independent trajectories.
type System interface {
	Derive(t float64, y state.Tree) (state.Tree, error)
}

// SystemFunc adapts a plain function to System.
type SystemFunc func(t float64, y state.Tree) (state.Tree, error)

func (f SystemFunc) Derive(t float64, y state.Tree) (state.Tree, error) { return f(t, y) }

// ErrStepEvaluation marks a step whose vector field evaluation failed or
// produced non-finite values. The step carries no usable solution; a
// step-size controller may retry with a smaller step.
var ErrStepEvaluation = errors.New("erk: step evaluation failed")

var errNonFinite = errors.New("vector field returned non-finite values")

// EvalError reports which stage evaluation failed and why. It matches
// ErrStepEvaluation under errors.Is.
type EvalError struct {
	Stage int
	T     float64
	Err   error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("erk: stage %d at t=%g: %v", e.Stage, e.T, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

func (e *EvalError) Is(target error) bool { return target == ErrStepEvaluation }

// StepResult is everything one attempted step produces. Stages holds the
// ordered stage derivatives; YErr is nil for methods without an embedded
// error estimate. Dense is built from the step's own stage derivatives, with
// no additional vector field evaluations, and reproduces Y1 exactly at t1.
type StepResult struct {
	Y1     state.Tree
	YErr   *state.Tree
	Stages []state.Tree
	Dense  interp.Segment
}

// FirstStage returns the stage derivative at (t0, y0), valid as the reused
// first stage of a retry at the same left endpoint.
func (r *StepResult) FirstStage() *state.Tree { return &r.Stages[0] }

// LastStage returns the final stage derivative. For FSAL tableaus this is
// f(t1, y1) and seeds the first stage of the next step.
func (r *StepResult) LastStage() *state.Tree { return &r.Stages[len(r.Stages)-1] }

// Stepper binds a tableau to a system.
type Stepper struct {
	tab *tableau.Tableau
	sys System
}

// New returns a stepper for the given tableau and system.
func New(tab *tableau.Tableau, sys System) *Stepper {
	return &Stepper{tab: tab, sys: sys}
}

// Tableau returns the method's tableau.
func (s *Stepper) Tableau() *tableau.Tableau { return s.tab }

// Order reports the nominal convergence order of the non-embedded method,
// used by step-size controllers for initial step selection and adjustment
// exponents.
func (s *Stepper) Order() int { return s.tab.Order }

// Step advances one step from (t0, y0) to t1. When first is non-nil it is
// reused as the stage-0 derivative without re-evaluating the field: the FSAL
// hand-off from the previous step, or the unchanged (t0, y0) derivative when
// retrying a rejected step.
func (s *Stepper) Step(t0, t1 float64, y0 state.Tree, first *state.Tree) (*StepResult, error) {
	tab := s.tab
	h := t1 - t0
	n := tab.Stages()
	ks := make([]state.Tree, n)

	for i := 0; i < n; i++ {
		if i == 0 && first != nil {
			ks[0] = *first
			continue
		}
		ti := t0 + tab.C[i]*h
		yi := y0
		if i > 0 {
			incr, err := state.Combine(tab.A[i], ks[:i])
			if err != nil {
				return nil, err
			}
			yi, err = y0.Add(incr.Scale(h))
			if err != nil {
				return nil, err
			}
		}
		k, err := s.sys.Derive(ti, yi)
		if err != nil {
			return nil, &EvalError{Stage: i, T: ti, Err: err}
		}
		if !state.SameShape(y0, k) {
			return nil, fmt.Errorf("erk: stage %d at t=%g: %w", i, ti, state.ErrShapeMismatch)
		}
		if !k.IsFinite() {
			return nil, &EvalError{Stage: i, T: ti, Err: errNonFinite}
		}
		ks[i] = k
	}

	incr, err := state.Combine(tab.BSol, ks)
	if err != nil {
		return nil, err
	}
	y1, err := y0.Add(incr.Scale(h))
	if err != nil {
		return nil, err
	}
	if !y1.IsFinite() {
		return nil, &EvalError{Stage: n - 1, T: t1, Err: errNonFinite}
	}

	res := &StepResult{Y1: y1, Stages: ks}

	if tab.BErr != nil {
		e, err := state.Combine(tab.BErr, ks)
		if err != nil {
			return nil, err
		}
		yErr := e.Scale(h)
		res.YErr = &yErr
	}

	res.Dense, err = buildSegment(tab, t0, t1, y0, y1, ks)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func buildSegment(tab *tableau.Tableau, t0, t1 float64, y0, y1 state.Tree, ks []state.Tree) (interp.Segment, error) {
	switch tab.Dense {
	case tableau.DenseHermite:
		return interp.NewHermite(t0, t1, y0, y1, ks[0], ks[len(ks)-1])
	case tableau.DenseFourthOrder:
		return interp.NewFourthOrder(t0, t1, y0, y1, ks, tab.CMid)
	case tableau.DenseTsit5:
		return interp.NewTsit5(t0, t1, y0, ks)
	default:
		return interp.NewLinear(t0, t1, y0, y1)
	}
}
