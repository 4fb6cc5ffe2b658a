// Package solve drives a stepper from t0 to t1: repeated stepping with
// accept/reject control, FSAL stage hand-off, dense-output accumulation and
// run statistics.
package solve

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"odeflow/internal/erk"
	"odeflow/internal/interp"
	"odeflow/internal/state"
	"odeflow/internal/stepsize"
	"odeflow/internal/tableau"
)

// ErrMaxSteps is reported when the step budget runs out before reaching t1.
var ErrMaxSteps = errors.New("solve: maximum step count exceeded")

// ErrNoErrorEstimate is reported when adaptive stepping is requested for a
// method without an embedded error estimate.
var ErrNoErrorEstimate = errors.New("solve: method has no embedded error estimate")

// Error wraps a failure with the time and step index it occurred at.
type Error struct {
	T    float64
	Step int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("solve: step %d (t=%.6g): %v", e.Step, e.T, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Event describes one step attempt, for observers such as live views.
type Event struct {
	T        float64
	H        float64
	Accepted bool
	Norm     float64
	Y        state.Tree
}

// Options configures a solve.
type Options struct {
	// Method is a registered tableau name. Defaults to dopri5.
	Method string

	// Adaptive enables embedded-error step control. When off, InitialStep is
	// used as a fixed step.
	Adaptive bool

	// InitialStep is the first attempted step. Zero means estimate
	// automatically (adaptive mode only).
	InitialStep float64

	Atol float64
	Rtol float64

	MinStep  float64
	MaxStep  float64
	MaxSteps int

	// Dense retains one interpolation segment per accepted step.
	Dense bool

	Logger *zap.Logger
	OnStep func(Event)
}

// DefaultOptions returns the settings used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		Method:   "dopri5",
		Adaptive: true,
		Atol:     1e-6,
		Rtol:     1e-3,
		MaxSteps: 1000000,
		Dense:    true,
	}
}

// Stats counts the work a solve performed.
type Stats struct {
	Steps       int // attempted
	Accepted    int
	Rejected    int
	Evaluations int
	LastStep    float64
	NextStep    float64
}

// Solution is the outcome of a solve. Ts/Ys are the accepted step endpoints;
// Dense is nil unless Options.Dense was set.
type Solution struct {
	T0, T1 float64
	Ts     []float64
	Ys     []state.Tree
	Y1     state.Tree
	Dense  *interp.Trajectory
	Stats  Stats
}

// Sample evaluates the dense output on a uniform grid of n points spanning
// [T0, T1], endpoints included.
func (s *Solution) Sample(n int) ([]float64, []state.Tree, error) {
	if s.Dense == nil {
		return nil, nil, errors.New("solve: solution has no dense output")
	}
	if n < 2 {
		return nil, nil, fmt.Errorf("solve: sample grid needs at least 2 points, got %d", n)
	}
	ts := make([]float64, n)
	ys := make([]state.Tree, n)
	for i := 0; i < n; i++ {
		t := s.T0 + (s.T1-s.T0)*float64(i)/float64(n-1)
		y, err := s.Dense.Evaluate(t)
		if err != nil {
			return nil, nil, err
		}
		ts[i] = t
		ys[i] = y
	}
	return ts, ys, nil
}

// countingSystem tallies vector field evaluations for Stats.
type countingSystem struct {
	sys erk.System
	n   int
}

func (c *countingSystem) Derive(t float64, y state.Tree) (state.Tree, error) {
	c.n++
	return c.sys.Derive(t, y)
}

// Solve integrates sys from t0 to t1 starting at y0. On failure partway
// through, the returned Solution holds the progress made before the failure.
func Solve(ctx context.Context, sys erk.System, t0, t1 float64, y0 state.Tree, opts Options) (*Solution, error) {
	if opts.Method == "" {
		opts.Method = "dopri5"
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 1000000
	}
	if t1 <= t0 {
		return nil, fmt.Errorf("solve: need t1 > t0, got [%g, %g]", t0, t1)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tab, err := tableau.Lookup(opts.Method)
	if err != nil {
		return nil, err
	}
	if opts.Adaptive && tab.BErr == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoErrorEstimate, tab.Name)
	}

	cs := &countingSystem{sys: sys}
	stepper := erk.New(tab, cs)

	ctrl := stepsize.NewController(opts.Atol, opts.Rtol)
	if ctrl.Atol <= 0 {
		ctrl.Atol = 1e-6
	}
	if ctrl.Rtol <= 0 {
		ctrl.Rtol = 1e-3
	}
	if opts.MinStep > 0 {
		ctrl.MinStep = opts.MinStep
	}
	if opts.MaxStep > 0 {
		ctrl.MaxStep = opts.MaxStep
	}

	// The stage-0 derivative depends only on (t0, y0), so one evaluation
	// seeds both the initial step estimate and the first step's stage 0.
	var first *state.Tree
	h := opts.InitialStep
	if h <= 0 {
		if !opts.Adaptive {
			return nil, errors.New("solve: fixed-step mode requires InitialStep")
		}
		f0, err := cs.Derive(t0, y0)
		if err != nil {
			return nil, &Error{T: t0, Step: 0, Err: err}
		}
		if !f0.IsFinite() {
			return nil, &Error{T: t0, Step: 0, Err: erk.ErrStepEvaluation}
		}
		first = &f0
		h, err = ctrl.InitialStep(cs, t0, y0, f0, tab.Order)
		if err != nil {
			return nil, &Error{T: t0, Step: 0, Err: err}
		}
		logger.Debug("estimated initial step", zap.Float64("h", h))
	}

	sol := &Solution{
		T0: t0, T1: t1,
		Ts: []float64{t0},
		Ys: []state.Tree{y0},
		Y1: y0,
	}
	if opts.Dense {
		sol.Dense = interp.NewTrajectory()
	}

	t := t0
	y := y0
	for t < t1 {
		if err := ctx.Err(); err != nil {
			finish(sol, &cs.n, h)
			return sol, err
		}
		sol.Stats.Steps++
		if sol.Stats.Steps > opts.MaxSteps {
			finish(sol, &cs.n, h)
			return sol, &Error{T: t, Step: sol.Stats.Steps, Err: ErrMaxSteps}
		}

		hs := h
		tNext := t + hs
		if tNext >= t1 {
			// The segment must end at t1 exactly, not within rounding of it.
			tNext = t1
			hs = t1 - t
		}

		res, err := stepper.Step(t, tNext, y, first)
		if err != nil {
			if opts.Adaptive && errors.Is(err, erk.ErrStepEvaluation) {
				sol.Stats.Rejected++
				h = ctrl.Shrink(hs)
				logger.Debug("step evaluation failed, shrinking",
					zap.Float64("t", t), zap.Float64("h", h), zap.Error(err))
				if h < ctrl.MinStep {
					finish(sol, &cs.n, h)
					return sol, &Error{T: t, Step: sol.Stats.Steps, Err: stepsize.ErrStepTooSmall}
				}
				continue
			}
			finish(sol, &cs.n, h)
			return sol, &Error{T: t, Step: sol.Stats.Steps, Err: err}
		}

		var norm float64
		if opts.Adaptive {
			norm, err = ctrl.ErrorNorm(*res.YErr, y, res.Y1)
			if err != nil {
				finish(sol, &cs.n, h)
				return sol, &Error{T: t, Step: sol.Stats.Steps, Err: err}
			}
			next, accept := ctrl.Adapt(hs, norm, stepper.Order())
			if !accept {
				sol.Stats.Rejected++
				// (t, y) are unchanged, so the computed stage-0 derivative
				// stays valid for the retry.
				first = res.FirstStage()
				h = next
				logger.Debug("step rejected",
					zap.Float64("t", t), zap.Float64("h", hs), zap.Float64("norm", norm))
				if opts.OnStep != nil {
					opts.OnStep(Event{T: t, H: hs, Accepted: false, Norm: norm, Y: y})
				}
				if h < ctrl.MinStep {
					finish(sol, &cs.n, h)
					return sol, &Error{T: t, Step: sol.Stats.Steps, Err: stepsize.ErrStepTooSmall}
				}
				continue
			}
			h = next
		}

		t = tNext
		y = res.Y1
		sol.Stats.Accepted++
		sol.Stats.LastStep = hs
		sol.Ts = append(sol.Ts, t)
		sol.Ys = append(sol.Ys, y)
		if sol.Dense != nil {
			if err := sol.Dense.Append(res.Dense); err != nil {
				finish(sol, &cs.n, h)
				return sol, &Error{T: t, Step: sol.Stats.Steps, Err: err}
			}
		}
		if tab.FSAL {
			first = res.LastStage()
		} else {
			first = nil
		}
		if opts.OnStep != nil {
			opts.OnStep(Event{T: t, H: hs, Accepted: true, Norm: norm, Y: y})
		}
		logger.Debug("step accepted",
			zap.Float64("t", t), zap.Float64("h", hs), zap.Float64("norm", norm))
	}

	sol.Y1 = y
	finish(sol, &cs.n, h)
	return sol, nil
}

func finish(sol *Solution, evals *int, nextStep float64) {
	sol.Stats.Evaluations = *evals
	sol.Stats.NextStep = nextStep
	if n := len(sol.Ys); n > 0 {
		sol.Y1 = sol.Ys[n-1]
	}
}
