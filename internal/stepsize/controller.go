// Package stepsize decides step acceptance and proposes step sizes from the
// embedded error estimates the stepper produces. It is the sole retry
// authority: the stepper reports failures, the controller shrinks and
// re-attempts, down to a hard minimum step.
package stepsize

import (
	"errors"
	"math"

	"odeflow/internal/erk"
	"odeflow/internal/state"
)

// ErrStepTooSmall is reported when error control would push the step below
// the configured minimum. The trajectory cannot continue; the failure is
// returned to the caller rather than panicking so batched callers can mark
// one trajectory failed while others proceed.
var ErrStepTooSmall = errors.New("stepsize: step size below minimum")

var errNonFinite = errors.New("vector field returned non-finite values")

// Controller holds the tolerance and clamping policy for adaptive stepping.
// It is updated strictly sequentially: each step's outcome determines the
// next attempted size.
type Controller struct {
	Atol float64
	Rtol float64

	// Safety shrinks every proposal; MinFactor and MaxFactor bound how fast
	// the step may change between attempts.
	Safety    float64
	MinFactor float64
	MaxFactor float64

	MinStep float64
	MaxStep float64 // 0 means unbounded
}

// NewController returns a controller with the conventional safety interval.
func NewController(atol, rtol float64) *Controller {
	return &Controller{
		Atol:      atol,
		Rtol:      rtol,
		Safety:    0.9,
		MinFactor: 0.2,
		MaxFactor: 10.0,
		MinStep:   1e-12,
	}
}

func (c *Controller) maxStep() float64 {
	if c.MaxStep > 0 {
		return c.MaxStep
	}
	return math.Inf(1)
}

// ErrorNorm reduces a raw error estimate to the scaled RMS norm
// sqrt(mean((e_i / (atol + rtol*max(|y0_i|, |y1_i|)))^2)). A norm of at most
// 1 means the step satisfies the tolerances.
func (c *Controller) ErrorNorm(yErr, y0, y1 state.Tree) (float64, error) {
	sum, err := state.ZipReduce([]state.Tree{yErr, y0, y1}, 0,
		func(acc float64, vals []float64) float64 {
			sc := c.Atol + c.Rtol*math.Max(math.Abs(vals[1]), math.Abs(vals[2]))
			q := vals[0] / sc
			return acc + q*q
		})
	if err != nil {
		return 0, err
	}
	n := yErr.Len()
	if n == 0 {
		return 0, nil
	}
	return math.Sqrt(sum / float64(n)), nil
}

// Adapt proposes the next step size from the current size and error norm,
// and reports whether the step is accepted. order is the method's nominal
// convergence order.
func (c *Controller) Adapt(h, norm float64, order int) (next float64, accept bool) {
	accept = norm <= 1
	var factor float64
	if norm == 0 {
		factor = c.MaxFactor
	} else {
		factor = c.Safety * math.Pow(norm, -1/float64(order+1))
		factor = math.Max(c.MinFactor, math.Min(factor, c.MaxFactor))
	}
	return math.Min(h*factor, c.maxStep()), accept
}

// Shrink proposes a retry size after a failed evaluation, where no error
// norm exists to steer by.
func (c *Controller) Shrink(h float64) float64 {
	return h * c.MinFactor
}

// InitialStep estimates a starting step size from the local derivative and
// curvature, spending one extra field evaluation on a trial Euler step.
func (c *Controller) InitialStep(sys erk.System, t0 float64, y0, f0 state.Tree, order int) (float64, error) {
	var dnf, dny float64
	_, err := state.ZipReduce([]state.Tree{y0, f0}, 0,
		func(acc float64, vals []float64) float64 {
			rc := c.Atol + c.Rtol*math.Abs(vals[0])
			dny += (vals[0] / rc) * (vals[0] / rc)
			dnf += (vals[1] / rc) * (vals[1] / rc)
			return 0
		})
	if err != nil {
		return 0, err
	}

	var h float64
	if math.Min(dnf, dny) < 1e-10 {
		h = 1e-6
	} else {
		h = 1e-2 * math.Sqrt(dny/dnf)
	}
	h = math.Min(h, c.maxStep())

	// Trial Euler step to probe the second derivative.
	y2, err := y0.Add(f0.Scale(h))
	if err != nil {
		return 0, err
	}
	f2, err := sys.Derive(t0+h, y2)
	if err != nil {
		return 0, &erk.EvalError{Stage: 0, T: t0 + h, Err: err}
	}
	if !f2.IsFinite() {
		return 0, &erk.EvalError{Stage: 0, T: t0 + h, Err: errNonFinite}
	}

	der2, err := state.ZipReduce([]state.Tree{y0, f0, f2}, 0,
		func(acc float64, vals []float64) float64 {
			rc := c.Atol + c.Rtol*math.Abs(vals[0])
			q := (vals[2] - vals[1]) / rc
			return acc + q*q
		})
	if err != nil {
		return 0, err
	}
	der2 = math.Sqrt(der2) / h
	der12 := math.Max(der2, math.Sqrt(dnf))

	var h1 float64
	if der12 <= 1e-15 {
		h1 = math.Max(1e-6, h*1e-3)
	} else {
		h1 = math.Pow(1e-2/der12, 1/float64(order))
	}
	return math.Min(1e2*h, math.Min(h1, c.maxStep())), nil
}
