// Package interp provides continuous output over accepted integration steps.
// Each accepted step yields an immutable Segment, a fixed-degree polynomial in
// the rescaled local time tau = (t-t0)/(t1-t0); an ordered sequence of
// segments forms a dense Trajectory over the whole integration interval.
//
// Segments evaluate anywhere, including outside [t0, t1]; extrapolated values
// are well-defined but carry no accuracy guarantee. That trade-off is the
// caller's.
package interp

import (
	"errors"
	"fmt"

	"odeflow/internal/state"
)

// ErrUnsupported is returned when a segment kind does not implement
// derivative evaluation.
var ErrUnsupported = errors.New("interp: operation not supported by this method")

// Segment is the continuous solution over one accepted step.
type Segment interface {
	T0() float64
	T1() float64

	// Evaluate returns the interpolated state at t.
	Evaluate(t float64) state.Tree

	// EvaluateRange returns Evaluate(tb)-Evaluate(ta), computed directly in
	// the polynomial basis rather than as two evaluations and a subtraction.
	EvaluateRange(ta, tb float64) state.Tree

	// Derivative returns d/dt of the interpolant at t, or ErrUnsupported.
	Derivative(t float64) (state.Tree, error)
}

// rescale maps t onto the local variable tau in [0, 1].
func rescale(t0, t1, t float64) float64 {
	return (t - t0) / (t1 - t0)
}

// mustCombine is Combine over trees whose shapes were validated when the
// segment was built.
func mustCombine(w []float64, ts []state.Tree) state.Tree {
	y, err := state.Combine(w, ts)
	if err != nil {
		panic(fmt.Sprintf("interp: segment invariant violated: %v", err))
	}
	return y
}

func mustAdd(a, b state.Tree) state.Tree {
	y, err := a.Add(b)
	if err != nil {
		panic(fmt.Sprintf("interp: segment invariant violated: %v", err))
	}
	return y
}

// Linear interpolates linearly between the step endpoints. Used by methods
// whose stage derivatives carry no extra dense-output information.
type Linear struct {
	t0, t1 float64
	y0     state.Tree
	diff   state.Tree // y1 - y0
}

// NewLinear builds a linear segment over [t0, t1].
func NewLinear(t0, t1 float64, y0, y1 state.Tree) (*Linear, error) {
	d, err := y1.Sub(y0)
	if err != nil {
		return nil, err
	}
	return &Linear{t0: t0, t1: t1, y0: y0, diff: d}, nil
}

func (l *Linear) T0() float64 { return l.t0 }
func (l *Linear) T1() float64 { return l.t1 }

func (l *Linear) Evaluate(t float64) state.Tree {
	tau := rescale(l.t0, l.t1, t)
	return mustAdd(l.y0, l.diff.Scale(tau))
}

func (l *Linear) EvaluateRange(ta, tb float64) state.Tree {
	taua := rescale(l.t0, l.t1, ta)
	taub := rescale(l.t0, l.t1, tb)
	return l.diff.Scale(taub - taua)
}

func (l *Linear) Derivative(t float64) (state.Tree, error) {
	return l.diff.Scale(1 / (l.t1 - l.t0)), nil
}

// Hermite is the cubic Hermite interpolant through (y0, y1) with the first
// and last stage derivatives as endpoint slopes. Third-order accurate for the
// FSAL methods, where the last stage derivative is exactly f(t1, y1).
type Hermite struct {
	t0, t1     float64
	a3, a2, a1 state.Tree
	a0         state.Tree
}

// NewHermite builds the cubic through the step endpoints with slopes k0, k1.
func NewHermite(t0, t1 float64, y0, y1, k0, k1 state.Tree) (*Hermite, error) {
	h := t1 - t0
	basis := []state.Tree{y0, y1, k0.Scale(h), k1.Scale(h)}
	a3, err := state.Combine([]float64{2, -2, 1, 1}, basis)
	if err != nil {
		return nil, err
	}
	a2 := mustCombine([]float64{-3, 3, -2, -1}, basis)
	return &Hermite{t0: t0, t1: t1, a3: a3, a2: a2, a1: basis[2], a0: y0}, nil
}

func (s *Hermite) T0() float64 { return s.t0 }
func (s *Hermite) T1() float64 { return s.t1 }

func (s *Hermite) Evaluate(t float64) state.Tree {
	tau := rescale(s.t0, s.t1, t)
	return mustCombine(
		[]float64{tau * tau * tau, tau * tau, tau, 1},
		[]state.Tree{s.a3, s.a2, s.a1, s.a0},
	)
}

func (s *Hermite) EvaluateRange(ta, tb float64) state.Tree {
	a := rescale(s.t0, s.t1, ta)
	b := rescale(s.t0, s.t1, tb)
	return mustCombine(
		[]float64{b*b*b - a*a*a, b*b - a*a, b - a},
		[]state.Tree{s.a3, s.a2, s.a1},
	)
}

func (s *Hermite) Derivative(t float64) (state.Tree, error) {
	tau := rescale(s.t0, s.t1, t)
	d := mustCombine(
		[]float64{3 * tau * tau, 2 * tau, 1},
		[]state.Tree{s.a3, s.a2, s.a1},
	)
	return d.Scale(1 / (s.t1 - s.t0)), nil
}
