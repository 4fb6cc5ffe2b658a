package interp

import "odeflow/internal/state"

// FourthOrder fits a quartic through y0, y1 and a midpoint reconstructed from
// the stage derivatives with method-specific weights, matching the endpoint
// slopes. The classic dense-output companion of the Dormand--Prince pair.
type FourthOrder struct {
	t0, t1 float64
	// Polynomial coefficients in tau, highest degree first; c[4] is y0.
	c [5]state.Tree
}

// NewFourthOrder builds the quartic fit. cMid are the tableau's midpoint
// weights; stages must hold one derivative per tableau stage.
func NewFourthOrder(t0, t1 float64, y0, y1 state.Tree, stages []state.Tree, cMid []float64) (*FourthOrder, error) {
	h := t1 - t0
	mid, err := state.Combine(cMid, stages)
	if err != nil {
		return nil, err
	}
	yMid, err := y0.Add(mid.Scale(h))
	if err != nil {
		return nil, err
	}
	if !state.SameShape(y0, y1) {
		return nil, state.ErrShapeMismatch
	}
	f0 := stages[0].Scale(h)
	f1 := stages[len(stages)-1].Scale(h)

	basis := []state.Tree{f0, f1, y0, y1, yMid}
	s := &FourthOrder{t0: t0, t1: t1}
	s.c[0] = mustCombine([]float64{-2, 2, -8, -8, 16}, basis)
	s.c[1] = mustCombine([]float64{5, -3, 18, 14, -32}, basis)
	s.c[2] = mustCombine([]float64{-4, 1, -11, -5, 16}, basis)
	s.c[3] = f0
	s.c[4] = y0
	return s, nil
}

func (s *FourthOrder) T0() float64 { return s.t0 }
func (s *FourthOrder) T1() float64 { return s.t1 }

func (s *FourthOrder) Evaluate(t float64) state.Tree {
	tau := rescale(s.t0, s.t1, t)
	t2 := tau * tau
	return mustCombine(
		[]float64{t2 * t2, t2 * tau, t2, tau, 1},
		s.c[:],
	)
}

func (s *FourthOrder) EvaluateRange(ta, tb float64) state.Tree {
	a := rescale(s.t0, s.t1, ta)
	b := rescale(s.t0, s.t1, tb)
	a2, b2 := a*a, b*b
	return mustCombine(
		[]float64{b2*b2 - a2*a2, b2*b - a2*a, b2 - a2, b - a},
		s.c[:4],
	)
}

func (s *FourthOrder) Derivative(t float64) (state.Tree, error) {
	tau := rescale(s.t0, s.t1, t)
	d := mustCombine(
		[]float64{4 * tau * tau * tau, 3 * tau * tau, 2 * tau, 1},
		s.c[:4],
	)
	return d.Scale(1 / (s.t1 - s.t0)), nil
}
