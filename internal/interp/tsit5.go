package interp

import "odeflow/internal/state"

// tsit5Stages is the stage count of the Tsitouras 5(4) dense output.
const tsit5Stages = 7

// Tsit5 is the method-specific dense output of the Tsitouras 5(4) pair: a
// quartic weight polynomial b_i(tau) per stage, combined with the stage
// derivatives. Value evaluation only; the method does not ship a derivative
// form.
type Tsit5 struct {
	t0, t1 float64
	y0     state.Tree
	k      []state.Tree
}

// NewTsit5 builds the segment from the seven stage derivatives of one step.
func NewTsit5(t0, t1 float64, y0 state.Tree, stages []state.Tree) (*Tsit5, error) {
	if len(stages) != tsit5Stages {
		return nil, state.ErrShapeMismatch
	}
	for _, k := range stages {
		if !state.SameShape(y0, k) {
			return nil, state.ErrShapeMismatch
		}
	}
	ks := make([]state.Tree, tsit5Stages)
	copy(ks, stages)
	return &Tsit5{t0: t0, t1: t1, y0: y0, k: ks}, nil
}

// weights evaluates the b_i(tau) polynomials, kept in the factored form they
// were derived in.
func tsit5Weights(t float64) [tsit5Stages]float64 {
	t2 := t * t
	return [tsit5Stages]float64{
		-1.0530884977290216 * t * (t - 1.3299890189751412) *
			(t2 - 1.4364028541716351*t + 0.7139816917074209),
		0.1017 * t2 * (t2 - 2.1966568338249754*t + 1.2949852507374631),
		2.490627285651252793 * t2 * (t2 - 2.38535645472061657*t + 1.57803468208092486),
		-16.54810288924490272 * (t - 1.21712927295533244) * (t - 0.61620406037800089) * t2,
		47.37952196281928122 * (t - 1.203071208372362603) * (t - 0.658047292653547382) * t2,
		-34.87065786149660974 * (t - 1.2) * (t - 0.666666666666666667) * t2,
		2.5 * (t - 1) * (t - 0.6) * t2,
	}
}

func (s *Tsit5) T0() float64 { return s.t0 }
func (s *Tsit5) T1() float64 { return s.t1 }

func (s *Tsit5) Evaluate(t float64) state.Tree {
	tau := rescale(s.t0, s.t1, t)
	w := tsit5Weights(tau)
	h := s.t1 - s.t0
	return mustAdd(s.y0, mustCombine(w[:], s.k).Scale(h))
}

func (s *Tsit5) EvaluateRange(ta, tb float64) state.Tree {
	wa := tsit5Weights(rescale(s.t0, s.t1, ta))
	wb := tsit5Weights(rescale(s.t0, s.t1, tb))
	var dw [tsit5Stages]float64
	for i := range dw {
		dw[i] = wb[i] - wa[i]
	}
	h := s.t1 - s.t0
	return mustCombine(dw[:], s.k).Scale(h)
}

func (s *Tsit5) Derivative(t float64) (state.Tree, error) {
	return state.Tree{}, ErrUnsupported
}
