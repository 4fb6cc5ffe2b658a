package problems

import "odeflow/internal/state"

// Decay is dy/dt = -rate*y, the standard accuracy benchmark: the exact
// solution is y0*exp(-rate*t).
type Decay struct {
	rate float64
}

func NewDecay() *Decay { return &Decay{rate: 1.0} }

func (d *Decay) Name() string { return "decay" }

func (d *Decay) Derive(_ float64, y state.Tree) (state.Tree, error) {
	return y.Scale(-d.rate), nil
}

func (d *Decay) DefaultState() state.Tree { return state.Scalar(1.0) }

func (d *Decay) Params() map[string]float64 { return map[string]float64{"rate": d.rate} }

func (d *Decay) SetParam(name string, v float64) error {
	if name != "rate" {
		return badParam("decay", name)
	}
	d.rate = v
	return nil
}

// Logistic is dy/dt = r*y*(1 - y/k).
type Logistic struct {
	r, k float64
}

func NewLogistic() *Logistic { return &Logistic{r: 1.0, k: 10.0} }

func (l *Logistic) Name() string { return "logistic" }

func (l *Logistic) Derive(_ float64, y state.Tree) (state.Tree, error) {
	return y.Map(func(v float64) float64 { return l.r * v * (1 - v/l.k) }), nil
}

func (l *Logistic) DefaultState() state.Tree { return state.Scalar(0.1) }

func (l *Logistic) Params() map[string]float64 { return map[string]float64{"r": l.r, "k": l.k} }

func (l *Logistic) SetParam(name string, v float64) error {
	switch name {
	case "r":
		l.r = v
	case "k":
		l.k = v
	default:
		return badParam("logistic", name)
	}
	return nil
}

// Harmonic is the simple harmonic oscillator x'' = -omega^2 x.
// State: [x, v].
type Harmonic struct {
	omega float64
}

func NewHarmonic() *Harmonic { return &Harmonic{omega: 1.0} }

func (h *Harmonic) Name() string { return "harmonic" }

func (h *Harmonic) Derive(_ float64, y state.Tree) (state.Tree, error) {
	s := y.Leaf()
	return state.Vector(s[1], -h.omega*h.omega*s[0]), nil
}

func (h *Harmonic) DefaultState() state.Tree { return state.Vector(1.0, 0.0) }

// Energy is conserved along exact trajectories; tests use the drift as an
// accuracy probe.
func (h *Harmonic) Energy(y state.Tree) float64 {
	s := y.Leaf()
	return 0.5 * (s[1]*s[1] + h.omega*h.omega*s[0]*s[0])
}

func (h *Harmonic) Params() map[string]float64 { return map[string]float64{"omega": h.omega} }

func (h *Harmonic) SetParam(name string, v float64) error {
	if name != "omega" {
		return badParam("harmonic", name)
	}
	h.omega = v
	return nil
}

// VanDerPol is the Van der Pol oscillator:
//
//	dx/dt = y
//	dy/dt = mu(1 - x^2)y - x
type VanDerPol struct {
	mu float64
}

func NewVanDerPol() *VanDerPol { return &VanDerPol{mu: 1.0} }

func (v *VanDerPol) Name() string { return "vanderpol" }

func (v *VanDerPol) Derive(_ float64, y state.Tree) (state.Tree, error) {
	s := y.Leaf()
	x, w := s[0], s[1]
	return state.Vector(w, v.mu*(1-x*x)*w-x), nil
}

func (v *VanDerPol) DefaultState() state.Tree { return state.Vector(2.0, 0.0) }

func (v *VanDerPol) Params() map[string]float64 { return map[string]float64{"mu": v.mu} }

func (v *VanDerPol) SetParam(name string, val float64) error {
	if name != "mu" {
		return badParam("vanderpol", name)
	}
	v.mu = val
	return nil
}

// Lorenz is the Lorenz attractor.
type Lorenz struct {
	sigma, rho, beta float64
}

func NewLorenz() *Lorenz { return &Lorenz{sigma: 10.0, rho: 28.0, beta: 8.0 / 3.0} }

func (l *Lorenz) Name() string { return "lorenz" }

func (l *Lorenz) Derive(_ float64, y state.Tree) (state.Tree, error) {
	s := y.Leaf()
	return state.Vector(
		l.sigma*(s[1]-s[0]),
		s[0]*(l.rho-s[2])-s[1],
		s[0]*s[1]-l.beta*s[2],
	), nil
}

func (l *Lorenz) DefaultState() state.Tree { return state.Vector(1.0, 1.0, 1.0) }

func (l *Lorenz) Params() map[string]float64 {
	return map[string]float64{"sigma": l.sigma, "rho": l.rho, "beta": l.beta}
}

func (l *Lorenz) SetParam(name string, v float64) error {
	switch name {
	case "sigma":
		l.sigma = v
	case "rho":
		l.rho = v
	case "beta":
		l.beta = v
	default:
		return badParam("lorenz", name)
	}
	return nil
}
