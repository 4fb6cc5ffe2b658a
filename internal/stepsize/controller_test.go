package stepsize

import (
	"errors"
	"math"
	"testing"

	"odeflow/internal/erk"
	"odeflow/internal/state"
)

func TestAdaptAcceptReject(t *testing.T) {
	c := NewController(1e-6, 1e-3)

	if _, accept := c.Adapt(0.1, 0.5, 5); !accept {
		t.Error("norm 0.5 should be accepted")
	}
	if _, accept := c.Adapt(0.1, 1.0, 5); !accept {
		t.Error("norm 1.0 is the acceptance boundary")
	}
	next, accept := c.Adapt(0.1, 4.0, 5)
	if accept {
		t.Error("norm 4.0 should be rejected")
	}
	if next >= 0.1 {
		t.Errorf("rejection must shrink the step, got %v", next)
	}
}

func TestAdaptClamps(t *testing.T) {
	c := NewController(1e-6, 1e-3)

	// Tiny error: growth capped at MaxFactor.
	next, _ := c.Adapt(0.1, 1e-12, 5)
	if math.Abs(next-0.1*c.MaxFactor) > 1e-12 {
		t.Errorf("growth not clamped: %v", next)
	}

	// Zero error: same cap.
	next, _ = c.Adapt(0.1, 0, 5)
	if math.Abs(next-0.1*c.MaxFactor) > 1e-12 {
		t.Errorf("zero-norm growth not clamped: %v", next)
	}

	// Huge error: shrink floored at MinFactor.
	next, _ = c.Adapt(0.1, 1e12, 5)
	if math.Abs(next-0.1*c.MinFactor) > 1e-12 {
		t.Errorf("shrink not clamped: %v", next)
	}
}

func TestAdaptRespectsMaxStep(t *testing.T) {
	c := NewController(1e-6, 1e-3)
	c.MaxStep = 0.15
	next, _ := c.Adapt(0.1, 1e-12, 5)
	if next != 0.15 {
		t.Errorf("ceiling ignored: %v", next)
	}
}

func TestErrorNorm(t *testing.T) {
	c := NewController(0.5, 0)
	norm, err := c.ErrorNorm(state.Scalar(0.5), state.Scalar(1), state.Scalar(1))
	if err != nil {
		t.Fatal(err)
	}
	// Scale is atol = 0.5, so a 0.5 error sits exactly on the boundary.
	if math.Abs(norm-1) > 1e-15 {
		t.Errorf("norm = %v, want 1", norm)
	}
}

func TestErrorNormUsesRelativeTolerance(t *testing.T) {
	c := NewController(0, 1e-2)
	// |y| = 100 makes the scale 1; an error of 2 gives norm 2.
	norm, err := c.ErrorNorm(state.Scalar(2), state.Scalar(100), state.Scalar(100))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(norm-2) > 1e-12 {
		t.Errorf("norm = %v, want 2", norm)
	}
}

func TestInitialStep(t *testing.T) {
	decay := erk.SystemFunc(func(tm float64, y state.Tree) (state.Tree, error) {
		return y.Scale(-1), nil
	})
	c := NewController(1e-6, 1e-6)
	y0 := state.Scalar(1)
	f0 := state.Scalar(-1)
	h, err := c.InitialStep(decay, 0, y0, f0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if h <= 0 || h > 1 {
		t.Errorf("initial step %v out of plausible range for dy/dt=-y", h)
	}
}

func TestInitialStepHonorsMaxStep(t *testing.T) {
	decay := erk.SystemFunc(func(tm float64, y state.Tree) (state.Tree, error) {
		return y.Scale(-1), nil
	})
	c := NewController(1e-6, 1e-6)
	c.MaxStep = 1e-4
	h, err := c.InitialStep(decay, 0, state.Scalar(1), state.Scalar(-1), 5)
	if err != nil {
		t.Fatal(err)
	}
	if h > 1e-4 {
		t.Errorf("initial step %v exceeds ceiling", h)
	}
}

func TestInitialStepRejectsNonFiniteTrial(t *testing.T) {
	// Finite at t0, NaN anywhere past it: the trial Euler evaluation must
	// fail instead of poisoning the estimate.
	bad := erk.SystemFunc(func(tm float64, y state.Tree) (state.Tree, error) {
		if tm > 0 {
			return state.Scalar(math.NaN()), nil
		}
		return y.Scale(-1), nil
	})
	c := NewController(1e-6, 1e-6)
	h, err := c.InitialStep(bad, 0, state.Scalar(1), state.Scalar(-1), 5)
	if !errors.Is(err, erk.ErrStepEvaluation) {
		t.Fatalf("expected ErrStepEvaluation, got h=%v err=%v", h, err)
	}
	if math.IsNaN(h) {
		t.Error("NaN step size leaked from a failed estimate")
	}
}

func TestShrink(t *testing.T) {
	c := NewController(1e-6, 1e-3)
	if got := c.Shrink(0.1); got >= 0.1 || got <= 0 {
		t.Errorf("Shrink(0.1) = %v", got)
	}
}
