package interp

import (
	"errors"
	"math"
	"testing"

	"odeflow/internal/state"
)

func TestLinearSegment(t *testing.T) {
	seg, err := NewLinear(1, 3, state.Vector(0, 10), state.Vector(2, 30))
	if err != nil {
		t.Fatal(err)
	}
	mid := seg.Evaluate(2)
	if !state.Equal(mid, state.Vector(1, 20), 1e-15) {
		t.Errorf("midpoint %v", mid)
	}
	d, err := seg.Derivative(1.5)
	if err != nil {
		t.Fatal(err)
	}
	if !state.Equal(d, state.Vector(1, 10), 1e-15) {
		t.Errorf("derivative %v", d)
	}
}

func TestLinearShapeMismatch(t *testing.T) {
	if _, err := NewLinear(0, 1, state.Scalar(1), state.Vector(1, 2)); !errors.Is(err, state.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

// hermiteFromSin builds a Hermite segment from exact samples of sin over
// [t0, t1].
func hermiteFromSin(t *testing.T, t0, t1 float64) *Hermite {
	t.Helper()
	seg, err := NewHermite(t0, t1,
		state.Scalar(math.Sin(t0)), state.Scalar(math.Sin(t1)),
		state.Scalar(math.Cos(t0)), state.Scalar(math.Cos(t1)))
	if err != nil {
		t.Fatal(err)
	}
	return seg
}

func TestHermiteEndpoints(t *testing.T) {
	seg := hermiteFromSin(t, 0.2, 0.7)
	if got := seg.Evaluate(0.2).Leaf()[0]; math.Abs(got-math.Sin(0.2)) > 1e-15 {
		t.Errorf("left endpoint %v", got)
	}
	if got := seg.Evaluate(0.7).Leaf()[0]; math.Abs(got-math.Sin(0.7)) > 1e-14 {
		t.Errorf("right endpoint %v", got)
	}
}

func TestHermiteAccuracy(t *testing.T) {
	seg := hermiteFromSin(t, 0.2, 0.7)
	for _, tt := range []float64{0.3, 0.45, 0.6} {
		if got := seg.Evaluate(tt).Leaf()[0]; math.Abs(got-math.Sin(tt)) > 5e-4 {
			t.Errorf("at %v: %v vs %v", tt, got, math.Sin(tt))
		}
	}
}

func TestHermiteDerivative(t *testing.T) {
	seg := hermiteFromSin(t, 0.2, 0.7)
	d, err := seg.Derivative(0.45)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d.Leaf()[0]-math.Cos(0.45)) > 1e-3 {
		t.Errorf("derivative %v vs %v", d.Leaf()[0], math.Cos(0.45))
	}

	// Finite-difference cross-check of the analytic form.
	eps := 1e-6
	fd := (seg.Evaluate(0.45+eps).Leaf()[0] - seg.Evaluate(0.45-eps).Leaf()[0]) / (2 * eps)
	if math.Abs(d.Leaf()[0]-fd) > 1e-8 {
		t.Errorf("analytic %v vs finite difference %v", d.Leaf()[0], fd)
	}
}

func TestHermiteExtrapolation(t *testing.T) {
	seg := hermiteFromSin(t, 0.2, 0.7)
	// Permitted, just not accurate: must return finite values.
	if y := seg.Evaluate(1.0); !y.IsFinite() {
		t.Error("extrapolated value not finite")
	}
	if y := seg.Evaluate(-0.5); !y.IsFinite() {
		t.Error("extrapolated value not finite")
	}
}

func TestDifferenceFormIdentity(t *testing.T) {
	segs := []Segment{hermiteFromSin(t, 0.2, 0.7)}
	if lin, err := NewLinear(0.2, 0.7, state.Scalar(1), state.Scalar(2)); err == nil {
		segs = append(segs, lin)
	}
	for _, seg := range segs {
		for _, pair := range [][2]float64{{0.25, 0.6}, {0.2, 0.7}, {0.4, 0.4}} {
			ta, tb := pair[0], pair[1]
			direct := seg.EvaluateRange(ta, tb)
			indirect, err := seg.Evaluate(tb).Sub(seg.Evaluate(ta))
			if err != nil {
				t.Fatal(err)
			}
			if !state.Equal(direct, indirect, 1e-13) {
				t.Errorf("range [%v,%v]: direct %v vs indirect %v", ta, tb, direct, indirect)
			}
		}
	}
}

func fourthOrderFixture(t *testing.T) (*FourthOrder, state.Tree, state.Tree) {
	t.Helper()
	y0 := state.Vector(1, -2)
	y1 := state.Vector(0.5, -1)
	stages := []state.Tree{
		state.Vector(-1, 2),
		state.Vector(-0.9, 1.8),
		state.Vector(-0.7, 1.4),
	}
	cMid := []float64{0.2, 0.2, 0.1}
	seg, err := NewFourthOrder(0, 0.5, y0, y1, stages, cMid)
	if err != nil {
		t.Fatal(err)
	}
	return seg, y0, y1
}

func TestFourthOrderEndpointIdentity(t *testing.T) {
	// The quartic fit interpolates its endpoints for any stage data.
	seg, y0, y1 := fourthOrderFixture(t)
	if got := seg.Evaluate(0); !state.Equal(got, y0, 1e-14) {
		t.Errorf("t0: %v vs %v", got, y0)
	}
	if got := seg.Evaluate(0.5); !state.Equal(got, y1, 1e-13) {
		t.Errorf("t1: %v vs %v", got, y1)
	}
}

func TestFourthOrderDerivativeMatchesFiniteDifference(t *testing.T) {
	seg, _, _ := fourthOrderFixture(t)
	d, err := seg.Derivative(0.3)
	if err != nil {
		t.Fatal(err)
	}
	eps := 1e-6
	hi := seg.Evaluate(0.3 + eps)
	lo := seg.Evaluate(0.3 - eps)
	diff, _ := hi.Sub(lo)
	fd := diff.Scale(1 / (2 * eps))
	if !state.Equal(d, fd, 1e-7) {
		t.Errorf("analytic %v vs finite difference %v", d, fd)
	}
}

func TestFourthOrderRangeIdentity(t *testing.T) {
	seg, _, _ := fourthOrderFixture(t)
	direct := seg.EvaluateRange(0.1, 0.4)
	indirect, _ := seg.Evaluate(0.4).Sub(seg.Evaluate(0.1))
	if !state.Equal(direct, indirect, 1e-13) {
		t.Errorf("direct %v vs indirect %v", direct, indirect)
	}
}

func tsit5Fixture(t *testing.T) (*Tsit5, state.Tree) {
	t.Helper()
	y0 := state.Scalar(2)
	stages := make([]state.Tree, 7)
	for i := range stages {
		stages[i] = state.Scalar(-2 + 0.1*float64(i))
	}
	seg, err := NewTsit5(0, 0.25, y0, stages)
	if err != nil {
		t.Fatal(err)
	}
	return seg, y0
}

func TestTsit5StartsAtY0(t *testing.T) {
	seg, y0 := tsit5Fixture(t)
	if got := seg.Evaluate(0); !state.Equal(got, y0, 0) {
		t.Errorf("t0: %v vs %v", got, y0)
	}
}

func TestTsit5DerivativeUnsupported(t *testing.T) {
	seg, _ := tsit5Fixture(t)
	if _, err := seg.Derivative(0.1); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestTsit5RangeIdentity(t *testing.T) {
	seg, _ := tsit5Fixture(t)
	direct := seg.EvaluateRange(0.05, 0.2)
	indirect, _ := seg.Evaluate(0.2).Sub(seg.Evaluate(0.05))
	if !state.Equal(direct, indirect, 1e-13) {
		t.Errorf("direct %v vs indirect %v", direct, indirect)
	}
}

func TestTsit5RequiresSevenStages(t *testing.T) {
	if _, err := NewTsit5(0, 1, state.Scalar(1), make([]state.Tree, 4)); err == nil {
		t.Error("expected error for wrong stage count")
	}
}

func mustLinear(t *testing.T, t0, t1, v0, v1 float64) *Linear {
	t.Helper()
	seg, err := NewLinear(t0, t1, state.Scalar(v0), state.Scalar(v1))
	if err != nil {
		t.Fatal(err)
	}
	return seg
}

func TestTrajectoryLookup(t *testing.T) {
	tr := NewTrajectory()
	for _, seg := range []*Linear{
		mustLinear(t, 0, 1, 0, 1),
		mustLinear(t, 1, 2, 1, 3),
		mustLinear(t, 2, 3, 3, 0),
	} {
		if err := tr.Append(seg); err != nil {
			t.Fatal(err)
		}
	}

	cases := map[float64]float64{
		0:    0,
		0.5:  0.5,
		1:    1,
		1.5:  2,
		2.75: 0.75,
		3:    0,
	}
	for tt, want := range cases {
		y, err := tr.Evaluate(tt)
		if err != nil {
			t.Fatalf("Evaluate(%v): %v", tt, err)
		}
		if math.Abs(y.Leaf()[0]-want) > 1e-15 {
			t.Errorf("Evaluate(%v) = %v, want %v", tt, y.Leaf()[0], want)
		}
	}
}

func TestTrajectoryOutOfRange(t *testing.T) {
	tr := NewTrajectory()
	if err := tr.Append(mustLinear(t, 0, 1, 0, 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Evaluate(-0.1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := tr.Evaluate(1.1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestTrajectoryRangeAcrossSegments(t *testing.T) {
	tr := NewTrajectory()
	tr.Append(mustLinear(t, 0, 1, 0, 2))
	tr.Append(mustLinear(t, 1, 2, 2, 6))
	got, err := tr.EvaluateRange(0.5, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got.Leaf()[0]-3) > 1e-15 {
		t.Errorf("range = %v, want 3", got.Leaf()[0])
	}
}

func TestTrajectoryRejectsOutOfOrderAppend(t *testing.T) {
	tr := NewTrajectory()
	tr.Append(mustLinear(t, 1, 2, 0, 1))
	if err := tr.Append(mustLinear(t, 0, 1, 0, 1)); err == nil {
		t.Error("expected error for out-of-order segment")
	}
}
