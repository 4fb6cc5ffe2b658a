package tableau

import (
	"errors"
	"math"
	"testing"
)

func TestRegisteredSolutionWeightsSumToOne(t *testing.T) {
	for _, name := range Names() {
		tab, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		sum := 0.0
		for _, b := range tab.BSol {
			sum += b
		}
		if math.Abs(sum-1) > sumTol {
			t.Errorf("%s: solution weights sum to %v", name, sum)
		}
	}
}

func TestRegisteredShapes(t *testing.T) {
	for _, name := range Names() {
		tab, _ := Lookup(name)
		s := tab.Stages()
		if len(tab.A) != s || len(tab.BSol) != s {
			t.Errorf("%s: inconsistent stage count", name)
		}
		for i, row := range tab.A {
			if len(row) != i {
				t.Errorf("%s: coupling row %d has %d entries", name, i, len(row))
			}
		}
		if tab.BErr != nil && len(tab.BErr) != s {
			t.Errorf("%s: error weights have length %d, want %d", name, len(tab.BErr), s)
		}
	}
}

func TestNewRejectsMismatchedWeights(t *testing.T) {
	// b_sol is one short of the stage count.
	_, err := New("bad", 2,
		[][]float64{{}, {1}},
		[]float64{0, 1},
		[]float64{1},
		nil,
		false, DenseLinear, nil)
	if !errors.Is(err, ErrInvalidTableau) {
		t.Errorf("expected ErrInvalidTableau, got %v", err)
	}
}

func TestNewRejectsNonTriangularCoupling(t *testing.T) {
	_, err := New("bad", 2,
		[][]float64{{0.5}, {1}},
		[]float64{0, 1},
		[]float64{0.5, 0.5},
		nil,
		false, DenseLinear, nil)
	if !errors.Is(err, ErrInvalidTableau) {
		t.Errorf("expected ErrInvalidTableau, got %v", err)
	}
}

func TestNewRejectsUnnormalizedSolutionWeights(t *testing.T) {
	_, err := New("bad", 2,
		[][]float64{{}, {1}},
		[]float64{0, 1},
		[]float64{0.5, 0.6},
		nil,
		false, DenseLinear, nil)
	if !errors.Is(err, ErrInvalidTableau) {
		t.Errorf("expected ErrInvalidTableau, got %v", err)
	}
}

func TestNewRejectsInconsistentFSAL(t *testing.T) {
	// Claims FSAL but the last coupling row is not the solution weights.
	_, err := New("bad", 3,
		[][]float64{{}, {0.5}, {0.3, 0.7}},
		[]float64{0, 0.5, 1},
		[]float64{0.5, 0.5, 0},
		nil,
		true, DenseLinear, nil)
	if !errors.Is(err, ErrInvalidTableau) {
		t.Errorf("expected ErrInvalidTableau, got %v", err)
	}
}

func TestFSALStructure(t *testing.T) {
	for _, tab := range []*Tableau{Bosh3, Dopri5, Tsit5} {
		if !tab.FSAL {
			t.Errorf("%s: expected FSAL", tab.Name)
			continue
		}
		s := tab.Stages()
		if tab.C[s-1] != 1 || tab.BSol[s-1] != 0 {
			t.Errorf("%s: last stage is not a (t1, y1) evaluation", tab.Name)
		}
		for j, v := range tab.A[s-1] {
			if v != tab.BSol[j] {
				t.Errorf("%s: last coupling row differs from solution weights at %d", tab.Name, j)
			}
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("rk99"); err == nil {
		t.Error("expected error for unknown method")
	}
}
