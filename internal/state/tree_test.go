package state

import (
	"errors"
	"math"
	"testing"
)

func TestScaleAdd(t *testing.T) {
	y := Node(Vector(1, 2), Scalar(3))
	z, err := y.Scale(2).Add(y)
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	want := Node(Vector(3, 6), Scalar(9))
	if !Equal(z, want, 0) {
		t.Errorf("got %v, want %v", z, want)
	}
}

func TestAddShapeMismatch(t *testing.T) {
	a := Vector(1, 2)
	b := Vector(1, 2, 3)
	if _, err := a.Add(b); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}

	c := Node(Scalar(1))
	if _, err := a.Add(c); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("leaf vs node: expected ErrShapeMismatch, got %v", err)
	}
}

func TestCombineMatchesNaiveSum(t *testing.T) {
	stages := []Tree{
		Node(Vector(1, 2), Scalar(3)),
		Node(Vector(-4, 0.5), Scalar(2)),
		Node(Vector(0.25, 8), Scalar(-1)),
	}
	w := []float64{0.1, -0.7, 1.3}

	got, err := Combine(w, stages)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}

	naive := stages[0].Scale(w[0])
	for i := 1; i < len(stages); i++ {
		naive, _ = naive.Add(stages[i].Scale(w[i]))
	}
	if !Equal(got, naive, 1e-15) {
		t.Errorf("fused %v != naive %v", got, naive)
	}
}

func TestCombineShapeMismatch(t *testing.T) {
	stages := []Tree{Vector(1, 2), Vector(1)}
	if _, err := Combine([]float64{1, 1}, stages); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
	if _, err := Combine([]float64{1}, stages); err == nil {
		t.Error("expected error for weight/stage length mismatch")
	}
}

func TestCloneIsolation(t *testing.T) {
	y := Vector(1, 2, 3)
	c := y.Clone()
	c.Leaf()[0] = 99
	if y.Leaf()[0] != 1 {
		t.Error("Clone shares backing storage with original")
	}
}

func TestIsFinite(t *testing.T) {
	if !Node(Vector(1, 2), Scalar(0)).IsFinite() {
		t.Error("finite tree reported non-finite")
	}
	if Node(Vector(1, math.NaN())).IsFinite() {
		t.Error("NaN leaf reported finite")
	}
	if Scalar(math.Inf(1)).IsFinite() {
		t.Error("Inf leaf reported finite")
	}
}

func TestZipReduce(t *testing.T) {
	a := Node(Vector(1, 2), Scalar(3))
	b := Node(Vector(4, 5), Scalar(6))
	dot, err := ZipReduce([]Tree{a, b}, 0, func(acc float64, vals []float64) float64 {
		return acc + vals[0]*vals[1]
	})
	if err != nil {
		t.Fatalf("ZipReduce: %v", err)
	}
	if dot != 1*4+2*5+3*6 {
		t.Errorf("dot = %v, want 32", dot)
	}
}

func TestFlattenLen(t *testing.T) {
	y := Node(Vector(1, 2), Node(Scalar(3), Vector(4, 5)))
	if y.Len() != 5 {
		t.Errorf("Len = %d, want 5", y.Len())
	}
	f := y.Flatten()
	want := []float64{1, 2, 3, 4, 5}
	for i := range want {
		if f[i] != want[i] {
			t.Fatalf("Flatten = %v, want %v", f, want)
		}
	}
}
