// Package tableau defines Butcher tableaus for explicit Runge-Kutta methods.
// A tableau is pure data, validated once at construction and shared read-only
// across any number of concurrently running integrations.
package tableau

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidTableau is returned when coefficient shapes are malformed.
var ErrInvalidTableau = errors.New("tableau: invalid tableau")

// DenseKind selects how a method's accepted steps are turned into local
// interpolation segments.
type DenseKind int

const (
	// DenseLinear interpolates linearly between y0 and y1.
	DenseLinear DenseKind = iota
	// DenseHermite fits a cubic Hermite polynomial through the endpoint
	// values using the first and last stage derivatives as slopes.
	DenseHermite
	// DenseFourthOrder fits a fourth-order polynomial through y0, y1 and a
	// midpoint reconstructed from the stage derivatives via CMid weights.
	DenseFourthOrder
	// DenseTsit5 uses Tsitouras' method-specific quartic weight polynomials.
	DenseTsit5
)

// Tableau holds the coefficients of one explicit Runge-Kutta method.
// A has one row per stage; row i holds the i coupling coefficients for the
// previously computed stage derivatives. C[i] is stage i's fractional position
// in the step, with C[0] always 0. BSol are the solution weights and BErr the
// embedded error-estimate weights; BErr is nil for methods without an
// embedded lower-order solution.
type Tableau struct {
	Name  string
	Order int

	A    [][]float64
	C    []float64
	BSol []float64
	BErr []float64

	// FSAL marks First-Same-As-Last methods: the final stage derivative of
	// an accepted step equals the first stage derivative of the next step.
	FSAL bool

	// Dense names the interpolation scheme; CMid carries the midpoint
	// weights for DenseFourthOrder and is nil otherwise.
	Dense DenseKind
	CMid  []float64
}

// Stages returns the number of stage derivative evaluations per step.
func (t *Tableau) Stages() int { return len(t.C) }

const sumTol = 1e-10

// New validates the coefficient shapes and returns an immutable tableau.
func New(name string, order int, a [][]float64, c, bSol, bErr []float64, fsal bool, dense DenseKind, cMid []float64) (*Tableau, error) {
	s := len(c)
	if s == 0 {
		return nil, fmt.Errorf("%w: %s has no stages", ErrInvalidTableau, name)
	}
	if len(a) != s {
		return nil, fmt.Errorf("%w: %s has %d coupling rows for %d stages", ErrInvalidTableau, name, len(a), s)
	}
	for i, row := range a {
		if len(row) != i {
			return nil, fmt.Errorf("%w: %s coupling row %d has %d entries, want %d", ErrInvalidTableau, name, i, len(row), i)
		}
	}
	if c[0] != 0 {
		return nil, fmt.Errorf("%w: %s first stage time fraction is %v, want 0", ErrInvalidTableau, name, c[0])
	}
	if len(bSol) != s {
		return nil, fmt.Errorf("%w: %s has %d solution weights for %d stages", ErrInvalidTableau, name, len(bSol), s)
	}
	if bErr != nil && len(bErr) != s {
		return nil, fmt.Errorf("%w: %s has %d error weights for %d stages", ErrInvalidTableau, name, len(bErr), s)
	}
	sum := 0.0
	for _, b := range bSol {
		sum += b
	}
	if math.Abs(sum-1) > sumTol {
		return nil, fmt.Errorf("%w: %s solution weights sum to %v, want 1", ErrInvalidTableau, name, sum)
	}
	if fsal {
		// The last stage must re-evaluate the field at (t1, y1): its row of
		// A must equal the solution weights and carry no weight of its own.
		if c[s-1] != 1 {
			return nil, fmt.Errorf("%w: %s is FSAL but last stage time fraction is %v", ErrInvalidTableau, name, c[s-1])
		}
		if bSol[s-1] != 0 {
			return nil, fmt.Errorf("%w: %s is FSAL but last solution weight is %v", ErrInvalidTableau, name, bSol[s-1])
		}
		for j, v := range a[s-1] {
			if v != bSol[j] {
				return nil, fmt.Errorf("%w: %s is FSAL but coupling row %d differs from solution weights at %d", ErrInvalidTableau, name, s-1, j)
			}
		}
	}
	if dense == DenseFourthOrder && len(cMid) != s {
		return nil, fmt.Errorf("%w: %s has %d midpoint weights for %d stages", ErrInvalidTableau, name, len(cMid), s)
	}
	return &Tableau{
		Name: name, Order: order,
		A: a, C: c, BSol: bSol, BErr: bErr,
		FSAL: fsal, Dense: dense, CMid: cMid,
	}, nil
}

// MustNew is New for the compiled-in method tables.
func MustNew(name string, order int, a [][]float64, c, bSol, bErr []float64, fsal bool, dense DenseKind, cMid []float64) *Tableau {
	t, err := New(name, order, a, c, bSol, bErr, fsal, dense, cMid)
	if err != nil {
		panic(err)
	}
	return t
}

var registry = map[string]*Tableau{}

func register(t *Tableau) *Tableau {
	registry[t.Name] = t
	return t
}

// Lookup returns the registered tableau for name.
func Lookup(name string) (*Tableau, error) {
	t, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("tableau: unknown method %q (have %v)", name, Names())
	}
	return t, nil
}

// Names lists the registered methods in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
