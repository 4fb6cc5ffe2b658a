package interp

import (
	"errors"
	"fmt"
	"sort"

	"odeflow/internal/state"
)

// ErrOutOfRange is returned when a trajectory is queried outside the
// integrated interval.
var ErrOutOfRange = errors.New("interp: time outside integrated interval")

// Trajectory is the dense output of a whole integration: one segment per
// accepted step, appended in increasing time order, covering the interval
// with no gaps. Queries locate the covering segment by binary search and
// delegate to it.
type Trajectory struct {
	segs   []Segment
	starts []float64
}

// NewTrajectory returns an empty trajectory.
func NewTrajectory() *Trajectory {
	return &Trajectory{}
}

// Append adds the segment for the next accepted step. Segments must arrive in
// increasing time order.
func (tr *Trajectory) Append(seg Segment) error {
	if n := len(tr.segs); n > 0 && seg.T0() < tr.segs[n-1].T1() {
		return fmt.Errorf("interp: segment starting at %v appended after segment ending at %v",
			seg.T0(), tr.segs[n-1].T1())
	}
	tr.segs = append(tr.segs, seg)
	tr.starts = append(tr.starts, seg.T0())
	return nil
}

// Len returns the number of segments.
func (tr *Trajectory) Len() int { return len(tr.segs) }

// Segments exposes the underlying segments, ordered by time.
func (tr *Trajectory) Segments() []Segment { return tr.segs }

// T0 returns the start of the covered interval.
func (tr *Trajectory) T0() float64 { return tr.segs[0].T0() }

// T1 returns the end of the covered interval.
func (tr *Trajectory) T1() float64 { return tr.segs[len(tr.segs)-1].T1() }

func (tr *Trajectory) locate(t float64) (Segment, error) {
	if len(tr.segs) == 0 {
		return nil, ErrOutOfRange
	}
	if t < tr.T0() || t > tr.T1() {
		return nil, fmt.Errorf("%w: t=%v not in [%v, %v]", ErrOutOfRange, t, tr.T0(), tr.T1())
	}
	// First segment starting strictly after t, minus one.
	i := sort.Search(len(tr.starts), func(i int) bool { return tr.starts[i] > t })
	return tr.segs[i-1], nil
}

// Evaluate returns the dense solution at global time t.
func (tr *Trajectory) Evaluate(t float64) (state.Tree, error) {
	seg, err := tr.locate(t)
	if err != nil {
		return state.Tree{}, err
	}
	return seg.Evaluate(t), nil
}

// EvaluateRange returns Evaluate(tb)-Evaluate(ta). Both times must fall in
// the covered interval; the difference spans segments when needed.
func (tr *Trajectory) EvaluateRange(ta, tb float64) (state.Tree, error) {
	segA, err := tr.locate(ta)
	if err != nil {
		return state.Tree{}, err
	}
	segB, err := tr.locate(tb)
	if err != nil {
		return state.Tree{}, err
	}
	if segA == segB {
		return segA.EvaluateRange(ta, tb), nil
	}
	yb := segB.Evaluate(tb)
	ya := segA.Evaluate(ta)
	return yb.Sub(ya)
}

// Derivative returns the dense derivative at global time t, when the
// underlying segment kind supports it.
func (tr *Trajectory) Derivative(t float64) (state.Tree, error) {
	seg, err := tr.locate(t)
	if err != nil {
		return state.Tree{}, err
	}
	return seg.Derivative(t)
}
