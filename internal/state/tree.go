// Package state implements the tree-shaped numeric state the solvers operate
// on. A Tree is either a leaf holding a flat slice of float64, or an ordered
// list of child trees. All solver arithmetic goes through this package so a
// state can be a scalar, a vector, or any nested structure of those.
package state

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrShapeMismatch is returned when two trees do not share the same leaf
// structure.
var ErrShapeMismatch = errors.New("state: shape mismatch")

// Tree is an immutable-by-convention nested container of float64 leaves.
// The zero value is an empty leaf. Operations never mutate their receiver;
// they allocate a result with the same structure.
type Tree struct {
	leaf []float64
	kids []Tree
}

// Scalar returns a single-element leaf.
func Scalar(v float64) Tree {
	return Tree{leaf: []float64{v}}
}

// Vector returns a leaf holding the given values.
func Vector(vs ...float64) Tree {
	c := make([]float64, len(vs))
	copy(c, vs)
	return Tree{leaf: c}
}

// FromSlice returns a leaf backed by a copy of vs.
func FromSlice(vs []float64) Tree {
	return Vector(vs...)
}

// Node returns an internal node with the given children.
func Node(children ...Tree) Tree {
	c := make([]Tree, len(children))
	copy(c, children)
	return Tree{kids: c}
}

// IsLeaf reports whether t has no children.
func (t Tree) IsLeaf() bool { return t.kids == nil }

// Leaf returns the leaf values. Only valid when IsLeaf.
func (t Tree) Leaf() []float64 { return t.leaf }

// Children returns the child trees. Empty for leaves.
func (t Tree) Children() []Tree { return t.kids }

// Len returns the total number of float64 elements across all leaves.
func (t Tree) Len() int {
	if t.IsLeaf() {
		return len(t.leaf)
	}
	n := 0
	for _, k := range t.kids {
		n += k.Len()
	}
	return n
}

// Clone returns a deep copy.
func (t Tree) Clone() Tree {
	if t.IsLeaf() {
		c := make([]float64, len(t.leaf))
		copy(c, t.leaf)
		return Tree{leaf: c}
	}
	kids := make([]Tree, len(t.kids))
	for i, k := range t.kids {
		kids[i] = k.Clone()
	}
	return Tree{kids: kids}
}

// SameShape reports whether a and b have identical leaf structure.
func SameShape(a, b Tree) bool {
	if a.IsLeaf() != b.IsLeaf() {
		return false
	}
	if a.IsLeaf() {
		return len(a.leaf) == len(b.leaf)
	}
	if len(a.kids) != len(b.kids) {
		return false
	}
	for i := range a.kids {
		if !SameShape(a.kids[i], b.kids[i]) {
			return false
		}
	}
	return true
}

// Map applies f to every element, returning a tree of the same shape.
func (t Tree) Map(f func(float64) float64) Tree {
	if t.IsLeaf() {
		out := make([]float64, len(t.leaf))
		for i, v := range t.leaf {
			out[i] = f(v)
		}
		return Tree{leaf: out}
	}
	kids := make([]Tree, len(t.kids))
	for i, k := range t.kids {
		kids[i] = k.Map(f)
	}
	return Tree{kids: kids}
}

// Reduce folds f over every element in leaf order.
func (t Tree) Reduce(init float64, f func(acc, v float64) float64) float64 {
	acc := init
	if t.IsLeaf() {
		for _, v := range t.leaf {
			acc = f(acc, v)
		}
		return acc
	}
	for _, k := range t.kids {
		acc = k.Reduce(acc, f)
	}
	return acc
}

// Scale returns t with every element multiplied by k.
func (t Tree) Scale(k float64) Tree {
	return t.Map(func(v float64) float64 { return v * k })
}

// Add returns the element-wise sum of t and other.
func (t Tree) Add(other Tree) (Tree, error) {
	return zip(t, other, func(a, b float64) float64 { return a + b })
}

// Sub returns the element-wise difference of t and other.
func (t Tree) Sub(other Tree) (Tree, error) {
	return zip(t, other, func(a, b float64) float64 { return a - b })
}

func zip(a, b Tree, f func(x, y float64) float64) (Tree, error) {
	if a.IsLeaf() != b.IsLeaf() {
		return Tree{}, ErrShapeMismatch
	}
	if a.IsLeaf() {
		if len(a.leaf) != len(b.leaf) {
			return Tree{}, fmt.Errorf("%w: leaf lengths %d and %d", ErrShapeMismatch, len(a.leaf), len(b.leaf))
		}
		out := make([]float64, len(a.leaf))
		for i := range a.leaf {
			out[i] = f(a.leaf[i], b.leaf[i])
		}
		return Tree{leaf: out}, nil
	}
	if len(a.kids) != len(b.kids) {
		return Tree{}, fmt.Errorf("%w: node arities %d and %d", ErrShapeMismatch, len(a.kids), len(b.kids))
	}
	kids := make([]Tree, len(a.kids))
	for i := range a.kids {
		k, err := zip(a.kids[i], b.kids[i], f)
		if err != nil {
			return Tree{}, err
		}
		kids[i] = k
	}
	return Tree{kids: kids}, nil
}

// Combine computes sum_i weights[i]*stages[i] as one fused reduction per
// element, rather than len(weights) sequential adds. All stages must share a
// shape; the weights and stages slices must have equal length.
func Combine(weights []float64, stages []Tree) (Tree, error) {
	if len(weights) != len(stages) {
		return Tree{}, fmt.Errorf("state: %d weights for %d stages", len(weights), len(stages))
	}
	if len(stages) == 0 {
		return Tree{}, errors.New("state: combine of zero stages")
	}
	for i := 1; i < len(stages); i++ {
		if !SameShape(stages[0], stages[i]) {
			return Tree{}, fmt.Errorf("%w: stage %d", ErrShapeMismatch, i)
		}
	}
	return combine(weights, stages), nil
}

func combine(weights []float64, stages []Tree) Tree {
	if stages[0].IsLeaf() {
		out := make([]float64, len(stages[0].leaf))
		for e := range out {
			acc := 0.0
			for i, w := range weights {
				acc += w * stages[i].leaf[e]
			}
			out[e] = acc
		}
		return Tree{leaf: out}
	}
	kids := make([]Tree, len(stages[0].kids))
	sub := make([]Tree, len(stages))
	for c := range kids {
		for i := range stages {
			sub[i] = stages[i].kids[c]
		}
		kids[c] = combine(weights, sub)
	}
	return Tree{kids: kids}
}

// ZipReduce folds f over the elements of several same-shaped trees in
// parallel. vals is reused between calls to f and must not be retained.
func ZipReduce(trees []Tree, init float64, f func(acc float64, vals []float64) float64) (float64, error) {
	if len(trees) == 0 {
		return init, nil
	}
	for i := 1; i < len(trees); i++ {
		if !SameShape(trees[0], trees[i]) {
			return 0, fmt.Errorf("%w: operand %d", ErrShapeMismatch, i)
		}
	}
	vals := make([]float64, len(trees))
	return zipReduce(trees, init, vals, f), nil
}

func zipReduce(trees []Tree, acc float64, vals []float64, f func(acc float64, vals []float64) float64) float64 {
	if trees[0].IsLeaf() {
		for e := range trees[0].leaf {
			for i := range trees {
				vals[i] = trees[i].leaf[e]
			}
			acc = f(acc, vals)
		}
		return acc
	}
	sub := make([]Tree, len(trees))
	for c := range trees[0].kids {
		for i := range trees {
			sub[i] = trees[i].kids[c]
		}
		acc = zipReduce(sub, acc, vals, f)
	}
	return acc
}

// IsFinite reports whether every element is finite (no NaN or Inf).
func (t Tree) IsFinite() bool {
	if t.IsLeaf() {
		for _, v := range t.leaf {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
		return true
	}
	for _, k := range t.kids {
		if !k.IsFinite() {
			return false
		}
	}
	return true
}

// Norm returns the Euclidean norm over all elements.
func (t Tree) Norm() float64 {
	return math.Sqrt(t.Reduce(0, func(acc, v float64) float64 { return acc + v*v }))
}

// Flatten appends every element in leaf order to a fresh slice.
func (t Tree) Flatten() []float64 {
	out := make([]float64, 0, t.Len())
	return t.flattenInto(out)
}

func (t Tree) flattenInto(out []float64) []float64 {
	if t.IsLeaf() {
		return append(out, t.leaf...)
	}
	for _, k := range t.kids {
		out = k.flattenInto(out)
	}
	return out
}

// Equal reports whether a and b share a shape and agree element-wise within
// tol.
func Equal(a, b Tree, tol float64) bool {
	if !SameShape(a, b) {
		return false
	}
	d, _ := a.Sub(b)
	return d.Reduce(0, func(acc, v float64) float64 { return math.Max(acc, math.Abs(v)) }) <= tol
}

// String renders the tree for debugging and error messages.
func (t Tree) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t Tree) write(b *strings.Builder) {
	if t.IsLeaf() {
		fmt.Fprintf(b, "%v", t.leaf)
		return
	}
	b.WriteByte('(')
	for i, k := range t.kids {
		if i > 0 {
			b.WriteString(", ")
		}
		k.write(b)
	}
	b.WriteByte(')')
}
