package gsa

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUnknownMethod is returned for a method name that is not registered
	ErrUnknownMethod = errors.New("unknown method")
	// ErrSampleSize is returned when the grid size is too small for a method
	ErrSampleSize = errors.New("invalid sample size")
	// ErrBounds is returned for an inconsistent problem definition
	ErrBounds = errors.New("invalid bounds")
)

// Problem is the ordered list of parameters under analysis. Column i of
// every sample matrix corresponds to Names[i].
type Problem struct {
	Names  []string
	Bounds [][2]float64
}

// NumVars returns the number of parameters
func (p Problem) NumVars() int {
	return len(p.Names)
}

// Validate checks that every parameter has a finite, ordered bound
func (p Problem) Validate() error {
	if len(p.Names) == 0 {
		return fmt.Errorf("%w: problem has no parameters", ErrBounds)
	}
	if len(p.Names) != len(p.Bounds) {
		return fmt.Errorf("%w: %d names but %d bounds", ErrBounds, len(p.Names), len(p.Bounds))
	}
	seen := make(map[string]bool, len(p.Names))
	for i, name := range p.Names {
		if seen[name] {
			return fmt.Errorf("%w: duplicate parameter %q", ErrBounds, name)
		}
		seen[name] = true
		lo, hi := p.Bounds[i][0], p.Bounds[i][1]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
			return fmt.Errorf("%w: parameter %q has non-finite bounds [%g, %g]", ErrBounds, name, lo, hi)
		}
		if lo > hi {
			return fmt.Errorf("%w: parameter %q has lower bound %g above upper bound %g", ErrBounds, name, lo, hi)
		}
	}
	return nil
}

// scale maps a unit-hypercube design into the problem bounds in place
func (p Problem) scale(unit *mat.Dense) *mat.Dense {
	rows, cols := unit.Dims()
	for i := 0; i < rows; i++ {
		row := unit.RawRowView(i)
		for j := 0; j < cols; j++ {
			lo, hi := p.Bounds[j][0], p.Bounds[j][1]
			v := lo + row[j]*(hi-lo)
			// rounding may step past hi by one ulp
			row[j] = math.Min(math.Max(v, lo), hi)
		}
	}
	return unit
}

// Width returns hi-lo for parameter j
func (p Problem) Width(j int) float64 {
	return p.Bounds[j][1] - p.Bounds[j][0]
}

// IndexSet holds the sensitivity indices computed for one observation.
// Scalar kinds have one value per parameter; matrix kinds are K×K.
type IndexSet struct {
	Scalar map[string][]float64
	Matrix map[string]*mat.Dense
}

func newIndexSet() IndexSet {
	return IndexSet{
		Scalar: make(map[string][]float64),
		Matrix: make(map[string]*mat.Dense),
	}
}

// NaNSet returns an IndexSet of the method's kinds with every value NaN
func NaNSet(m *Method, k int) IndexSet {
	set := newIndexSet()
	for _, kind := range m.Scalar {
		set.Scalar[kind] = nanSlice(k)
	}
	for _, kind := range m.Matrix {
		set.Matrix[kind] = nanMatrix(k)
	}
	return set
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

func nanMatrix(k int) *mat.Dense {
	return mat.NewDense(k, k, nanSlice(k*k))
}
