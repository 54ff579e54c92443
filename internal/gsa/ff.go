package gsa

import (
	"fmt"
	"math/bits"

	"github.com/sterope-gsa/sterope/pkg/utils"
	"gonum.org/v1/gonum/mat"
)

// hadamard returns the Sylvester Hadamard matrix of order n, a power of two
func hadamard(n int) *mat.Dense {
	h := mat.NewDense(1, 1, []float64{1})
	for size := 1; size < n; size *= 2 {
		next := mat.NewDense(2*size, 2*size, nil)
		for i := 0; i < size; i++ {
			for j := 0; j < size; j++ {
				v := h.At(i, j)
				next.Set(i, j, v)
				next.Set(i, j+size, v)
				next.Set(i+size, j, v)
				next.Set(i+size, j+size, -v)
			}
		}
		h = next
	}
	return h
}

// ffOrder returns the smallest power of two not below k
func ffOrder(k int) int {
	if k <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(k-1))
}

// ffContrast returns the ±1 design [H; -H] restricted to the first k columns
func ffContrast(k int) *mat.Dense {
	order := ffOrder(k)
	h := hadamard(order)
	contrast := mat.NewDense(2*order, k, nil)
	for i := 0; i < order; i++ {
		for j := 0; j < k; j++ {
			contrast.Set(i, j, h.At(i, j))
			contrast.Set(i+order, j, -h.At(i, j))
		}
	}
	return contrast
}

// ffSample maps the two-level contrast onto the parameter bounds. The grid
// size is not used.
func ffSample(p Problem, _ int, _ *utils.RandSource) (*mat.Dense, error) {
	contrast := ffContrast(p.NumVars())
	rows, cols := contrast.Dims()
	design := mat.NewDense(rows, cols, nil)
	design.Apply(func(_, _ int, v float64) float64 { return (v + 1) / 2 }, contrast)
	return p.scale(design), nil
}

func ffAnalyze(p Problem, _ *mat.Dense, y []float64, _ *utils.RandSource) (IndexSet, error) {
	k := p.NumVars()
	contrast := ffContrast(k)
	rows, _ := contrast.Dims()
	if len(y) != rows {
		return IndexSet{}, fmt.Errorf("frac: expected %d outputs, got %d", rows, len(y))
	}
	norm := 1 / float64(rows)

	me := make([]float64, k)
	for j := 0; j < k; j++ {
		var sum float64
		for i, v := range y {
			sum += v * contrast.At(i, j)
		}
		me[j] = sum * norm
	}

	ie := nanMatrix(k)
	for j := 0; j < k; j++ {
		for l := j + 1; l < k; l++ {
			var sum float64
			for i, v := range y {
				sum += v * contrast.At(i, j) * contrast.At(i, l)
			}
			ie.Set(j, l, sum*norm)
		}
	}

	set := newIndexSet()
	set.Scalar["ME"] = me
	set.Matrix["IE"] = ie
	return set, nil
}
