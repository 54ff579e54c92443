package gsa

import (
	"math/cmplx"
	"sort"

	"github.com/sterope-gsa/sterope/pkg/utils"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// rbdHarmonics is the default number of harmonics summed for S1
const rbdHarmonics = 10

// zigzag orders the rows so that x rises over the even positions and then
// falls back over the odd ones, turning the sample into a periodic curve
func zigzag(x []float64) []int {
	order := identity(len(x))
	sort.SliceStable(order, func(a, b int) bool { return x[order[a]] < x[order[b]] })

	perm := make([]int, 0, len(order))
	for i := 0; i < len(order); i += 2 {
		perm = append(perm, order[i])
	}
	last := len(order) - 1
	if last%2 == 0 {
		last--
	}
	for i := last; i >= 1; i -= 2 {
		perm = append(perm, order[i])
	}
	return perm
}

// periodogram returns the one-sided power of y at every frequency,
// up to a constant factor
func periodogram(y []float64) []float64 {
	n := len(y)
	coeffs := fourier.NewFFT(n).Coefficients(nil, y)
	power := make([]float64, len(coeffs))
	for f, c := range coeffs {
		a := cmplx.Abs(c)
		power[f] = a * a
		if f != 0 && !(n%2 == 0 && f == n/2) {
			power[f] *= 2
		}
	}
	return power
}

func rbdFastAnalyze(p Problem, x *mat.Dense, y []float64, _ *utils.RandSource) (IndexSet, error) {
	k := p.NumVars()
	n := len(y)
	harmonics := min(rbdHarmonics, (n-1)/2)
	lambda := 2 * float64(harmonics) / float64(n)

	s1 := make([]float64, k)
	for j := 0; j < k; j++ {
		perm := zigzag(column(x, j))
		power := periodogram(gather(y, perm))

		var v, d1 float64
		for f := 1; f < len(power); f++ {
			v += power[f]
		}
		for f := 1; f <= harmonics; f++ {
			d1 += power[f]
		}
		s := d1 / v
		// remove the bias of the harmonics' background noise
		s1[j] = s - lambda/(1-lambda)*(1-s)
	}

	set := newIndexSet()
	set.Scalar["S1"] = s1
	return set, nil
}
