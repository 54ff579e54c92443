package gsa

import (
	"math"

	"github.com/sterope-gsa/sterope/pkg/utils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// confidenceLevel is the two-sided level of every *_conf index
	confidenceLevel = 0.95
	// bootstrapResamples is the number of resamples behind every *_conf index
	bootstrapResamples = 100
)

// zScore returns the normal quantile for the configured confidence level
func zScore() float64 {
	return distuv.UnitNormal.Quantile(0.5 + confidenceLevel/2)
}

// popVariance is the variance with denominator n
func popVariance(x []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return math.NaN()
	}
	return stat.Variance(x, nil) * (n - 1) / n
}

// popStdDev is the standard deviation with denominator n
func popStdDev(x []float64) float64 {
	return math.Sqrt(popVariance(x))
}

// bootstrapConf resamples n observation indices and returns the confidence
// half-width of statistic over the resamples
func bootstrapConf(n int, rnd *utils.RandSource, statistic func(idx []int) float64) float64 {
	values := make([]float64, bootstrapResamples)
	for r := range values {
		values[r] = statistic(rnd.Resample(n))
	}
	return zScore() * stat.StdDev(values, nil)
}

// identity returns [0, n)
func identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// gather returns x[idx]
func gather(x []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = x[j]
	}
	return out
}

// column copies column j of m
func column(m *mat.Dense, j int) []float64 {
	return mat.Col(nil, j, m)
}

// linspace returns n evenly spaced values over [lo, hi]
func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

// latinUnit returns an n×k Latin hypercube in the unit cube: every column
// has exactly one point in each of the n strata
func latinUnit(n, k int, rnd *utils.RandSource) *mat.Dense {
	design := mat.NewDense(n, k, nil)
	for j := 0; j < k; j++ {
		perm := rnd.Perm(n)
		for i := 0; i < n; i++ {
			design.Set(i, j, (float64(perm[i])+rnd.Float64())/float64(n))
		}
	}
	return design
}

// latinSample is the Latin hypercube sampler used by rbd-fast and delta
func latinSample(p Problem, n int, rnd *utils.RandSource) (*mat.Dense, error) {
	return p.scale(latinUnit(n, p.NumVars(), rnd)), nil
}
