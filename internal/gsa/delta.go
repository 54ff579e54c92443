package gsa

import (
	"math"
	"sort"

	"github.com/sterope-gsa/sterope/pkg/utils"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// deltaGridPoints is the resolution of the output density grid
const deltaGridPoints = 100

// deltaClasses returns the number of conditioning classes for n samples
func deltaClasses(n int) int {
	exp := 2 / (7 + math.Tanh((1500-float64(n))/500))
	return int(math.Round(math.Min(math.Ceil(math.Pow(float64(n), exp)), 48)))
}

// kde is a Gaussian kernel density estimate with Silverman's bandwidth
type kde struct {
	points []float64
	bw     float64
}

func newKDE(points []float64) kde {
	n := float64(len(points))
	factor := math.Pow(n*3/4, -1.0/5)
	return kde{points: points, bw: stat.StdDev(points, nil) * factor}
}

// eval returns the density at every grid point; a degenerate sample has
// zero density everywhere on a continuous grid
func (d kde) eval(grid []float64) []float64 {
	out := make([]float64, len(grid))
	if !(d.bw > 0) {
		return out
	}
	for _, p := range d.points {
		kernel := distuv.Normal{Mu: p, Sigma: d.bw}
		for g, y := range grid {
			out[g] += kernel.Prob(y)
		}
	}
	for g := range out {
		out[g] /= float64(len(d.points))
	}
	return out
}

// ordinalRanks returns 1-based ranks, ties broken by position
func ordinalRanks(x []float64) []int {
	order := identity(len(x))
	sort.SliceStable(order, func(a, b int) bool { return x[order[a]] < x[order[b]] })
	ranks := make([]int, len(x))
	for r, i := range order {
		ranks[i] = r + 1
	}
	return ranks
}

// partition groups sample positions into classes of consecutive ranks of x
func partition(x []float64, edges []float64) [][]int {
	ranks := ordinalRanks(x)
	classes := make([][]int, len(edges)-1)
	for i, r := range ranks {
		for c := range classes {
			if float64(r) > edges[c] && float64(r) <= edges[c+1] {
				classes[c] = append(classes[c], i)
				break
			}
		}
	}
	return classes
}

func allEqual(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}

// deltaEstimate is the Plischke estimator of the delta moment-independent
// measure of x on y
func deltaEstimate(y, grid, x, edges []float64) float64 {
	n := float64(len(y))
	fy := newKDE(y).eval(grid)
	diff := make([]float64, len(grid))

	var d float64
	for _, class := range partition(x, edges) {
		if len(class) == 0 {
			continue
		}
		yc := gather(y, class)
		if allEqual(yc) {
			for g := range diff {
				diff[g] = math.Abs(fy[g])
			}
		} else {
			fc := newKDE(yc).eval(grid)
			for g := range diff {
				diff[g] = math.Abs(fy[g] - fc[g])
			}
		}
		d += float64(len(class)) / (2 * n) * integrate.Trapezoidal(grid, diff)
	}
	return d
}

// sobolFirst estimates the first-order index from conditional means over
// the same rank classes as delta
func sobolFirst(y, x, edges []float64) float64 {
	n := float64(len(y))
	mean := stat.Mean(y, nil)
	var vi float64
	for _, class := range partition(x, edges) {
		if len(class) == 0 {
			continue
		}
		d := stat.Mean(gather(y, class), nil) - mean
		vi += float64(len(class)) / n * d * d
	}
	return vi / popVariance(y)
}

func deltaAnalyze(p Problem, x *mat.Dense, y []float64, rnd *utils.RandSource) (IndexSet, error) {
	k := p.NumVars()
	n := len(y)
	edges := linspace(0, float64(n), deltaClasses(n)+1)

	lo, hi := y[0], y[0]
	for _, v := range y {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	grid := linspace(lo, hi, deltaGridPoints)
	z := zScore()

	delta := make([]float64, k)
	deltaConf := make([]float64, k)
	s1 := make([]float64, k)
	s1Conf := make([]float64, k)
	for j := 0; j < k; j++ {
		xj := column(x, j)

		// bias-reduced bootstrap: 2·d̂ − d*
		dHat := deltaEstimate(y, grid, xj, edges)
		boot := make([]float64, bootstrapResamples)
		for r := range boot {
			idx := rnd.Resample(n)
			boot[r] = 2*dHat - deltaEstimate(gather(y, idx), grid, gather(xj, idx), edges)
		}
		delta[j] = stat.Mean(boot, nil)
		deltaConf[j] = z * stat.StdDev(boot, nil)

		s1[j] = sobolFirst(y, xj, edges)
		s1Conf[j] = bootstrapConf(n, rnd, func(idx []int) float64 {
			return sobolFirst(gather(y, idx), gather(xj, idx), edges)
		})
	}

	set := newIndexSet()
	set.Scalar["delta"] = delta
	set.Scalar["delta_conf"] = deltaConf
	set.Scalar["S1"] = s1
	set.Scalar["S1_conf"] = s1Conf
	return set, nil
}
