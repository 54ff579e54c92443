package gsa

import (
	"fmt"
	"math"

	"github.com/sterope-gsa/sterope/pkg/utils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	morrisLevels = 4
	// morrisDelta is the unit-space step of every elementary effect
	morrisDelta = morrisLevels / (2.0 * (morrisLevels - 1))
	// morrisBootstrap is the number of resamples behind mu_star_conf
	morrisBootstrap = 1000
)

// morrisSample generates n trajectories of K+1 points on the level grid.
// Consecutive points of a trajectory differ in exactly one parameter.
func morrisSample(p Problem, n int, rnd *utils.RandSource) (*mat.Dense, error) {
	k := p.NumVars()
	design := mat.NewDense(n*(k+1), k, nil)
	// base points are drawn from the lower half of the grid so that a step
	// of morrisDelta stays inside the unit cube
	baseLevels := morrisLevels / 2

	for t := 0; t < n; t++ {
		base := make([]float64, k)
		dir := make([]float64, k)
		for c := 0; c < k; c++ {
			base[c] = float64(rnd.IntN(baseLevels)) / float64(morrisLevels-1)
			dir[c] = rnd.Sign()
		}
		perm := rnd.Perm(k)

		for r := 0; r <= k; r++ {
			row := design.RawRowView(t*(k+1) + r)
			for c := 0; c < k; c++ {
				// lower-triangular step matrix: column c has moved after row c
				var step float64
				if r > c {
					step = 1
				}
				row[perm[c]] = base[c] + morrisDelta/2*((2*step-1)*dir[c]+1)
			}
		}
	}
	return p.scale(design), nil
}

// elementaryEffects returns ee[parameter][trajectory]
func elementaryEffects(p Problem, x *mat.Dense, y []float64) ([][]float64, error) {
	k := p.NumVars()
	rows, _ := x.Dims()
	if rows%(k+1) != 0 {
		return nil, fmt.Errorf("morris: %d samples is not a multiple of %d", rows, k+1)
	}
	trajectories := rows / (k + 1)

	ee := make([][]float64, k)
	for j := range ee {
		ee[j] = make([]float64, trajectories)
	}
	for t := 0; t < trajectories; t++ {
		used := make([]bool, k)
		for r := 0; r < k; r++ {
			i := t*(k+1) + r
			prev, next := x.RawRowView(i), x.RawRowView(i+1)

			// the moved parameter is the one with the largest change not
			// yet used in this trajectory; zero-width bounds do not move
			moved, change := -1, -1.0
			for j := 0; j < k; j++ {
				if used[j] {
					continue
				}
				if d := math.Abs(next[j] - prev[j]); d > change {
					moved, change = j, d
				}
			}
			used[moved] = true

			effect := (y[i+1] - y[i]) / morrisDelta
			if next[moved] < prev[moved] {
				effect = -effect
			}
			ee[moved][t] = effect
		}
	}
	return ee, nil
}

func morrisAnalyze(p Problem, x *mat.Dense, y []float64, rnd *utils.RandSource) (IndexSet, error) {
	k := p.NumVars()
	ee, err := elementaryEffects(p, x, y)
	if err != nil {
		return IndexSet{}, err
	}

	mu := make([]float64, k)
	muStar := make([]float64, k)
	sigma := make([]float64, k)
	muStarConf := make([]float64, k)
	for j := 0; j < k; j++ {
		abs := make([]float64, len(ee[j]))
		for t, v := range ee[j] {
			abs[t] = math.Abs(v)
		}
		mu[j] = stat.Mean(ee[j], nil)
		muStar[j] = stat.Mean(abs, nil)
		sigma[j] = stat.StdDev(ee[j], nil)

		means := make([]float64, morrisBootstrap)
		for r := range means {
			means[r] = stat.Mean(gather(abs, rnd.Resample(len(abs))), nil)
		}
		muStarConf[j] = zScore() * stat.StdDev(means, nil)
	}

	set := newIndexSet()
	set.Scalar["mu"] = mu
	set.Scalar["mu_star"] = muStar
	set.Scalar["sigma"] = sigma
	set.Scalar["mu_star_conf"] = muStarConf
	return set, nil
}
