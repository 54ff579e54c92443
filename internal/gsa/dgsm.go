package gsa

import (
	"fmt"
	"math"

	"github.com/sterope-gsa/sterope/pkg/utils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// dgsmStep is the unit-space finite-difference step
const dgsmStep = 0.01

// dgsmSample places n Latin hypercube base points, each followed by K
// copies that perturb one parameter at a time, S = n·(K+1)
func dgsmSample(p Problem, n int, rnd *utils.RandSource) (*mat.Dense, error) {
	k := p.NumVars()
	base := latinUnit(n, k, rnd)
	design := mat.NewDense(n*(k+1), k, nil)
	for i := 0; i < n; i++ {
		b := base.RawRowView(i)
		row := i * (k + 1)
		design.SetRow(row, b)
		for j := 0; j < k; j++ {
			perturbed := design.RawRowView(row + 1 + j)
			copy(perturbed, b)
			// step backwards when a forward step would leave the cube
			if b[j]+dgsmStep > 1 {
				perturbed[j] = b[j] - dgsmStep
			} else {
				perturbed[j] = b[j] + dgsmStep
			}
		}
	}
	return p.scale(design), nil
}

func dgsmAnalyze(p Problem, x *mat.Dense, y []float64, rnd *utils.RandSource) (IndexSet, error) {
	k := p.NumVars()
	if len(y)%(k+1) != 0 {
		return IndexSet{}, fmt.Errorf("dgsm: %d outputs is not a multiple of %d", len(y), k+1)
	}
	n := len(y) / (k + 1)
	variance := popVariance(y)

	vi := make([]float64, k)
	viStd := make([]float64, k)
	dgsm := make([]float64, k)
	dgsmConf := make([]float64, k)
	for j := 0; j < k; j++ {
		// a zero-width parameter never moves, it has no derivative
		if p.Width(j) == 0 {
			vi[j], viStd[j], dgsm[j], dgsmConf[j] = math.NaN(), math.NaN(), math.NaN(), math.NaN()
			continue
		}
		// squared partial derivative at every base point
		sq := make([]float64, n)
		for i := 0; i < n; i++ {
			row := i * (k + 1)
			dx := x.At(row+1+j, j) - x.At(row, j)
			d := (y[row+1+j] - y[row]) / dx
			sq[i] = d * d
		}
		scale := p.Width(j) * p.Width(j) / (variance * math.Pi * math.Pi)

		vi[j] = stat.Mean(sq, nil)
		viStd[j] = popStdDev(sq)
		dgsm[j] = vi[j] * scale
		dgsmConf[j] = bootstrapConf(n, rnd, func(idx []int) float64 {
			return stat.Mean(gather(sq, idx), nil)
		}) * scale
	}

	set := newIndexSet()
	set.Scalar["vi"] = vi
	set.Scalar["vi_std"] = viStd
	set.Scalar["dgsm"] = dgsm
	set.Scalar["dgsm_conf"] = dgsmConf
	return set, nil
}
