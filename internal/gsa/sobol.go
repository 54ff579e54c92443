package gsa

import (
	"fmt"

	"github.com/sterope-gsa/sterope/pkg/utils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// saltelliSample builds the cross-sampled design for first, total and
// second order indices. For every base point the rows are A, AB_1..AB_K,
// BA_1..BA_K and B, where AB_j is A with column j taken from B.
func saltelliSample(p Problem, n int, rnd *utils.RandSource) (*mat.Dense, error) {
	k := p.NumVars()
	base := latinUnit(n, 2*k, rnd)
	step := 2*k + 2
	design := mat.NewDense(n*step, k, nil)

	for i := 0; i < n; i++ {
		a := base.RawRowView(i)[:k]
		b := base.RawRowView(i)[k:]
		row := i * step

		design.SetRow(row, a)
		for j := 0; j < k; j++ {
			ab := design.RawRowView(row + 1 + j)
			copy(ab, a)
			ab[j] = b[j]

			ba := design.RawRowView(row + 1 + k + j)
			copy(ba, b)
			ba[j] = a[j]
		}
		design.SetRow(row+step-1, b)
	}
	return p.scale(design), nil
}

// saltelliBlocks splits the outputs of a Saltelli design
type saltelliBlocks struct {
	a, b   []float64
	ab, ba [][]float64 // [parameter][base point]
}

func splitSaltelli(y []float64, k int) (*saltelliBlocks, error) {
	step := 2*k + 2
	if len(y) == 0 || len(y)%step != 0 {
		return nil, fmt.Errorf("sobol: %d outputs is not a multiple of %d", len(y), step)
	}
	n := len(y) / step

	// standardized outputs keep the estimators well conditioned
	mean := stat.Mean(y, nil)
	sd := stat.StdDev(y, nil)

	blocks := &saltelliBlocks{
		a:  make([]float64, n),
		b:  make([]float64, n),
		ab: make([][]float64, k),
		ba: make([][]float64, k),
	}
	for j := 0; j < k; j++ {
		blocks.ab[j] = make([]float64, n)
		blocks.ba[j] = make([]float64, n)
	}
	std := func(v float64) float64 { return (v - mean) / sd }
	for i := 0; i < n; i++ {
		row := i * step
		blocks.a[i] = std(y[row])
		for j := 0; j < k; j++ {
			blocks.ab[j][i] = std(y[row+1+j])
			blocks.ba[j][i] = std(y[row+1+k+j])
		}
		blocks.b[i] = std(y[row+step-1])
	}
	return blocks, nil
}

// variance of the pooled A and B outputs over the selected base points
func (s *saltelliBlocks) variance(idx []int) float64 {
	pooled := append(gather(s.a, idx), gather(s.b, idx)...)
	return popVariance(pooled)
}

func (s *saltelliBlocks) firstOrder(j int, idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += s.b[i] * (s.ab[j][i] - s.a[i])
	}
	return sum / float64(len(idx)) / s.variance(idx)
}

func (s *saltelliBlocks) totalOrder(j int, idx []int) float64 {
	var sum float64
	for _, i := range idx {
		d := s.a[i] - s.ab[j][i]
		sum += d * d
	}
	return 0.5 * sum / float64(len(idx)) / s.variance(idx)
}

func (s *saltelliBlocks) secondOrder(j, l int, idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += s.ba[j][i]*s.ab[l][i] - s.a[i]*s.b[i]
	}
	vjl := sum / float64(len(idx)) / s.variance(idx)
	return vjl - s.firstOrder(j, idx) - s.firstOrder(l, idx)
}

func sobolAnalyze(p Problem, _ *mat.Dense, y []float64, rnd *utils.RandSource) (IndexSet, error) {
	k := p.NumVars()
	blocks, err := splitSaltelli(y, k)
	if err != nil {
		return IndexSet{}, err
	}
	n := len(blocks.a)
	all := identity(n)

	set := newIndexSet()
	s1 := make([]float64, k)
	s1Conf := make([]float64, k)
	st := make([]float64, k)
	stConf := make([]float64, k)
	for j := 0; j < k; j++ {
		s1[j] = blocks.firstOrder(j, all)
		s1Conf[j] = bootstrapConf(n, rnd, func(idx []int) float64 { return blocks.firstOrder(j, idx) })
		st[j] = blocks.totalOrder(j, all)
		stConf[j] = bootstrapConf(n, rnd, func(idx []int) float64 { return blocks.totalOrder(j, idx) })
	}

	s2 := nanMatrix(k)
	s2Conf := nanMatrix(k)
	for j := 0; j < k; j++ {
		for l := j + 1; l < k; l++ {
			s2.Set(j, l, blocks.secondOrder(j, l, all))
			s2Conf.Set(j, l, bootstrapConf(n, rnd, func(idx []int) float64 { return blocks.secondOrder(j, l, idx) }))
		}
	}

	set.Scalar["S1"] = s1
	set.Scalar["S1_conf"] = s1Conf
	set.Scalar["ST"] = st
	set.Scalar["ST_conf"] = stConf
	set.Matrix["S2"] = s2
	set.Matrix["S2_conf"] = s2Conf
	return set, nil
}
