package gsa

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/sterope-gsa/sterope/pkg/utils"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// fastHarmonics is the interference factor M of the search curve
const fastHarmonics = 4

// fastFrequencies returns the frequency set for n points per curve:
// the parameter of interest runs at omega[0], the others at omega[1:]
func fastFrequencies(n, k int) []float64 {
	omega := make([]float64, k)
	omega[0] = math.Floor(float64(n-1) / (2 * fastHarmonics))
	m := math.Floor(omega[0] / (2 * fastHarmonics))
	if k == 1 {
		return omega
	}
	if m >= float64(k-1) {
		for i, v := range linspace(1, m, k-1) {
			omega[i+1] = math.Floor(v)
		}
	} else {
		for i := 0; i < k-1; i++ {
			omega[i+1] = float64(i%int(m) + 1)
		}
	}
	return omega
}

// fastSample draws one search curve of n points per parameter, S = n·K rows.
// Rows [i·n, (i+1)·n) vary parameter i at the base frequency.
func fastSample(p Problem, n int, rnd *utils.RandSource) (*mat.Dense, error) {
	k := p.NumVars()
	omega := fastFrequencies(n, k)
	design := mat.NewDense(n*k, k, nil)
	freqs := make([]float64, k)

	for i := 0; i < k; i++ {
		freqs[i] = omega[0]
		next := 1
		for j := 0; j < k; j++ {
			if j == i {
				continue
			}
			freqs[j] = omega[next]
			next++
		}

		phi := 2 * math.Pi * rnd.Float64()
		for t := 0; t < n; t++ {
			s := 2 * math.Pi / float64(n) * float64(t)
			row := design.RawRowView(i*n + t)
			for j := 0; j < k; j++ {
				row[j] = 0.5 + math.Asin(math.Sin(freqs[j]*s+phi))/math.Pi
			}
		}
	}
	return p.scale(design), nil
}

// spectrum returns |F_f / n|² for f = 1 .. (n+1)/2 - 1, indexed from 0
func spectrum(y []float64) []float64 {
	n := len(y)
	coeffs := fourier.NewFFT(n).Coefficients(nil, y)
	sp := make([]float64, (n+1)/2-1)
	for f := range sp {
		a := cmplx.Abs(coeffs[f+1]) / float64(n)
		sp[f] = a * a
	}
	return sp
}

func fastAnalyze(p Problem, _ *mat.Dense, y []float64, _ *utils.RandSource) (IndexSet, error) {
	k := p.NumVars()
	if len(y)%k != 0 {
		return IndexSet{}, fmt.Errorf("fast: %d outputs is not a multiple of %d parameters", len(y), k)
	}
	n := len(y) / k
	if n <= 4*fastHarmonics*fastHarmonics {
		return IndexSet{}, fmt.Errorf("%w: fast needs more than %d points per curve, got %d",
			ErrSampleSize, 4*fastHarmonics*fastHarmonics, n)
	}
	omega := int(math.Floor(float64(n-1) / (2 * fastHarmonics)))

	s1 := make([]float64, k)
	st := make([]float64, k)
	for i := 0; i < k; i++ {
		sp := spectrum(y[i*n : (i+1)*n])
		var v, d1, dt float64
		for _, x := range sp {
			v += x
		}
		for h := 1; h <= fastHarmonics; h++ {
			d1 += sp[h*omega-1]
		}
		for f := 0; f < omega/2; f++ {
			dt += sp[f]
		}
		// the factor 2 of the two-sided spectrum cancels in both ratios
		s1[i] = d1 / v
		st[i] = 1 - dt/v
	}

	set := newIndexSet()
	set.Scalar["S1"] = s1
	set.Scalar["ST"] = st
	return set, nil
}
