package gsa

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/sterope-gsa/sterope/pkg/utils"
)

func unitProblem(k int) Problem {
	p := Problem{}
	for j := 0; j < k; j++ {
		p.Names = append(p.Names, string(rune('a'+j)))
		p.Bounds = append(p.Bounds, [2]float64{0, 1})
	}
	return p
}

func evaluate(x *mat.Dense, f func(row []float64) float64) []float64 {
	rows, _ := x.Dims()
	y := make([]float64, rows)
	for i := range y {
		y[i] = f(x.RawRowView(i))
	}
	return y
}

func run(t *testing.T, method string, p Problem, n int, f func([]float64) float64) (*mat.Dense, IndexSet) {
	t.Helper()
	m, err := Lookup(method)
	require.NoError(t, err)
	x, err := m.Sample(p, n, utils.NewRandSource(42))
	require.NoError(t, err)
	set, err := m.Analyze(p, x, evaluate(x, f), utils.NewRandSource(43))
	require.NoError(t, err)
	for _, kind := range m.Scalar {
		require.Len(t, set.Scalar[kind], p.NumVars(), kind)
	}
	return x, set
}

func TestSobolLinearModel(t *testing.T) {
	p := unitProblem(2)
	_, set := run(t, "sobol", p, 1024, func(x []float64) float64 { return 4*x[0] + x[1] })

	// analytic: S1 = ST = a²/(a²+b²)
	require.InDelta(t, 16.0/17, set.Scalar["S1"][0], 0.1)
	require.InDelta(t, 1.0/17, set.Scalar["S1"][1], 0.1)
	require.InDelta(t, 16.0/17, set.Scalar["ST"][0], 0.1)
	require.InDelta(t, 1.0/17, set.Scalar["ST"][1], 0.05)
	require.InDelta(t, 0, set.Matrix["S2"].At(0, 1), 0.1)
	require.True(t, math.IsNaN(set.Matrix["S2"].At(1, 0)), "lower triangle of S2 must be NaN")
	for _, v := range set.Scalar["S1_conf"] {
		require.Greater(t, v, 0.0)
	}
}

func TestSobolSingleParameter(t *testing.T) {
	p := unitProblem(1)
	x, set := run(t, "sobol", p, 16, func(x []float64) float64 { return x[0] * x[0] })
	rows, _ := x.Dims()
	require.Equal(t, 16*4, rows)
	r, c := set.Matrix["S2"].Dims()
	require.Equal(t, 1, r)
	require.Equal(t, 1, c)
}

func TestFASTLinearModel(t *testing.T) {
	p := unitProblem(2)
	_, set := run(t, "fast", p, 257, func(x []float64) float64 { return x[0] + 0.01*x[1] })
	require.Greater(t, set.Scalar["S1"][0], 0.8)
	require.Less(t, set.Scalar["S1"][1], 0.1)
	require.Greater(t, set.Scalar["ST"][0], 0.8)
}

func TestFASTFrequencies(t *testing.T) {
	omega := fastFrequencies(65, 3)
	require.Equal(t, 8.0, omega[0])
	require.Equal(t, []float64{1, 1}, omega[1:])

	omega = fastFrequencies(1001, 3)
	require.Equal(t, 125.0, omega[0])
	require.Equal(t, []float64{1, 15}, omega[1:])
}

func TestRBDFastLinearModel(t *testing.T) {
	p := unitProblem(2)
	_, set := run(t, "rbd-fast", p, 500, func(x []float64) float64 { return x[0] })
	require.Greater(t, set.Scalar["S1"][0], 0.8)
	require.Less(t, math.Abs(set.Scalar["S1"][1]), 0.2)
}

func TestRBDFastSmallGrid(t *testing.T) {
	p := unitProblem(1)
	_, set := run(t, "rbd-fast", p, 20, func(x []float64) float64 { return x[0] })
	require.False(t, math.IsInf(set.Scalar["S1"][0], 0))
}

func TestZigzag(t *testing.T) {
	require.Equal(t, []int{1, 0, 2, 3}, zigzag([]float64{0.5, 0.1, 0.9, 0.3}))
	require.Equal(t, []int{0, 2, 1}, zigzag([]float64{0.1, 0.2, 0.3}))
}

func TestMorrisTrajectories(t *testing.T) {
	p := unitProblem(3)
	m, _ := Lookup("morris")
	x, err := m.Sample(p, 6, utils.NewRandSource(5))
	require.NoError(t, err)

	for tr := 0; tr < 6; tr++ {
		for r := 0; r < 3; r++ {
			prev, next := x.RawRowView(tr*4+r), x.RawRowView(tr*4+r+1)
			changed := 0
			for j := range prev {
				if prev[j] != next[j] {
					changed++
					require.InDelta(t, 2.0/3, math.Abs(next[j]-prev[j]), 1e-12)
				}
			}
			require.Equal(t, 1, changed, "trajectory %d step %d", tr, r)
		}
	}
}

func TestMorrisLinearModel(t *testing.T) {
	p := unitProblem(3)
	_, set := run(t, "morris", p, 10, func(x []float64) float64 { return 2*x[0] - x[2] })

	require.InDelta(t, 2, set.Scalar["mu"][0], 1e-9)
	require.InDelta(t, 2, set.Scalar["mu_star"][0], 1e-9)
	require.InDelta(t, 0, set.Scalar["sigma"][0], 1e-9)
	require.InDelta(t, 0, set.Scalar["mu_star"][1], 1e-9)
	require.InDelta(t, -1, set.Scalar["mu"][2], 1e-9)
	require.InDelta(t, 1, set.Scalar["mu_star"][2], 1e-9)
}

func TestDeltaDependence(t *testing.T) {
	p := unitProblem(2)
	_, set := run(t, "delta", p, 150, func(x []float64) float64 { return x[0] })
	require.Greater(t, set.Scalar["delta"][0], set.Scalar["delta"][1])
	require.Greater(t, set.Scalar["S1"][0], 0.8)
	require.Less(t, set.Scalar["S1"][1], 0.2)
}

func TestDeltaClasses(t *testing.T) {
	require.Equal(t, 2, deltaClasses(2))
	require.Equal(t, 4, deltaClasses(100))
	require.LessOrEqual(t, deltaClasses(1_000_000), 48)
}

func TestOrdinalRanks(t *testing.T) {
	require.Equal(t, []int{2, 1, 3, 4}, ordinalRanks([]float64{0.5, 0.1, 0.5, 0.9}))
}

func TestDGSMLinearModel(t *testing.T) {
	p := Problem{Names: []string{"a", "b"}, Bounds: [][2]float64{{0, 2}, {0, 1}}}
	x, set := run(t, "dgsm", p, 20, func(x []float64) float64 { return 3 * x[0] })

	require.InDelta(t, 9, set.Scalar["vi"][0], 1e-6)
	require.InDelta(t, 0, set.Scalar["vi_std"][0], 1e-6)
	require.InDelta(t, 0, set.Scalar["vi"][1], 1e-12)

	y := evaluate(x, func(x []float64) float64 { return 3 * x[0] })
	want := 9 * 4 / (popVariance(y) * math.Pi * math.Pi)
	require.InDelta(t, want, set.Scalar["dgsm"][0], 1e-6)
}

func TestDGSMZeroWidthParameter(t *testing.T) {
	p := Problem{Names: []string{"a", "b"}, Bounds: [][2]float64{{0, 2}, {5, 5}}}
	_, set := run(t, "dgsm", p, 20, func(x []float64) float64 { return 3*x[0] + x[1] })

	for _, kind := range []string{"vi", "vi_std", "dgsm", "dgsm_conf"} {
		require.True(t, math.IsNaN(set.Scalar[kind][1]), "%s of a fixed parameter must be NaN", kind)
		require.False(t, math.IsNaN(set.Scalar[kind][0]), "%s of a free parameter must be finite", kind)
	}
	require.InDelta(t, 9, set.Scalar["vi"][0], 1e-6)
}

func TestHadamard(t *testing.T) {
	for _, n := range []int{1, 2, 4, 8} {
		h := hadamard(n)
		var prod mat.Dense
		prod.Mul(h, h.T())
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				want := 0.0
				if i == j {
					want = float64(n)
				}
				require.Equal(t, want, prod.At(i, j))
			}
		}
	}
}

func TestFFOrder(t *testing.T) {
	for k, want := range map[int]int{1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 9: 16} {
		require.Equal(t, want, ffOrder(k), "k=%d", k)
	}
}

func TestFFLinearModel(t *testing.T) {
	p := Problem{
		Names:  []string{"a", "b", "c"},
		Bounds: [][2]float64{{-1, 1}, {-1, 1}, {-1, 1}},
	}
	_, set := run(t, "frac", p, 0, func(x []float64) float64 { return 3 + 2*x[0] - x[1] + 0.5*x[0]*x[2] })

	require.InDeltaSlice(t, []float64{2, -1, 0}, set.Scalar["ME"], 1e-12)
	ie := set.Matrix["IE"]
	require.InDelta(t, 0, ie.At(0, 1), 1e-12)
	require.InDelta(t, 0.5, ie.At(0, 2), 1e-12)
	require.True(t, math.IsNaN(ie.At(2, 0)))
}
