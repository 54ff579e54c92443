package gsa

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sterope-gsa/sterope/pkg/utils"
	"gonum.org/v1/gonum/mat"
)

// SampleFunc generates a design of base size n for the problem
type SampleFunc func(p Problem, n int, rnd *utils.RandSource) (*mat.Dense, error)

// AnalyzeFunc computes sensitivity indices of one observation vector y,
// where y[i] is the output of sample row i of x
type AnalyzeFunc func(p Problem, x *mat.Dense, y []float64, rnd *utils.RandSource) (IndexSet, error)

// Method pairs a sampler with its analyzer
type Method struct {
	Name     string
	Sampler  string
	Analyzer string

	// Scalar and Matrix list the index kinds produced, in report order
	Scalar []string
	Matrix []string

	// MinSamples is the smallest accepted grid size; zero when the
	// design does not depend on it
	MinSamples int

	sample  SampleFunc
	analyze AnalyzeFunc
}

// Kinds returns every index kind of the method
func (m *Method) Kinds() []string {
	kinds := make([]string, 0, len(m.Scalar)+len(m.Matrix))
	kinds = append(kinds, m.Scalar...)
	return append(kinds, m.Matrix...)
}

// CheckSize rejects grid sizes the sampler cannot work with
func (m *Method) CheckSize(n int) error {
	if m.MinSamples > 0 && n < m.MinSamples {
		return fmt.Errorf("%w: method %s needs a grid of at least %d, got %d",
			ErrSampleSize, m.Name, m.MinSamples, n)
	}
	return nil
}

// Sample generates the sample set. Every row lies within the problem bounds.
func (m *Method) Sample(p Problem, n int, rnd *utils.RandSource) (*mat.Dense, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := m.CheckSize(n); err != nil {
		return nil, err
	}
	return m.sample(p, n, rnd)
}

// Analyze computes the method's indices for one observation vector
func (m *Method) Analyze(p Problem, x *mat.Dense, y []float64, rnd *utils.RandSource) (IndexSet, error) {
	rows, cols := x.Dims()
	if rows != len(y) {
		return IndexSet{}, fmt.Errorf("%s: %d samples but %d observations", m.Name, rows, len(y))
	}
	if cols != p.NumVars() {
		return IndexSet{}, fmt.Errorf("%s: sample set has %d columns for %d parameters", m.Name, cols, p.NumVars())
	}
	return m.analyze(p, x, y, rnd)
}

var registry = map[string]*Method{
	"sobol": {
		Name: "sobol", Sampler: "saltelli", Analyzer: "sobol",
		Scalar:     []string{"S1", "S1_conf", "ST", "ST_conf"},
		Matrix:     []string{"S2", "S2_conf"},
		MinSamples: 2,
		sample:     saltelliSample,
		analyze:    sobolAnalyze,
	},
	"fast": {
		Name: "fast", Sampler: "fast", Analyzer: "fast",
		Scalar:     []string{"S1", "ST"},
		MinSamples: 4*fastHarmonics*fastHarmonics + 1,
		sample:     fastSample,
		analyze:    fastAnalyze,
	},
	"rbd-fast": {
		Name: "rbd-fast", Sampler: "latin", Analyzer: "rbd-fast",
		Scalar:     []string{"S1"},
		MinSamples: 3,
		sample:     latinSample,
		analyze:    rbdFastAnalyze,
	},
	"morris": {
		Name: "morris", Sampler: "morris", Analyzer: "morris",
		Scalar:     []string{"mu", "mu_star", "sigma", "mu_star_conf"},
		MinSamples: 2,
		sample:     morrisSample,
		analyze:    morrisAnalyze,
	},
	"delta": {
		Name: "delta", Sampler: "latin", Analyzer: "delta",
		Scalar:     []string{"delta", "delta_conf", "S1", "S1_conf"},
		MinSamples: 2,
		sample:     latinSample,
		analyze:    deltaAnalyze,
	},
	"dgsm": {
		Name: "dgsm", Sampler: "finite-diff", Analyzer: "dgsm",
		Scalar:     []string{"vi", "vi_std", "dgsm", "dgsm_conf"},
		MinSamples: 2,
		sample:     dgsmSample,
		analyze:    dgsmAnalyze,
	},
	"frac": {
		Name: "frac", Sampler: "fractional-factorial", Analyzer: "fractional-factorial",
		Scalar:  []string{"ME"},
		Matrix:  []string{"IE"},
		sample:  ffSample,
		analyze: ffAnalyze,
	},
}

// Names returns the supported method names, sorted
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup finds a method by case-insensitive name
func Lookup(name string) (*Method, error) {
	m, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %s)", ErrUnknownMethod, name, strings.Join(Names(), ", "))
	}
	return m, nil
}
