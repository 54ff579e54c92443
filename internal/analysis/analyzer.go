package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"github.com/sterope-gsa/sterope/internal/executor"
	"github.com/sterope-gsa/sterope/internal/gsa"
	"github.com/sterope-gsa/sterope/pkg/logger"
	"github.com/sterope-gsa/sterope/pkg/utils"
)

// Analyzer computes the sensitivity indices of every observation of a table
type Analyzer struct {
	method  *gsa.Method
	problem gsa.Problem
	samples *mat.Dense
	seed    int64
	exec    executor.Executor
	logger  *slog.Logger
}

// NewAnalyzer creates an analyzer over a fixed sample set
func NewAnalyzer(method *gsa.Method, problem gsa.Problem, samples *mat.Dense, seed int64, ex executor.Executor) *Analyzer {
	return &Analyzer{
		method:  method,
		problem: problem,
		samples: samples,
		seed:    seed,
		exec:    ex,
		logger:  logger.Component("analysis"),
	}
}

// SetLogger sets the analyzer's logger
func (a *Analyzer) SetLogger(l *slog.Logger) {
	a.logger = l
}

// Analyze runs one task per row of table; row i holds observation i across
// all samples. names labels the rows in errors. The result keeps row order.
func (a *Analyzer) Analyze(ctx context.Context, table *mat.Dense, names []string) ([]gsa.IndexSet, error) {
	rows, cols := table.Dims()
	n, _ := a.samples.Dims()
	if cols != n {
		return nil, fmt.Errorf("analysis: table has %d samples, sample set has %d", cols, n)
	}
	if len(names) != rows {
		return nil, fmt.Errorf("analysis: %d names for %d observations", len(names), rows)
	}

	a.logger.Info("Analyzing observations", "method", a.method.Name, "observations", rows, "samples", n)
	var constant atomic.Int64
	sets, err := executor.Map(ctx, a.exec, identity(rows), func(ctx context.Context, i int) (gsa.IndexSet, error) {
		y := mat.Row(nil, i, table)
		if isConstant(y) {
			constant.Add(1)
			// sensitivity is undefined without output variance
			return gsa.NaNSet(a.method, a.problem.NumVars()), nil
		}
		// per-observation streams keep results independent of scheduling
		rnd := utils.NewRandSource(a.seed + int64(i))
		set, err := a.method.Analyze(a.problem, a.samples, y, rnd)
		if err != nil {
			return gsa.IndexSet{}, fmt.Errorf("observation %q: %w", names[i], err)
		}
		return set, nil
	})
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	a.logger.Info("Observations analyzed", "observations", rows, "constant", constant.Load())
	return sets, nil
}

func isConstant(y []float64) bool {
	if len(y) == 0 {
		return true
	}
	for _, v := range y[1:] {
		if v != y[0] {
			return false
		}
	}
	return true
}

func identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
