package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/sterope-gsa/sterope/internal/analysis"
	"github.com/sterope-gsa/sterope/internal/din"
	"github.com/sterope-gsa/sterope/internal/executor"
	"github.com/sterope-gsa/sterope/internal/gsa"
	"github.com/sterope-gsa/sterope/internal/metrics"
	"github.com/sterope-gsa/sterope/internal/model"
	"github.com/sterope-gsa/sterope/internal/report"
	"github.com/sterope-gsa/sterope/internal/simulation"
	"github.com/sterope-gsa/sterope/pkg/config"
	"github.com/sterope-gsa/sterope/pkg/logger"
	"github.com/sterope-gsa/sterope/pkg/utils"
)

// Stage names used for timings and error messages
const (
	StageChecks      = "checks"
	StageClean       = "clean"
	StageParse       = "parse"
	StageSample      = "sample"
	StageMaterialize = "materialize"
	StageSimulate    = "simulate"
	StageAggregate   = "aggregate"
	StageAnalyze     = "analyze"
	StageReport      = "report"
	StageBackup      = "backup"
)

// Result describes a finished run
type Result struct {
	RunID string
	Seed  int64
	// Samples is the number of simulated parameter sets
	Samples int
	Windows []string
	// ResultsDir and Archive are empty when backup was skipped
	ResultsDir string
	Archive    string
	Reports    []string
}

// Orchestrator runs the sensitivity-analysis pipeline for one set of options
type Orchestrator struct {
	opts    *config.Options
	exec    executor.Executor
	runID   string
	argv    []string
	metrics *metrics.Collector
	logger  *slog.Logger

	// skipBackup leaves every artifact in the working directory
	skipBackup bool
}

// NewOrchestrator creates an orchestrator. runID suffixes the results folder
// and the log file.
func NewOrchestrator(opts *config.Options, ex executor.Executor, runID string) *Orchestrator {
	return &Orchestrator{
		opts:    opts,
		exec:    ex,
		runID:   runID,
		argv:    os.Args,
		metrics: metrics.NewCollector(),
		logger:  logger.Component("pipeline").With("run_id", runID),
	}
}

// SetLogger sets the orchestrator's logger
func (o *Orchestrator) SetLogger(l *slog.Logger) {
	o.logger = l
}

// SetCommandLine sets the command line recorded in the run log
func (o *Orchestrator) SetCommandLine(argv []string) {
	o.argv = argv
}

// SetSkipBackup disables moving and archiving the results
func (o *Orchestrator) SetSkipBackup(skip bool) {
	o.skipBackup = skip
}

// Metrics returns the collector holding the stage timings
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// stageError names the failing stage
func stageError(stage string, err error) error {
	return fmt.Errorf("%s: %w", stage, err)
}

// Run executes every stage in order. On failure the intermediates are left
// in the working directory and no archive is written.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	o.metrics.Start()
	o.logger.Info("Run started", "method", o.opts.Method, "grid", o.opts.Grid, "type", o.opts.Type)

	stop := metrics.TimeStage(o.metrics, StageChecks)
	method, err := o.SafeChecks()
	stop()
	if err != nil {
		return nil, stageError(StageChecks, err)
	}

	seed, err := o.seed()
	if err != nil {
		return nil, stageError(StageChecks, err)
	}

	stop = metrics.TimeStage(o.metrics, StageClean)
	removed, err := Clean(o.opts.WorkDir, o.opts.Model)
	stop()
	if err != nil {
		return nil, stageError(StageClean, err)
	}
	if removed > 0 {
		o.logger.Info("Working directory cleaned", "removed", removed)
	}

	stop = metrics.TimeStage(o.metrics, StageParse)
	m, err := model.ParseFile(o.opts.Model)
	stop()
	if err != nil {
		return nil, stageError(StageParse, err)
	}
	problem := m.Problem()
	o.logger.Info("Model parsed", "model", o.opts.Model, "parameters", problem.NumVars())

	stop = metrics.TimeStage(o.metrics, StageSample)
	samples, err := method.Sample(problem, o.opts.Grid, utils.NewRandSource(seed))
	stop()
	if err != nil {
		return nil, stageError(StageSample, err)
	}
	n, _ := samples.Dims()
	labels := model.Labels(n)
	o.metrics.RecordNow(metrics.MetricSamples, float64(n), nil)
	o.logger.Info("Samples generated", "method", method.Name, "samples", n, "seed", seed)

	stop = metrics.TimeStage(o.metrics, StageMaterialize)
	err = o.materialize(m, samples, labels)
	stop()
	if err != nil {
		return nil, stageError(StageMaterialize, err)
	}

	stop = metrics.TimeStage(o.metrics, StageSimulate)
	err = o.simulate(ctx, labels)
	stop()
	if err != nil {
		return nil, stageError(StageSimulate, err)
	}

	stop = metrics.TimeStage(o.metrics, StageAggregate)
	aggs, err := o.aggregate(labels)
	stop()
	if err != nil {
		return nil, stageError(StageAggregate, err)
	}

	res := &Result{RunID: o.runID, Seed: seed, Samples: n}
	analyzer := analysis.NewAnalyzer(method, problem, samples, seed, o.exec)
	reporter := report.NewReporter(o.opts.WorkDir, method, problem.Names)
	for _, agg := range aggs {
		stop = metrics.TimeStage(o.metrics, StageAnalyze)
		hits, fluxes, err := o.analyze(ctx, analyzer, agg)
		stop()
		if err != nil {
			return nil, stageError(StageAnalyze, err)
		}

		stop = metrics.TimeStage(o.metrics, StageReport)
		paths, err := reporter.Write(agg.Window, agg.Rules, hits, fluxes)
		stop()
		if err != nil {
			return nil, stageError(StageReport, err)
		}
		res.Reports = append(res.Reports, paths...)
		if agg.Window != "" {
			res.Windows = append(res.Windows, agg.Window)
		}
	}
	o.metrics.RecordNow(metrics.MetricReports, float64(len(res.Reports)), nil)

	if o.skipBackup {
		o.metrics.Stop()
		o.logger.Info("Run finished", "reports", len(res.Reports), "elapsed", o.metrics.Elapsed())
		return res, nil
	}

	stop = metrics.TimeStage(o.metrics, StageBackup)
	dir, archive, err := o.backup(problem, seed, n)
	stop()
	if err != nil {
		return nil, stageError(StageBackup, err)
	}
	res.ResultsDir, res.Archive = dir, archive
	for i, p := range res.Reports {
		res.Reports[i] = filepath.Join(dir, o.opts.Reports, filepath.Base(p))
	}
	o.logger.Info("Run finished", "results", dir, "archive", archive, "elapsed", o.metrics.Elapsed())
	return res, nil
}

// SafeChecks verifies the options before any work starts and returns the
// selected method
func (o *Orchestrator) SafeChecks() (*gsa.Method, error) {
	if err := o.opts.Validate(); err != nil {
		return nil, err
	}
	if err := o.opts.CheckFiles(); err != nil {
		return nil, err
	}

	// remote workers expand and resolve the simulator on their own hosts
	if o.exec.Name() == "local" {
		path, err := ResolveSimulator(o.opts.Simulator)
		if err != nil {
			return nil, err
		}
		o.opts.Simulator = path
	}

	method, err := gsa.Lookup(o.opts.Method)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	if err := method.CheckSize(o.opts.Grid); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	return method, nil
}

// ResolveSimulator returns the absolute path of the simulator binary, looked
// up on PATH when it has no directory component
func ResolveSimulator(simulator string) (string, error) {
	path, err := exec.LookPath(config.ExpandHome(simulator))
	if err != nil {
		return "", fmt.Errorf("%w: the simulator (at %s) can't be called to perform simulations: %v", config.ErrConfig, simulator, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", config.ErrConfig, err)
	}
	return abs, nil
}

func (o *Orchestrator) seed() (int64, error) {
	if o.opts.Seed != nil {
		return *o.opts.Seed, nil
	}
	seed, err := utils.RandomSeed()
	if err != nil {
		return 0, err
	}
	o.opts.Seed = &seed
	o.logger.Info("Seed drawn", "seed", seed)
	return seed, nil
}

func (o *Orchestrator) materialize(m *model.Model, samples *mat.Dense, labels []string) error {
	w, err := model.NewWriter(o.opts.WorkDir, o.opts.Precision, model.DINSpec{
		Type:   o.opts.Type,
		Syntax: o.opts.Syntax,
		TMin:   o.opts.TMin,
		TMax:   o.opts.EffectiveTMax(),
		Beat:   o.opts.Beat,
		Size:   o.opts.Size,
		Tick:   o.opts.Tick,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	for i, label := range labels {
		if _, err := w.Materialize(m, mat.Row(nil, i, samples), label); err != nil {
			return err
		}
	}
	o.logger.Info("Models materialized", "count", len(labels), "dir", o.opts.WorkDir)
	return nil
}

func (o *Orchestrator) simulate(ctx context.Context, labels []string) error {
	driver := simulation.NewDriver(simulation.Settings{
		Simulator: o.opts.Simulator,
		Final:     o.opts.Final,
		Steps:     o.opts.Steps,
		Extra:     o.opts.SimulatorArgs,
		Dir:       o.opts.WorkDir,
	}, o.exec)
	results, err := driver.Run(ctx, labels)
	if err != nil {
		return err
	}
	metrics.RecordSimulations(o.metrics, results)
	return nil
}

func (o *Orchestrator) aggregate(labels []string) ([]*din.Aggregation, error) {
	a := din.NewAggregator(o.opts.WorkDir)
	if o.opts.Type != config.TypeSliced {
		agg, err := a.Total(labels)
		if err != nil {
			return nil, err
		}
		return []*din.Aggregation{agg}, nil
	}

	expected := model.SlicedWindowCount(o.opts.Syntax, o.opts.Final, o.opts.Beat, o.opts.Size, o.opts.Tick)
	aggs, err := a.Sliced(labels)
	if err != nil {
		return nil, err
	}
	metrics.RecordWindows(o.metrics, expected, len(aggs))
	if len(aggs) != expected {
		o.logger.Warn("Unexpected number of windows", "expected", expected, "found", len(aggs))
	} else {
		o.logger.Info("Windows found", "count", len(aggs))
	}
	return aggs, nil
}

func (o *Orchestrator) analyze(ctx context.Context, a *analysis.Analyzer, agg *din.Aggregation) (hits, fluxes []gsa.IndexSet, err error) {
	hits, err = a.Analyze(ctx, agg.Hits, agg.Rules)
	if err != nil {
		return nil, nil, fmt.Errorf("hits: %w", err)
	}
	pairs := din.PairLabels(agg.Rules)
	names := make([]string, len(pairs))
	for i, p := range pairs {
		names[i] = "(" + p[0] + ", " + p[1] + ")"
	}
	fluxes, err = a.Analyze(ctx, agg.Fluxes, names)
	if err != nil {
		return nil, nil, fmt.Errorf("fluxes: %w", err)
	}
	rows, _ := agg.Hits.Dims()
	o.metrics.RecordNow(metrics.MetricObservations, float64(rows+len(pairs)), nil)
	return hits, fluxes, nil
}

// cleanPatterns are the intermediates a previous run may have left behind
var cleanPatterns = []string{
	"model_*.kappa",
	"model_*.out.txt",
	"flux_*.json",
	"report_*.txt",
	"log_*.txt",
}

// Clean removes the intermediates of a previous run from dir. The input
// model is never removed. It returns the number of removed files.
func Clean(dir, keep string) (int, error) {
	keepAbs, err := filepath.Abs(keep)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, pattern := range cleanPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return removed, err
		}
		for _, path := range matches {
			if abs, err := filepath.Abs(path); err == nil && abs == keepAbs {
				continue
			}
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// writeRunLog writes the log kept with the results
func (o *Orchestrator) writeRunLog(path string, seed int64, samples int) error {
	o.metrics.Stop()

	var b strings.Builder
	fmt.Fprintf(&b, "# Output of %s\n", strings.Join(o.argv, " "))
	fmt.Fprintf(&b, "run\t%s\n", o.runID)
	fmt.Fprintf(&b, "method\t%s\n", o.opts.Method)
	fmt.Fprintf(&b, "seed\t%d\n", seed)
	fmt.Fprintf(&b, "samples\t%d\n", samples)
	fmt.Fprintf(&b, "executor\t%s (%d slots)\n", o.exec.Name(), o.exec.Slots())
	fmt.Fprintf(&b, "Elapsed time: %.0f seconds\n", o.metrics.Elapsed().Round(time.Second).Seconds())
	if err := metrics.WriteSummary(&b, o.metrics); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
