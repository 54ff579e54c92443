package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sterope-gsa/sterope/internal/cluster"
	"github.com/sterope-gsa/sterope/internal/executor"
	"github.com/sterope-gsa/sterope/internal/pipeline"
	"github.com/sterope-gsa/sterope/pkg/config"
	"github.com/sterope-gsa/sterope/pkg/logger"
	"github.com/sterope-gsa/sterope/pkg/utils"
)

// rootFlags holds the values of the run flags before they are merged over
// the defaults and the options file
type rootFlags struct {
	configPath string
	noBackup   bool
	opts       *config.Options
	tmax       float64
	seed       int64
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&rootFlags{opts: config.Default()})
}

func buildRootCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sterope",
		Short: "Global sensitivity analysis of rule-based models over the Dynamic Influence Network",
		Long: `sterope samples the annotated parameters of a rule-based model, simulates one
model variant per sample, aggregates the Dynamic Influence Network of every
simulation and reports the sensitivity of every rule and rule pair to every
parameter.

Parameters are annotated in the model file:
  %var: 'k1' 0.5 // range[0.1 1.0]
  %var: 'k2' 10.0 // factor[0.5 0.5]`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := resolveOptions(cmd, f)
			if err != nil {
				return err
			}
			return runPipeline(cmd, opts, f.noBackup)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "YAML options file; explicit flags take precedence")
	fl.BoolVar(&f.noBackup, "no-backup", false, "leave every artifact in the working directory")

	o := f.opts
	fl.StringVar(&o.Model, "model", "", "annotated model file (required)")
	fl.Float64Var(&o.Final, "final", 0, "final simulation time (required)")
	fl.Float64Var(&o.Steps, "steps", 0, "plot time step (required)")
	fl.Float64Var(&o.TMin, "tmin", o.TMin, "time at which DIN emission starts")
	fl.Float64Var(&f.tmax, "tmax", 0, "time at which DIN emission stops (default final)")
	fl.StringVar(&o.Precision, "prec", o.Precision, "precision and format of parameter values, e.g. 7g")
	fl.StringVar(&o.Syntax, "syntax", o.Syntax, "simulator language version: 4 or 3")
	fl.StringVar(&o.Simulator, "kasim", o.Simulator, "simulator binary")
	fl.StringArrayVar(&o.SimulatorArgs, "sim-arg", nil, "extra simulator argument, may be repeated")
	fl.StringVar(&o.Method, "method", o.Method, "sensitivity method: sobol, fast, rbd-fast, morris, delta, dgsm or frac")
	fl.Int64Var(&f.seed, "seed", 0, "random seed (default drawn and logged)")
	fl.IntVar(&o.Grid, "grid", o.Grid, "base sample size")
	fl.IntVar(&o.NProcs, "nprocs", o.NProcs, "parallel tasks")
	fl.StringVar(&o.Type, "type", o.Type, "DIN emission: total or sliced")
	fl.Float64Var(&o.Tick, "tick", o.Tick, "sliced: first window")
	fl.Float64Var(&o.Size, "size", o.Size, "sliced: window length in beats")
	fl.Float64Var(&o.Beat, "beat", o.Beat, "sliced: time between windows")
	fl.StringVar(&o.WorkDir, "workdir", o.WorkDir, "working directory for intermediates and results")
	fl.StringVar(&o.Results, "results", o.Results, "results folder prefix")
	fl.StringVar(&o.Samples, "samples", o.Samples, "subfolder for model variants")
	fl.StringVar(&o.RawData, "rawdata", o.RawData, "subfolder for simulator outputs")
	fl.StringVar(&o.Reports, "reports", o.Reports, "subfolder for reports")
	fl.StringSliceVar(&o.Workers, "workers", nil, "cluster worker addresses host:port (or "+config.WorkersEnv+")")
	fl.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level (debug, info, warn, error)")
	fl.StringVar(&o.LogFormat, "log-format", o.LogFormat, "log format (text, json)")

	cmd.AddCommand(newWorkerCmd(), newMethodsCmd())
	return cmd
}

// resolveOptions layers defaults, the options file, the explicit flags and
// the environment
func resolveOptions(cmd *cobra.Command, f *rootFlags) (*config.Options, error) {
	opts := config.Default()
	if f.configPath != "" {
		var err error
		if opts, err = config.LoadOptions(f.configPath); err != nil {
			return nil, err
		}
	}
	f.opts.TMax = &f.tmax
	f.opts.Seed = &f.seed
	opts.Merge(f.opts, cmd.Flags().Changed)
	opts.ApplyEnv()
	return opts, nil
}

func runPipeline(cmd *cobra.Command, opts *config.Options, noBackup bool) error {
	logger.SetDefault(logger.NewFormat(opts.LogFormat, opts.LogLevel, cmd.ErrOrStderr()))
	ctx := cmd.Context()

	ex, err := newExecutor(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ex.Close(); cerr != nil {
			logger.Warn("Failed to close executor", "error", cerr)
		}
	}()

	runID := utils.GenerateRunID(time.Now())
	o := pipeline.NewOrchestrator(opts, ex, runID)
	o.SetCommandLine(os.Args)
	o.SetSkipBackup(noBackup)
	res, err := o.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.Archive != "" {
		fmt.Fprintf(out, "results: %s\n", res.Archive)
		return nil
	}
	for _, path := range res.Reports {
		fmt.Fprintln(out, path)
	}
	return nil
}

// newExecutor selects the cluster executor when workers are configured and
// the local pool otherwise
func newExecutor(ctx context.Context, opts *config.Options) (executor.Executor, error) {
	if partition := os.Getenv(config.SlurmPartitionEnv); partition != "" {
		logger.Info("Running inside a SLURM allocation", "partition", partition)
	}
	if len(opts.Workers) == 0 {
		logger.Info("Using local executor", "slots", opts.NProcs)
		return executor.NewPool(opts.NProcs), nil
	}
	logger.Info("Connecting to workers", "workers", opts.Workers, "slots", opts.NProcs)
	ex, err := cluster.New(ctx, opts.Workers, opts.NProcs)
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}
	return ex, nil
}
