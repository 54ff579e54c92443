package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sterope-gsa/sterope/internal/executor"
	"github.com/sterope-gsa/sterope/internal/model"
	"github.com/sterope-gsa/sterope/pkg/logger"
)

// Settings are the simulator invocation parameters shared by every sample
type Settings struct {
	Simulator string
	Final     float64
	Steps     float64
	// Extra is appended to every command line
	Extra []string
	Dir   string
}

// Driver builds simulator command lines and runs them on an executor
type Driver struct {
	settings Settings
	exec     executor.Executor
	logger   *slog.Logger
}

// NewDriver creates a driver
func NewDriver(settings Settings, ex executor.Executor) *Driver {
	return &Driver{
		settings: settings,
		exec:     ex,
		logger:   logger.Component("simulation"),
	}
}

// SetLogger sets the driver's logger
func (d *Driver) SetLogger(l *slog.Logger) {
	d.logger = l
}

// Command returns the simulator invocation for the sample with the label
func (d *Driver) Command(label string) executor.Command {
	argv := []string{
		d.settings.Simulator,
		"-i", model.ModelFile(label),
		"-t", strconv.FormatFloat(d.settings.Final, 'g', -1, 64),
		"-p", strconv.FormatFloat(d.settings.Steps, 'g', -1, 64),
		"-o", model.OutputFile(label),
	}
	argv = append(argv, d.settings.Extra...)
	return executor.Command{Label: label, Argv: argv, Dir: d.settings.Dir}
}

// Run simulates every sample and blocks until all processes finished.
// Exit statuses are only logged; missing DIN output is detected by the
// aggregation that follows.
func (d *Driver) Run(ctx context.Context, labels []string) ([]executor.Result, error) {
	cmds := make([]executor.Command, len(labels))
	for i, label := range labels {
		cmds[i] = d.Command(label)
	}
	if len(cmds) == 0 {
		return nil, fmt.Errorf("simulation: no samples to simulate")
	}
	d.logger.Info("Simulating samples",
		"count", len(cmds),
		"executor", d.exec.Name(),
		"slots", d.exec.Slots(),
		"first", strings.Join(cmds[0].Argv, " "))

	results, err := d.exec.Run(ctx, cmds)
	if err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}

	failed := 0
	for _, res := range results {
		if !res.Failed() {
			d.logger.Debug("Simulation finished", "label", res.Label, "duration", res.Duration)
			continue
		}
		failed++
		d.logger.Warn("Simulator exited with an error",
			"label", res.Label,
			"exit_code", res.ExitCode,
			"stdout", tail(res.Stdout),
			"stderr", tail(res.Stderr))
	}
	d.logger.Info("Simulations finished", "count", len(results), "failed", failed)
	return results, nil
}

// tail keeps the end of a process output, where simulators report errors
func tail(s string) string {
	const max = 2048
	s = strings.TrimSpace(s)
	if len(s) > max {
		return "..." + s[len(s)-max:]
	}
	return s
}
