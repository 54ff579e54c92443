package executor

import (
	"context"
	"errors"
	"time"
)

// ErrTaskFailed wraps the error of the first task that failed
var ErrTaskFailed = errors.New("task failed")

// Command is one external process to run
type Command struct {
	// Label identifies the sample the command belongs to
	Label string
	Argv  []string
	Dir   string
}

// Result is the outcome of a command that could be started. A non-zero
// exit code is reported, not returned as an error.
type Result struct {
	Label    string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Failed reports whether the process exited with a non-zero status
func (r Result) Failed() bool {
	return r.ExitCode != 0
}

// Executor runs independent tasks with bounded parallelism and blocks until
// all of them complete. The first failure cancels the tasks not yet started
// and is returned.
type Executor interface {
	// Name identifies the executor in logs
	Name() string
	// Slots is the maximum number of tasks running at once
	Slots() int
	// Run executes the commands; results keep the input order
	Run(ctx context.Context, cmds []Command) ([]Result, error)
	// Do calls fn for every index in [0, n) in this process
	Do(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error
	Close() error
}

// Map applies fn to every input through the executor and returns the
// results in input order
func Map[T, R any](ctx context.Context, ex Executor, in []T, fn func(ctx context.Context, v T) (R, error)) ([]R, error) {
	out := make([]R, len(in))
	err := ex.Do(ctx, len(in), func(ctx context.Context, i int) error {
		r, err := fn(ctx, in[i])
		if err != nil {
			return err
		}
		out[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
