package executor

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sterope-gsa/sterope/pkg/logger"
)

// Pool is the in-process executor
type Pool struct {
	slots  int
	logger *slog.Logger
}

// NewPool creates a pool running at most slots tasks at once
func NewPool(slots int) *Pool {
	if slots < 1 {
		slots = 1
	}
	return &Pool{
		slots:  slots,
		logger: logger.Component("executor"),
	}
}

// SetLogger sets the pool's logger
func (p *Pool) SetLogger(l *slog.Logger) {
	p.logger = l
}

func (p *Pool) Name() string { return "local" }

func (p *Pool) Slots() int { return p.slots }

func (p *Pool) Close() error { return nil }

// Do runs fn for every index with at most Slots calls in flight. A panic
// in fn is returned as a task failure.
func (p *Pool) Do(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.slots)

	for i := 0; i < n; i++ {
		// stop scheduling once a task failed
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: task %d panicked: %v", ErrTaskFailed, i, r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fn(gctx, i); err != nil {
				return fmt.Errorf("%w: task %d: %w", ErrTaskFailed, i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Run executes the commands as local processes
func (p *Pool) Run(ctx context.Context, cmds []Command) ([]Result, error) {
	p.logger.Debug("Running commands", "count", len(cmds), "slots", p.slots)
	return Map(ctx, p, cmds, RunCommand)
}

var _ Executor = (*Pool)(nil)
