package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"

	"github.com/sterope-gsa/sterope/internal/executor"
	"github.com/sterope-gsa/sterope/pkg/logger"
	"github.com/sterope-gsa/sterope/pkg/utils"
)

const (
	readinessAttempts = 5
	readinessBase     = 200 * time.Millisecond
	readinessMax      = 5 * time.Second
)

// Executor dispatches commands to remote workers. Commands are assigned
// round-robin; in-process tasks run on a local pool.
type Executor struct {
	clients        []*Client
	slotsPerWorker int
	local          *executor.Pool
	logger         *slog.Logger
}

// New connects to every worker and waits until each reports serving.
// slots bounds the commands in flight per worker and the local pool.
func New(ctx context.Context, addrs []string, slots int, opts ...grpc.DialOption) (*Executor, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("cluster executor needs at least one worker")
	}
	if slots < 1 {
		slots = 1
	}
	e := &Executor{
		slotsPerWorker: slots,
		local:          executor.NewPool(slots),
		logger:         logger.Component("cluster"),
	}

	backoff := utils.NewExponentialBackoff(readinessBase, readinessMax, 2.0, true)
	for _, addr := range addrs {
		client, err := Dial(addr, opts...)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.clients = append(e.clients, client)

		if err := utils.Retry(ctx, readinessAttempts, backoff, client.Check); err != nil {
			e.Close()
			return nil, fmt.Errorf("worker %s is not ready: %w", addr, err)
		}
		e.logger.Info("Worker ready", "addr", addr)
	}
	return e, nil
}

func (e *Executor) Name() string { return "cluster" }

// Slots is the number of commands in flight across all workers
func (e *Executor) Slots() int {
	return len(e.clients) * e.slotsPerWorker
}

// Run sends command i to worker i mod W and keeps the results in input order
func (e *Executor) Run(ctx context.Context, cmds []executor.Command) ([]executor.Result, error) {
	e.logger.Debug("Dispatching commands", "count", len(cmds), "workers", len(e.clients))
	results := make([]executor.Result, len(cmds))
	dispatch := executor.NewPool(e.Slots())
	dispatch.SetLogger(e.logger)
	err := dispatch.Do(ctx, len(cmds), func(ctx context.Context, i int) error {
		res, err := e.clients[i%len(e.clients)].Run(ctx, cmds[i])
		if err != nil {
			return err
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Do runs in-process tasks on the coordinator
func (e *Executor) Do(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	return e.local.Do(ctx, n, fn)
}

// Close closes every worker connection
func (e *Executor) Close() error {
	var errs []error
	for _, c := range e.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.clients = nil
	return errors.Join(errs...)
}

var _ executor.Executor = (*Executor)(nil)
