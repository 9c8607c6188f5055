package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/banabets/else/internal/clock"
	"github.com/banabets/else/internal/lease"
	"github.com/banabets/else/internal/model"
)

// Cycler runs one cycle to completion.
type Cycler interface {
	Run(ctx context.Context) (*model.Cycle, error)
}

type RunnerConfig struct {
	Interval     time.Duration
	CycleTimeout time.Duration
	RunOnce      bool
}

// Runner repeats cycles. The next cycle starts Interval after the previous one
// returned, so two cycles never overlap.
type Runner struct {
	cycler Cycler
	lease  lease.Lease
	clock  clock.Clock
	cfg    RunnerConfig

	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewRunner builds a runner. A nil lease runs every cycle.
func NewRunner(cycler Cycler, l lease.Lease, clk clock.Clock, cfg RunnerConfig) *Runner {
	if l == nil {
		l = lease.Noop()
	}
	return &Runner{
		cycler:    cycler,
		lease:     l,
		clock:     clk,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run blocks until ctx is done or Stop is called. In run-once mode it returns
// the error of the single cycle.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stoppedCh)

	if r.cfg.RunOnce {
		slog.InfoContext(ctx, "running a single cycle")
		_, err := r.runCycle(ctx)
		return err
	}

	slog.InfoContext(ctx, "runner started",
		"interval", r.cfg.Interval,
		"cycle_timeout", r.cfg.CycleTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopCh:
			slog.InfoContext(ctx, "runner stopping")
			return nil
		default:
		}

		if _, err := r.runCycle(ctx); err != nil {
			slog.ErrorContext(ctx, "cycle failed", "error", err)
		}

		slog.InfoContext(ctx, "next cycle scheduled",
			"in", r.cfg.Interval,
			"at", r.clock.Now().Add(r.cfg.Interval))

		if err := r.wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.InfoContext(ctx, "runner stopping")
			return nil
		}
	}
}

// Stop asks the runner to exit after the cycle in flight and waits for it.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.stoppedCh
}

// wait sleeps for the interval, returning early on Stop or cancellation.
func (r *Runner) wait(ctx context.Context) error {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	return r.clock.Sleep(waitCtx, r.cfg.Interval)
}

func (r *Runner) runCycle(ctx context.Context) (c *model.Cycle, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "panic recovered in cycle", "panic", rec)
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	acquired, err := r.lease.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring cycle lease: %w", err)
	}
	if !acquired {
		slog.InfoContext(ctx, "cycle lease held by another process, skipping cycle")
		return nil, nil
	}
	defer func() {
		if relErr := r.lease.Release(context.WithoutCancel(ctx)); relErr != nil {
			slog.WarnContext(ctx, "failed to release cycle lease", "error", relErr)
		}
	}()

	if r.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CycleTimeout)
		defer cancel()
	}

	return r.cycler.Run(ctx)
}
