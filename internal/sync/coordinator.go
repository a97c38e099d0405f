package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/perchwatch/server/internal/domain/sources"
	"github.com/perchwatch/server/internal/metrics"
)

// Coordinator fans a sweep out across sources with a bounded worker budget
// and serializes runs that target the same source. RunSweep and RunOne share
// the per-source locks, so a manual trigger can never interleave with a
// scheduled run against the same source.
type Coordinator struct {
	repo    sources.Repository
	runner  *Runner
	workers int64
	// sweepDeadline bounds how long RunSweep waits. Runners past the
	// deadline are not cancelled (a mid-file kill buys nothing; the commit
	// is already atomic); they finish in the background and the sweep
	// summary reports them as in-progress.
	sweepDeadline time.Duration
	logger        zerolog.Logger

	mu    stdsync.Mutex
	locks map[string]*stdsync.Mutex
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithWorkers overrides the worker budget (default 4).
func WithWorkers(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = int64(n)
		}
	}
}

// WithSweepDeadline overrides how long RunSweep waits before reporting
// stragglers as in-progress (default 10 minutes).
func WithSweepDeadline(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.sweepDeadline = d
		}
	}
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(repo sources.Repository, runner *Runner, logger zerolog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		repo:          repo,
		runner:        runner,
		workers:       4,
		sweepDeadline: 10 * time.Minute,
		logger:        logger,
		locks:         make(map[string]*stdsync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lockFor returns the run lock for a source id, creating it on first use.
// Locks are never removed; the source population is small and bounded.
func (c *Coordinator) lockFor(id string) *stdsync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[id]
	if !ok {
		lock = &stdsync.Mutex{}
		c.locks[id] = lock
	}
	return lock
}

// RunSweep runs every enabled source with bounded concurrency and returns
// one Outcome per source. One source's failure never cancels or delays the
// others. When the sweep deadline passes, still-running sources keep going
// in the background and appear in the result as in-progress.
func (c *Coordinator) RunSweep(ctx context.Context, maxFilesPerSource int) ([]Outcome, error) {
	srcs, err := c.repo.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Info().Int("sources", len(srcs)).Msg("sync: sweep starting")

	var (
		resultMu  stdsync.Mutex
		outcomes  = make([]Outcome, len(srcs))
		completed = make([]bool, len(srcs))
		wg        stdsync.WaitGroup
	)

	sem := semaphore.NewWeighted(c.workers)
	// Runners deliberately outlive the sweep deadline: detach from the
	// caller's cancellation but keep its values.
	runCtx := context.WithoutCancel(ctx)

	for i, src := range srcs {
		wg.Add(1)
		go func(i int, src sources.Source) {
			defer wg.Done()

			if err := sem.Acquire(runCtx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			lock := c.lockFor(src.ID)
			lock.Lock()
			outcome := c.runner.Run(runCtx, src, maxFilesPerSource)
			lock.Unlock()

			resultMu.Lock()
			outcomes[i] = outcome
			completed[i] = true
			resultMu.Unlock()
		}(i, src)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(c.sweepDeadline)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		c.logger.Warn().Msg("sync: sweep deadline reached, reporting stragglers as in-progress")
	case <-ctx.Done():
		c.logger.Warn().Err(ctx.Err()).Msg("sync: sweep wait interrupted, runners continue in background")
	}

	// Stragglers keep writing into outcomes after we return, so the caller
	// gets a snapshot taken under the lock, never the shared array.
	resultMu.Lock()
	defer resultMu.Unlock()
	results := make([]Outcome, len(srcs))
	copy(results, outcomes)
	for i, src := range srcs {
		if !completed[i] {
			results[i] = Outcome{SourceID: src.ID, SourceName: src.Name, InProgress: true}
		}
	}
	return results, nil
}

// RunOne runs a single source by id with a per-run file cap and returns its
// Outcome synchronously. It returns sources.ErrNotFound for an unknown id.
// Used by the manual "test pull" trigger.
func (c *Coordinator) RunOne(ctx context.Context, id string, maxFiles int) (Outcome, error) {
	src, err := c.repo.Get(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	metrics.SweepsTotal.WithLabelValues("manual").Inc()

	lock := c.lockFor(src.ID)
	lock.Lock()
	defer lock.Unlock()

	return c.runner.Run(ctx, *src, maxFiles), nil
}
