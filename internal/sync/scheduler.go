package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/perchwatch/server/internal/metrics"
)

// Scheduler fires a full sweep on a fixed interval. It is an explicitly
// constructed and started component, not ambient state: tests drive the
// Coordinator directly and never touch the timer.
type Scheduler struct {
	coordinator *Coordinator
	interval    time.Duration
	maxFiles    int
	logger      zerolog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewScheduler constructs a Scheduler that triggers coordinator.RunSweep
// every interval with the given per-source file cap.
func NewScheduler(coordinator *Coordinator, interval time.Duration, maxFiles int, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		coordinator: coordinator,
		interval:    interval,
		maxFiles:    maxFiles,
		logger:      logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the timer loop. The first sweep fires at the next wall
// clock boundary of the interval (e.g. the top of the hour for 1h), then
// every interval after that. Start returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop halts the timer loop and waits for it to exit. An in-flight sweep is
// not interrupted.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// untilNextTick returns how long to wait from now until the next wall-clock
// boundary of the interval (e.g. the top of the hour for 1h).
func untilNextTick(now time.Time, interval time.Duration) time.Duration {
	return now.Truncate(interval).Add(interval).Sub(now)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	// Every tick realigns to a wall-clock boundary, so hourly sweeps land
	// at :00 regardless of process start time or how long a sweep took.
	first := untilNextTick(time.Now(), s.interval)
	timer := time.NewTimer(first)
	defer timer.Stop()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("first_in", first).
		Msg("scheduler: started")

	for {
		select {
		case <-timer.C:
			s.sweep(ctx)
			timer.Reset(untilNextTick(time.Now(), s.interval))
		case <-s.stop:
			s.logger.Info().Msg("scheduler: stopped")
			return
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler: context cancelled")
			return
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	metrics.SweepsTotal.WithLabelValues("scheduled").Inc()

	start := time.Now()
	outcomes, err := s.coordinator.RunSweep(ctx, s.maxFiles)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduler: sweep failed to start")
		return
	}

	var ingested, failed, errored int
	for _, o := range outcomes {
		ingested += o.Ingested
		failed += o.Failed
		if o.Err != nil {
			errored++
		}
	}

	s.logger.Info().
		Int("sources", len(outcomes)).
		Int("ingested", ingested).
		Int("failed_files", failed).
		Int("failed_sources", errored).
		Dur("elapsed", time.Since(start)).
		Msg("scheduler: sweep complete")
}
