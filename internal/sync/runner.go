package sync

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/perchwatch/server/internal/domain/sources"
	"github.com/perchwatch/server/internal/gateway"
	"github.com/perchwatch/server/internal/metrics"
)

// DefaultMaxFiles caps how many new files one run will process when the
// caller does not override it.
const DefaultMaxFiles = 10

// Outcome summarizes one source's run. It is not persisted; it exists for
// the sweep summary, the manual-trigger response, and logs.
type Outcome struct {
	SourceID   string        `json:"source_id"`
	SourceName string        `json:"source_name"`
	Candidates int           `json:"candidates"`
	Fetched    int           `json:"fetched"`
	Ingested   int           `json:"ingested"`
	Failed     int           `json:"failed"`
	Cursor     string        `json:"cursor,omitempty"`
	Duration   time.Duration `json:"duration"`
	// InProgress is set by the coordinator when the sweep deadline passed
	// while this source was still running.
	InProgress bool  `json:"in_progress,omitempty"`
	Err        error `json:"-"`
	// ErrDetail mirrors Err for JSON responses.
	ErrDetail string `json:"error,omitempty"`
}

// Runner executes the pull cycle for a single source: list, filter against
// the cursor, fetch and ingest each candidate in order, then commit the
// cursor as far as contiguous success allows.
type Runner struct {
	gateways *gateway.Registry
	sink     Sink
	repo     sources.Repository
	logger   zerolog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(gateways *gateway.Registry, sink Sink, repo sources.Repository, logger zerolog.Logger) *Runner {
	return &Runner{
		gateways: gateways,
		sink:     sink,
		repo:     repo,
		logger:   logger,
	}
}

// Run performs one sweep of src, processing at most maxFiles new entries
// (DefaultMaxFiles when maxFiles <= 0). A listing or auth failure aborts the
// run with the cursor untouched; per-file failures are recorded and the run
// continues with the next entry.
//
// Callers must hold the source's run lock; two concurrent runs against the
// same source would race on the cursor.
func (r *Runner) Run(ctx context.Context, src sources.Source, maxFiles int) Outcome {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	start := time.Now()
	outcome := Outcome{SourceID: src.ID, SourceName: src.Name}
	logger := r.logger.With().Str("source_id", src.ID).Str("source", src.Name).Logger()

	defer func() {
		outcome.Duration = time.Since(start)
		if outcome.Err != nil {
			outcome.ErrDetail = outcome.Err.Error()
		}
		metrics.SourceRunDuration.Observe(outcome.Duration.Seconds())
	}()

	gw, err := r.gateways.ForSource(src)
	if err != nil {
		outcome.Err = err
		metrics.SourceRunsTotal.WithLabelValues("listing_error").Inc()
		metrics.ListingErrorsTotal.WithLabelValues("unsupported_kind").Inc()
		logger.Error().Err(err).Msg("sync: no gateway for source")
		return outcome
	}

	listing, err := gw.List(ctx, src)
	if err != nil {
		outcome.Err = err
		var authErr *gateway.AuthError
		if errors.As(err, &authErr) {
			metrics.SourceRunsTotal.WithLabelValues("auth_error").Inc()
			metrics.ListingErrorsTotal.WithLabelValues("auth").Inc()
			logger.Error().Int("status", authErr.Status).Msg("sync: credentials rejected")
		} else {
			metrics.SourceRunsTotal.WithLabelValues("listing_error").Inc()
			metrics.ListingErrorsTotal.WithLabelValues("listing").Inc()
			logger.Warn().Err(err).Msg("sync: listing failed")
		}
		return outcome
	}

	previousCursor := ""
	if src.Cursor != nil {
		previousCursor = *src.Cursor
	}

	candidates := NewEntries(listing, previousCursor)
	outcome.Candidates = len(candidates)
	if len(candidates) > maxFiles {
		candidates = candidates[:maxFiles]
	}

	results := make([]FileResult, 0, len(candidates))
	for _, entry := range candidates {
		results = append(results, r.processEntry(ctx, gw, src, entry, &outcome, logger))
	}

	newCursor := AdvanceCursor(previousCursor, results)
	outcome.Cursor = newCursor

	// Cursor and last-pull timestamp move together in a single update.
	// Nothing is written until at least one file has ever been ingested.
	if newCursor != "" {
		if err := r.repo.UpdateCursor(ctx, src.ID, newCursor, time.Now().UTC()); err != nil {
			outcome.Err = err
			metrics.SourceRunsTotal.WithLabelValues("commit_error").Inc()
			logger.Error().Err(err).Msg("sync: cursor commit failed")
			return outcome
		}
	}

	metrics.SourceRunsTotal.WithLabelValues("ok").Inc()
	logger.Info().
		Int("candidates", outcome.Candidates).
		Int("fetched", outcome.Fetched).
		Int("ingested", outcome.Ingested).
		Int("failed", outcome.Failed).
		Str("cursor", newCursor).
		Msg("sync: run complete")

	return outcome
}

// processEntry fetches one entry and hands it to the sink. Failures are
// per-file: they mark the result and the run moves on.
func (r *Runner) processEntry(ctx context.Context, gw gateway.Gateway, src sources.Source, entry gateway.Entry, outcome *Outcome, logger zerolog.Logger) FileResult {
	payload, err := gw.Fetch(ctx, src, entry)
	if err != nil {
		outcome.Failed++
		metrics.FilesFailedTotal.WithLabelValues("fetch").Inc()
		logger.Warn().Err(err).Str("file", entry.Filename).Msg("sync: fetch failed")
		return FileResult{Entry: entry, Err: err}
	}
	outcome.Fetched++
	metrics.FilesFetchedTotal.Inc()

	if err := r.sink.Ingest(ctx, src.ID, entry.Filename, payload); err != nil {
		outcome.Failed++
		var rej *Rejection
		if errors.As(err, &rej) {
			metrics.FilesFailedTotal.WithLabelValues("rejected").Inc()
			logger.Warn().Str("file", entry.Filename).Str("reason", rej.Reason).Msg("sync: sink rejected file")
		} else {
			metrics.FilesFailedTotal.WithLabelValues("sink").Inc()
			logger.Warn().Err(err).Str("file", entry.Filename).Msg("sync: sink submission failed")
		}
		return FileResult{Entry: entry, Err: err}
	}

	outcome.Ingested++
	metrics.FilesIngestedTotal.Inc()
	return FileResult{Entry: entry, Ingested: true}
}
