// Package sync implements the pull cycle for external camera-feed sources:
// listing, cursor-based filtering, fetching, handoff to the detection
// pipeline, and cursor commit. The scheduler and coordinator in this package
// drive one runner per source with bounded concurrency.
package sync

import "github.com/perchwatch/server/internal/gateway"

// NewEntries returns the subset of listing that has not been seen yet, given
// the source's last-acknowledged filename.
//
// An empty cursor means first-ever pull: everything is new. If the cursor is
// present in the listing, the new subset is everything strictly after it in
// listing order. If the cursor is absent (the provider rotated or deleted
// old files), the entire listing is treated as new: re-ingestion is safe
// because the sink is idempotent per (source, filename), while skipping is
// not recoverable.
//
// The whole cursor scheme assumes a source's listing order is stable and
// monotonic with arrival. That assumption lives in this file only, so a
// seen-set strategy can replace it without touching the runner or gateway.
func NewEntries(listing []gateway.Entry, lastCursor string) []gateway.Entry {
	if lastCursor == "" {
		return listing
	}
	for i, entry := range listing {
		if entry.Filename == lastCursor {
			return listing[i+1:]
		}
	}
	return listing
}

// FileResult records the outcome for one candidate entry within a run.
type FileResult struct {
	Entry    gateway.Entry
	Ingested bool
	Err      error
}

// AdvanceCursor computes the cursor to persist after a run. Only the leading
// run of contiguous successes counts: if the third candidate failed, the
// cursor stops at the second, and everything from the third onward remains a
// candidate next sweep. When no prefix succeeded the previous cursor is
// returned unchanged; the cursor never regresses.
func AdvanceCursor(previous string, results []FileResult) string {
	cursor := previous
	for _, res := range results {
		if !res.Ingested {
			break
		}
		cursor = res.Entry.Filename
	}
	return cursor
}
