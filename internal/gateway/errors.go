package gateway

import "fmt"

// ListingError means the provider's directory listing could not be retrieved
// or parsed. It aborts the whole run for that source; the cursor is never
// touched. Status is zero when the failure happened before a response
// arrived (DNS, dial, timeout).
type ListingError struct {
	SourceID string
	Status   int
	Reason   string
	Err      error
}

func (e *ListingError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("listing failed (HTTP %d): %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("listing failed: %s", e.Reason)
}

func (e *ListingError) Unwrap() error { return e.Err }

// AuthError is a listing failure caused by rejected credentials (401/403).
// Surfaced as its own type so operators can tell "expired credentials" apart
// from "host down".
type AuthError struct {
	SourceID string
	Status   int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected (HTTP %d)", e.Status)
}

// FetchError means a single file could not be downloaded. It marks that
// entry failed; the run continues with the next entry.
type FetchError struct {
	SourceID string
	Filename string
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s failed (HTTP %d)", e.Filename, e.Status)
	}
	return fmt.Sprintf("fetch %s failed: %v", e.Filename, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
