// Package sources defines the domain types and interfaces for camera-feed
// source management.
package sources

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a source is not found.
var ErrNotFound = errors.New("source not found")

// Kind identifies the transport protocol of a source. Only KindHTTPIndex is
// implemented today; the others are reserved for gateway implementations that
// do not exist yet.
type Kind string

const (
	KindHTTPIndex Kind = "http-index"
	KindS3        Kind = "s3"
	KindFTP       Kind = "ftp"
	KindAPI       Kind = "api"
)

// AuthMode selects how a source's credentials are presented to the provider.
type AuthMode string

const (
	// AuthNone sends no Authorization header.
	AuthNone AuthMode = "none"
	// AuthBasic sends standard HTTP basic auth built from username/password.
	AuthBasic AuthMode = "basic"
	// AuthBearerHeader sends a pre-built Authorization value verbatim, for
	// providers with non-standard schemes.
	AuthBearerHeader AuthMode = "bearer-header"
)

// Valid reports whether m is a known auth mode.
func (m AuthMode) Valid() bool {
	switch m {
	case AuthNone, AuthBasic, AuthBearerHeader:
		return true
	}
	return false
}

// Source is the domain type for a configured camera feed. The Cursor is the
// filename of the last file that was successfully ingested; it is nil before
// the first successful pull.
type Source struct {
	ID           string
	Name         string
	BaseURL      string
	Kind         Kind
	AuthMode     AuthMode
	Credentials  Credentials
	Enabled      bool
	Cursor       *string
	LastPulledAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateParams contains the fields used to create a source.
type CreateParams struct {
	Name        string
	BaseURL     string
	Kind        Kind
	AuthMode    AuthMode
	Credentials Credentials
	Enabled     bool
}

// Repository defines the persistence interface for sources.
type Repository interface {
	// Create inserts a new source and returns it with its assigned ID.
	Create(ctx context.Context, params CreateParams) (*Source, error)

	// Get returns a source by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Source, error)

	// List returns all sources, optionally filtered by enabled state.
	// Pass nil to return all sources regardless of enabled status.
	List(ctx context.Context, enabled *bool) ([]Source, error)

	// ListEnabled returns the sources eligible for scheduled sweeps.
	ListEnabled(ctx context.Context) ([]Source, error)

	// SetEnabled flips a source's enabled flag.
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// UpdateCursor writes the cursor and last-pull timestamp in a single
	// statement. Both fields move together or not at all.
	UpdateCursor(ctx context.Context, id string, cursor string, pulledAt time.Time) error
}
