// Package postgres implements the source registry on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/perchwatch/server/internal/domain/sources"
)

// Compile-time interface assertion.
var _ sources.Repository = (*SourceRepository)(nil)

// SourceRepository implements sources.Repository using PostgreSQL.
type SourceRepository struct {
	pool *pgxpool.Pool
}

// NewSourceRepository creates a new SourceRepository.
func NewSourceRepository(pool *pgxpool.Pool) *SourceRepository {
	return &SourceRepository{pool: pool}
}

const sourceColumns = `id, name, base_url, kind, auth_mode,
	COALESCE(auth_username, ''), COALESCE(auth_password, ''), COALESCE(auth_header, ''),
	enabled, cursor, last_pulled_at, created_at, updated_at`

// Create inserts a new source with a fresh ULID.
func (r *SourceRepository) Create(ctx context.Context, params sources.CreateParams) (*sources.Source, error) {
	id := ulid.Make().String()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO sources (id, name, base_url, kind, auth_mode, auth_username, auth_password, auth_header, enabled)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9)
		RETURNING `+sourceColumns,
		id, params.Name, params.BaseURL, string(params.Kind), string(params.AuthMode),
		params.Credentials.Username, params.Credentials.Password, params.Credentials.HeaderValue,
		params.Enabled,
	)

	src, err := scanSource(row)
	if err != nil {
		return nil, fmt.Errorf("create source %q: %w", params.Name, err)
	}
	return src, nil
}

// Get returns a source by ID.
func (r *SourceRepository) Get(ctx context.Context, id string) (*sources.Source, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)

	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sources.ErrNotFound
		}
		return nil, fmt.Errorf("get source %q: %w", id, err)
	}
	return src, nil
}

// List returns all sources ordered by name, optionally filtered by enabled
// state.
func (r *SourceRepository) List(ctx context.Context, enabled *bool) ([]sources.Source, error) {
	var enabledParam pgtype.Bool
	if enabled != nil {
		enabledParam = pgtype.Bool{Bool: *enabled, Valid: true}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE ($1::boolean IS NULL OR enabled = $1)
		ORDER BY name`,
		enabledParam,
	)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []sources.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, *src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return out, nil
}

// ListEnabled returns the sources eligible for scheduled sweeps.
func (r *SourceRepository) ListEnabled(ctx context.Context) ([]sources.Source, error) {
	enabled := true
	return r.List(ctx, &enabled)
}

// SetEnabled flips a source's enabled flag.
func (r *SourceRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sources SET enabled = $2, updated_at = NOW() WHERE id = $1`,
		id, enabled,
	)
	if err != nil {
		return fmt.Errorf("set enabled for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return sources.ErrNotFound
	}
	return nil
}

// UpdateCursor writes the cursor and last-pull timestamp together. A single
// UPDATE keeps the pair atomic; a run can never leave one field moved and
// the other stale.
func (r *SourceRepository) UpdateCursor(ctx context.Context, id string, cursor string, pulledAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sources SET cursor = $2, last_pulled_at = $3, updated_at = NOW() WHERE id = $1`,
		id, cursor, pgtype.Timestamptz{Time: pulledAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("update cursor for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return sources.ErrNotFound
	}
	return nil
}

// scanSource reads one source row.
func scanSource(row pgx.Row) (*sources.Source, error) {
	var (
		src        sources.Source
		kind       string
		authMode   string
		cursor     pgtype.Text
		lastPulled pgtype.Timestamptz
	)

	err := row.Scan(
		&src.ID, &src.Name, &src.BaseURL, &kind, &authMode,
		&src.Credentials.Username, &src.Credentials.Password, &src.Credentials.HeaderValue,
		&src.Enabled, &cursor, &lastPulled, &src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	src.Kind = sources.Kind(kind)
	src.AuthMode = sources.AuthMode(authMode)
	if cursor.Valid {
		src.Cursor = &cursor.String
	}
	if lastPulled.Valid {
		t := lastPulled.Time
		src.LastPulledAt = &t
	}
	return &src, nil
}
