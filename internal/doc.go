// Package internal documents the camera-feed sync server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem rendering, and routing
// - domain: source models and repository contracts
// - gateway: listing and fetching from external sources
// - sync: cursor tracking, per-source runs, sweeps, and scheduling
// - storage: database access and repositories (pgx + Postgres)
// - audit, config, metrics, validation: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
