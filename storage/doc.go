// Package storage provides interfaces and shared record types for rate-limit
// and scheduled-job persistence.
//
// The storage package defines the core storage interfaces used throughout the
// authguard library:
//   - RateLimitStore: fixed-window counters keyed by opaque string
//   - JobStore: one-shot and recurring scheduled jobs
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development, testing, and
//     single-instance deployments
//   - storage/valkey: Valkey/Redis-compatible distributed storage for
//     deployments that must survive restarts or share state across instances
package storage
