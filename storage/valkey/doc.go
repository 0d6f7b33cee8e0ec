// Package valkey implements the storage interfaces on top of a Valkey or
// Redis-compatible server using github.com/valkey-io/valkey-go.
//
// # Key Layout
//
//   - ag:rl:<key>  — JSON fixed-window record, TTL = window length
//   - ag:job:<id>  — JSON job record
//   - ag:jobs      — set of job IDs
//
// # Atomicity
//
// The fixed-window check-and-increment runs as a Lua script so that two
// concurrent authentication attempts against the same key, possibly from
// different processes, never observe the same count.
//
// # Restart Safety
//
// Rate-limit windows carry a server-side TTL equal to the window length.
// After a restart the store either finds a still-live window or nothing, so
// reloaded state can never under-restrict.
package valkey
