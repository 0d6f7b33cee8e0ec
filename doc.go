// Package authguard is the decision core that sits in front of a hosted
// authentication flow: rate limiting for credentialed actions, an
// append-only security event store with rule-based anomaly detection, and a
// recurring background-job scheduler that queues future notification work at
// sign-up time.
//
// The three services share a lifecycle (all driven by authentication
// events), a failure discipline (nothing here may fail the user-facing auth
// flow), and an injected Clock for deterministic time arithmetic.
//
// The Guard type wires the trio together for the common case; each service
// is also usable on its own via the ratelimit, security, and scheduler
// packages. Storage is pluggable through the storage package, with in-memory
// and Valkey implementations provided.
package authguard
