// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authguard library.
//
// Instrumentation is optional: when Config.Enabled is false, no-op providers
// are used and every recording call is effectively free. Components accept a
// *Instrumentation and tolerate nil, so embedding applications that do not
// care about observability pay nothing.
//
// Meter and tracer scopes follow the package layout: "ratelimit", "security",
// "scheduler", "storage".
package instrumentation
