// Package instrumentation provides OpenTelemetry metrics and tracing
// for the authentication service.
//
// Instrumentation is optional: when disabled, no-op providers are used
// and recording a metric costs nothing. Callers obtain meters and
// tracers per scope ("service", "tokens", "providers", "storage") and
// record against the pre-built instruments in Metrics.
package instrumentation
