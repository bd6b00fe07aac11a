// Package telemetry provides logging, metrics, and tracing for the
// reconciler.
//
// Logging is structured via zerolog, metrics are Prometheus collectors
// behind an optional HTTP endpoint, and tracing uses the OpenTelemetry SDK
// with a stdout exporter for local debugging. The tracer provider is
// installed globally; components acquire tracers through otel.Tracer.
package telemetry
