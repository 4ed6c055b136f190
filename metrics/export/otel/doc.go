// Package otel publishes goThrottle engine metrics through OpenTelemetry
// observable instruments.
//
// [NewOTelExporter] creates one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per latency bucket, then reads
// [goThrottle.Engine.MetricsSnapshot] from a single callback on every
// collection. The caller owns the MeterProvider.
package otel
