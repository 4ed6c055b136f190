// Package prometheus renders goThrottle engine metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] wraps a [goThrottle.Engine] and exposes an
// [http.Handler] to mount at /metrics. Counters are named gothrottle_*_total
// and the check latency histogram is gothrottle_check_latency_seconds. Nothing
// is registered in a global registry and engine state is never mutated.
package prometheus
