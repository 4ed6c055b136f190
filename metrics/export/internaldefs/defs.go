package internaldefs

import (
	goThrottle "github.com/MrEthical07/goThrottle"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goThrottle.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goThrottle.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: goThrottle.MetricCheckAllowed, Name: "gothrottle_check_allowed_total", Help: "CheckAndRecord calls that were allowed."},
	{ID: goThrottle.MetricCheckDenied, Name: "gothrottle_check_denied_total", Help: "CheckAndRecord calls that were denied."},
	{ID: goThrottle.MetricBlockStarted, Name: "gothrottle_block_started_total", Help: "Denials that started a new block."},
	{ID: goThrottle.MetricDeniedWhileBlocked, Name: "gothrottle_denied_while_blocked_total", Help: "Denials against an already active block."},
	{ID: goThrottle.MetricStatusQuery, Name: "gothrottle_status_query_total", Help: "GetStatus calls."},
	{ID: goThrottle.MetricReset, Name: "gothrottle_reset_total", Help: "Reset calls that reached the store."},
	{ID: goThrottle.MetricCleanupRun, Name: "gothrottle_cleanup_run_total", Help: "Completed cleanup sweeps."},
	{ID: goThrottle.MetricCleanupRemoved, Name: "gothrottle_cleanup_removed_total", Help: "Entries deleted by cleanup sweeps."},
	{ID: goThrottle.MetricCorruptEntry, Name: "gothrottle_corrupt_entry_total", Help: "Stored values that failed to decode."},
	{ID: goThrottle.MetricStoreReadFailure, Name: "gothrottle_store_read_failure_total", Help: "Failed store reads."},
	{ID: goThrottle.MetricPersistFailure, Name: "gothrottle_persist_failure_total", Help: "Decisions that could not be persisted."},
	{ID: goThrottle.MetricCASConflict, Name: "gothrottle_cas_conflict_total", Help: "Compare-and-swap conflicts that forced a retry."},
	{ID: goThrottle.MetricConfigurationError, Name: "gothrottle_configuration_error_total", Help: "Calls rejected for an unknown action."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goThrottle.MetricCheckLatency, Name: "gothrottle_check_latency_seconds", Help: "CheckAndRecord latency histogram."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const (
	AuditDroppedName = "gothrottle_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramBounds are the Prometheus "le" labels matching the engine buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names the per-bucket OTel instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the eight engine buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into "less than or equal" totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
