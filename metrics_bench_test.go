package goThrottle

import (
	"testing"
	"time"
)

// checkPaths lists the counters one CheckAndRecord call bumps, per outcome.
var checkPaths = [...][]MetricID{
	{MetricCheckAllowed},
	{MetricCheckAllowed},
	{MetricCheckAllowed},
	{MetricCheckDenied, MetricBlockStarted},
	{MetricCheckDenied, MetricDeniedWhileBlocked},
	{MetricStatusQuery},
	{MetricReset},
}

func recordPath(m *Metrics, ids []MetricID) {
	for _, id := range ids {
		m.Inc(id)
	}
}

func BenchmarkMetricsCheckPath(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		recordPath(m, checkPaths[i%len(checkPaths)])
	}
}

func BenchmarkMetricsCheckPathDisabled(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		recordPath(m, checkPaths[i%len(checkPaths)])
	}
}

func BenchmarkMetricsCheckPathParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		idx := 0
		for pb.Next() {
			recordPath(m, checkPaths[idx])
			m.Observe(MetricCheckLatency, time.Duration(idx+1)*300*time.Microsecond)
			idx++
			if idx == len(checkPaths) {
				idx = 0
			}
		}
	})
}

// A sweep bumps the run counter once and adds its removal count.
func BenchmarkMetricsCleanupSweepParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		var removed uint64
		for pb.Next() {
			m.Inc(MetricCleanupRun)
			m.Add(MetricCleanupRemoved, removed%17)
			removed++
		}
	})
}

func BenchmarkMetricsSnapshotUnderLoad(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				recordPath(m, checkPaths[i%len(checkPaths)])
			}
		}
	}()
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = m.Snapshot()
	}

	b.StopTimer()
	close(stop)
	<-done
}
