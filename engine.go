package goThrottle

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goThrottle/clock"
	"github.com/MrEthical07/goThrottle/internal/audit"
	"github.com/MrEthical07/goThrottle/internal/rate"
	"github.com/MrEthical07/goThrottle/policy"
	"github.com/MrEthical07/goThrottle/store"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Engine throttles (action, identifier) pairs against a shared store.
//
// Engine instances are built once through [Builder] and are safe for
// concurrent use. Call Close to stop background cleanup and flush audit events.
type Engine struct {
	config   Config
	store    store.Store
	swapper  store.Swapper
	registry *policy.Registry
	clock    clock.Clock
	logger   zerolog.Logger
	tracer   trace.Tracer
	metrics  *Metrics
	audit    *audit.Dispatcher
	locks    rate.Locks

	// lastSweep is the epoch-ms start of the last opportunistic sweep.
	lastSweep atomic.Int64

	closed    atomic.Bool
	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// Close stops the background sweeper and drains pending audit events.
// It is safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.stop)
		e.wg.Wait()
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped returns how many audit events were discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// Namespace returns the key namespace.
func (e *Engine) Namespace() string {
	return e.config.Namespace
}

// Actions lists the registered actions in sorted order.
func (e *Engine) Actions() []string {
	return e.registry.Actions()
}

// Policy returns the rules registered for action.
func (e *Engine) Policy(action string) (policy.Policy, error) {
	p, err := e.registry.Lookup(action)
	if err != nil {
		return policy.Policy{}, wrapConfiguration(err)
	}
	return p, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

/*
====================================
SHARED HELPERS
====================================
*/

// resolve validates the call and returns the rules for action. It never
// touches the store.
func (e *Engine) resolve(identifier, action string) (rate.Rules, error) {
	if e.closed.Load() {
		return rate.Rules{}, ErrEngineClosed
	}
	p, err := e.registry.Lookup(action)
	if err != nil {
		e.metricInc(MetricConfigurationError)
		return rate.Rules{}, wrapConfiguration(err)
	}
	if identifier == "" {
		return rate.Rules{}, ErrInvalidIdentifier
	}
	return rate.RulesFor(p), nil
}

// load reads and decodes the entry at key. raw is the stored value as read
// (nil when absent) and is the compare value for a later swap. A corrupt
// value yields a nil entry with raw set so the next write replaces it.
// Under FailOpen a read failure yields a nil entry with readFailed set; the
// stored value is unknown, so there is nothing to compare against.
func (e *Engine) load(ctx context.Context, key, action string) (raw []byte, entry *rate.Entry, readFailed bool, err error) {
	raw, err = e.store.Get(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return nil, nil, false, nil
	default:
		e.metricInc(MetricStoreReadFailure)
		if e.config.ReadFailureMode == FailClosed {
			e.logger.Warn().Err(err).Str("action", action).Str("key_hash", keyHash(key)).Msg("store read failed; denying")
			return nil, nil, true, wrapUnavailable(err)
		}
		e.logger.Warn().Err(err).Str("action", action).Str("key_hash", keyHash(key)).Msg("store read failed; treating entry as absent")
		return nil, nil, true, nil
	}

	entry, err = rate.Decode(raw)
	if err != nil {
		e.metricInc(MetricCorruptEntry)
		e.logger.Warn().Err(err).Str("action", action).Str("key_hash", keyHash(key)).Msg("discarding corrupt entry")
		return raw, nil, false, nil
	}
	return raw, entry, false, nil
}

// persist writes next in place of old. It reports false on a swap conflict.
// A blind write skips the compare and overwrites whatever is stored.
func (e *Engine) persist(ctx context.Context, key string, old []byte, blind bool, next *rate.Entry, r rate.Rules, now int64) (bool, error) {
	data, err := rate.Encode(next)
	if err != nil {
		return false, err
	}

	var ttl time.Duration
	if e.config.Storage.ExpireEntries {
		ttl = next.TTL(now, r)
	}

	if e.swapper != nil && !blind {
		return e.swapper.CompareAndSwap(ctx, key, old, data, ttl)
	}
	if err := e.store.Set(ctx, key, data, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return e.tracer.Start(ctx, "goThrottle."+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func keyHash(key string) string {
	return strconv.FormatUint(xxhash.Sum64String(key), 16)
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
