package goThrottle

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goThrottle/internal/rate"
	"github.com/MrEthical07/goThrottle/store"
	"go.opentelemetry.io/otel/attribute"
)

// CleanupExpired deletes every entry in the namespace whose window has
// elapsed and whose block (if any) has ended, plus every corrupt entry. It
// returns the number of entries removed.
//
// Entries are checked and deleted under the same per-key lock and
// compare-and-delete used by CheckAndRecord, so a concurrent attempt is
// never lost. Keys for actions that are no longer registered are left alone.
func (e *Engine) CleanupExpired(ctx context.Context) (removed int, err error) {
	ctx, span := e.startSpan(ctx, "CleanupExpired")
	defer func() {
		span.SetAttributes(attribute.Int("throttle.removed", removed))
		endSpan(span, err)
	}()

	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	if purger, ok := e.store.(store.Purger); ok {
		purged, purgeErr := purger.PurgeExpired(ctx)
		if purgeErr != nil {
			return 0, wrapUnavailable(purgeErr)
		}
		removed += int(purged)
	}

	keys, err := e.store.ListKeys(ctx, rate.Prefix(e.config.Namespace))
	if err != nil {
		return removed, wrapUnavailable(err)
	}

	var failures []error
	for _, key := range keys {
		if ctxErr := ctx.Err(); ctxErr != nil {
			failures = append(failures, ctxErr)
			break
		}

		action, _, ok := rate.ParseKey(e.config.Namespace, key)
		if !ok {
			continue
		}
		p, lookupErr := e.registry.Lookup(action)
		if lookupErr != nil {
			e.logger.Debug().Str("action", action).Msg("skipping entry for unregistered action")
			continue
		}

		deleted, sweepErr := e.sweepKey(ctx, key, rate.RulesFor(p))
		if sweepErr != nil {
			failures = append(failures, sweepErr)
			continue
		}
		if deleted {
			removed++
		}
	}

	e.metricInc(MetricCleanupRun)
	e.metrics.Add(MetricCleanupRemoved, uint64(removed))
	e.logger.Debug().Int("scanned", len(keys)).Int("removed", removed).Msg("cleanup finished")
	if removed > 0 {
		e.emitAudit(ctx, AuditEvent{
			EventType: AuditEventCleanup,
			Allowed:   true,
			Metadata:  map[string]string{"removed": strconv.Itoa(removed)},
		})
	}

	if len(failures) > 0 {
		return removed, wrapPersistence(errors.Join(failures...))
	}
	return removed, nil
}

// sweepKey deletes key if its entry is expired or corrupt.
func (e *Engine) sweepKey(ctx context.Context, key string, r rate.Rules) (bool, error) {
	unlock := e.locks.Lock(key)
	defer unlock()

	raw, err := e.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	entry, decodeErr := rate.Decode(raw)
	if decodeErr == nil && !entry.Expired(e.clock.Now().UnixMilli(), r) {
		return false, nil
	}
	if decodeErr != nil {
		e.metricInc(MetricCorruptEntry)
	}

	if e.swapper != nil {
		return e.swapper.CompareAndDelete(ctx, key, raw)
	}
	if err := e.store.Delete(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

// maybeSweep runs CleanupExpired at most once per OpportunisticInterval.
// Only the caller that wins the timestamp swap pays for the sweep.
func (e *Engine) maybeSweep(ctx context.Context) {
	interval := e.config.Cleanup.OpportunisticInterval
	if interval <= 0 {
		return
	}

	now := e.clock.Now().UnixMilli()
	last := e.lastSweep.Load()
	if last != 0 && now-last < interval.Milliseconds() {
		return
	}
	if !e.lastSweep.CompareAndSwap(last, now) {
		return
	}

	if _, err := e.CleanupExpired(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("opportunistic cleanup failed")
	}
}

func (e *Engine) startJanitor(interval time.Duration) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-e.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				removed, err := e.CleanupExpired(ctx)
				cancel()
				if err != nil && !errors.Is(err, ErrEngineClosed) {
					e.logger.Warn().Err(err).Msg("periodic cleanup failed")
					continue
				}
				if removed > 0 {
					e.logger.Debug().Int("removed", removed).Msg("periodic cleanup")
				}
			}
		}
	}()
}
