package goThrottle

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goThrottle/internal/rate"
	"go.opentelemetry.io/otel/attribute"
)

var errSwapRetriesExhausted = errors.New("compare-and-swap retries exhausted")

// CheckAndRecord counts one attempt of action by identifier and reports
// whether it may proceed.
//
// Attempts 1..MaxAttempts inside a window are allowed. The next attempt is
// denied and starts a block of BlockDuration; every call during the block is
// denied without touching the store. A window that has elapsed (and is not
// blocked) starts over.
//
// An unknown action returns [ErrConfiguration] before any store access. If
// the decision cannot be written the call returns a denial with
// [ErrPersistence]. Under [FailClosed] a failed read returns a denial with
// [ErrStoreUnavailable].
func (e *Engine) CheckAndRecord(ctx context.Context, identifier, action string) (decision Decision, err error) {
	ctx, span := e.startSpan(ctx, "CheckAndRecord", attribute.String("throttle.action", action))
	defer func() {
		span.SetAttributes(
			attribute.Bool("throttle.allowed", decision.Allowed),
			attribute.Int("throttle.remaining", decision.RemainingAttempts),
		)
		endSpan(span, err)
	}()

	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricCheckLatency, time.Since(start))
		}()
	}

	rules, err := e.resolve(identifier, action)
	if err != nil {
		return Decision{}, err
	}

	e.maybeSweep(ctx)

	key := rate.Key(e.config.Namespace, action, identifier)
	unlock := e.locks.Lock(key)
	defer unlock()

	for attempt := 0; attempt < e.config.Storage.MaxCASRetries; attempt++ {
		raw, current, readFailed, loadErr := e.load(ctx, key, action)
		if loadErr != nil {
			e.metricInc(MetricCheckDenied)
			return Decision{}, loadErr
		}

		now := e.clock.Now().UnixMilli()
		outcome, next := rate.Record(current, rules, now)
		if next != nil {
			ok, writeErr := e.persist(ctx, key, raw, readFailed, next, rules, now)
			if writeErr != nil {
				return e.persistFailed(ctx, key, identifier, action, writeErr)
			}
			if !ok {
				e.metricInc(MetricCASConflict)
				continue
			}
		}
		return e.decided(ctx, identifier, action, outcome), nil
	}

	return e.persistFailed(ctx, key, identifier, action, errSwapRetriesExhausted)
}

func (e *Engine) decided(ctx context.Context, identifier, action string, o rate.Outcome) Decision {
	d := Decision{
		Allowed:           o.Allowed,
		RemainingAttempts: o.Remaining,
		ResetAt:           fromMillis(o.ResetAt),
	}
	if d.Allowed {
		e.metricInc(MetricCheckAllowed)
		return d
	}

	e.metricInc(MetricCheckDenied)
	eventType := AuditEventDenied
	if o.BlockStarted {
		e.metricInc(MetricBlockStarted)
		eventType = AuditEventBlocked
		e.logger.Info().
			Str("action", action).
			Int("attempts", o.Attempts).
			Time("blocked_until", d.ResetAt).
			Msg("block started")
	} else {
		e.metricInc(MetricDeniedWhileBlocked)
	}

	e.emitAudit(ctx, AuditEvent{
		EventType:  eventType,
		Action:     action,
		Identifier: identifier,
		Allowed:    false,
		Remaining:  0,
		ResetAt:    timePtr(d.ResetAt),
		Metadata:   map[string]string{"attempts": strconv.Itoa(o.Attempts)},
	})
	return d
}

func (e *Engine) persistFailed(ctx context.Context, key, identifier, action string, cause error) (Decision, error) {
	e.metricInc(MetricPersistFailure)
	e.metricInc(MetricCheckDenied)
	e.logger.Error().
		Err(cause).
		Str("action", action).
		Str("key_hash", keyHash(key)).
		Msg("throttle decision not persisted; denying")
	e.emitAudit(ctx, AuditEvent{
		EventType:  AuditEventPersistFailed,
		Action:     action,
		Identifier: identifier,
		Allowed:    false,
		Error:      cause.Error(),
	})
	return Decision{}, wrapPersistence(cause)
}

// GetStatus reports the state of (action, identifier) without recording an
// attempt. It never writes; a corrupt entry reads as absent.
func (e *Engine) GetStatus(ctx context.Context, identifier, action string) (status Status, err error) {
	ctx, span := e.startSpan(ctx, "GetStatus", attribute.String("throttle.action", action))
	defer func() {
		span.SetAttributes(
			attribute.Bool("throttle.allowed", status.Allowed),
			attribute.Int("throttle.remaining", status.RemainingAttempts),
		)
		endSpan(span, err)
	}()

	rules, err := e.resolve(identifier, action)
	if err != nil {
		return Status{Action: action, Identifier: identifier}, err
	}
	e.metricInc(MetricStatusQuery)

	key := rate.Key(e.config.Namespace, action, identifier)
	_, current, _, err := e.load(ctx, key, action)
	if err != nil {
		return Status{Action: action, Identifier: identifier}, err
	}

	o := rate.Peek(current, rules, e.clock.Now().UnixMilli())
	return Status{
		Action:            action,
		Identifier:        identifier,
		Attempts:          o.Attempts,
		RemainingAttempts: o.Remaining,
		Allowed:           o.Allowed,
		Blocked:           o.Blocked,
		ResetAt:           fromMillis(o.ResetAt),
		WindowEndsAt:      fromMillis(o.WindowEndsAt),
	}, nil
}

// Reset forgets (action, identifier), typically after a successful sign-in.
// Resetting an absent pair is not an error.
func (e *Engine) Reset(ctx context.Context, identifier, action string) (err error) {
	ctx, span := e.startSpan(ctx, "Reset", attribute.String("throttle.action", action))
	defer func() { endSpan(span, err) }()

	rules, err := e.resolve(identifier, action)
	if err != nil {
		return err
	}

	key := rate.Key(e.config.Namespace, action, identifier)
	unlock := e.locks.Lock(key)
	defer unlock()

	if err = e.store.Delete(ctx, key); err != nil {
		e.logger.Error().Err(err).Str("action", action).Str("key_hash", keyHash(key)).Msg("reset failed")
		return wrapPersistence(err)
	}

	e.metricInc(MetricReset)
	e.emitAudit(ctx, AuditEvent{
		EventType:  AuditEventReset,
		Action:     action,
		Identifier: identifier,
		Allowed:    true,
		Remaining:  rules.MaxAttempts,
	})
	return nil
}
