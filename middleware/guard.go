package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	goThrottle "github.com/MrEthical07/goThrottle"
)

type decisionContextKey struct{}

// DecisionFromContext returns the decision the guard made for this request.
func DecisionFromContext(ctx context.Context) (goThrottle.Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(goThrottle.Decision)
	return d, ok
}

// RemainingHeader carries the attempts left in the window on allowed requests.
const RemainingHeader = "X-Throttle-Remaining"

// Guard returns middleware that counts one attempt of action per request,
// keyed by identify, and rejects requests the engine denies.
func Guard(engine *goThrottle.Engine, action string, identify Identifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := goThrottle.WithClientIP(r.Context(), ClientIP(r))
			res := evaluate(ctx, engine, action, identify(r))
			if !res.pass {
				res.writeHeaders(w.Header())
				writeJSON(w, res.status, res.body)
				return
			}

			w.Header().Set(RemainingHeader, strconv.Itoa(res.decision.RemainingAttempts))
			ctx = goThrottle.WithEngine(ctx, engine)
			ctx = context.WithValue(ctx, decisionContextKey{}, res.decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type errorBody struct {
	Error      string `json:"error"`
	RetryAfter string `json:"retry_after,omitempty"`
}

type result struct {
	pass       bool
	status     int
	body       errorBody
	retryAfter time.Duration
	decision   goThrottle.Decision
}

func (r result) writeHeaders(h http.Header) {
	if r.status == http.StatusTooManyRequests && r.retryAfter > 0 {
		h.Set("Retry-After", strconv.FormatInt(int64(math.Ceil(r.retryAfter.Seconds())), 10))
	}
}

// evaluate maps one engine call onto an HTTP outcome. Both adapters share it.
func evaluate(ctx context.Context, engine *goThrottle.Engine, action, identifier string) result {
	if engine == nil {
		return result{status: http.StatusServiceUnavailable, body: errorBody{Error: "throttle unavailable"}}
	}
	if identifier == "" {
		return result{status: http.StatusBadRequest, body: errorBody{Error: "missing identifier"}}
	}

	d, err := engine.CheckAndRecord(ctx, identifier, action)
	switch {
	case errors.Is(err, goThrottle.ErrConfiguration):
		return result{status: http.StatusInternalServerError, body: errorBody{Error: "throttle misconfigured"}}
	case err != nil:
		return result{status: http.StatusServiceUnavailable, body: errorBody{Error: "throttle unavailable"}}
	case !d.Allowed:
		wait := d.RetryAfter(engine.Now())
		return result{
			status:     http.StatusTooManyRequests,
			body:       errorBody{Error: "too many attempts", RetryAfter: goThrottle.FormatDuration(wait)},
			retryAfter: wait,
			decision:   d,
		}
	}
	return result{pass: true, status: http.StatusOK, decision: d}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
