// Package middleware exposes HTTP adapters that put a goThrottle.Engine in
// front of sensitive routes such as login or password reset.
//
// # Adapters
//
//   - [Guard] wraps a net/http handler.
//   - [GinGuard] is the same guard as a gin.HandlerFunc.
//
// Each guard extracts an identifier from the request, calls
// Engine.CheckAndRecord, and either forwards the request with the
// [goThrottle.Decision] in its context or rejects it:
//
//   - 429 with a Retry-After header when the attempt is denied.
//   - 503 when the limiter store failed.
//   - 500 when the action is not registered.
//   - 400 when the request carries no identifier.
//
// Handlers reach the engine through goThrottle.EngineFromContext, which lets
// a login handler call Engine.Reset after a successful sign-in.
//
// # What this package must NOT do
//
//   - Decide on its own whether an attempt is allowed (delegates to Engine).
//   - Access the store (Engine handles I/O).
package middleware
