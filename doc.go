// Package goThrottle throttles repeated sensitive actions such as sign-in
// attempts, password-reset requests and verification-email resends.
//
// Each (action, identifier) pair owns one persisted entry: an attempt
// counter anchored to a fixed window, and an optional block deadline. The
// [Engine] records attempts, answers side-effect-free status queries,
// resets pairs, and sweeps expired entries. Policies come from a frozen
// policy.Registry; state lives in any store.Store.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. Writes to one key are serialized in-process and, when
// the store supports compare-and-swap, across processes as well.
//
// # Architecture boundaries
//
// goThrottle is the public surface: [Engine], [Builder], [Config], and the
// value types [Decision] and [Status]. The state machine and entry codec
// live in internal/rate and never touch storage; audit dispatch lives in
// internal/audit.
//
// # What this package must NOT do
//
//   - Silently fall back to a permissive policy for an unknown action.
//   - Report an attempt as counted when the write failed.
//   - Keep package-level limiter state. Engines are constructed and passed explicitly.
package goThrottle
