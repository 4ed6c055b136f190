// Package policy maps named actions to throttling rules.
//
// A [Registry] is populated once at startup and then frozen; lookups after
// that point are read-only and safe for concurrent use. [Defaults] returns
// the stock table for login, password-reset and resend-verification.
//
// # What this package must NOT do
//
//   - Touch storage or keep per-identifier state.
//   - Fall back to a permissive policy for an unknown action.
package policy
