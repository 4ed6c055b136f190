// Package internal holds code that is private to goThrottle.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate: entry codec, the window/block decision table, and key locks
//
// # What this package must NOT do
//
//   - Export types that appear in the public goThrottle API.
//   - Be imported by any package outside the goThrottle module.
package internal
