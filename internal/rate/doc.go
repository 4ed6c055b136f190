// Package rate holds the throttling state machine: the persisted [Entry],
// its wire encoding, the pure decision functions [Record] and [Peek], the
// key layout, and striped per-key locks.
//
// # Window semantics
//
// An entry anchors a fixed window at its first attempt. Attempts 1..max are
// allowed; the next attempt inside the window is denied and sets
// BlockedUntil. While blocked every check is denied without mutation. Once
// the window has elapsed and no block is active, the next attempt starts a
// fresh window.
//
// Keys are "<namespace>:<action>:<identifier>".
//
// # What this package must NOT do
//
//   - Perform I/O. Callers read and write the store.
//   - Resolve action names to policies.
package rate
