// Package store defines the keyed byte storage that throttling state lives
// in, plus in-memory, Redis and SQL implementations.
//
// # Contract
//
// [Store] is deliberately small: Get, Set, Delete and ListKeys over opaque
// byte values. Implementations that can also offer [Swapper] let the engine
// close the read-compute-write race across processes; without it the
// engine only serializes callers inside one process.
//
// Every implementation wraps backend I/O failures with [ErrUnavailable] and
// reports a missing key as [ErrNotFound].
//
// # What this package must NOT do
//
//   - Interpret stored values or know about attempts, windows or blocks.
//   - Import the root package or any internal package.
package store
