// Package audit relays throttling events to a sink without blocking the
// decision path.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON writer, zerolog, no-op).
//   - [Dispatcher]: buffered async relay; drops or waits when the buffer is full.
//   - [Event]: one record: type, action, identifier, outcome, reset time.
//
// # What this package must NOT do
//
//   - Decide which events to emit. The engine does that.
//   - Import the root package or any sibling internal package.
package audit
