// Package logstore is the application's structured event log: a
// capacity-bounded, newest-first, in-memory sequence of LogEntry values with a
// change notification broadcast on the event bus after every append.
//
// The store is a single shared instance handed to every component that needs
// to report something (task operations, the fault injector, the crash
// boundary, auth). Observers subscribe to EventAddress and re-read Snapshot on
// each notification; the payload is only a hint because the store may already
// have evicted older entries.
//
// Each entry is also encoded as JSON and handed to the configured sinks
// (console, NATS). Sink delivery is fire-and-forget: failures are ignored and
// a full worker queue drops the delivery rather than blocking Record.
package logstore
