// Package store provides the per-connection event store: the single source
// of truth for what happened on a proxied connection and what is still
// pending.
//
// The store is an append-only list:
//   - the network goroutine appends events as traffic occurs
//   - control actors read, render and resolve events in place
//   - nothing is ever removed; resolution flips an event's executed flag
//
// # Ordering
//
// Indices are stable for the lifetime of the store. Every append is stamped
// with a strictly increasing logical sequence number from a Clock, and event
// times must be non-decreasing within a store.
//
// # Change Notification
//
// Observers learn about insertions and in-place updates through Subscribe
// (synchronous callbacks) or Watch (buffered channel that never blocks the
// appending goroutine). Each Change carries the affected index range.
//
// # Direction
//
// Direction is derived, not stored: an event travels client to server when
// its channel matches the channel of the first event in the store. The first
// recorded channel is assumed to be the client-facing side.
package store
