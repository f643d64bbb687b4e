// Package journal provides a SQLite-backed audit log of interception
// decisions.
//
// Every resolution attempt the execution gate makes (executed, dropped or
// failed) is appended as one row. Rows carry metadata only: connection,
// index, logical seq, channel, event type, outcome, times and payload size.
// Payload bytes are never written.
//
// # Ordering
//
//   - All listings use the logical seq of the event, NEVER wall-clock time
//   - Queries include ORDER BY seq ASC, id ASC so repeated reads agree
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package journal
