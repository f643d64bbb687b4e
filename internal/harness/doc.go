// Package harness runs interception scenarios against the real control
// core and snapshots the result.
//
// A scenario captures events into one connection, drives the control actor
// (select, edit, execute, drop) through engine.Focus, injects delivery
// faults into a recording pipeline, and asserts on the outcome. Every run
// uses a fake clock that advances one millisecond per step, so rows and
// golden files are byte-identical across runs.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	steps:
//	  - capture: { channel: client, kind: read, data: "GET /" }
//	  - select: 0
//	  - edit: "GET /admin"
//	  - fail: { call: 1 }
//	  - execute: { upto: 0, error: DELIVERY_FAILURE }
//	  - drop: {}
//	assertions:
//	  - type: pending
//	    count: 0
//	  - type: delivered
//	    payloads: ["GET /admin"]
//
// # Capture Kinds
//
//   - active, inactive: lifecycle markers
//   - read, write: inbound and outbound messages carrying data
//   - shutdown: the InputShutdown user event
//   - user: any other user event carrying value
//   - exception: a caught failure with error text
//
// # Assertion Types
//
//   - pending: exactly count events are still pending
//   - delivered: the pipeline received payloads, in order
//   - row: the row at index has the given value, direction or event type
//   - released: every captured buffer was freed exactly when resolved
//
// # Golden Files
//
// RunWithGolden compares the run's snapshot against
// testdata/golden/{name}.golden. To regenerate golden files, run:
//
//	go test ./internal/harness -update
package harness
