// Package engine implements the interception control core: the execution
// gate that resolves held events and the per-connection controller that
// external actors call.
//
// ARCHITECTURE:
//
// Two roles touch a connection:
//   - the network goroutine, which only appends events (Connection.Capture)
//   - one control actor (UI, control API, automation), which reads the store
//     and resolves events through the Controller
//
// Resolution Flow:
//  1. Caller invokes DropNextEvent(s) / ExecuteNextEvent(s) on the Controller
//  2. The Controller takes the per-connection lock: one resolution in flight
//  3. Execute commits an in-progress edit (PendingEdit) into its event
//  4. The Gate walks pending events in store order up to the boundary
//  5. Each event is resolved atomically: delivered to the Pipeline, or released
//  6. Listeners, metrics and the decision journal are told about each resolution
//
// CRITICAL PATTERNS:
//
// Strict order: the gate only ever resolves the leading pending events of a
// store, never an arbitrary subset. Network protocols must be forwarded or
// dropped in capture order.
//
// Fail fast: the first failure aborts the call. Events before it are
// resolved, the failed event is untouched (payload retrievable for retry),
// events after it are still pending. The Result reports partial progress.
//
// At-most-once: a resolved event is never resolved again. Retrying a
// DELIVERY_FAILURE blindly may double-send; callers should surface it.
package engine
