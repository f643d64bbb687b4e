// Package event defines the records captured from a proxied connection's
// pipeline and the ownership rules for their payloads.
//
// # Variants
//
// Event is a closed set of four variants:
//
//   - *MessageEvent: a message read from or written to a channel
//   - *ExceptionEvent: a failure caught on a channel, with its rendered cause
//   - *UserEvent: a pipeline-internal signal such as InputShutdown
//   - *MarkerEvent: connection lifecycle bookkeeping (active / inactive)
//
// The interface is sealed; callers match variants with a type switch.
//
// # Resolution
//
// An event is pending until it is resolved exactly once, either by
// delivering its payload into the live pipeline or by dropping it. Resolve
// is atomic per event: either the callback succeeds and the event becomes
// executed, or the event is left exactly as it was.
//
// # Payload Ownership
//
// Payloads implementing RefCounted have exactly one logical owner at any
// time. Every transfer is paired with a Retain or Release:
//
//   - Message() retains for the caller; the caller releases what it does not keep
//   - SetMessage takes over the caller's reference and releases the old payload
//   - a successful delivery hands the event's reference to the pipeline
//   - a drop releases the event's reference
package event
