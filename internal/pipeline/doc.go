// Package pipeline provides an in-memory delivery target for resolved
// events.
//
// Recorder stands in for the live transport in scenarios and tests: it
// accepts payloads the way a channel pipeline would, keeps a copy of what it
// was handed, and releases the reference it received. Faults can be injected
// per call or per channel to exercise failure handling in the gate.
package pipeline
