package engine

import "context"

// Pipeline is the live transport a connection's resolved events are handed
// back to.
//
// Deliver forwards payload on the outbound path of channelID. It must be
// callable from the control actor's goroutine, not just the network one, and
// is fire-and-forget from the gate's point of view: a nil error means the
// pipeline accepted the payload, not that it reached the peer.
//
// Ownership: on success the pipeline owns the reference it was handed and
// must Release ref-counted payloads once written. On error ownership stays
// with the caller, so the event can be retried or dropped.
type Pipeline interface {
	Deliver(ctx context.Context, channelID string, payload any) error
}

// PipelineFunc adapts a function to the Pipeline interface.
type PipelineFunc func(ctx context.Context, channelID string, payload any) error

// Deliver implements Pipeline.
func (f PipelineFunc) Deliver(ctx context.Context, channelID string, payload any) error {
	return f(ctx, channelID, payload)
}
