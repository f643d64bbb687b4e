// Package relay is the network side of the proxy: a TCP relay whose
// traffic is captured into per-connection event stores and only forwarded
// when the control actor resolves it.
//
// Each accepted client gets a connection in the registry and two channels:
// the client socket (recorded first, so it is Client to Proxy) and the
// upstream socket. Readers append every chunk as a message event; the
// relay's Deliver method queues resolved payloads for the opposite socket,
// whose writer goroutine drains the queue. A reader pauses while its peer's
// queue is above the high-water mark, so a slow socket throttles its source
// instead of the control actor.
//
// Lifecycle events follow the socket:
//   - ChannelActive for both channels on accept
//   - InputShutdown when a peer half-closes; delivering it half-closes the
//     other side
//   - ExceptionCaught on read errors
//   - ChannelInactive for both channels once both readers stop; delivering it
//     closes that channel's socket
package relay
