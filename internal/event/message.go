package event

import "time"

// MessageEvent is a message flowing through the pipeline. The payload is a
// *Buffer, a []byte, or any decoded object.
type MessageEvent struct {
	base
	flow    Flow
	payload any

	// info describes the payload once ownership has left the event.
	info PayloadInfo
}

// NewMessage creates a pending message event. The event takes over the
// caller's reference to payload.
func NewMessage(channelID string, flow Flow, payload any, at time.Time) *MessageEvent {
	return &MessageEvent{
		base:    base{channelID: channelID, eventTime: at},
		flow:    flow,
		payload: payload,
	}
}

// Type implements Event.
func (m *MessageEvent) Type() Type {
	if m.flow == Outbound {
		return TypeWrite
	}
	return TypeChannelRead
}

// Flow returns whether the message was read or is being written.
func (m *MessageEvent) Flow() Flow {
	return m.flow
}

// Message returns the current payload, retained for the caller. The caller
// must Release what it does not keep.
//
// Returns nil once resolution has started: the payload then belongs to the
// pipeline, or has been released.
func (m *MessageEvent) Message() any {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.executed || m.resolving {
		return nil
	}
	if err := Retain(m.payload); err != nil {
		return nil
	}
	return m.payload
}

// SetMessage replaces the payload. The event takes over the caller's
// reference to p and releases its reference to the previous payload.
//
// Calling SetMessage on an executed event is a programming error: it returns
// an ALREADY_EXECUTED error and changes nothing, and p is still owned by the
// caller. The same holds while a resolution is in flight.
func (m *MessageEvent) SetMessage(p any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.executed {
		return NewError(ErrCodeAlreadyExecuted, "set message on resolved event").OnChannel(m.channelID)
	}
	if m.resolving {
		return NewError(ErrCodeAlreadyExecuted, "set message during resolution").OnChannel(m.channelID)
	}

	old := m.payload
	m.payload = p
	if err := Release(old); err != nil {
		return WrapError(ErrCodeRefCount, "release replaced payload", err).OnChannel(m.channelID)
	}
	return nil
}

// Describe summarizes the payload without transferring a reference.
// Pending events describe their live payload, resolved events the payload
// they held at resolution.
func (m *MessageEvent) Describe() PayloadInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.executed || m.resolving {
		return m.info
	}
	return Describe(m.payload)
}

// Resolve implements Event. fn receives the payload together with the
// event's reference to it, and runs without the event's lock held.
func (m *MessageEvent) Resolve(at time.Time, fn func(payload any) error) error {
	m.mu.Lock()
	if err := m.beginLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	p := m.payload
	m.info = Describe(p)
	m.mu.Unlock()

	err := fn(p)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.endLocked(at, err); err != nil {
		return err
	}
	m.payload = nil
	return nil
}
