package event

import (
	"errors"
	"time"
)

// ExceptionEvent is a failure caught on a channel.
type ExceptionEvent struct {
	base
	cause     error
	causeText string
}

// NewException creates a pending exception event. The cause is rendered
// once; text is used verbatim when non-empty (for example a stack trace).
func NewException(channelID string, cause error, text string, at time.Time) *ExceptionEvent {
	if text == "" && cause != nil {
		text = cause.Error()
	}
	return &ExceptionEvent{
		base:      base{channelID: channelID, eventTime: at},
		cause:     cause,
		causeText: text,
	}
}

// Type implements Event.
func (e *ExceptionEvent) Type() Type {
	return TypeExceptionCaught
}

// Cause returns the rendered cause.
func (e *ExceptionEvent) Cause() string {
	return e.causeText
}

// Err returns the cause as an error, rebuilt from the text if the event was
// created without one.
func (e *ExceptionEvent) Err() error {
	if e.cause != nil {
		return e.cause
	}
	return errors.New(e.causeText)
}

// Resolve implements Event. fn receives Err().
func (e *ExceptionEvent) Resolve(at time.Time, fn func(payload any) error) error {
	return e.resolve(at, e.Err(), fn)
}

// UserEvent is a pipeline-internal signal, such as InputShutdown.
type UserEvent struct {
	base
	value any
}

// NewUserEvent creates a pending user event.
func NewUserEvent(channelID string, value any, at time.Time) *UserEvent {
	return &UserEvent{base: base{channelID: channelID, eventTime: at}, value: value}
}

// Type implements Event.
func (u *UserEvent) Type() Type {
	return TypeUserEventTriggered
}

// Value returns the signal value.
func (u *UserEvent) Value() any {
	return u.value
}

// Resolve implements Event. fn receives Value().
func (u *UserEvent) Resolve(at time.Time, fn func(payload any) error) error {
	return u.resolve(at, u.value, fn)
}

// Marker identifies a lifecycle transition.
type Marker int

const (
	// ChannelActive is recorded when a channel is connected.
	ChannelActive Marker = iota + 1
	// ChannelInactive is recorded when a channel is closed.
	ChannelInactive
)

// String implements fmt.Stringer.
func (m Marker) String() string {
	switch m {
	case ChannelActive:
		return "ChannelActive"
	case ChannelInactive:
		return "ChannelInactive"
	default:
		return "Unknown"
	}
}

// MarkerEvent records a connection lifecycle transition.
type MarkerEvent struct {
	base
	marker Marker
}

// NewMarker creates a pending lifecycle marker.
func NewMarker(channelID string, marker Marker, at time.Time) *MarkerEvent {
	return &MarkerEvent{base: base{channelID: channelID, eventTime: at}, marker: marker}
}

// Type implements Event.
func (k *MarkerEvent) Type() Type {
	if k.marker == ChannelInactive {
		return TypeChannelInactive
	}
	return TypeChannelActive
}

// Marker returns the lifecycle transition.
func (k *MarkerEvent) Marker() Marker {
	return k.marker
}

// Resolve implements Event. fn receives Marker().
func (k *MarkerEvent) Resolve(at time.Time, fn func(payload any) error) error {
	return k.resolve(at, k.marker, fn)
}
