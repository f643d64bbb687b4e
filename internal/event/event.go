package event

import (
	"sync"
	"time"
)

// Type is the discriminant of an event, shown in the "Event Type" column.
type Type int

const (
	// TypeChannelActive marks a channel becoming active.
	TypeChannelActive Type = iota + 1
	// TypeChannelInactive marks a channel closing.
	TypeChannelInactive
	// TypeChannelRead is an inbound message read from a channel.
	TypeChannelRead
	// TypeWrite is an outbound message written to a channel.
	TypeWrite
	// TypeExceptionCaught is a failure caught on a channel.
	TypeExceptionCaught
	// TypeUserEventTriggered is a pipeline-internal signal.
	TypeUserEventTriggered
)

var typeNames = map[Type]string{
	TypeChannelActive:      "ChannelActive",
	TypeChannelInactive:    "ChannelInactive",
	TypeChannelRead:        "ChannelRead",
	TypeWrite:              "Write",
	TypeExceptionCaught:    "ExceptionCaught",
	TypeUserEventTriggered: "UserEventTriggered",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// Flow is the pipeline direction of a message: read from the channel
// (inbound) or written to it (outbound).
type Flow int

const (
	// Inbound messages were read from the channel.
	Inbound Flow = iota
	// Outbound messages are being written to the channel.
	Outbound
)

// String implements fmt.Stringer.
func (f Flow) String() string {
	if f == Outbound {
		return "outbound"
	}
	return "inbound"
}

// Clock supplies wall-clock time for event and execution stamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Event is one captured occurrence on a proxied connection's pipeline.
//
// Events are immutable after construction except for the executed flag and
// execution time, which Resolve sets exactly once. The interface is sealed:
// the only implementations are *MessageEvent, *ExceptionEvent, *UserEvent
// and *MarkerEvent.
type Event interface {
	ChannelID() string
	EventTime() time.Time
	Type() Type
	IsExecuted() bool

	// ExecutionTime returns the time the event was resolved and true,
	// or the zero time and false while the event is pending.
	ExecutionTime() (time.Time, bool)

	// Resolve atomically resolves the event. It calls fn with the event's
	// deliverable payload; if fn fails the event is left untouched and the
	// error is returned. Otherwise the event is marked executed at
	// max(at, EventTime()) and any message payload leaves the event.
	//
	// Returns an ALREADY_EXECUTED error, without calling fn, if the event
	// was resolved before.
	Resolve(at time.Time, fn func(payload any) error) error

	sealed()
}

// base holds the fields shared by every variant.
type base struct {
	channelID string
	eventTime time.Time

	mu            sync.Mutex
	executed      bool
	resolving     bool
	executionTime time.Time
}

// ChannelID returns the identifier of the channel the event was captured on.
func (b *base) ChannelID() string {
	return b.channelID
}

// EventTime returns the capture time.
func (b *base) EventTime() time.Time {
	return b.eventTime
}

// IsExecuted reports whether the event has been resolved. An event whose
// resolution is in flight is still pending.
func (b *base) IsExecuted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executed
}

// ExecutionTime returns the resolution time, if any.
func (b *base) ExecutionTime() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executionTime, b.executed
}

func (b *base) sealed() {}

// beginLocked claims the event for one resolution. Caller must hold b.mu.
func (b *base) beginLocked() error {
	if b.executed {
		return NewError(ErrCodeAlreadyExecuted, "event already resolved").OnChannel(b.channelID)
	}
	if b.resolving {
		return NewError(ErrCodeAlreadyExecuted, "resolution in progress").OnChannel(b.channelID)
	}
	b.resolving = true
	return nil
}

// endLocked commits the claimed resolution, or rolls it back when err is
// non-nil. Caller must hold b.mu.
func (b *base) endLocked(at time.Time, err error) error {
	b.resolving = false
	if err != nil {
		return err
	}
	if at.Before(b.eventTime) {
		at = b.eventTime
	}
	b.executed = true
	b.executionTime = at
	return nil
}

// resolve runs fn on payload without holding b.mu, so readers of the
// event never wait on a delivery.
func (b *base) resolve(at time.Time, payload any, fn func(any) error) error {
	b.mu.Lock()
	if err := b.beginLocked(); err != nil {
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	err := fn(payload)

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.endLocked(at, err)
}
