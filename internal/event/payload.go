package event

import (
	"fmt"
	"sync/atomic"
)

// RefCounted is a payload whose memory is reclaimed when its reference
// count reaches zero. Every Retain must be paired with a Release.
type RefCounted interface {
	Retain() error
	Release() error
	RefCnt() int32
}

// Retain increments p's reference count if p is RefCounted.
// Other payloads are returned unchanged with a nil error.
func Retain(p any) error {
	if rc, ok := p.(RefCounted); ok {
		return rc.Retain()
	}
	return nil
}

// Release decrements p's reference count if p is RefCounted.
func Release(p any) error {
	if rc, ok := p.(RefCounted); ok {
		return rc.Release()
	}
	return nil
}

// Buffer is a reference-counted byte buffer, the payload type the relay
// produces for every chunk it reads off a socket.
//
// A new Buffer starts with a count of one, owned by its creator.
// Thread-safety: the count is atomic; the bytes are not copied on Retain.
type Buffer struct {
	data []byte
	refs atomic.Int32
}

// NewBuffer wraps data in a Buffer with a reference count of one.
// The slice is not copied; the caller must not modify it afterwards.
func NewBuffer(data []byte) *Buffer {
	b := &Buffer{data: data}
	b.refs.Store(1)
	return b
}

// CopyBuffer copies data into a new Buffer with a reference count of one.
func CopyBuffer(data []byte) *Buffer {
	return NewBuffer(append([]byte(nil), data...))
}

// Bytes returns the buffer contents, or nil once the buffer is freed.
func (b *Buffer) Bytes() []byte {
	if b.refs.Load() <= 0 {
		return nil
	}
	return b.data
}

// Len returns the number of readable bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// RefCnt returns the current reference count.
func (b *Buffer) RefCnt() int32 {
	return b.refs.Load()
}

// Retain increments the reference count.
// Returns a REFCOUNT error if the buffer has already been freed.
func (b *Buffer) Retain() error {
	for {
		n := b.refs.Load()
		if n <= 0 {
			return NewError(ErrCodeRefCount, "retain of freed buffer")
		}
		if b.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release decrements the reference count, freeing the buffer at zero.
// Returns a REFCOUNT error if the buffer has already been freed.
func (b *Buffer) Release() error {
	for {
		n := b.refs.Load()
		if n <= 0 {
			return NewError(ErrCodeRefCount, "release of freed buffer")
		}
		if b.refs.CompareAndSwap(n, n-1) {
			return nil
		}
	}
}

// String implements fmt.Stringer.
func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer(len=%d, refCnt=%d)", len(b.data), b.refs.Load())
}

// InputShutdown is the user event fired when the remote peer half-closes
// its side of a channel.
type InputShutdown struct{}

// String implements fmt.Stringer.
func (InputShutdown) String() string {
	return "InputShutdown"
}

// PayloadInfo describes a message payload without holding a reference to it.
// It is captured when ownership leaves an event so executed rows can still
// be summarized.
type PayloadInfo struct {
	// TypeName is the Go type of the payload, empty for nil.
	TypeName string

	// Size is the readable byte count for byte payloads, -1 otherwise.
	Size int

	// Text is the payload's string form for non-byte payloads.
	Text string
}

// Describe builds the PayloadInfo for p.
// It reads p without retaining it; callers must hold a reference.
func Describe(p any) PayloadInfo {
	switch v := p.(type) {
	case nil:
		return PayloadInfo{Size: -1}
	case *Buffer:
		return PayloadInfo{TypeName: fmt.Sprintf("%T", v), Size: v.Len()}
	case []byte:
		return PayloadInfo{TypeName: fmt.Sprintf("%T", v), Size: len(v)}
	case string:
		return PayloadInfo{TypeName: fmt.Sprintf("%T", v), Size: -1, Text: v}
	default:
		return PayloadInfo{TypeName: fmt.Sprintf("%T", v), Size: -1, Text: fmt.Sprint(v)}
	}
}
