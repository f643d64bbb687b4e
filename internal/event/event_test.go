package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMessageEvent_TypeFollowsFlow(t *testing.T) {
	in := NewMessage("A", Inbound, "x", t0)
	out := NewMessage("A", Outbound, "x", t0)

	assert.Equal(t, TypeChannelRead, in.Type())
	assert.Equal(t, TypeWrite, out.Type())
	assert.Equal(t, "ChannelRead", in.Type().String())
	assert.Equal(t, "Write", out.Type().String())
}

func TestMessageEvent_MessageRetainsForCaller(t *testing.T) {
	buf := NewBuffer([]byte("hello"))
	m := NewMessage("A", Inbound, buf, t0)

	got := m.Message()
	require.Same(t, buf, got)
	assert.Equal(t, int32(2), buf.RefCnt(), "Message() must retain")

	require.NoError(t, Release(got))
	assert.Equal(t, int32(1), buf.RefCnt(), "inspect+release is net zero")
}

func TestMessageEvent_SetMessageReleasesOld(t *testing.T) {
	oldBuf := NewBuffer([]byte("old"))
	newBuf := NewBuffer([]byte("new!"))
	m := NewMessage("A", Inbound, oldBuf, t0)

	require.NoError(t, m.SetMessage(newBuf))

	assert.Equal(t, int32(0), oldBuf.RefCnt())
	assert.Equal(t, int32(1), newBuf.RefCnt())
	assert.Equal(t, 4, m.Describe().Size)
}

func TestMessageEvent_SetMessageSamePayloadIsNetZero(t *testing.T) {
	buf := NewBuffer([]byte("same"))
	m := NewMessage("A", Inbound, buf, t0)

	// Editor hands the same object back: caller retains for the new owner.
	require.NoError(t, Retain(buf))
	require.NoError(t, m.SetMessage(buf))

	assert.Equal(t, int32(1), buf.RefCnt())
}

func TestMessageEvent_SetMessageAfterExecuteFails(t *testing.T) {
	m := NewMessage("A", Inbound, "v1", t0)
	require.NoError(t, m.Resolve(t0.Add(time.Second), func(any) error { return nil }))

	err := m.SetMessage("v2")
	require.Error(t, err)
	assert.True(t, IsAlreadyExecuted(err))
	assert.Equal(t, "v1", m.Describe().Text)
}

func TestResolve_MarksExecutedOnce(t *testing.T) {
	m := NewMessage("A", Inbound, "payload", t0)
	at := t0.Add(time.Second)

	var got any
	require.NoError(t, m.Resolve(at, func(p any) error {
		got = p
		return nil
	}))

	assert.Equal(t, "payload", got)
	assert.True(t, m.IsExecuted())
	ts, ok := m.ExecutionTime()
	require.True(t, ok)
	assert.Equal(t, at, ts)

	calls := 0
	err := m.Resolve(at.Add(time.Hour), func(any) error {
		calls++
		return nil
	})
	assert.True(t, IsAlreadyExecuted(err))
	assert.Zero(t, calls, "fn must not run for resolved events")

	ts2, _ := m.ExecutionTime()
	assert.Equal(t, at, ts2, "execution time must not change")
}

func TestResolve_FailureLeavesEventPending(t *testing.T) {
	buf := NewBuffer([]byte("keep"))
	m := NewMessage("A", Inbound, buf, t0)

	boom := errors.New("boom")
	err := m.Resolve(t0, func(any) error { return boom })
	require.ErrorIs(t, err, boom)

	assert.False(t, m.IsExecuted())
	_, ok := m.ExecutionTime()
	assert.False(t, ok)
	assert.Equal(t, int32(1), buf.RefCnt())

	got := m.Message()
	require.Same(t, buf, got, "payload must still be retrievable for retry")
	require.NoError(t, Release(got))
}

func TestResolve_InFlightResolutionIsExclusive(t *testing.T) {
	buf := NewBuffer([]byte("abc"))
	m := NewMessage("A", Inbound, buf, t0)

	require.NoError(t, m.Resolve(t0, func(p any) error {
		// the event lock is free here; readers see a pending event
		assert.False(t, m.IsExecuted())
		assert.Nil(t, m.Message())
		assert.Equal(t, 3, m.Describe().Size)

		err := m.Resolve(t0, func(any) error { return nil })
		assert.Equal(t, ErrCodeAlreadyExecuted, CodeOf(err))

		other := NewBuffer([]byte("x"))
		assert.Equal(t, ErrCodeAlreadyExecuted, CodeOf(m.SetMessage(other)))
		assert.NoError(t, other.Release())
		return Release(p)
	}))
	assert.True(t, m.IsExecuted())
}

func TestResolve_RollbackAfterInFlightFailure(t *testing.T) {
	m := NewUserEvent("A", "v", t0)

	boom := errors.New("boom")
	require.ErrorIs(t, m.Resolve(t0, func(any) error { return boom }), boom)
	require.NoError(t, m.Resolve(t0, func(any) error { return nil }), "failed resolution can be retried")
	assert.True(t, m.IsExecuted())
}

func TestResolve_ClampsExecutionTime(t *testing.T) {
	m := NewMessage("A", Inbound, "x", t0)
	require.NoError(t, m.Resolve(t0.Add(-time.Minute), func(any) error { return nil }))

	ts, ok := m.ExecutionTime()
	require.True(t, ok)
	assert.False(t, ts.Before(m.EventTime()))
}

func TestResolve_MessageOwnershipLeavesEvent(t *testing.T) {
	buf := NewBuffer([]byte("abc"))
	m := NewMessage("A", Inbound, buf, t0)

	require.NoError(t, m.Resolve(t0, Release))

	assert.Equal(t, int32(0), buf.RefCnt())
	assert.Nil(t, m.Message())
	info := m.Describe()
	assert.Equal(t, "*event.Buffer", info.TypeName)
	assert.Equal(t, 3, info.Size)
}

func TestExceptionEvent(t *testing.T) {
	cause := errors.New("connection reset by peer")
	e := NewException("B", cause, "", t0)

	assert.Equal(t, TypeExceptionCaught, e.Type())
	assert.Equal(t, "connection reset by peer", e.Cause())

	var delivered any
	require.NoError(t, e.Resolve(t0, func(p any) error {
		delivered = p
		return nil
	}))
	assert.Same(t, cause, delivered)
}

func TestExceptionEvent_TextOnly(t *testing.T) {
	e := NewException("B", nil, "java.io.IOException: reset\n\tat Foo.bar", t0)
	assert.EqualError(t, e.Err(), "java.io.IOException: reset\n\tat Foo.bar")
}

func TestUserAndMarkerEvents(t *testing.T) {
	u := NewUserEvent("A", InputShutdown{}, t0)
	assert.Equal(t, TypeUserEventTriggered, u.Type())
	assert.Equal(t, InputShutdown{}, u.Value())

	active := NewMarker("A", ChannelActive, t0)
	inactive := NewMarker("A", ChannelInactive, t0)
	assert.Equal(t, TypeChannelActive, active.Type())
	assert.Equal(t, TypeChannelInactive, inactive.Type())
	assert.Equal(t, "ChannelInactive", inactive.Marker().String())
}

func TestError_Format(t *testing.T) {
	err := ErrInvalidIndex(7, 3)
	assert.Equal(t, "INVALID_INDEX: index out of range [0, 3) (index=7)", err.Error())
	assert.True(t, IsInvalidIndex(err))

	wrapped := WrapError(ErrCodeDeliveryFailure, "deliver", errors.New("closed")).AtIndex(2).OnChannel("A")
	assert.Equal(t, "DELIVERY_FAILURE: deliver (index=2) (channel=A): closed", wrapped.Error())
	assert.True(t, IsDeliveryFailure(errors.Join(errors.New("outer"), wrapped)))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}
