package view

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mallet/internal/event"
	"github.com/roach88/mallet/internal/store"
	"github.com/roach88/mallet/internal/testutil"
)

type point struct{ X, Y int }

func TestSummary(t *testing.T) {
	at := testutil.Epoch

	tests := []struct {
		name string
		e    event.Event
		want string
	}{
		{"buffer", event.NewMessage("c", event.Inbound, event.NewBuffer([]byte("hello")), at), "Buffer (5 bytes)"},
		{"byte slice", event.NewMessage("c", event.Outbound, []byte{1, 2, 3}, at), "[]byte (3 bytes)"},
		{"string", event.NewMessage("c", event.Inbound, "GET /", at), "string (GET /)"},
		{"struct", event.NewMessage("c", event.Inbound, point{1, 2}, at), "point ({1 2})"},
		{"nil message", event.NewMessage("c", event.Inbound, nil, at), ""},
		{"input shutdown", event.NewUserEvent("c", event.InputShutdown{}, at), "Input Shutdown"},
		{"user event", event.NewUserEvent("c", "idle", at), "UserEvent idle"},
		{"nil user event", event.NewUserEvent("c", nil, at), "UserEvent (null)"},
		{"exception", event.NewException("c", errors.New("boom"), "", at), "boom"},
		{"exception trace", event.NewException("c", nil, "io: read failed\n\tat relay.read\n", at), "io: read failed"},
		{"exception crlf", event.NewException("c", nil, "first\r\nsecond", at), "first"},
		{"active", event.NewMarker("c", event.ChannelActive, at), ""},
		{"inactive", event.NewMarker("c", event.ChannelInactive, at), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summary(tt.e))
		})
	}
}

func TestSummary_NormalizesText(t *testing.T) {
	// "e" followed by a combining acute accent composes to "é"
	e := event.NewMessage("c", event.Inbound, "cafe\u0301", testutil.Epoch)
	assert.Equal(t, "string (caf\u00e9)", Summary(e))
}

func TestSummary_ResolvedMessageKeepsDescription(t *testing.T) {
	buf := event.NewBuffer([]byte("abcd"))
	e := event.NewMessage("c", event.Inbound, buf, testutil.Epoch)

	require.NoError(t, e.Resolve(testutil.Epoch, event.Release))

	assert.Equal(t, int32(0), buf.RefCnt())
	assert.Equal(t, "Buffer (4 bytes)", Summary(e))
}

func TestProject(t *testing.T) {
	s := store.New()
	at := testutil.Epoch
	client := event.NewMessage("client", event.Inbound, event.NewBuffer([]byte("ping")), at)
	server := event.NewMessage("server", event.Inbound, event.NewBuffer([]byte("pong!")), at.Add(time.Second))
	_, err := s.Append(client)
	require.NoError(t, err)
	_, err = s.Append(server)
	require.NoError(t, err)

	sent := at.Add(2 * time.Second)
	require.NoError(t, client.Resolve(sent, event.Release))

	rows, err := ProjectAll(s)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, Row{
		Index:     0,
		Received:  at,
		Sent:      &sent,
		Direction: "Client to Proxy",
		EventType: "ChannelRead",
		Value:     "Buffer (4 bytes)",
	}, rows[0])

	assert.Nil(t, rows[1].Sent, "pending rows have no sent time")
	assert.Equal(t, "Proxy to Server", rows[1].Direction)
	assert.Equal(t, "Buffer (5 bytes)", rows[1].Value)
}

func TestProject_InvalidIndex(t *testing.T) {
	_, err := Project(store.New(), 0)
	assert.True(t, event.IsInvalidIndex(err))
}

func TestWriteTable(t *testing.T) {
	at := testutil.Epoch
	sent := at.Add(1500 * time.Millisecond)
	rows := []Row{
		{Index: 0, Received: at, Sent: &sent, Direction: "Client to Proxy", EventType: "ChannelActive"},
		{Index: 1, Received: at.Add(time.Second), Direction: "Proxy to Server", EventType: "ChannelRead", Value: "Buffer (3 bytes)"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, rows))

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "Received")
	assert.Contains(t, string(lines[0]), "Event Type")
	assert.Contains(t, string(lines[1]), "12:00:00.000  12:00:01.500  Client to Proxy")
	assert.Contains(t, string(lines[2]), "Proxy to Server  ChannelRead")
	assert.Contains(t, string(lines[2]), "Buffer (3 bytes)")
}
