package relay

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mallet/internal/engine"
	"github.com/roach88/mallet/internal/event"
	"github.com/roach88/mallet/internal/store"
)

const waitFor = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// upstream is a test server that records what it receives and optionally
// echoes it back.
type upstream struct {
	ln   net.Listener
	echo bool

	mu   sync.Mutex
	recv bytes.Buffer
}

func startUpstream(t *testing.T, echo bool) *upstream {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	u := &upstream{ln: ln, echo: echo}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go u.serve(conn)
		}
	}()
	return u
}

func (u *upstream) serve(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			u.mu.Lock()
			u.recv.Write(buf[:n])
			u.mu.Unlock()
			if u.echo {
				_, _ = conn.Write(buf[:n])
			}
		}
		if err != nil {
			if tc, ok := conn.(*net.TCPConn); ok {
				_ = tc.CloseWrite()
			}
			return
		}
	}
}

func (u *upstream) received() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.recv.String()
}

// startRelay serves a relay to u and returns it with its client-facing address.
func startRelay(t *testing.T, u *upstream, intercept bool) (*Relay, string) {
	t.Helper()

	reg := engine.NewRegistry(nil, engine.WithRegistryLogger(discardLogger()))
	r := New(Options{
		Upstream:  u.ln.Addr().String(),
		Intercept: intercept,
		Logger:    discardLogger(),
	}, reg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("relay did not stop")
		}
	})
	return r, ln.Addr().String()
}

// waitConnection waits for the relay to register a connection with at
// least n events.
func waitConnection(t *testing.T, r *Relay, n int) *engine.Connection {
	t.Helper()
	var conn *engine.Connection
	require.Eventually(t, func() bool {
		list := r.Registry().List()
		if len(list) == 0 {
			return false
		}
		conn = list[0]
		return conn.Store.Size() >= n
	}, waitFor, 5*time.Millisecond)
	return conn
}

func TestRelay_Passthrough(t *testing.T) {
	u := startUpstream(t, true)
	r, addr := startRelay(t, u, false)

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, c.(*net.TCPConn).CloseWrite())

	require.NoError(t, c.SetReadDeadline(time.Now().Add(waitFor)))
	got, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))

	conn := waitConnection(t, r, 1)
	require.Eventually(t, conn.Store.Retired, waitFor, 5*time.Millisecond)
	assert.Equal(t, 0, conn.Store.PendingCount(), "passthrough executes everything")
}

func TestRelay_InterceptHoldsUntilExecuted(t *testing.T) {
	u := startUpstream(t, false)
	r, addr := startRelay(t, u, true)

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("hello"))
	require.NoError(t, err)

	conn := waitConnection(t, r, 3)

	e, err := conn.Store.Get(2)
	require.NoError(t, err)
	assert.Equal(t, event.TypeChannelRead, e.Type())
	dir, err := conn.Store.DirectionAt(2)
	require.NoError(t, err)
	assert.Equal(t, store.ClientToServer, dir, "client channel is recorded first")

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, u.received(), "held data is not forwarded")

	res, err := conn.Controller.ExecuteNextEvents(context.Background(), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Resolved)

	require.Eventually(t, func() bool { return u.received() == "hello" }, waitFor, 5*time.Millisecond)
}

func TestRelay_DroppedDataNeverArrives(t *testing.T) {
	u := startUpstream(t, false)
	r, addr := startRelay(t, u, true)

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("secret"))
	require.NoError(t, err)
	conn := waitConnection(t, r, 3)

	ctx := context.Background()
	_, err = conn.Controller.DropNextEvents(ctx, 2)
	require.NoError(t, err)

	_, err = c.Write([]byte("public"))
	require.NoError(t, err)
	waitConnection(t, r, 4)

	_, err = conn.Controller.ExecuteNextEvents(ctx, 3, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return u.received() == "public" }, waitFor, 5*time.Millisecond)
}

func TestRelay_EditedPayloadIsForwarded(t *testing.T) {
	u := startUpstream(t, false)
	r, addr := startRelay(t, u, true)

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("GET /"))
	require.NoError(t, err)
	conn := waitConnection(t, r, 3)

	e, err := conn.Store.Get(2)
	require.NoError(t, err)
	msg, ok := e.(*event.MessageEvent)
	require.True(t, ok)
	require.NoError(t, msg.SetMessage(event.NewBuffer([]byte("GET /admin"))))

	_, err = conn.Controller.ExecuteNextEvents(context.Background(), 2, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return u.received() == "GET /admin" }, waitFor, 5*time.Millisecond)
}

func TestRelay_DeliverUnknownChannel(t *testing.T) {
	reg := engine.NewRegistry(nil, engine.WithRegistryLogger(discardLogger()))
	r := New(Options{Logger: discardLogger()}, reg)

	err := r.Deliver(context.Background(), "nope", event.NewBuffer([]byte("x")))
	assert.Error(t, err)
}

func TestRelay_DialFailureClosesClient(t *testing.T) {
	// reserve a port and close it so the dial is refused
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := ln.Addr().String()
	ln.Close()

	reg := engine.NewRegistry(nil, engine.WithRegistryLogger(discardLogger()))
	r := New(Options{Upstream: dead, Intercept: true, Logger: discardLogger(), DialTimeout: time.Second}, reg)

	front, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Serve(ctx, front) }()

	c, err := net.Dial("tcp", front.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(waitFor)))
	_, err = c.Read(make([]byte, 1))
	assert.Error(t, err, "client is closed when upstream is unreachable")
	assert.Empty(t, reg.List(), "no connection registered")
}

// startGreeter serves a full-duplex upstream: it writes greeting without
// waiting for the client while counting everything it reads.
func startGreeter(t *testing.T, greeting []byte) (string, <-chan int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	read := make(chan int, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		wrote := make(chan struct{})
		go func() {
			defer close(wrote)
			_, _ = conn.Write(greeting)
			_ = conn.(*net.TCPConn).CloseWrite()
		}()
		n, _ := io.Copy(io.Discard, conn)
		read <- int(n)
		<-wrote
	}()
	return ln.Addr().String(), read
}

func TestRelay_SlowReaderDoesNotStallOtherDirection(t *testing.T) {
	const size = 16 << 20
	greeting := bytes.Repeat([]byte("g"), size)
	addr, upstreamRead := startGreeter(t, greeting)

	reg := engine.NewRegistry(nil, engine.WithRegistryLogger(discardLogger()))
	r := New(Options{Upstream: addr, Logger: discardLogger()}, reg)
	front, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Serve(ctx, front) }()

	c, err := net.Dial("tcp", front.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetDeadline(time.Now().Add(20*time.Second)))

	// the whole request goes out before the client reads anything, while
	// the upstream is still pushing its greeting
	_, err = c.Write(bytes.Repeat([]byte("r"), size))
	require.NoError(t, err, "request must not stall behind the unread greeting")
	require.NoError(t, c.(*net.TCPConn).CloseWrite())

	got, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, size, len(got))

	select {
	case n := <-upstreamRead:
		assert.Equal(t, size, n)
	case <-time.After(waitFor):
		t.Fatal("upstream did not see end of request")
	}
}

func TestRelay_DeliverQueuesForPeerWriter(t *testing.T) {
	u := startUpstream(t, false)
	r, addr := startRelay(t, u, true)

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("a"))
	require.NoError(t, err)
	conn := waitConnection(t, r, 3)

	e, err := conn.Store.Get(2)
	require.NoError(t, err)
	clientID := e.ChannelID()

	buf := event.NewBuffer([]byte("queued"))
	require.NoError(t, r.Deliver(context.Background(), clientID, buf))
	require.Eventually(t, func() bool { return u.received() == "queued" }, waitFor, 5*time.Millisecond)
	assert.Equal(t, int32(0), buf.RefCnt(), "writer releases what it wrote")
}
