package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/mallet/internal/engine"
	"github.com/roach88/mallet/internal/event"
)

// Options configures a Relay.
type Options struct {
	// Upstream is the address every client connection is relayed to.
	Upstream string

	// Intercept holds events for the control actor. When false every event
	// is executed as soon as it is captured.
	Intercept bool

	DialTimeout time.Duration
	ReadBuffer  int

	// WriteTimeout bounds each socket write made by a channel's writer.
	WriteTimeout time.Duration

	// WriteQueue is the number of delivered payloads a channel buffers
	// before Deliver waits for its writer.
	WriteQueue int

	// HighWater pauses reading from a socket while its peer has at least
	// this many bytes queued for writing.
	HighWater int

	Clock  event.Clock
	Logger *slog.Logger
}

// Relay accepts client connections and relays them to Upstream through the
// interception core. It implements engine.Pipeline.
//
// Thread-safety: all methods are safe for concurrent use.
type Relay struct {
	opts     Options
	registry *engine.Registry
	logger   *slog.Logger

	mu       sync.Mutex
	channels map[string]*channel

	wg sync.WaitGroup
}

var errChannelClosed = errors.New("channel writer stopped")

// channel is one socket of a relayed connection. Writes to the socket go
// through send and are made by the channel's writer goroutine only.
type channel struct {
	id   string
	conn net.Conn
	peer *channel

	send   chan outbound
	queued atomic.Int64
	space  chan struct{}

	quit     chan struct{}
	quitOnce sync.Once

	// mu serializes enqueue against the writer shutting down.
	mu     sync.Mutex
	closed bool
}

// outbound is one queued write. The writer owns buf once it is queued.
type outbound struct {
	data     []byte
	buf      *event.Buffer
	shutdown bool
	close    bool
}

func (o outbound) size() int {
	if o.buf != nil {
		return o.buf.Len()
	}
	return len(o.data)
}

func newChannel(id string, conn net.Conn, queue int) *channel {
	return &channel{
		id:    id,
		conn:  conn,
		send:  make(chan outbound, queue),
		space: make(chan struct{}, 1),
		quit:  make(chan struct{}),
	}
}

// enqueue hands out to the writer. On error the caller keeps ownership.
func (ch *channel) enqueue(ctx context.Context, out outbound) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return errChannelClosed
	}
	n := int64(out.size())
	ch.queued.Add(n)
	select {
	case ch.send <- out:
		return nil
	case <-ch.quit:
		ch.queued.Add(-n)
		return errChannelClosed
	case <-ctx.Done():
		ch.queued.Add(-n)
		return ctx.Err()
	}
}

// stop makes the writer exit once its current write returns.
func (ch *channel) stop() {
	ch.quitOnce.Do(func() { close(ch.quit) })
}

// drain closes the queue and releases whatever is still in it.
func (ch *channel) drain() {
	ch.stop()
	ch.mu.Lock()
	ch.closed = true
	ch.mu.Unlock()

	for {
		select {
		case out := <-ch.send:
			if out.buf != nil {
				_ = out.buf.Release()
			}
		default:
			return
		}
	}
}

// dequeued accounts for a finished write and wakes a paused reader.
func (ch *channel) dequeued(n int) {
	ch.queued.Add(-int64(n))
	select {
	case ch.space <- struct{}{}:
	default:
	}
}

// waitWritable blocks while at least limit bytes are queued on ch.
func (ch *channel) waitWritable(ctx context.Context, limit int64) {
	for ch.queued.Load() >= limit {
		select {
		case <-ch.space:
		case <-ch.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

// New creates a relay capturing into reg. The relay becomes reg's pipeline.
func New(opts Options, reg *engine.Registry) *Relay {
	if opts.Clock == nil {
		opts.Clock = event.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "relay")
	}
	if opts.ReadBuffer <= 0 {
		opts.ReadBuffer = 32 * 1024
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.WriteQueue <= 0 {
		opts.WriteQueue = 256
	}
	if opts.HighWater <= 0 {
		opts.HighWater = 1 << 20
	}

	r := &Relay{
		opts:     opts,
		registry: reg,
		logger:   opts.Logger,
		channels: make(map[string]*channel),
	}
	reg.SetPipeline(r)
	return r
}

// Registry returns the registry connections are captured into.
func (r *Relay) Registry() *engine.Registry {
	return r.registry
}

// Serve accepts connections on ln until ctx is cancelled, then closes every
// relayed socket and waits for readers to stop.
func (r *Relay) Serve(ctx context.Context, ln net.Listener) error {
	r.logger.Info("relay listening", "addr", ln.Addr().String(), "upstream", r.opts.Upstream, "intercept", r.opts.Intercept)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		client, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				r.closeAll()
				r.wg.Wait()
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.handle(ctx, client)
		}()
	}
}

// handle dials upstream for client and runs both readers.
func (r *Relay) handle(ctx context.Context, client net.Conn) {
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, r.opts.DialTimeout)
	server, err := d.DialContext(dialCtx, "tcp", r.opts.Upstream)
	cancel()
	if err != nil {
		r.logger.Warn("upstream dial failed", "upstream", r.opts.Upstream, "error", err)
		client.Close()
		return
	}

	s := r.open(client, server)
	s.logger.Info("connection relayed", "client", client.RemoteAddr().String())

	s.capture(ctx, s.client, func(ch string, at time.Time) event.Event {
		return event.NewMarker(ch, event.ChannelActive, at)
	})
	s.capture(ctx, s.server, func(ch string, at time.Time) event.Event {
		return event.NewMarker(ch, event.ChannelActive, at)
	})

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.read(ctx, s.client)
	}()
	go func() {
		defer readers.Done()
		s.read(ctx, s.server)
	}()
	readers.Wait()

	for _, ch := range []*channel{s.client, s.server} {
		s.capture(ctx, ch, func(id string, at time.Time) event.Event {
			return event.NewMarker(id, event.ChannelInactive, at)
		})
	}
	r.registry.Close(s.conn.ID)
}

// open registers a connection and its two channels.
func (r *Relay) open(client, server net.Conn) *session {
	conn := r.registry.Accept()
	c := newChannel(r.registry.NewChannelID(), client, r.opts.WriteQueue)
	u := newChannel(r.registry.NewChannelID(), server, r.opts.WriteQueue)
	c.peer, u.peer = u, c

	r.mu.Lock()
	r.channels[c.id] = c
	r.channels[u.id] = u
	r.mu.Unlock()

	r.wg.Add(2)
	go r.writePump(c)
	go r.writePump(u)

	return &session{
		relay:  r,
		conn:   conn,
		client: c,
		server: u,
		logger: r.logger.With("connection", conn.ID),
	}
}

func (r *Relay) lookup(channelID string) (*channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[channelID]
	return ch, ok
}

func (r *Relay) forget(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, channelID)
}

func (r *Relay) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.channels {
		ch.conn.Close()
		ch.stop()
	}
}

// Deliver implements engine.Pipeline. Payloads captured on a channel are
// queued for its peer's writer; lifecycle payloads act on the sockets in
// queue order. Deliver does not wait for the socket: a nil error means the
// writer owns the payload.
func (r *Relay) Deliver(ctx context.Context, channelID string, payload any) error {
	ch, ok := r.lookup(channelID)
	if !ok {
		return fmt.Errorf("deliver: unknown channel %s", channelID)
	}

	switch p := payload.(type) {
	case *event.Buffer:
		return ch.peer.enqueue(ctx, outbound{buf: p})
	case []byte:
		return ch.peer.enqueue(ctx, outbound{data: p})
	case string:
		return ch.peer.enqueue(ctx, outbound{data: []byte(p)})
	case event.InputShutdown:
		return ch.peer.enqueue(ctx, outbound{shutdown: true})
	case event.Marker:
		if p != event.ChannelInactive {
			return nil
		}
		err := ch.enqueue(ctx, outbound{close: true})
		if err != nil && !errors.Is(err, errChannelClosed) {
			return fmt.Errorf("close channel: %w", err)
		}
		r.forget(ch.id)
		return nil
	case error:
		r.logger.Debug("exception forwarded", "channel", channelID, "cause", p)
		return nil
	default:
		return fmt.Errorf("deliver: unsupported payload %T", payload)
	}
}

// writePump writes ch's queue to its socket until the queue asks for a
// close, a write fails, or the relay shuts down.
func (r *Relay) writePump(ch *channel) {
	defer r.wg.Done()
	defer ch.drain()

	for {
		select {
		case out := <-ch.send:
			done, err := r.flush(ch, out)
			if err != nil {
				r.logger.Warn("channel write failed", "channel", ch.id, "error", err)
				ch.conn.Close()
				return
			}
			if done {
				return
			}
		case <-ch.quit:
			return
		}
	}
}

// flush performs one queued write. It reports whether the socket is closed.
func (r *Relay) flush(ch *channel, out outbound) (bool, error) {
	defer ch.dequeued(out.size())

	switch {
	case out.close:
		if err := ch.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			r.logger.Debug("close channel", "channel", ch.id, "error", err)
		}
		return true, nil
	case out.shutdown:
		return false, closeWrite(ch.conn)
	}

	data := out.data
	if out.buf != nil {
		data = out.buf.Bytes()
		defer func() {
			if err := out.buf.Release(); err != nil {
				r.logger.Warn("release written buffer", "channel", ch.id, "error", err)
			}
		}()
	}
	if err := ch.conn.SetWriteDeadline(time.Now().Add(r.opts.WriteTimeout)); err != nil {
		return false, fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := ch.conn.Write(data); err != nil {
		return false, fmt.Errorf("write: %w", err)
	}
	return false, nil
}

// closeWrite half-closes conn, or closes it when half-close is unsupported.
func closeWrite(conn net.Conn) error {
	if hc, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := hc.CloseWrite(); err != nil {
			return fmt.Errorf("half-close: %w", err)
		}
		return nil
	}
	return conn.Close()
}

// session is one relayed connection.
type session struct {
	relay  *Relay
	conn   *engine.Connection
	client *channel
	server *channel
	logger *slog.Logger

	// mu keeps event times ordered across the two readers.
	mu sync.Mutex
}

// capture appends the event built by mk and, when not intercepting,
// executes it straight away.
func (s *session) capture(ctx context.Context, ch *channel, mk func(channelID string, at time.Time) event.Event) {
	s.mu.Lock()
	at := s.relay.opts.Clock.Now()
	e := mk(ch.id, at)
	idx, err := s.conn.Capture(ctx, e)
	s.mu.Unlock()
	if err != nil {
		// never stored: discard it, releasing its payload
		_ = e.Resolve(at, event.Release)
		return
	}

	if s.relay.opts.Intercept {
		return
	}
	if _, err := s.conn.Controller.ExecuteNextEvents(context.WithoutCancel(ctx), idx, nil); err != nil {
		s.logger.Warn("passthrough delivery failed", "index", idx, "error", err)
	}
}

// read captures everything ch's socket produces until it stops.
func (s *session) read(ctx context.Context, ch *channel) {
	buf := make([]byte, s.relay.opts.ReadBuffer)
	limit := int64(s.relay.opts.HighWater)
	for {
		// hold off reading while the other side is not keeping up
		ch.peer.waitWritable(ctx, limit)

		n, err := ch.conn.Read(buf)
		if n > 0 {
			data := event.CopyBuffer(buf[:n])
			s.capture(ctx, ch, func(id string, at time.Time) event.Event {
				return event.NewMessage(id, event.Inbound, data, at)
			})
		}
		if err == nil {
			continue
		}

		switch {
		case errors.Is(err, io.EOF):
			s.capture(ctx, ch, func(id string, at time.Time) event.Event {
				return event.NewUserEvent(id, event.InputShutdown{}, at)
			})
		case errors.Is(err, net.ErrClosed):
			// closed locally by a delivered ChannelInactive or shutdown
		default:
			s.capture(ctx, ch, func(id string, at time.Time) event.Event {
				return event.NewException(id, err, "", at)
			})
		}
		return
	}
}
