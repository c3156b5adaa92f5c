package server

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Tyrowin/gosocket/internal/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type errorKey struct{}

type closeKey struct{}

// Conn wraps one WebSocket transport and turns its frames into typed
// messages. Inbound messages are decoded, keyed by their "type" field and
// dispatched to the listeners for that type on the connection's read
// goroutine, so listeners of one connection see messages in arrival order.
type Conn struct {
	id        string
	addr      string
	transport Transport
	log       *zap.Logger
	settings  connSettings
	metrics   *metrics
	limiter   *rateLimiter
	unlimited bool

	state atomic.Int32
	send  chan []byte

	inbound *events.Source[string, Message]
	errs    *events.Source[errorKey, error]
	closed  *events.Source[closeKey, *Conn]

	closeMu     sync.Mutex
	closedFired bool

	closeReq     chan struct{}
	closeReqOnce sync.Once
	listenOnce   sync.Once
	teardownOnce sync.Once
	done         chan struct{}
}

// NewConn wraps an open transport and starts its read and write pumps.
func NewConn(t Transport, opts ...ConnOption) *Conn {
	c := newConn(t, opts...)
	c.start()
	return c
}

// newConn builds a connection in the CONNECTING state. Nothing is read or
// written until start is called.
func newConn(t Transport, opts ...ConnOption) *Conn {
	c := &Conn{
		id:        uuid.NewString(),
		transport: t,
		log:       zap.L(),
		settings:  settingsFromConfig(defaultConfig()),
		closeReq:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	recoverOpt := events.WithRecover(c.recoverListener)
	c.inbound = events.New[string, Message](recoverOpt)
	c.errs = events.New[errorKey, error](recoverOpt)
	c.closed = events.New[closeKey, *Conn](recoverOpt)
	for _, opt := range opts {
		opt(c)
	}

	c.log = c.log.With(zap.String("conn_id", c.id), zap.String("remote_addr", c.addr))
	c.send = make(chan []byte, c.settings.sendBufferSize)
	if !c.unlimited {
		c.limiter = newRateLimiter(c.settings.rateLimit)
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// start opens the connection and launches both pumps.
func (c *Conn) start() {
	if c.open() {
		c.listen()
	}
}

// open moves the connection to OPEN and starts the write pump, which
// writes anything queued while CONNECTING first. Nothing is read until
// listen is called.
func (c *Conn) open() bool {
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		return false
	}
	c.transport.SetReadLimit(c.settings.maxMessageSize)
	go c.writePump()
	return true
}

// listen starts the read pump. Only the first call does anything.
func (c *Conn) listen() {
	c.listenOnce.Do(func() {
		go c.readPump()
	})
}

// markClosing moves an OPEN connection to CLOSING so further sends fail.
func (c *Conn) markClosing() {
	c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr returns the peer address, if known.
func (c *Conn) RemoteAddr() string {
	return c.addr
}

// State returns the current connection state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Done is closed once the connection reaches StateClosed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send encodes msg as JSON and queues it for writing. The encoded value
// must be an object with a non-empty string "type" field.
//
// Messages sent while CONNECTING are queued and written once the
// connection opens. Sending on a CLOSING or CLOSED connection returns
// ErrNotWritable; a full send queue returns ErrBufferFull.
func (c *Conn) Send(msg any) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	return c.sendRaw(data)
}

func (c *Conn) sendRaw(data []byte) error {
	if st := c.State(); !st.writable() {
		return &Error{Code: CodeNotWritable, Op: "send", Key: st.String()}
	}

	select {
	case c.send <- data:
		return nil
	default:
		return &Error{Code: CodeBufferFull, Op: "send"}
	}
}

// Subscribe registers fn for every inbound message of type typ.
func (c *Conn) Subscribe(typ string, fn func(Message)) *events.Subscription {
	return c.inbound.Subscribe(typ, fn)
}

// SubscribeOnce registers fn for the next inbound message of type typ only.
func (c *Conn) SubscribeOnce(typ string, fn func(Message)) *events.Subscription {
	return c.inbound.SubscribeOnce(typ, fn)
}

// Next waits for the next inbound message of type typ. It returns
// ErrClosed if the connection closes first, or ctx.Err() if ctx ends
// first; in both cases the registration is removed.
func (c *Conn) Next(ctx context.Context, typ string) (Message, error) {
	ch := make(chan Message, 1)
	sub := c.inbound.SubscribeOnce(typ, func(m Message) { ch <- m })
	defer sub.Unsubscribe()

	select {
	case m := <-ch:
		return m, nil
	case <-c.done:
		select {
		case m := <-ch:
			return m, nil
		default:
		}
		return Message{}, &Error{Code: CodeClosed, Op: "next", Key: typ}
	case <-ctx.Done():
		select {
		case m := <-ch:
			return m, nil
		default:
		}
		return Message{}, ctx.Err()
	}
}

// OnError registers fn for errors that do not end the connection on their
// own: malformed inbound messages, rate limiting, and transport failures
// reported just before a close.
func (c *Conn) OnError(fn func(error)) *events.Subscription {
	return c.errs.Subscribe(errorKey{}, fn)
}

// OnClose registers fn to run once when the connection is closed. If the
// connection is already closed fn runs immediately and the returned
// subscription is nil, which is safe to Unsubscribe.
func (c *Conn) OnClose(fn func(*Conn)) *events.Subscription {
	c.closeMu.Lock()
	if c.closedFired {
		c.closeMu.Unlock()
		fn(c)
		return nil
	}
	sub := c.closed.SubscribeOnce(closeKey{}, fn)
	c.closeMu.Unlock()
	return sub
}

// Close sends a close frame and waits until the peer answers it or the
// close grace period expires. Closing a closed connection returns nil. If
// ctx ends first the socket is torn down and ctx.Err() is returned.
//
// Close may be called from any listener, including one running on the
// connection's read goroutine. In that case the peer's answer cannot be
// read and Close returns once the grace period expires.
func (c *Conn) Close(ctx context.Context) error {
	if c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing)) {
		c.teardown()
		return nil
	}
	if c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		c.closeReqOnce.Do(func() { close(c.closeReq) })
	}
	// A connection closed from a connection listener has no read pump yet;
	// something has to read the peer's close frame.
	c.listen()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.teardown()
		return ctx.Err()
	}
}

// teardown moves the connection to CLOSED, releases the transport and
// notifies close observers. It runs once.
func (c *Conn) teardown() {
	c.teardownOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		c.closeTransport()
		close(c.done)

		c.closeMu.Lock()
		c.closedFired = true
		c.closeMu.Unlock()

		c.closed.Dispatch(closeKey{}, c)

		c.inbound.Clear()
		c.errs.Clear()
		c.closed.Clear()
		c.log.Debug("Connection closed")
	})
}

func (c *Conn) closeTransport() {
	if err := c.transport.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("Error closing transport", zap.Error(err))
	}
}

func (c *Conn) recoverListener(key any, r any) {
	c.log.Error("Recovered from panic in listener",
		zap.Any("event", key), zap.Any("panic", r))
}

func (c *Conn) reportError(err *Error) {
	if err.Code == CodeProtocol {
		c.metrics.protocolError()
	}
	c.errs.Dispatch(errorKey{}, err)
}
