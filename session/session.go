// Package session implements the per-connection engine of the binary TCP
// protocol: it owns a socket, pumps bytes between the wire and two frame
// buffers, hands complete inbound frames to a Handler and serialises
// outbound frames queued by any number of goroutines.
//
// The receive pump and the send pump are independent. Each issues at most
// one I/O task at a time on an Executor and re-issues itself from the
// task's completion. Either pump may shut the session down; shutdown is
// terminal and happens exactly once.
package session

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/go-tcpsession/logger"
	"github.com/cyberinferno/go-tcpsession/packetbuffer"
)

// ErrSessionClosed is returned by Send once the socket is closed.
var ErrSessionClosed = errors.New("session is closed")

// Handler decodes and dispatches inbound frames. Handle is called only when
// buf holds a complete frame and must consume exactly that frame. It may call
// s.Send. Returning false shuts the receive direction down.
type Handler interface {
	Handle(s *Session, buf *packetbuffer.PacketBuffer) bool
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(s *Session, buf *packetbuffer.PacketBuffer) bool

// Handle calls f(s, buf).
func (f HandlerFunc) Handle(s *Session, buf *packetbuffer.PacketBuffer) bool {
	return f(s, buf)
}

// ShutdownHook is called once after the session's socket was closed.
type ShutdownHook func(s *Session, reason Reason)

// Option configures a Session.
type Option func(*Session)

// WithExecutor sets the executor that runs pump I/O. The default runs each
// task on a new goroutine.
func WithExecutor(e Executor) Option {
	return func(s *Session) {
		if e != nil {
			s.executor = e
		}
	}
}

// WithLogger sets the parent logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithConfig sets buffer sizing. Invalid sizes fall back to DefaultConfig.
func WithConfig(c Config) Option {
	return func(s *Session) {
		if c.Validate() == nil {
			s.config = c
		}
	}
}

// Session is one accepted (or dialed) connection.
//
// A Session is reference counted. New returns it holding one reference that
// belongs to the caller; every outstanding pump operation holds another.
// When the last reference is released the session shuts down, if still
// open, and Done is closed.
type Session struct {
	id       uint32
	conn     net.Conn
	handler  Handler
	executor Executor
	config   Config

	log       logger.Logger
	connLog   logger.Logger
	serverLog logger.Logger
	bufLog    logger.Logger

	open   atomic.Bool
	reason atomic.Int32

	// recvBuffer is touched only by the receive pump, which is sequential.
	recvBuffer *packetbuffer.PacketBuffer

	// mu guards sendBuffer and writing.
	mu         sync.RWMutex
	sendBuffer *packetbuffer.PacketBuffer
	writing    bool

	refs     atomic.Int32
	done     chan struct{}
	doneOnce sync.Once

	hooksMu sync.Mutex
	hooks   []ShutdownHook
	fired   bool

	value atomic.Value
}

// New creates a session that takes ownership of conn. The receive pump is
// not started; call PostReceive once the surrounding system is ready.
//
// Parameters:
//   - id: Identifier used in logs and by registries
//   - conn: The connected socket; closed by the session on shutdown
//   - handler: Dispatches inbound frames
//   - opts: Optional executor, logger and buffer configuration
//
// Returns:
//   - The open session, holding one reference owned by the caller
func New(id uint32, conn net.Conn, handler Handler, opts ...Option) *Session {
	s := &Session{
		id:       id,
		conn:     conn,
		handler:  handler,
		executor: defaultExecutor,
		config:   DefaultConfig(),
		log:      logger.NewNopLogger(),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	base := s.log.With(logger.Field{Key: "session_id", Value: id})
	s.connLog = logger.WithFilter(base, logger.FilterConnection)
	s.serverLog = logger.WithFilter(base, logger.FilterServer)
	s.bufLog = logger.WithFilter(base, logger.FilterPacketBuffer)

	s.recvBuffer = packetbuffer.New(s.config.ReceiveBufferSize)
	s.sendBuffer = packetbuffer.New(s.config.SendBufferSize)

	s.reason.Store(-1)
	s.refs.Store(1)
	s.open.Store(true)

	return s
}

// ID returns the session identifier.
func (s *Session) ID() uint32 {
	return s.id
}

// Conn returns the underlying socket, for address introspection and for
// the accept layer to tune it before the pumps start.
func (s *Session) Conn() net.Conn {
	return s.conn
}

// LocalAddr returns the local network address of the socket.
func (s *Session) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// RemoteAddr returns the peer's network address.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// IsOpen reports whether the socket is still open.
func (s *Session) IsOpen() bool {
	return s.open.Load()
}

// Reason returns why the session shut down.
//
// Returns:
//   - The recorded reason
//   - false while the session is still open
func (s *Session) Reason() (Reason, bool) {
	r := s.reason.Load()
	if r < 0 {
		return 0, false
	}

	return Reason(r), true
}

// SetValue attaches application state to the session.
func (s *Session) SetValue(v any) {
	s.value.Store(&v)
}

// Value returns the state stored by SetValue, or nil.
func (s *Session) Value() any {
	v, _ := s.value.Load().(*any)
	if v == nil {
		return nil
	}

	return *v
}

// OnShutdown registers a hook that runs once after the socket closes. A hook
// registered after shutdown runs immediately.
func (s *Session) OnShutdown(hook ShutdownHook) {
	s.hooksMu.Lock()
	if !s.fired {
		s.hooks = append(s.hooks, hook)
		s.hooksMu.Unlock()
		return
	}
	s.hooksMu.Unlock()

	reason, _ := s.Reason()
	hook(s, reason)
}

func (s *Session) runShutdownHooks(reason Reason) {
	s.hooksMu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.fired = true
	s.hooksMu.Unlock()

	for _, hook := range hooks {
		hook(s, reason)
	}
}

// Retain adds a reference unless the last one was already released. A
// released session cannot be revived.
//
// Returns:
//   - false if the reference count had already dropped to zero
func (s *Session) Retain() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}

		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference. Dropping the last one shuts the session down
// if it is still open and closes Done.
func (s *Session) Release() {
	switch n := s.refs.Add(-1); {
	case n == 0:
		s.shutdown(ReasonManual, ScopeBoth)
		s.doneOnce.Do(func() { close(s.done) })
	case n < 0:
		s.serverLog.Error("session released more times than retained",
			logger.Field{Key: "refs", Value: n})
	}
}

// Done is closed once the last reference is released, that is after the
// owner let go and no pump operation is outstanding.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
