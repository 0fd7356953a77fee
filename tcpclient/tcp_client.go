// Package tcpclient dials outbound TCP connections and runs each one as a
// session.Session, so clients speak the same framed protocol as the server
// with the same receive and send pumps. Reconnecting is left to the caller.
package tcpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/go-tcpsession/logger"
	"github.com/cyberinferno/go-tcpsession/session"
)

// ErrClientClosed is returned by Connect after Close.
var ErrClientClosed = errors.New("client is closed")

// ErrAlreadyConnected is returned by Connect while a session is open.
var ErrAlreadyConnected = errors.New("client already connected")

// ConnectionState represents the current state of the client.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota // No open session
	Connecting                          // Dial in progress
	Connected                           // Session open and receiving
	Closed                              // Client closed; Connect fails
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Config holds the client connection settings.
type Config struct {
	// Address is the "host:port" to connect to.
	Address string `yaml:"address"`
	// ConnectionTimeout bounds the dial; 0 means only the context applies.
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	// Session sizes the frame buffers.
	Session session.Config `yaml:"session"`
}

// DefaultConfig returns a Config for address with a 10s dial timeout and
// session.DefaultConfig buffers.
//
// Parameters:
//   - address: The "host:port" to connect to
//
// Returns:
//   - A Config ready to pass to NewTCPClient
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ConnectionTimeout: 10 * time.Second,
		Session:           session.DefaultConfig(),
	}
}

// StateHandler is called on every state change. It runs on the goroutine
// that caused the change and must not block.
type StateHandler func(state ConnectionState, err error)

// TCPClient owns at most one session at a time.
type TCPClient struct {
	config   Config
	handler  session.Handler
	executor *session.GoExecutor
	log      logger.Logger

	mu      sync.Mutex
	sess    *session.Session
	closed  bool
	state   atomic.Int32
	onState StateHandler
	nextID  atomic.Uint32
}

// NewTCPClient creates a disconnected client.
//
// Parameters:
//   - config: Connection settings (e.g. from DefaultConfig)
//   - handler: Dispatches frames received from the server
//   - l: Parent logger; nil discards logs
//
// Returns:
//   - A new *TCPClient; call Connect to dial and Close when done
func NewTCPClient(config Config, handler session.Handler, l logger.Logger) *TCPClient {
	if l == nil {
		l = logger.NewNopLogger()
	}

	c := &TCPClient{
		config:   config,
		handler:  handler,
		executor: session.NewGoExecutor(),
		log:      logger.WithFilter(l, logger.FilterClient).With(logger.Field{Key: "address", Value: config.Address}),
	}
	c.state.Store(int32(Disconnected))
	return c
}

// OnConnectionState registers the state change handler, replacing any
// previous one. Pass nil to clear it.
func (c *TCPClient) OnConnectionState(h StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = h
}

// State returns the current connection state.
func (c *TCPClient) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Session returns the open session or nil.
func (c *TCPClient) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Connect dials the configured address and starts the session's receive
// pump.
//
// Parameters:
//   - ctx: Cancels the dial; the session outlives it
//
// Returns:
//   - The open session, or ErrClientClosed, ErrAlreadyConnected or the dial error
func (c *TCPClient) Connect(ctx context.Context) (*session.Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}

	if c.sess != nil {
		c.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	c.mu.Unlock()

	c.setState(Connecting, nil)

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		c.log.Error("client failed to connect", logger.Field{Key: "error", Value: err})
		c.setState(Disconnected, err)
		return nil, fmt.Errorf("connect to %s: %w", c.config.Address, err)
	}

	sess := session.New(c.nextID.Add(1), conn, c.handler,
		session.WithExecutor(c.executor),
		session.WithLogger(c.log),
		session.WithConfig(c.config.Session),
	)

	c.mu.Lock()
	if c.closed || c.sess != nil {
		closed := c.closed
		c.mu.Unlock()
		sess.Release()
		if closed {
			return nil, ErrClientClosed
		}
		return nil, ErrAlreadyConnected
	}
	c.sess = sess
	c.mu.Unlock()

	sess.OnShutdown(func(s *session.Session, _ session.Reason) {
		c.mu.Lock()
		if c.sess == s {
			c.sess = nil
		}
		closed := c.closed
		c.mu.Unlock()

		if !closed {
			c.setState(Disconnected, nil)
		}
		s.Release()
	})

	c.log.Info("client connected", logger.EndpointFields("local", conn.LocalAddr())...)
	c.setState(Connected, nil)

	if !sess.PostReceive() {
		sess.Shutdown(session.ScopeBoth)
		return nil, fmt.Errorf("connect to %s: %w", c.config.Address, session.ErrSessionClosed)
	}

	return sess, nil
}

// Disconnect shuts the open session down. The client may connect again.
func (c *TCPClient) Disconnect() {
	if s := c.Session(); s != nil {
		s.Shutdown(session.ScopeBoth)
	}
}

// Close disconnects and stops the client's executor. Connect fails
// afterwards.
func (c *TCPClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.sess
	c.mu.Unlock()

	if s != nil {
		s.Shutdown(session.ScopeBoth)
	}

	c.setState(Closed, nil)

	c.executor.Close()
	return nil
}

// setState records state unless the client is already Closed.
func (c *TCPClient) setState(state ConnectionState, err error) {
	for {
		cur := c.state.Load()
		if ConnectionState(cur) == Closed {
			return
		}

		if c.state.CompareAndSwap(cur, int32(state)) {
			break
		}
	}

	c.mu.Lock()
	h := c.onState
	c.mu.Unlock()

	if h != nil {
		h(state, err)
	}
}
