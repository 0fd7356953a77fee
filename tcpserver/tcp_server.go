// Package tcpserver accepts TCP connections and binds each one to a
// session.Session. The server owns the listener, hands out session ids,
// keeps the live sessions in a registry and removes them once they shut
// down.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/go-tcpsession/logger"
	"github.com/cyberinferno/go-tcpsession/registry"
	"github.com/cyberinferno/go-tcpsession/session"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

// ErrServerRunning is returned when starting a server that is already running.
var ErrServerRunning = errors.New("server already running")

// Config holds listener and per-connection settings.
type Config struct {
	// MaxConnsPerIP limits accepted connections per remote IP within
	// ThrottleWindow; 0 disables the limit.
	MaxConnsPerIP int `yaml:"max_conns_per_ip"`
	// ThrottleWindow is the period MaxConnsPerIP applies to.
	ThrottleWindow time.Duration `yaml:"throttle_window"`
	// NoDelay sets TCP_NODELAY on accepted sockets.
	NoDelay bool `yaml:"no_delay"`
	// ReadBufferBytes sets SO_RCVBUF; 0 keeps the OS default.
	ReadBufferBytes int `yaml:"read_buffer_bytes"`
	// WriteBufferBytes sets SO_SNDBUF; 0 keeps the OS default.
	WriteBufferBytes int `yaml:"write_buffer_bytes"`
	// Session sizes the frame buffers of each session.
	Session session.Config `yaml:"session"`
}

// DefaultConfig returns a Config with no throttling, TCP_NODELAY enabled,
// OS socket buffers and session.DefaultConfig.
func DefaultConfig() Config {
	return Config{
		MaxConnsPerIP:  0,
		ThrottleWindow: time.Minute,
		NoDelay:        true,
		Session:        session.DefaultConfig(),
	}
}

// SessionFunc is called for every accepted session after it is registered
// and before its receive pump starts.
type SessionFunc func(s *session.Session)

// TCPServer accepts connections on Addr and runs a session per connection
// with Handler dispatching inbound frames.
type TCPServer struct {
	Logger    logger.Logger
	Name      string
	Addr      string
	Config    Config
	Handler   session.Handler
	Executor  session.Executor
	Sessions  *registry.Registry
	OnSession SessionFunc
	Listener  net.Listener
	Running   atomic.Bool

	log      logger.Logger
	throttle *cache.Cache
	stopped  chan struct{}
}

// NewTCPServer creates a server with an empty session registry.
//
// Parameters:
//   - name: Server name used in log entries
//   - addr: The "host:port" to listen on
//   - handler: Dispatches inbound frames for every session
//   - l: Parent logger; nil discards logs
//
// Returns:
//   - A stopped TCPServer using DefaultConfig; adjust Config before Start
func NewTCPServer(name string, addr string, handler session.Handler, l logger.Logger) *TCPServer {
	if l == nil {
		l = logger.NewNopLogger()
	}

	return &TCPServer{
		Logger:   l,
		Name:     name,
		Addr:     addr,
		Config:   DefaultConfig(),
		Handler:  handler,
		Executor: session.NewGoExecutor(),
		Sessions: registry.New(0),
	}
}

// Listen binds Addr. It is safe to call only when the server is not running.
//
// Returns:
//   - ErrServerRunning if the server is already running, or the listen error
func (s *TCPServer) Listen() error {
	if s.log == nil {
		s.log = logger.WithFilter(s.Logger, logger.FilterServer).With(logger.Field{Key: "server", Value: s.Name})
	}

	if s.Running.Load() {
		s.log.Error("server already running")
		return fmt.Errorf("server %s: %w", s.Name, ErrServerRunning)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.log.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	if s.Sessions == nil {
		s.Sessions = registry.New(0)
	}

	if s.Config.MaxConnsPerIP > 0 {
		window := s.Config.ThrottleWindow
		if window <= 0 {
			window = time.Minute
		}
		s.throttle = cache.New(window, 2*window)
	}

	s.Listener = ln
	s.stopped = make(chan struct{})
	s.Running.Store(true)

	s.log.Info("server started", logger.Field{Key: "addr", Value: ln.Addr().String()})
	return nil
}

// Start binds Addr and runs the accept loop in a goroutine.
func (s *TCPServer) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}

	go s.AcceptLoop()
	return nil
}

// Run binds Addr and accepts connections until ctx is done or Stop is
// called, then stops the server.
//
// Returns:
//   - nil after a clean stop, or the listen error
func (s *TCPServer) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	stopped := s.stopped

	g.Go(func() error {
		s.AcceptLoop()
		return nil
	})

	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-stopped:
		}

		s.Stop()
		return nil
	})

	return g.Wait()
}

// Stop closes the listener and shuts every session down. Safe to call when
// the server is not running.
func (s *TCPServer) Stop() {
	if !s.Running.CompareAndSwap(true, false) {
		return
	}

	if s.Listener != nil {
		_ = s.Listener.Close()
	}

	s.Sessions.ShutdownAll(session.ScopeBoth)
	close(s.stopped)

	s.log.Info("server stopped")
}

// AcceptLoop accepts connections until the server stops.
func (s *TCPServer) AcceptLoop() {
	for s.Running.Load() {
		conn, err := s.Listener.Accept()
		if err != nil {
			if !s.Running.Load() {
				return
			}

			s.log.Error("server accept error", logger.Field{Key: "error", Value: err})
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.serve(conn)
	}
}

func (s *TCPServer) serve(conn net.Conn) {
	remote := logger.EndpointFields("remote", conn.RemoteAddr())

	if !s.allow(conn.RemoteAddr()) {
		s.log.Warn("connection throttled", remote...)
		_ = conn.Close()
		return
	}

	if err := tuneSocket(conn, s.Config); err != nil {
		s.log.Warn("failed to tune socket", append(remote, logger.Field{Key: "error", Value: err})...)
	}

	sess := session.New(s.Sessions.NextID(), conn, s.Handler,
		session.WithExecutor(s.Executor),
		session.WithLogger(s.Logger),
		session.WithConfig(s.Config.Session),
	)

	s.Sessions.Add(sess)
	sess.OnShutdown(func(ss *session.Session, _ session.Reason) {
		s.Sessions.Remove(ss)
		ss.Release()
	})

	s.log.Info("session accepted", append(remote, logger.Field{Key: "session_id", Value: sess.ID()})...)

	if s.OnSession != nil {
		s.OnSession(sess)
	}

	if !sess.PostReceive() {
		sess.Shutdown(session.ScopeBoth)
	}
}

// allow applies the per-IP connection limit.
func (s *TCPServer) allow(addr net.Addr) bool {
	if s.throttle == nil {
		return true
	}

	ip := addr.String()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	if err := s.throttle.Add(ip, 1, cache.DefaultExpiration); err == nil {
		return true
	}

	n, err := s.throttle.IncrementInt(ip, 1)
	if err != nil {
		// Expired between Add and IncrementInt.
		s.throttle.Set(ip, 1, cache.DefaultExpiration)
		return true
	}

	return n <= s.Config.MaxConnsPerIP
}
