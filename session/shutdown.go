package session

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/cyberinferno/go-tcpsession/logger"
)

// Scope selects which transport direction a shutdown closes.
type Scope int

const (
	ScopeReceive Scope = iota
	ScopeSend
	ScopeBoth
)

// String returns the scope name used in log entries.
func (s Scope) String() string {
	switch s {
	case ScopeReceive:
		return "shutdown_receive"
	case ScopeSend:
		return "shutdown_send"
	case ScopeBoth:
		return "shutdown_both"
	default:
		return "shutdown_unknown"
	}
}

// Direction identifies the pump whose I/O completed.
type Direction int

const (
	DirectionReceive Direction = iota
	DirectionSend
)

func (d Direction) String() string {
	if d == DirectionSend {
		return "send"
	}

	return "receive"
}

func (d Direction) scope() Scope {
	if d == DirectionSend {
		return ScopeSend
	}

	return ScopeReceive
}

// Reason explains why a session shut down.
type Reason int

const (
	ReasonReceiveError Reason = iota
	ReasonSendError
	ReasonPeerClosed
	ReasonPeerReset
	ReasonPeerAborted
	ReasonZeroBytes
	ReasonManual
)

func (r Reason) String() string {
	switch r {
	case ReasonReceiveError:
		return "receive_error"
	case ReasonSendError:
		return "send_error"
	case ReasonPeerClosed:
		return "peer_closed"
	case ReasonPeerReset:
		return "peer_reset"
	case ReasonPeerAborted:
		return "peer_aborted"
	case ReasonZeroBytes:
		return "zero_bytes"
	case ReasonManual:
		return "manual"
	default:
		return "unknown"
	}
}

// PeerInitiated reports whether the reason reflects the remote side going
// away rather than a local fault.
func (r Reason) PeerInitiated() bool {
	switch r {
	case ReasonPeerClosed, ReasonPeerReset, ReasonPeerAborted, ReasonZeroBytes:
		return true
	default:
		return false
	}
}

// Classify maps the result of a read or write completion to a shutdown
// reason and scope. It must only be called for failed completions, that is
// when err is non-nil or n is zero.
//
// Parameters:
//   - dir: The pump that observed the completion
//   - n: Bytes transferred
//   - err: The I/O error, if any
//
// Returns:
//   - The shutdown reason
//   - The shutdown scope: orderly close and reset close both directions,
//     everything else only the failing one
func Classify(dir Direction, n int, err error) (Reason, Scope) {
	switch {
	case err == nil && n == 0:
		return ReasonZeroBytes, dir.scope()
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ReasonPeerClosed, ScopeBoth
	case errors.Is(err, syscall.ECONNRESET):
		return ReasonPeerReset, ScopeBoth
	case errors.Is(err, syscall.ECONNABORTED):
		return ReasonPeerAborted, dir.scope()
	case dir == DirectionSend:
		return ReasonSendError, ScopeSend
	default:
		return ReasonReceiveError, ScopeReceive
	}
}

// fail classifies a failed completion, logs it and shuts the session down.
func (s *Session) fail(dir Direction, n int, err error) {
	reason, scope := Classify(dir, n, err)

	fields := append(logger.EndpointFields("remote", s.RemoteAddr()),
		logger.Field{Key: "direction", Value: dir.String()},
		logger.Field{Key: "reason", Value: reason.String()},
	)

	switch reason {
	case ReasonPeerClosed, ReasonPeerReset:
		s.connLog.Info("disconnected", fields...)
	case ReasonPeerAborted:
		s.connLog.Info("connection aborted", fields...)
	case ReasonZeroBytes:
		s.connLog.Info("disconnected, 0 bytes transferred", fields...)
	default:
		s.connLog.Error("connection "+dir.String()+" error",
			append(fields, logger.Field{Key: "error", Value: err})...)
	}

	s.shutdown(reason, scope)
}

// Shutdown closes the session's socket. It is safe to call from any
// goroutine and any number of times; only the first call acts. The
// surrounding system calls it for idle timeouts or forced disconnects.
//
// Parameters:
//   - scope: The direction to close before the socket is released
func (s *Session) Shutdown(scope Scope) {
	s.shutdown(ReasonManual, scope)
}

func (s *Session) shutdown(reason Reason, scope Scope) {
	if !s.open.CompareAndSwap(true, false) {
		return
	}

	s.reason.Store(int32(reason))

	fields := append(logger.EndpointFields("local", s.LocalAddr()), logger.EndpointFields("remote", s.RemoteAddr())...)
	fields = append(fields,
		logger.Field{Key: "scope", Value: scope.String()},
		logger.Field{Key: "reason", Value: reason.String()},
	)
	s.serverLog.Info("session is disconnected", fields...)

	if err := closeConn(s.conn, scope); err != nil {
		s.serverLog.Error("session failed to close socket",
			append(fields, logger.Field{Key: "error", Value: err})...)
	}

	s.runShutdownHooks(reason)
}

type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// closeConn performs the directional close, when supported, then releases
// the socket. Errors from a peer that already went away are ignored.
func closeConn(conn net.Conn, scope Scope) error {
	var errs []error

	if hc, ok := conn.(halfCloser); ok {
		if scope == ScopeReceive || scope == ScopeBoth {
			errs = append(errs, hc.CloseRead())
		}

		if scope == ScopeSend || scope == ScopeBoth {
			errs = append(errs, hc.CloseWrite())
		}
	}

	errs = append(errs, conn.Close())

	var kept []error
	for _, err := range errs {
		if err == nil || ignorableCloseError(err) {
			continue
		}

		kept = append(kept, err)
	}

	return errors.Join(kept...)
}

func ignorableCloseError(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ENOTCONN) ||
		errors.Is(err, syscall.ECONNRESET)
}
