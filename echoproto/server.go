package echoproto

import (
	"errors"
	"math"

	"github.com/cyberinferno/go-tcpsession/dispatcher"
	"github.com/cyberinferno/go-tcpsession/logger"
	"github.com/cyberinferno/go-tcpsession/registry"
	"github.com/cyberinferno/go-tcpsession/session"
)

// ErrEmptyName is returned when a Hello carries no name.
var ErrEmptyName = errors.New("hello with empty name")

// Server implements the server side of the protocol over a session registry.
type Server struct {
	sessions *registry.Registry
	log      logger.Logger
}

// NewServer creates a Server that broadcasts chat to every session in reg.
//
// Parameters:
//   - reg: The live sessions, usually the tcpserver's registry
//   - l: Logger; nil discards logs
//
// Returns:
//   - A Server; call Register to install its handlers
func NewServer(reg *registry.Registry, l logger.Logger) *Server {
	return &Server{
		sessions: reg,
		log:      logger.WithFilter(l, logger.FilterDispatch),
	}
}

// Register installs the server handlers on d.
func (srv *Server) Register(d *dispatcher.Dispatcher) {
	dispatcher.RegisterTyped(d, PacketPing, srv.handlePing)
	dispatcher.RegisterTyped(d, PacketEcho, srv.handleEcho)
	dispatcher.RegisterTyped(d, PacketChat, srv.handleChat)
	dispatcher.RegisterTyped(d, PacketHello, srv.handleHello)
	d.Ignore(PacketKeepAlive)
}

func (srv *Server) handlePing(s *session.Session, msg *Ping) error {
	return s.Send(Pong(*msg))
}

func (srv *Server) handleEcho(s *session.Session, msg *Echo) error {
	return s.Send(*msg)
}

func (srv *Server) handleHello(s *session.Session, msg *Hello) error {
	if msg.Name == "" {
		return ErrEmptyName
	}

	s.SetValue(msg.Name)
	srv.log.Info("session named", logger.Field{Key: "session_id", Value: s.ID()}, logger.Field{Key: "name", Value: msg.Name})

	online := srv.sessions.Len()
	if online > math.MaxUint16 {
		online = math.MaxUint16
	}

	return s.Send(Welcome{SessionID: s.ID(), Online: uint16(online)})
}

// handleChat stamps the sender's registered name on the line and sends it
// to every open session, the sender included.
func (srv *Server) handleChat(s *session.Session, msg *Chat) error {
	if name, ok := s.Value().(string); ok {
		msg.Name = name
	}

	srv.Broadcast(*msg)
	return nil
}

// Broadcast sends msg to every registered session and returns how many
// accepted it. Sessions that fail are logged and skipped.
func (srv *Server) Broadcast(msg Chat) int {
	sent := 0
	srv.sessions.Range(func(peer *session.Session) bool {
		err := peer.Send(msg)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, session.ErrSessionClosed):
		default:
			srv.log.Warn("broadcast failed",
				logger.Field{Key: "session_id", Value: peer.ID()},
				logger.Field{Key: "error", Value: err},
			)
		}
		return true
	})

	return sent
}
