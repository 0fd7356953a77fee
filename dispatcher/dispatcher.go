// Package dispatcher maps inbound packet numbers to application handlers.
// A Dispatcher is a session.Handler: the receive pump calls Handle once per
// complete frame and the dispatcher decodes it and runs the registered
// handler.
package dispatcher

import (
	"encoding"
	"errors"
	"fmt"
	"sync"

	"github.com/cyberinferno/go-tcpsession/logger"
	"github.com/cyberinferno/go-tcpsession/packetbuffer"
	"github.com/cyberinferno/go-tcpsession/session"
)

// ErrUnknownPacket is reported when no handler is registered for a packet number.
var ErrUnknownPacket = errors.New("no handler registered for packet")

// HandlerFunc handles one decoded frame. The payload aliases the receive
// buffer and must not be retained after the call returns. A non-nil error
// disconnects the session.
type HandlerFunc func(s *session.Session, payload []byte) error

// Dispatcher routes frames by packet number. Registration is expected at
// startup but is safe at any time.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[uint16]HandlerFunc
	ignored  map[uint16]struct{}
	log      logger.Logger
}

// New creates an empty Dispatcher.
//
// Parameters:
//   - l: Logger for dispatch failures; nil discards them
//
// Returns:
//   - A Dispatcher with no handlers
func New(l logger.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[uint16]HandlerFunc),
		ignored:  make(map[uint16]struct{}),
		log:      logger.WithFilter(l, logger.FilterDispatch),
	}
}

// Register installs h for packet number id, replacing any previous handler.
//
// Parameters:
//   - id: The packet number
//   - h: The handler to call for frames carrying id
func (d *Dispatcher) Register(id uint16, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[id] = h
	delete(d.ignored, id)
}

// Ignore marks packet numbers whose frames are consumed without a handler,
// such as keepalives.
//
// Parameters:
//   - ids: The packet numbers to drop silently
func (d *Dispatcher) Ignore(ids ...uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.ignored[id] = struct{}{}
		delete(d.handlers, id)
	}
}

// Registered reports whether a handler or ignore rule exists for id.
func (d *Dispatcher) Registered(id uint16) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, handled := d.handlers[id]
	_, ignored := d.ignored[id]
	return handled || ignored
}

// Handle consumes exactly one frame from buf and runs its handler.
//
// Returns:
//   - false if no frame was available, the packet number is unknown or the
//     handler returned an error
func (d *Dispatcher) Handle(s *session.Session, buf *packetbuffer.PacketBuffer) bool {
	frame, ok := buf.ReadFrame()
	if !ok {
		d.log.Error("handle called without a complete frame", logger.Field{Key: "session_id", Value: s.ID()})
		return false
	}

	d.mu.RLock()
	h, found := d.handlers[frame.ID]
	_, ignored := d.ignored[frame.ID]
	d.mu.RUnlock()

	if ignored {
		return true
	}

	if !found {
		d.log.Error("unknown packet",
			logger.Field{Key: "session_id", Value: s.ID()},
			logger.Field{Key: "packet_no", Value: frame.ID},
			logger.Field{Key: "error", Value: ErrUnknownPacket},
		)
		return false
	}

	if err := h(s, frame.Payload); err != nil {
		d.log.Error("packet handler failed",
			logger.Field{Key: "session_id", Value: s.ID()},
			logger.Field{Key: "packet_no", Value: frame.ID},
			logger.Field{Key: "size", Value: len(frame.Payload)},
			logger.Field{Key: "error", Value: err},
		)
		return false
	}

	return true
}

// Unmarshaler constrains T so that *T decodes a payload.
type Unmarshaler[T any] interface {
	*T
	encoding.BinaryUnmarshaler
}

// RegisterTyped installs a handler that receives the payload decoded into T.
// A decode error disconnects the session.
//
// Parameters:
//   - d: The dispatcher to register on
//   - id: The packet number
//   - h: The handler receiving the decoded message
func RegisterTyped[T any, PT Unmarshaler[T]](d *Dispatcher, id uint16, h func(s *session.Session, msg *T) error) {
	d.Register(id, func(s *session.Session, payload []byte) error {
		msg := PT(new(T))
		if err := msg.UnmarshalBinary(payload); err != nil {
			return fmt.Errorf("decode packet %d: %w", id, err)
		}

		return h(s, (*T)(msg))
	})
}

var _ session.Handler = (*Dispatcher)(nil)
