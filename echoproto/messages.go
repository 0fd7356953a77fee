// Package echoproto is a small protocol on top of the framed session layer:
// ping/pong round trips, payload echo, named chat broadcast to every
// connected session, and keepalive frames that are consumed silently.
package echoproto

import (
	"fmt"

	"github.com/cyberinferno/go-tcpsession/packetbuffer"
)

// Packet numbers.
const (
	PacketPing      uint16 = 1
	PacketPong      uint16 = 2
	PacketEcho      uint16 = 3
	PacketChat      uint16 = 4
	PacketKeepAlive uint16 = 5
	PacketHello     uint16 = 6
	PacketWelcome   uint16 = 7
)

// NameLength is the fixed wire width of a player name.
const NameLength = 16

// Ping asks the peer for a Pong carrying the same sequence number.
type Ping struct {
	Seq uint32
}

func (p Ping) PacketID() uint16 { return PacketPing }

func (p Ping) Size() int { return 4 }

func (p Ping) MarshalTo(dst []byte) (int, error) {
	w := packetbuffer.NewWriter(dst)
	w.PutUint32(p.Seq)
	return w.Len(), w.Err()
}

func (p *Ping) UnmarshalBinary(data []byte) error {
	r := packetbuffer.NewReader(data)
	p.Seq = r.Uint32()
	return r.Err()
}

// Pong answers a Ping.
type Pong struct {
	Seq uint32
}

func (p Pong) PacketID() uint16 { return PacketPong }

func (p Pong) Size() int { return 4 }

func (p Pong) MarshalTo(dst []byte) (int, error) {
	w := packetbuffer.NewWriter(dst)
	w.PutUint32(p.Seq)
	return w.Len(), w.Err()
}

func (p *Pong) UnmarshalBinary(data []byte) error {
	r := packetbuffer.NewReader(data)
	p.Seq = r.Uint32()
	return r.Err()
}

// Echo carries opaque bytes that the server sends back unchanged.
type Echo struct {
	Data []byte
}

func (e Echo) PacketID() uint16 { return PacketEcho }

func (e Echo) Size() int { return len(e.Data) }

func (e Echo) MarshalTo(dst []byte) (int, error) {
	return copy(dst, e.Data), nil
}

func (e *Echo) UnmarshalBinary(data []byte) error {
	e.Data = append(e.Data[:0], data...)
	return nil
}

// Chat is a line of text from Name. Name occupies NameLength bytes on the
// wire; the text fills the rest of the payload.
type Chat struct {
	Name string
	Text string
}

func (c Chat) PacketID() uint16 { return PacketChat }

func (c Chat) Size() int { return NameLength + len(c.Text) }

func (c Chat) MarshalTo(dst []byte) (int, error) {
	w := packetbuffer.NewWriter(dst)
	w.PutFixedString(c.Name, NameLength)
	w.PutBytes([]byte(c.Text))
	return w.Len(), w.Err()
}

func (c *Chat) UnmarshalBinary(data []byte) error {
	r := packetbuffer.NewReader(data)
	c.Name = r.FixedString(NameLength)
	if err := r.Err(); err != nil {
		return fmt.Errorf("chat name: %w", err)
	}

	c.Text = string(r.Bytes(r.Remaining()))
	return r.Err()
}

// KeepAlive has no payload.
type KeepAlive struct{}

func (KeepAlive) PacketID() uint16 { return PacketKeepAlive }

func (KeepAlive) Size() int { return 0 }

func (KeepAlive) MarshalTo([]byte) (int, error) { return 0, nil }

// Hello registers the sender's name with the server.
type Hello struct {
	Name string
}

func (h Hello) PacketID() uint16 { return PacketHello }

func (h Hello) Size() int { return NameLength }

func (h Hello) MarshalTo(dst []byte) (int, error) {
	w := packetbuffer.NewWriter(dst)
	w.PutFixedString(h.Name, NameLength)
	return w.Len(), w.Err()
}

func (h *Hello) UnmarshalBinary(data []byte) error {
	r := packetbuffer.NewReader(data)
	h.Name = r.FixedString(NameLength)
	return r.Err()
}

// Welcome answers Hello with the session id the server assigned and the
// number of connected sessions.
type Welcome struct {
	SessionID uint32
	Online    uint16
}

func (w Welcome) PacketID() uint16 { return PacketWelcome }

func (w Welcome) Size() int { return 6 }

func (w Welcome) MarshalTo(dst []byte) (int, error) {
	pw := packetbuffer.NewWriter(dst)
	pw.PutUint32(w.SessionID)
	pw.PutUint16(w.Online)
	return pw.Len(), pw.Err()
}

func (w *Welcome) UnmarshalBinary(data []byte) error {
	r := packetbuffer.NewReader(data)
	w.SessionID = r.Uint32()
	w.Online = r.Uint16()
	return r.Err()
}
