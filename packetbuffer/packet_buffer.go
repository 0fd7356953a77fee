// Package packetbuffer implements the byte region that sits between a socket
// and the packet handlers. A PacketBuffer has a read cursor and a write
// cursor; bytes between them are either received-but-undispatched (receive
// side) or queued-but-unflushed (send side).
//
// Every frame on the wire starts with a 4-byte little-endian header:
//
//	uint16 size  // whole frame, header included
//	uint16 id    // packet number
//
// followed by size-4 payload bytes.
package packetbuffer

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the length of the frame header.
	HeaderSize = 4
	// MaxFrameSize is the largest frame the 16-bit size field can describe.
	MaxFrameSize = 0xFFFF
)

var (
	ErrBufferFull       = errors.New("packet buffer has no room for frame")
	ErrFrameTooLarge    = errors.New("frame exceeds maximum frame size")
	ErrInvalidFrameSize = errors.New("frame header declares invalid size")
)

// Packet is an outbound message that can be encoded into a frame.
type Packet interface {
	// PacketID returns the packet number written into the frame header.
	PacketID() uint16
	// Size returns the payload length MarshalTo will produce.
	Size() int
	// MarshalTo writes the payload into dst, which is exactly Size() bytes,
	// and returns the number of bytes written.
	MarshalTo(dst []byte) (int, error)
}

// FrameSize returns the encoded length of p, header included.
func FrameSize(p Packet) int {
	return HeaderSize + p.Size()
}

// Frame is one decoded frame. Payload aliases the buffer and is only valid
// until the buffer is next compacted or written into.
type Frame struct {
	ID      uint16
	Payload []byte
}

// PacketBuffer is a fixed-capacity frame buffer. It is not safe for
// concurrent use; callers serialise access.
type PacketBuffer struct {
	buf      []byte
	read     int
	write    int
	lowWater int
}

// New creates a PacketBuffer holding at most capacity bytes. Capacities
// below HeaderSize are raised to HeaderSize.
//
// Parameters:
//   - capacity: Size of the backing region in bytes
//
// Returns:
//   - A new, empty PacketBuffer
func New(capacity int) *PacketBuffer {
	if capacity < HeaderSize {
		capacity = HeaderSize
	}

	return &PacketBuffer{
		buf:      make([]byte, capacity),
		lowWater: capacity / 8,
	}
}

// Cap returns the capacity of the backing region.
func (b *PacketBuffer) Cap() int {
	return len(b.buf)
}

// Len returns the number of bytes between the read and write cursors.
func (b *PacketBuffer) Len() int {
	return b.write - b.read
}

// IsEmpty reports whether no unread (or unflushed) bytes remain.
func (b *PacketBuffer) IsEmpty() bool {
	return b.read == b.write
}

// RemainingCapacity returns the number of bytes that can be written after
// the write cursor without compacting.
func (b *PacketBuffer) RemainingCapacity() int {
	return len(b.buf) - b.write
}

// HasLowSpace reports whether Compact would reclaim space that is needed:
// consumed bytes exist at the front and either the pending frame cannot fit
// between the read cursor and the end of the region, or the free tail is
// below the low-water mark.
func (b *PacketBuffer) HasLowSpace() bool {
	if b.read == 0 {
		return false
	}

	need := HeaderSize
	if b.Len() >= HeaderSize {
		if size := int(b.peekSize()); size > need {
			need = size
		}
	}

	return len(b.buf)-b.read < need || b.RemainingCapacity() <= b.lowWater
}

// Compact moves the unread bytes to the start of the region.
func (b *PacketBuffer) Compact() {
	if b.read == 0 {
		return
	}

	n := copy(b.buf, b.buf[b.read:b.write])
	b.read = 0
	b.write = n
}

// WritableRegion returns the free tail of the region. Bytes copied into it
// become visible only after CommitWritten.
func (b *PacketBuffer) WritableRegion() []byte {
	return b.buf[b.write:]
}

// CommitWritten advances the write cursor by n bytes previously copied into
// WritableRegion.
//
// Returns:
//   - false if n is negative or larger than RemainingCapacity; the buffer is unchanged
func (b *PacketBuffer) CommitWritten(n int) bool {
	if n < 0 || n > b.RemainingCapacity() {
		return false
	}

	b.write += n
	return true
}

// HasCompleteFrame reports whether a whole, well-formed frame sits at the
// read cursor.
func (b *PacketBuffer) HasCompleteFrame() bool {
	if b.Len() < HeaderSize {
		return false
	}

	size := int(b.peekSize())
	if size < HeaderSize || size > len(b.buf) {
		return false
	}

	return b.Len() >= size
}

// CurrentFrameID returns the packet number of the frame at the read cursor,
// or 0 if no header is available yet.
func (b *PacketBuffer) CurrentFrameID() uint16 {
	if b.Len() < HeaderSize {
		return 0
	}

	return binary.LittleEndian.Uint16(b.buf[b.read+2:])
}

// CheckFrameHeader validates the header of the pending frame, if one has
// arrived. A frame whose declared size is below HeaderSize or above the
// buffer capacity can never complete.
func (b *PacketBuffer) CheckFrameHeader() error {
	if b.Len() < HeaderSize {
		return nil
	}

	size := int(b.peekSize())
	if size < HeaderSize || size > len(b.buf) {
		return fmt.Errorf("%w: %d (capacity %d)", ErrInvalidFrameSize, size, len(b.buf))
	}

	return nil
}

// ReadFrame consumes the frame at the read cursor.
//
// Returns:
//   - The frame, whose payload aliases the buffer
//   - false if no complete frame is available
func (b *PacketBuffer) ReadFrame() (Frame, bool) {
	if !b.HasCompleteFrame() {
		return Frame{}, false
	}

	size := int(b.peekSize())
	frame := Frame{
		ID:      binary.LittleEndian.Uint16(b.buf[b.read+2:]),
		Payload: b.buf[b.read+HeaderSize : b.read+size : b.read+size],
	}
	b.read += size

	if b.read == b.write {
		b.read, b.write = 0, 0
	}

	return frame, true
}

// Encode appends p as one frame after the write cursor. On failure the
// cursors are untouched, so no partial frame ever becomes visible.
//
// Returns:
//   - ErrFrameTooLarge, ErrBufferFull, or the error returned by MarshalTo
func (b *PacketBuffer) Encode(p Packet) error {
	size := FrameSize(p)
	if p.Size() < 0 || size > MaxFrameSize {
		return fmt.Errorf("%w: packet %d needs %d bytes", ErrFrameTooLarge, p.PacketID(), size)
	}

	if size > b.RemainingCapacity() {
		return fmt.Errorf("%w: packet %d needs %d bytes, %d remaining",
			ErrBufferFull, p.PacketID(), size, b.RemainingCapacity())
	}

	frame := b.buf[b.write : b.write+size]
	binary.LittleEndian.PutUint16(frame, uint16(size))
	binary.LittleEndian.PutUint16(frame[2:], p.PacketID())

	n, err := p.MarshalTo(frame[HeaderSize:])
	if err != nil {
		return fmt.Errorf("marshal packet %d: %w", p.PacketID(), err)
	}

	if n != p.Size() {
		return fmt.Errorf("marshal packet %d: wrote %d of %d payload bytes", p.PacketID(), n, p.Size())
	}

	b.write += size
	return nil
}

// UnflushedRegion returns the bytes queued for sending. The slice aliases
// the buffer.
func (b *PacketBuffer) UnflushedRegion() []byte {
	return b.buf[b.read:b.write:b.write]
}

// TruncateFlushed drops the first n queued bytes after they were written to
// the socket. Bytes queued after the flushed prefix are kept.
//
// Returns:
//   - false if n is negative or exceeds Len; the buffer is unchanged
func (b *PacketBuffer) TruncateFlushed(n int) bool {
	if n < 0 || n > b.Len() {
		return false
	}

	b.read += n
	return true
}

// Reset discards all content.
func (b *PacketBuffer) Reset() {
	b.read, b.write = 0, 0
}

func (b *PacketBuffer) peekSize() uint16 {
	return binary.LittleEndian.Uint16(b.buf[b.read:])
}
