package packetbuffer

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrShortPayload is returned by Reader when the payload ends early.
var ErrShortPayload = errors.New("payload too short")

// RawPacket is a Packet whose payload is already encoded.
type RawPacket struct {
	ID      uint16
	Payload []byte
}

func (p RawPacket) PacketID() uint16 { return p.ID }

func (p RawPacket) Size() int { return len(p.Payload) }

func (p RawPacket) MarshalTo(dst []byte) (int, error) {
	return copy(dst, p.Payload), nil
}

// Writer encodes little-endian fields into a payload slice. Writes past the
// end are dropped and reported by Err.
type Writer struct {
	dst []byte
	off int
	err error
}

// NewWriter returns a Writer over dst.
func NewWriter(dst []byte) *Writer {
	return &Writer{dst: dst}
}

func (w *Writer) reserve(n int) []byte {
	if w.err != nil {
		return nil
	}

	if w.off+n > len(w.dst) {
		w.err = ErrShortPayload
		return nil
	}

	b := w.dst[w.off : w.off+n]
	w.off += n
	return b
}

func (w *Writer) PutUint8(v uint8) {
	if b := w.reserve(1); b != nil {
		b[0] = v
	}
}

func (w *Writer) PutUint16(v uint16) {
	if b := w.reserve(2); b != nil {
		binary.LittleEndian.PutUint16(b, v)
	}
}

func (w *Writer) PutUint32(v uint32) {
	if b := w.reserve(4); b != nil {
		binary.LittleEndian.PutUint32(b, v)
	}
}

func (w *Writer) PutBytes(v []byte) {
	if b := w.reserve(len(v)); b != nil {
		copy(b, v)
	}
}

// PutFixedString writes s into exactly length bytes, zero-padding a short
// string and truncating a long one.
func (w *Writer) PutFixedString(s string, length int) {
	if b := w.reserve(length); b != nil {
		n := copy(b, s)
		clear(b[n:])
	}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.off
}

// Err returns ErrShortPayload if any write did not fit.
func (w *Writer) Err() error {
	return w.err
}

// Reader decodes little-endian fields from a payload. Reads past the end
// return zero values and are reported by Err.
type Reader struct {
	src []byte
	off int
	err error
}

// NewReader returns a Reader over src.
func NewReader(src []byte) *Reader {
	return &Reader{src: src}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}

	if r.off+n > len(r.src) {
		r.err = ErrShortPayload
		return nil
	}

	b := r.src[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}

	return 0
}

func (r *Reader) Uint16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}

	return 0
}

func (r *Reader) Uint32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}

	return 0
}

// Bytes returns a copy of the next n bytes.
func (r *Reader) Bytes(n int) []byte {
	if b := r.take(n); b != nil {
		return bytes.Clone(b)
	}

	return nil
}

// FixedString reads length bytes and returns the text before the first
// zero byte.
func (r *Reader) FixedString(length int) string {
	b := r.take(length)
	if b == nil {
		return ""
	}

	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}

	return string(b)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.src) - r.off
}

// Err returns ErrShortPayload if any read ran past the end.
func (r *Reader) Err() error {
	return r.err
}
