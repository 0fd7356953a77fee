package session

import (
	"fmt"

	"github.com/cyberinferno/go-tcpsession/logger"
	"github.com/cyberinferno/go-tcpsession/packetbuffer"
)

// Send encodes p into the send buffer and kicks the send pump. It returns
// as soon as the frame is queued; delivery happens asynchronously. Safe for
// concurrent use.
//
// Parameters:
//   - p: The packet to queue
//
// Returns:
//   - nil once the frame is queued
//   - ErrSessionClosed if the socket is closed
//   - An error wrapping packetbuffer.ErrBufferFull, packetbuffer.ErrFrameTooLarge
//     or the marshal error; the send buffer is left unchanged
func (s *Session) Send(p packetbuffer.Packet) error {
	if !s.IsOpen() {
		return ErrSessionClosed
	}

	s.mu.Lock()
	// An in-flight write aliases the unflushed region, so it may only move
	// while the pump is idle.
	if !s.writing && s.sendBuffer.RemainingCapacity() < packetbuffer.FrameSize(p) {
		s.sendBuffer.Compact()
	}

	if err := s.sendBuffer.Encode(p); err != nil {
		s.mu.Unlock()
		s.bufLog.Error("fail to set packet", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("send packet %d: %w", p.PacketID(), err)
	}
	s.mu.Unlock()

	s.PostWrite()
	return nil
}

// PostWrite issues an asynchronous write of everything queued in the send
// buffer, unless a write is already in flight or nothing is queued. It is
// safe to call speculatively.
func (s *Session) PostWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsOpen() {
		s.connLog.Debug("fail to post write, socket is closed")
		return
	}

	if s.writing || s.sendBuffer.IsEmpty() {
		return
	}

	// A concurrent shutdown may already have dropped the last reference.
	if !s.Retain() {
		s.connLog.Debug("fail to post write, session is released")
		return
	}

	region := s.sendBuffer.UnflushedRegion()
	s.writing = true

	err := s.executor.Submit(func() {
		defer s.Release()

		n, err := s.conn.Write(region)
		s.onWrite(n, err)
	})
	if err != nil {
		s.writing = false
		s.Release()
		s.connLog.Error("fail to post write", logger.Field{Key: "error", Value: err})
	}
}

func (s *Session) onWrite(n int, err error) {
	s.mu.Lock()
	s.writing = false

	if !s.IsOpen() {
		s.mu.Unlock()
		s.connLog.Debug("write completed after shutdown")
		return
	}

	if err != nil || n == 0 {
		s.mu.Unlock()
		s.fail(DirectionSend, n, err)
		return
	}

	if !s.sendBuffer.TruncateFlushed(n) {
		queued := s.sendBuffer.Len()
		s.mu.Unlock()
		s.bufLog.Error("send buffer error",
			logger.Field{Key: "queued", Value: queued},
			logger.Field{Key: "bytes_transferred", Value: n},
		)
		s.shutdown(ReasonSendError, ScopeSend)
		return
	}

	if s.sendBuffer.IsEmpty() {
		s.sendBuffer.Compact()
		s.mu.Unlock()
		return
	}

	// No write aliases the buffer until PostWrite issues the next one.
	if s.sendBuffer.HasLowSpace() {
		s.sendBuffer.Compact()
	}
	s.mu.Unlock()

	// Frames queued while the write was in flight.
	s.PostWrite()
}
