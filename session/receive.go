package session

import (
	"github.com/cyberinferno/go-tcpsession/logger"
)

// PostReceive issues one asynchronous read into the receive buffer. Its
// completion dispatches every complete frame and then issues the next read,
// so calling it once after accept keeps the receive pump running until the
// session shuts down.
//
// Returns:
//   - true once the read was issued; false if the session is closed or the
//     read could not be scheduled
func (s *Session) PostReceive() bool {
	if !s.IsOpen() {
		s.connLog.Error("fail to post receive, session is disconnected")
		return false
	}

	if s.recvBuffer.HasLowSpace() {
		s.recvBuffer.Compact()
	}

	region := s.recvBuffer.WritableRegion()
	if len(region) == 0 {
		s.bufLog.Error("receive buffer is full without a complete frame",
			logger.Field{Key: "packet_no", Value: s.recvBuffer.CurrentFrameID()},
			logger.Field{Key: "buffered", Value: s.recvBuffer.Len()},
		)
		s.shutdown(ReasonReceiveError, ScopeReceive)
		return false
	}

	if !s.Retain() {
		s.connLog.Debug("fail to post receive, session is released")
		return false
	}

	err := s.executor.Submit(func() {
		defer s.Release()

		n, err := s.conn.Read(region)
		s.onReceive(n, err)
	})
	if err != nil {
		s.Release()
		s.connLog.Error("fail to post receive", logger.Field{Key: "error", Value: err})
		return false
	}

	return true
}

func (s *Session) onReceive(n int, err error) {
	if !s.IsOpen() {
		s.connLog.Debug("receive completed after shutdown")
		return
	}

	if err != nil || n == 0 {
		s.fail(DirectionReceive, n, err)
		return
	}

	if !s.recvBuffer.CommitWritten(n) {
		s.bufLog.Error("receive buffer error",
			logger.Field{Key: "remain_size", Value: s.recvBuffer.RemainingCapacity()},
			logger.Field{Key: "bytes_transferred", Value: n},
		)
		s.shutdown(ReasonReceiveError, ScopeReceive)
		return
	}

	for s.recvBuffer.HasCompleteFrame() {
		packetNo := s.recvBuffer.CurrentFrameID()
		if !s.handler.Handle(s, s.recvBuffer) {
			s.connLog.Error("receive handler failed", logger.Field{Key: "packet_no", Value: packetNo})
			s.shutdown(ReasonReceiveError, ScopeReceive)
			return
		}

		if !s.IsOpen() {
			return
		}
	}

	if err := s.recvBuffer.CheckFrameHeader(); err != nil {
		s.bufLog.Error("malformed frame header",
			logger.Field{Key: "packet_no", Value: s.recvBuffer.CurrentFrameID()},
			logger.Field{Key: "error", Value: err},
		)
		s.shutdown(ReasonReceiveError, ScopeReceive)
		return
	}

	if s.IsOpen() {
		s.PostReceive()
	}
}
