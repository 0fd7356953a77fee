package session

import (
	"bytes"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/go-tcpsession/logger"
	"github.com/cyberinferno/go-tcpsession/packetbuffer"
	"github.com/rs/zerolog"
)

type readResult struct {
	data []byte
	err  error
}

// fakeConn is a scripted net.Conn: every Read takes the next queued chunk,
// every Write is recorded and may be truncated, gated or failed.
type fakeConn struct {
	reads   chan readResult
	pending []byte
	closed  chan struct{}

	readCalls       atomic.Int32
	closeCount      atomic.Int32
	closeReadCount  atomic.Int32
	closeWriteCount atomic.Int32
	closeErr        error

	writeLimit int
	writeErr   error
	writeGate  chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu        sync.Mutex
	written   bytes.Buffer
	writes    int
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan readResult, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) feed(data []byte) {
	c.reads <- readResult{data: data}
}

func (c *fakeConn) feedErr(err error) {
	c.reads <- readResult{err: err}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	c.readCalls.Add(1)

	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}

	select {
	case r := <-c.reads:
		if r.err != nil {
			return 0, r.err
		}

		n := copy(p, r.data)
		c.pending = r.data[n:]
		return n, nil
	case <-c.closed:
		return 0, net.ErrClosed
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	cur := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		prev := c.maxInFlight.Load()
		if cur <= prev || c.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}

	if c.writeGate != nil {
		select {
		case <-c.writeGate:
		case <-c.closed:
			return 0, net.ErrClosed
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writes++
	if c.writeErr != nil {
		return 0, c.writeErr
	}

	n := len(p)
	if c.writeLimit > 0 && n > c.writeLimit {
		n = c.writeLimit
	}

	c.written.Write(p[:n])
	return n, nil
}

func (c *fakeConn) Close() error {
	c.closeCount.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return c.closeErr
}

func (c *fakeConn) CloseRead() error {
	c.closeReadCount.Add(1)
	return nil
}

func (c *fakeConn) CloseWrite() error {
	c.closeWriteCount.Add(1)
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7000}
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 52000}
}

func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) writtenBytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.written.Bytes()...)
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// recordingHandler consumes one frame per call and keeps a copy of it.
type recordingHandler struct {
	mu      sync.Mutex
	frames  []packetbuffer.Frame
	failIDs map[uint16]bool
	onFrame func(s *Session, f packetbuffer.Frame)
}

func (h *recordingHandler) Handle(s *Session, buf *packetbuffer.PacketBuffer) bool {
	f, ok := buf.ReadFrame()
	if !ok {
		return false
	}

	f.Payload = append([]byte(nil), f.Payload...)

	h.mu.Lock()
	h.frames = append(h.frames, f)
	h.mu.Unlock()

	if h.onFrame != nil {
		h.onFrame(s, f)
	}

	return !h.failIDs[f.ID]
}

func (h *recordingHandler) received() []packetbuffer.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]packetbuffer.Frame(nil), h.frames...)
}

// syncBuffer collects log output from concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) count(substr string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), substr)
}

func newTestLogger() (logger.Logger, *syncBuffer) {
	out := &syncBuffer{}
	return logger.NewZerologLogger(zerolog.New(out), "session-test", zerolog.DebugLevel), out
}

func encode(packets ...packetbuffer.Packet) []byte {
	b := packetbuffer.New(packetbuffer.MaxFrameSize)
	for _, p := range packets {
		if err := b.Encode(p); err != nil {
			panic(err)
		}
	}

	return append([]byte(nil), b.UnflushedRegion()...)
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
