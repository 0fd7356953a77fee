package dispatcher

import (
	"errors"
	"net"
	"testing"

	"github.com/cyberinferno/go-tcpsession/logger"
	"github.com/cyberinferno/go-tcpsession/packetbuffer"
	"github.com/cyberinferno/go-tcpsession/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeting struct {
	Name string
}

func (g *greeting) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty greeting")
	}

	g.Name = string(data)
	return nil
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() { _ = remote.Close() })

	s := session.New(3, local, nil)
	t.Cleanup(func() { s.Shutdown(session.ScopeBoth) })
	return s
}

func bufferWith(t *testing.T, packets ...packetbuffer.Packet) *packetbuffer.PacketBuffer {
	t.Helper()
	b := packetbuffer.New(256)
	for _, p := range packets {
		require.NoError(t, b.Encode(p))
	}

	return b
}

func TestDispatcher_Handle(t *testing.T) {
	t.Run("routes frame to its handler and consumes it", func(t *testing.T) {
		d := New(logger.NewNopLogger())
		s := newSession(t)

		var got []string
		d.Register(1, func(_ *session.Session, payload []byte) error {
			got = append(got, "one:"+string(payload))
			return nil
		})
		d.Register(2, func(_ *session.Session, payload []byte) error {
			got = append(got, "two:"+string(payload))
			return nil
		})

		buf := bufferWith(t,
			packetbuffer.RawPacket{ID: 2, Payload: []byte("b")},
			packetbuffer.RawPacket{ID: 1, Payload: []byte("a")},
		)

		for buf.HasCompleteFrame() {
			require.True(t, d.Handle(s, buf))
		}

		assert.Equal(t, []string{"two:b", "one:a"}, got)
		assert.True(t, buf.IsEmpty())
	})

	t.Run("unknown packet fails but still consumes the frame", func(t *testing.T) {
		d := New(nil)
		buf := bufferWith(t, packetbuffer.RawPacket{ID: 99})

		assert.False(t, d.Handle(newSession(t), buf))
		assert.True(t, buf.IsEmpty())
	})

	t.Run("handler error fails", func(t *testing.T) {
		d := New(nil)
		d.Register(1, func(*session.Session, []byte) error { return errors.New("bad state") })

		assert.False(t, d.Handle(newSession(t), bufferWith(t, packetbuffer.RawPacket{ID: 1})))
	})

	t.Run("ignored packets are dropped successfully", func(t *testing.T) {
		d := New(nil)
		called := false
		d.Register(5, func(*session.Session, []byte) error {
			called = true
			return nil
		})
		d.Ignore(5)

		assert.True(t, d.Handle(newSession(t), bufferWith(t, packetbuffer.RawPacket{ID: 5})))
		assert.False(t, called)
		assert.True(t, d.Registered(5))
	})

	t.Run("register after ignore restores handling", func(t *testing.T) {
		d := New(nil)
		d.Ignore(6)
		called := false
		d.Register(6, func(*session.Session, []byte) error {
			called = true
			return nil
		})

		assert.True(t, d.Handle(newSession(t), bufferWith(t, packetbuffer.RawPacket{ID: 6})))
		assert.True(t, called)
	})

	t.Run("empty buffer fails", func(t *testing.T) {
		assert.False(t, New(nil).Handle(newSession(t), packetbuffer.New(16)))
	})
}

func TestRegisterTyped(t *testing.T) {
	t.Run("decodes payload", func(t *testing.T) {
		d := New(nil)
		var got *greeting
		RegisterTyped(d, 10, func(_ *session.Session, msg *greeting) error {
			got = msg
			return nil
		})

		require.True(t, d.Handle(newSession(t), bufferWith(t, packetbuffer.RawPacket{ID: 10, Payload: []byte("bob")})))
		require.NotNil(t, got)
		assert.Equal(t, "bob", got.Name)
	})

	t.Run("decode failure fails dispatch", func(t *testing.T) {
		d := New(nil)
		RegisterTyped(d, 10, func(*session.Session, *greeting) error {
			t.Fatal("handler must not run")
			return nil
		})

		assert.False(t, d.Handle(newSession(t), bufferWith(t, packetbuffer.RawPacket{ID: 10})))
	})
}

func TestDispatcher_Registered(t *testing.T) {
	d := New(nil)
	assert.False(t, d.Registered(1))
	d.Register(1, func(*session.Session, []byte) error { return nil })
	assert.True(t, d.Registered(1))
}
