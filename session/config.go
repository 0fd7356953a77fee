package session

import (
	"fmt"

	"github.com/cyberinferno/go-tcpsession/packetbuffer"
)

// Config holds per-session buffer sizing.
type Config struct {
	// ReceiveBufferSize is the capacity of the receive frame buffer. A single
	// inbound frame must fit in it.
	ReceiveBufferSize int `yaml:"receive_buffer_size"`
	// SendBufferSize is the capacity of the send frame buffer; Send fails
	// with packetbuffer.ErrBufferFull once it is exhausted.
	SendBufferSize int `yaml:"send_buffer_size"`
}

// DefaultConfig returns a Config with an 8 KiB receive buffer and a 16 KiB
// send buffer.
func DefaultConfig() Config {
	return Config{
		ReceiveBufferSize: 8 * 1024,
		SendBufferSize:    16 * 1024,
	}
}

// Validate reports sizes that cannot hold even a header.
func (c Config) Validate() error {
	if c.ReceiveBufferSize < packetbuffer.HeaderSize {
		return fmt.Errorf("receive buffer size %d is too small", c.ReceiveBufferSize)
	}

	if c.SendBufferSize < packetbuffer.HeaderSize {
		return fmt.Errorf("send buffer size %d is too small", c.SendBufferSize)
	}

	return nil
}
