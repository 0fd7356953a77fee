//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package tcpserver

import (
	"errors"
	"net"
)

func tuneSocket(conn net.Conn, cfg Config) error {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	err := tcp.SetNoDelay(cfg.NoDelay)
	if cfg.ReadBufferBytes > 0 {
		err = errors.Join(err, tcp.SetReadBuffer(cfg.ReadBufferBytes))
	}

	if cfg.WriteBufferBytes > 0 {
		err = errors.Join(err, tcp.SetWriteBuffer(cfg.WriteBufferBytes))
	}

	return err
}
