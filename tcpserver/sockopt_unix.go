//go:build linux || darwin || freebsd || netbsd || openbsd

package tcpserver

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"
)

// tuneSocket applies Config's socket options on the raw descriptor.
func tuneSocket(conn net.Conn, cfg Config) error {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	raw, err := tcp.SyscallConn()
	if err != nil {
		return err
	}

	var opErr error
	err = raw.Control(func(fd uintptr) {
		noDelay := 0
		if cfg.NoDelay {
			noDelay = 1
		}
		opErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, noDelay)

		if cfg.ReadBufferBytes > 0 {
			opErr = errors.Join(opErr, unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.ReadBufferBytes))
		}

		if cfg.WriteBufferBytes > 0 {
			opErr = errors.Join(opErr, unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.WriteBufferBytes))
		}
	})

	return errors.Join(err, opErr)
}
