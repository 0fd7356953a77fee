package logger

import (
	"net"
	"strconv"
)

// EndpointFields renders a socket address as "<prefix>_ip" and
// "<prefix>_port" fields. Unknown address shapes fall back to a single
// "<prefix>_addr" field.
//
// Parameters:
//   - prefix: Field name prefix, typically "local" or "remote"
//   - addr: The address to render; nil yields no fields
//
// Returns:
//   - The fields describing addr
func EndpointFields(prefix string, addr net.Addr) []Field {
	if addr == nil {
		return nil
	}

	if tcp, ok := addr.(*net.TCPAddr); ok {
		return []Field{
			{Key: prefix + "_ip", Value: tcp.IP.String()},
			{Key: prefix + "_port", Value: tcp.Port},
		}
	}

	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return []Field{{Key: prefix + "_addr", Value: addr.String()}}
	}

	if p, err := strconv.Atoi(port); err == nil {
		return []Field{
			{Key: prefix + "_ip", Value: host},
			{Key: prefix + "_port", Value: p},
		}
	}

	return []Field{
		{Key: prefix + "_ip", Value: host},
		{Key: prefix + "_port", Value: port},
	}
}
