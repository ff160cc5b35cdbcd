package transport

import (
	"fmt"
	"net"
	"sync"
)

// Conn is a peer connection opened by the TCP transport, either accepted by
// the server role or dialed by the client role.
type Conn struct {
	connection net.Conn
	remoteAddr string

	closeOnce sync.Once
	closeErr  error
}

func newConn(connection net.Conn) *Conn {
	return &Conn{
		connection: connection,
		remoteAddr: connection.RemoteAddr().String(),
	}
}

func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Read consumes the available bytes directly from the TCP connection.
func (c *Conn) Read(b []byte) (int, error) {
	return c.connection.Read(b)
}

// Write sends all of data over the TCP connection.
func (c *Conn) Write(data []byte) (int, error) {
	bytesSent := 0
	for bytesSent < len(data) {
		n, err := c.connection.Write(data[bytesSent:])
		if err != nil {
			return bytesSent, fmt.Errorf("failed to send to %v: %w", c.remoteAddr, err)
		}
		bytesSent += n
	}
	return bytesSent, nil
}

// Close the TCP connection. Only the first call closes the socket; later
// calls return the same result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.connection.Close()
	})
	return c.closeErr
}
