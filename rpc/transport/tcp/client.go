package tcp

import (
	"context"
	"net"

	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/ValentinKolb/lwtnt/rpc/transport"
	"github.com/ValentinKolb/lwtnt/rpc/transport/base"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct {
	dialer net.Dialer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Dial(ctx context.Context, endpoint common.Endpoint) (net.Conn, error) {
	return c.dialer.DialContext(ctx, "tcp", endpoint.Address)
}

// UpgradeConnection applies the socket options of the client configuration
func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	// Disable Nagle's algorithm (TCPNoDelay) if configured
	if err := tcpConn.SetNoDelay(config.TCPNoDelay); err != nil {
		return err
	}

	// Size the kernel receive buffer like the user space one
	if config.RecvBufSize > 0 {
		if err := tcpConn.SetReadBuffer(config.RecvBufSize); err != nil {
			return err
		}
	}

	// Set socket write buffer size if configured
	if config.SendBufSize > 0 {
		if err := tcpConn.SetWriteBuffer(config.SendBufSize); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPClientTransport creates a new TCP client transport
func NewTCPClientTransport() transport.IProtoTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
