package unix

import (
	"context"
	"net"

	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/ValentinKolb/lwtnt/rpc/transport"
	"github.com/ValentinKolb/lwtnt/rpc/transport/base"
)

// clientConnector implements the IClientConnector interface for Unix sockets
type clientConnector struct {
	dialer net.Dialer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "unix"
}

func (c *clientConnector) Dial(ctx context.Context, endpoint common.Endpoint) (net.Conn, error) {
	return c.dialer.DialContext(ctx, "unix", endpoint.Address)
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}

	if config.RecvBufSize > 0 {
		if err := unixConn.SetReadBuffer(config.RecvBufSize); err != nil {
			return err
		}
	}
	if config.SendBufSize > 0 {
		if err := unixConn.SetWriteBuffer(config.SendBufSize); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixClientTransport creates a new Unix client transport
func NewUnixClientTransport() transport.IProtoTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
