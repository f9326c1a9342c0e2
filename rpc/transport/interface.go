package transport

import (
	"context"
	"time"

	"github.com/ValentinKolb/lwtnt/rpc/common"
)

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IProtoTransport is the interface for a single framed connection to a
// server. Send and Receive may be called concurrently with each other, but
// concurrent Sends (or concurrent Receives) are serialized.
type IProtoTransport interface {
	// Connect dials the server of config.URL and reads its greeting. The
	// deadline of ctx bounds dial and greeting. Any open connection is
	// closed first.
	Connect(ctx context.Context, config common.ClientConfig) (*common.Greeting, error)
	// SetDeadline sets the read and write deadline of the connection.
	// A zero value disables the deadline.
	SetDeadline(t time.Time) error
	// Send writes one length prefixed frame. It fails with
	// ErrTooLargeRequest without touching the connection if the frame
	// exceeds the configured send buffer size.
	Send(payload []byte) error
	// Receive blocks until a complete frame was read and returns it
	// without the length prefix
	Receive() ([]byte, error)
	// Disconnect closes the connection, blocked Receive calls return
	Disconnect()
	// IsConnected reports whether the connection is open
	IsConnected() bool
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}
