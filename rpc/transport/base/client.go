package base

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/ValentinKolb/lwtnt/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger(common.LoggerTransport)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Dial establishes a single connection to the endpoint
	Dial(ctx context.Context, endpoint common.Endpoint) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector IClientConnector

	connMu sync.RWMutex // Protects conn, reader and config
	conn   net.Conn
	reader *bufio.Reader
	config common.ClientConfig

	writeMu   sync.Mutex // Serializes writes
	readMu    sync.Mutex // Serializes reads
	connected atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IProtoTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IProtoTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(ctx context.Context, config common.ClientConfig) (*common.Greeting, error) {
	endpoint, err := common.ParseURL(config.URL)
	if err != nil {
		return nil, err
	}

	// Close an existing connection
	t.Disconnect()

	t.connMu.Lock()
	t.config = config
	t.connMu.Unlock()

	conn, err := t.connector.Dial(ctx, endpoint)
	if err != nil {
		return nil, classifyDialError("connect", err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := t.connector.UpgradeConnection(conn, config); err != nil {
		conn.Close()
		return nil, common.NewError(common.ErrConnect, "upgrade connection", err)
	}

	reader := bufio.NewReaderSize(conn, config.GetRecvBufSize())

	// The greeting is read under the deadline of the connect attempt
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, common.NewError(common.ErrConnect, "connect", err)
		}
	}
	greeting, err := readGreeting(reader)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, common.NewError(common.ErrConnect, "connect", err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.reader = reader
	t.connected.Store(true)
	t.connMu.Unlock()

	Logger.Debugf("Connected to %s using %s transport (%s)", endpoint.Address, t.connector.GetName(), greeting.Version)
	return greeting, nil
}

func (t *clientTransport) SetDeadline(deadline time.Time) error {
	conn, _ := t.current()
	if conn == nil {
		return common.Errorf(common.ErrSystem, "set deadline", "not connected")
	}
	return conn.SetDeadline(deadline)
}

func (t *clientTransport) Send(payload []byte) error {
	t.connMu.RLock()
	conn, limit := t.conn, t.config.SendBufSize
	t.connMu.RUnlock()

	if limit > 0 && common.FrameHeaderSize+len(payload) > limit {
		return common.Errorf(common.ErrTooLargeRequest, "send",
			"frame of %d bytes exceeds send buffer of %d bytes", common.FrameHeaderSize+len(payload), limit)
	}
	if conn == nil {
		return common.Errorf(common.ErrSystem, "send", "not connected")
	}

	// Lock the connection only for writing
	t.writeMu.Lock()
	err := WriteFrame(conn, payload)
	t.writeMu.Unlock()

	if err != nil {
		t.markBroken(conn)
		return classifyIOError("send", err)
	}
	return nil
}

func (t *clientTransport) Receive() ([]byte, error) {
	conn, reader := t.current()
	if conn == nil {
		return nil, common.Errorf(common.ErrSystem, "receive", "not connected")
	}

	t.readMu.Lock()
	frame, err := ReadFrame(reader)
	t.readMu.Unlock()

	if err != nil {
		t.markBroken(conn)
		if err == io.EOF {
			return nil, common.Errorf(common.ErrSystem, "receive", "connection closed by server")
		}
		return nil, classifyIOError("receive", err)
	}
	return frame, nil
}

func (t *clientTransport) Disconnect() {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != nil {
		t.conn.Close()
		Logger.Debugf("Disconnected %s transport", t.connector.GetName())
	}
	t.conn = nil
	t.reader = nil
	t.connected.Store(false)
}

func (t *clientTransport) IsConnected() bool {
	return t.connected.Load()
}

func (t *clientTransport) GetName() string {
	return t.connector.GetName()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// current returns the open connection and its reader
func (t *clientTransport) current() (net.Conn, *bufio.Reader) {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn, t.reader
}

// markBroken closes conn after a failed read or write, unless it was
// already replaced by a newer connection
func (t *clientTransport) markBroken(conn net.Conn) {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != conn {
		return
	}
	conn.Close()
	t.conn = nil
	t.reader = nil
	t.connected.Store(false)
}

// readGreeting reads and parses the server greeting
func readGreeting(r *bufio.Reader) (*common.Greeting, error) {
	buf := make([]byte, common.GreetingSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, common.NewError(common.ErrConnect, "read greeting", fmt.Errorf("connection closed by server"))
		}
		kind := classifyIOError("read greeting", err)
		if common.IsSystemError(kind) {
			return nil, common.NewError(common.ErrConnect, "read greeting", err)
		}
		return nil, kind
	}
	return common.ParseGreeting(buf)
}
