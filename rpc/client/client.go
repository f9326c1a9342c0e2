package client

import (
	"context"
	"sync"
	"time"

	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/ValentinKolb/lwtnt/rpc/serializer"
	"github.com/ValentinKolb/lwtnt/rpc/transport"
	"github.com/ValentinKolb/lwtnt/rpc/transport/tcp"
	"github.com/ValentinKolb/lwtnt/rpc/transport/unix"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/valyala/bytebufferpool"
)

var Logger = logger.GetLogger(common.LoggerClient)

// maxCallAttempts is the number of times Call tries to send a request. A
// connection that died silently only fails on the next write, so a failed
// send is retried once on a fresh connection.
const maxCallAttempts = 2

// Connection is a single connection to a tarantool server. Calls are
// dispatched without waiting for their response, responses are read with
// Read or by waiting on a Request. All methods are safe for concurrent use,
// they are serialized by one lock which is also held while blocking on the
// socket.
type Connection struct {
	mu         sync.Mutex
	config     common.ClientConfig
	endpoint   common.Endpoint
	transport  transport.IProtoTransport
	serializer serializer.IProtoSerializer

	// pending holds all dispatched requests that are not resolved yet.
	// It is only modified with mu held.
	pending  *xsync.MapOf[uint64, *Request]
	lastSync uint64
}

// --------------------------------------------------------------------------
// Factory Methods
// --------------------------------------------------------------------------

// New creates a connection for the given configuration. The transport is
// chosen by the url. Unless config.LazyConnect is set the connection is
// established before New returns.
func New(config common.ClientConfig) (*Connection, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	endpoint, err := common.ParseURL(config.URL)
	if err != nil {
		return nil, err
	}

	var t transport.IProtoTransport
	switch endpoint.Network {
	case "unix":
		t = unix.NewUnixClientTransport()
	default:
		t = tcp.NewTCPClientTransport()
	}

	c := NewConnection(config, t, serializer.NewMsgpackSerializer())
	if config.LazyConnect {
		return c, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewConnection creates a disconnected connection on top of the given
// transport and serializer. The first Call connects.
func NewConnection(config common.ClientConfig, t transport.IProtoTransport, s serializer.IProtoSerializer) *Connection {
	// invalid urls are reported by the transport on connect
	endpoint, _ := common.ParseURL(config.URL)

	return &Connection{
		config:     config,
		endpoint:   endpoint,
		transport:  t,
		serializer: s,
		pending:    xsync.NewMapOf[uint64, *Request](),
	}
}

// --------------------------------------------------------------------------
// Public Methods
// --------------------------------------------------------------------------

// Call sends a call of function with args to the server and returns the
// Request without waiting for the response. A disconnected connection is
// connected first. If sending fails because the connection broke, all
// pending requests are canceled and the call is retried once on a new
// connection.
//
// Errors raised by the function on the server are not returned here, they
// are stored on the Request.
func (c *Connection) Call(function string, args []interface{}) (*Request, error) {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var lastErr error
	for attempt := 1; attempt <= maxCallAttempts; attempt++ {
		if !c.transport.IsConnected() {
			if err := c.connect(); err != nil {
				return nil, err
			}
		}

		id := c.nextSync()
		buf.Reset()
		if err := c.serializer.WriteCall(buf, id, function, args); err != nil {
			return nil, common.NewError(common.ErrUnknown, "encode call", err)
		}

		err := c.transport.Send(buf.B)
		if err == nil {
			req := newRequest(c, id)
			c.pending.Store(id, req)

			callsTotal.Inc()
			callDuration.UpdateDuration(start)
			return req, nil
		}

		// Only a broken connection is worth another attempt
		if !common.IsSystemError(err) {
			return nil, err
		}
		lastErr = err
		c.teardown()

		if attempt < maxCallAttempts {
			callRetriesTotal.Inc()
			Logger.Warningf("Call of %s failed (attempt %d/%d), reconnecting: %v", function, attempt, maxCallAttempts, err)
		}
	}

	Logger.Errorf("Call of %s failed after %d attempts: %v", function, maxCallAttempts, lastErr)
	return nil, lastErr
}

// Read blocks until the next response arrives and returns the Request it
// resolves. If the connection breaks all pending requests are canceled and
// the error is returned. A response without pending request fails with
// ErrSync, the connection stays usable.
func (c *Connection) Read() (*Request, error) {
	return c.read(nil)
}

// Disconnect cancels all pending requests and closes the connection.
// Disconnecting a closed connection does nothing.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown()
}

// Connected reports whether the connection is open
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport.IsConnected()
}

// Pending returns the number of requests waiting for a response
func (c *Connection) Pending() int {
	return c.pending.Size()
}

// Config returns the configuration of the connection
func (c *Connection) Config() common.ClientConfig {
	return c.config
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// read is Read, but returns early if waiting was resolved while the caller
// was blocked on the lock
func (c *Connection) read(waiting *Request) (*Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if waiting != nil && waiting.Ready() {
		return waiting, nil
	}

	frame, err := c.transport.Receive()
	if err != nil {
		// the transport closes the socket on every receive failure
		Logger.Warningf("Read failed, canceling %d pending requests: %v", c.pending.Size(), err)
		c.teardown()
		return nil, err
	}

	resp, err := c.serializer.ReadResponse(frame)
	if err != nil {
		syncErrorsTotal.Inc()
		return nil, err
	}

	req, ok := c.pending.LoadAndDelete(resp.Sync)
	if !ok {
		syncErrorsTotal.Inc()
		Logger.Warningf("Dropped response with unknown sync %d", resp.Sync)
		return nil, common.Errorf(common.ErrSync, "read", "no pending request with sync %d", resp.Sync)
	}

	req.resolve(resp)
	readsTotal.Inc()
	return req, nil
}

// connect opens the transport and authenticates if the url has a user.
// Connect, greeting and auth share one deadline. mu must be held.
func (c *Connection) connect() error {
	timeout := c.config.GetConnectTimeout()
	deadline := time.Now().Add(timeout)

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	greeting, err := c.transport.Connect(ctx, c.config)
	if err != nil {
		Logger.Warningf("Failed to connect to %s: %v", common.RedactURL(c.config.URL), err)
		return err
	}

	if c.endpoint.User != "" {
		if err := c.auth(greeting, deadline); err != nil {
			c.transport.Disconnect()
			Logger.Warningf("Failed to authenticate as %s: %v", c.endpoint.User, err)
			return err
		}
	}

	connectsTotal.Inc()
	Logger.Infof("Connected to %s (%s)", common.RedactURL(c.config.URL), greeting.Version)
	return nil
}

// auth sends a chap-sha1 auth request and waits for its response
func (c *Connection) auth(greeting *common.Greeting, deadline time.Time) error {
	if err := c.transport.SetDeadline(deadline); err != nil {
		return common.NewError(common.ErrConnect, "auth", err)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	id := c.nextSync()
	if err := c.serializer.WriteAuth(buf, id, c.endpoint.User, greeting.Scramble(c.endpoint.Password)); err != nil {
		return common.NewError(common.ErrUnknown, "encode auth", err)
	}
	if err := c.transport.Send(buf.B); err != nil {
		return err
	}

	frame, err := c.transport.Receive()
	if err != nil {
		return err
	}
	resp, err := c.serializer.ReadResponse(frame)
	if err != nil {
		return err
	}
	if resp.Sync != id {
		return common.Errorf(common.ErrSync, "auth", "unexpected sync %d, expected %d", resp.Sync, id)
	}
	if resp.Failed() {
		return common.Errorf(common.ErrLogin, "auth", "%s", resp.ErrorMessage())
	}

	if err := c.transport.SetDeadline(time.Time{}); err != nil {
		return common.NewError(common.ErrConnect, "auth", err)
	}
	return nil
}

// teardown cancels all pending requests and closes the transport
func (c *Connection) teardown() {
	canceled := 0
	c.pending.Range(func(id uint64, req *Request) bool {
		req.cancel()
		c.pending.Delete(id)
		canceled++
		return true
	})
	c.transport.Disconnect()

	if canceled > 0 {
		requestsCanceledTotal.Add(canceled)
		Logger.Infof("Canceled %d pending requests", canceled)
	}
}

// nextSync returns the next correlation id
func (c *Connection) nextSync() uint64 {
	c.lastSync++
	return c.lastSync
}
