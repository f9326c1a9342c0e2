package tnttest

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/ValentinKolb/lwtnt/rpc/serializer"
	"github.com/ValentinKolb/lwtnt/rpc/transport/base"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/goleak"
)

// rawConn is a minimal hand driven client
type rawConn struct {
	t        *testing.T
	conn     net.Conn
	reader   *bufio.Reader
	greeting *common.Greeting
	s        serializer.IProtoSerializer
}

func dial(t *testing.T, network, addr string) *rawConn {
	conn, err := net.Dial(network, addr)
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	buf := make([]byte, common.GreetingSize)
	_, err = io.ReadFull(reader, buf)
	require.NoError(t, err)

	greeting, err := common.ParseGreeting(buf)
	require.NoError(t, err)

	return &rawConn{t: t, conn: conn, reader: reader, greeting: greeting, s: serializer.NewMsgpackSerializer()}
}

func (c *rawConn) call(sync uint64, fn string, args ...interface{}) {
	var buf bytes.Buffer
	require.NoError(c.t, c.s.WriteCall(&buf, sync, fn, args))
	require.NoError(c.t, base.WriteFrame(c.conn, buf.Bytes()))
}

func (c *rawConn) auth(sync uint64, user, password string) {
	var buf bytes.Buffer
	require.NoError(c.t, c.s.WriteAuth(&buf, sync, user, c.greeting.Scramble(password)))
	require.NoError(c.t, base.WriteFrame(c.conn, buf.Bytes()))
}

func (c *rawConn) response() *common.Response {
	frame, err := base.ReadFrame(c.reader)
	require.NoError(c.t, err)
	resp, err := c.s.ReadResponse(frame)
	require.NoError(c.t, err)
	return resp
}

func decode(t *testing.T, data []byte) []interface{} {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	v, err := dec.DecodeSlice()
	require.NoError(t, err)
	return v
}

// TestServerBuiltins tests the greeting and the built-in functions
func TestServerBuiltins(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv, err := NewServer()
	require.NoError(t, err)
	defer srv.Close()

	c := dial(t, "tcp", srv.Addr())
	defer c.conn.Close()
	require.Equal(t, Version, c.greeting.Version)
	require.Len(t, c.greeting.Salt, 32)

	c.call(1, "test1")
	resp := c.response()
	require.Equal(t, uint64(1), resp.Sync)
	require.False(t, resp.Failed())
	require.Equal(t, []interface{}{[]interface{}{int64(1), int64(2), int64(3)}}, decode(t, resp.Data))

	c.call(2, "test2")
	resp = c.response()
	require.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, decode(t, resp.Data))

	c.call(3, "test3", "aaa", "bbb")
	resp = c.response()
	require.Equal(t, []interface{}{"aaa", "bbb"}, decode(t, resp.Data))

	c.call(4, "nope")
	resp = c.response()
	require.True(t, resp.Failed())
	require.Equal(t, common.ErrCodeNoSuchProc, resp.ErrorCode())
	require.Equal(t, "Procedure 'nope' is not defined", resp.ErrorMessage())

	c.call(5, "error", "boom")
	resp = c.response()
	require.Equal(t, common.ErrCodeProcLua, resp.ErrorCode())
	require.Equal(t, "boom", resp.ErrorMessage())

	require.Equal(t, int64(5), srv.Calls())
}

// TestServerOutOfOrder tests that a slow call does not hold back later ones
func TestServerOutOfOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv, err := NewServer()
	require.NoError(t, err)
	defer srv.Close()

	c := dial(t, "tcp", srv.Addr())
	defer c.conn.Close()

	c.call(1, "fiber.sleep", 0.2)
	c.call(2, "test2")

	require.Equal(t, uint64(2), c.response().Sync)
	require.Equal(t, uint64(1), c.response().Sync)
}

// TestServerAuth tests the chap-sha1 check
func TestServerAuth(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv, err := NewServer(WithUser("admin", "secret"))
	require.NoError(t, err)
	defer srv.Close()

	c := dial(t, "tcp", srv.Addr())
	defer c.conn.Close()

	c.auth(1, "admin", "wrong")
	resp := c.response()
	require.True(t, resp.Failed())
	require.Equal(t, common.ErrCodePasswordMismatch, resp.ErrorCode())

	c.auth(2, "nobody", "secret")
	resp = c.response()
	require.Equal(t, common.ErrCodeNoSuchUser, resp.ErrorCode())

	c.auth(3, "admin", "secret")
	resp = c.response()
	require.False(t, resp.Failed())
	require.Equal(t, uint64(3), resp.Sync)
}

// TestServerCloseConnections tests that dropped connections cancel running calls
// and that the listener stays open
func TestServerCloseConnections(t *testing.T) {
	defer goleak.VerifyNone(t)

	canceled := make(chan struct{})
	srv, err := NewServer(WithFunc("block", func(ctx context.Context, _ []interface{}) ([]interface{}, error) {
		<-ctx.Done()
		close(canceled)
		return nil, ctx.Err()
	}))
	require.NoError(t, err)
	defer srv.Close()

	c := dial(t, "tcp", srv.Addr())
	defer c.conn.Close()

	c.call(1, "block")
	require.Eventually(t, func() bool { return srv.Calls() == 1 }, time.Second, 5*time.Millisecond)

	srv.CloseConnections()
	<-canceled

	_, err = base.ReadFrame(c.reader)
	require.Error(t, err)

	// new connections are still accepted
	c2 := dial(t, "tcp", srv.Addr())
	defer c2.conn.Close()
	c2.call(1, "test2")
	require.False(t, c2.response().Failed())
	require.Equal(t, int64(2), srv.Accepted())
}

// TestServerCloseWaits tests that Close returns only after all goroutines
// finished, even with a call blocked in fiber.sleep
func TestServerCloseWaits(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv, err := NewServer(WithMaxWorkersPerConn(1))
	require.NoError(t, err)

	c := dial(t, "tcp", srv.Addr())
	defer c.conn.Close()

	c.call(1, "fiber.sleep", 3600)
	c.call(2, "fiber.sleep", 3600)
	require.Eventually(t, func() bool { return srv.Calls() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
}

// TestServerUnix tests the unix socket listener
func TestServerUnix(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "tnt.sock")
	srv, err := NewServer(WithAddress("unix", path))
	require.NoError(t, err)
	defer srv.Close()
	require.Equal(t, "unix/:"+path, srv.URL())

	c := dial(t, "unix", path)
	defer c.conn.Close()

	c.call(7, "test1")
	require.Equal(t, uint64(7), c.response().Sync)
}

// TestServerWithoutGreeting tests that a silent server never writes
func TestServerWithoutGreeting(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv, err := NewServer(WithoutGreeting())
	require.NoError(t, err)
	defer srv.Close()

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, err = conn.Read(make([]byte, 1))
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())
}
