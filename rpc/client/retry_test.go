package client

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/ValentinKolb/lwtnt/rpc/serializer"
	"github.com/stretchr/testify/require"
)

// scriptedTransport replays queued results instead of talking to a server.
// Every Connect and Send pops the next error of its queue, an empty queue
// means success.
type scriptedTransport struct {
	connected bool

	connectErrs []error
	sendErrs    []error
	frames      [][]byte

	connects int
	sends    int
}

func (t *scriptedTransport) Connect(context.Context, common.ClientConfig) (*common.Greeting, error) {
	t.connects++
	t.connected = false
	if err := pop(&t.connectErrs); err != nil {
		return nil, err
	}
	t.connected = true
	return &common.Greeting{Version: "Tarantool scripted", Salt: make([]byte, common.ScrambleSize)}, nil
}

func (t *scriptedTransport) SetDeadline(time.Time) error { return nil }

func (t *scriptedTransport) Send([]byte) error {
	if !t.connected {
		return common.Errorf(common.ErrSystem, "send", "not connected")
	}
	t.sends++
	err := pop(&t.sendErrs)
	if common.IsSystemError(err) {
		t.connected = false
	}
	return err
}

func (t *scriptedTransport) Receive() ([]byte, error) {
	if !t.connected || len(t.frames) == 0 {
		t.connected = false
		return nil, common.Errorf(common.ErrSystem, "receive", "connection closed by server")
	}
	frame := t.frames[0]
	t.frames = t.frames[1:]
	return frame, nil
}

func (t *scriptedTransport) Disconnect()       { t.connected = false }
func (t *scriptedTransport) IsConnected() bool { return t.connected }
func (t *scriptedTransport) GetName() string   { return "scripted" }

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func brokenPipe() error {
	return common.Errorf(common.ErrSystem, "send", "broken pipe")
}

func newScripted(t *scriptedTransport) *Connection {
	return NewConnection(common.DefaultClientConfig("127.0.0.1:3301"), t, serializer.NewMsgpackSerializer())
}

func responseFrame(t *testing.T, resp *common.Response) []byte {
	var buf bytes.Buffer
	require.NoError(t, serializer.NewMsgpackSerializer().WriteResponse(&buf, resp))
	return buf.Bytes()
}

// TestCallRetriesOnce tests that a broken connection is replaced once and
// the requests of the old connection are canceled
func TestCallRetriesOnce(t *testing.T) {
	tr := &scriptedTransport{sendErrs: []error{nil, brokenPipe(), nil}}
	conn := newScripted(tr)

	old, err := conn.Call("test1", nil)
	require.NoError(t, err)

	req, err := conn.Call("test1", nil)
	require.NoError(t, err)
	require.NotNil(t, req)

	require.Equal(t, 2, tr.connects)
	require.Equal(t, 3, tr.sends)
	require.True(t, conn.Connected())

	require.True(t, old.Canceled())
	require.False(t, req.Ready())
	require.Equal(t, 1, conn.Pending())
}

// TestCallFailsAfterSecondAttempt tests that a call gives up after one retry
func TestCallFailsAfterSecondAttempt(t *testing.T) {
	tr := &scriptedTransport{sendErrs: []error{brokenPipe(), brokenPipe(), nil}}
	conn := newScripted(tr)

	_, err := conn.Call("test1", nil)
	require.True(t, errors.Is(err, common.ErrSystem), "got %v", err)

	require.Equal(t, 2, tr.connects)
	require.Equal(t, 2, tr.sends)
	require.False(t, conn.Connected())
	require.Equal(t, 0, conn.Pending())
}

// TestCallReconnectFails tests that a failed reconnect ends the call
func TestCallReconnectFails(t *testing.T) {
	refused := common.Errorf(common.ErrConnect, "dial", "connection refused")
	tr := &scriptedTransport{
		connectErrs: []error{nil, refused},
		sendErrs:    []error{brokenPipe()},
	}
	conn := newScripted(tr)

	_, err := conn.Call("test1", nil)
	require.True(t, errors.Is(err, common.ErrConnect), "got %v", err)
	require.Equal(t, 2, tr.connects)
	require.Equal(t, 1, tr.sends)
}

// TestCallConnectErrorNotRetried tests that errors of the first connect are
// returned directly
func TestCallConnectErrorNotRetried(t *testing.T) {
	timeout := common.Errorf(common.ErrTimeout, "greeting", "i/o timeout")
	tr := &scriptedTransport{connectErrs: []error{timeout}}
	conn := newScripted(tr)

	_, err := conn.Call("test1", nil)
	require.True(t, errors.Is(err, common.ErrTimeout), "got %v", err)
	require.Equal(t, 1, tr.connects)
	require.Equal(t, 0, tr.sends)
}

// TestCallTooLargeNotRetried tests that a rejected request keeps the connection
func TestCallTooLargeNotRetried(t *testing.T) {
	tooLarge := common.Errorf(common.ErrTooLargeRequest, "send", "frame exceeds send buffer")
	tr := &scriptedTransport{sendErrs: []error{nil, tooLarge}}
	conn := newScripted(tr)

	pending, err := conn.Call("test1", nil)
	require.NoError(t, err)

	_, err = conn.Call("test3", []interface{}{"x"})
	require.True(t, errors.Is(err, common.ErrTooLargeRequest), "got %v", err)
	require.False(t, common.IsSystemError(err))

	require.Equal(t, 1, tr.connects)
	require.True(t, conn.Connected())
	require.False(t, pending.Ready())
	require.Equal(t, 1, conn.Pending())
}

// TestReadUnknownSync tests that an unmatched response keeps the connection
func TestReadUnknownSync(t *testing.T) {
	tr := &scriptedTransport{}
	conn := newScripted(tr)

	req, err := conn.Call("test1", nil)
	require.NoError(t, err)

	tr.frames = [][]byte{
		responseFrame(t, &common.Response{Sync: 99}),
		responseFrame(t, &common.Response{Sync: req.ID(), Data: []byte{0x91, 0x07}}),
	}

	_, err = conn.Read()
	require.True(t, errors.Is(err, common.ErrSync), "got %v", err)
	require.True(t, conn.Connected())
	require.False(t, req.Ready())

	got, err := conn.Read()
	require.NoError(t, err)
	require.Same(t, req, got)

	result, ok, err := req.Result()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []interface{}{int64(7)}, result)
}

// TestReadMalformedFrame tests that undecodable frames fail with ErrSync
func TestReadMalformedFrame(t *testing.T) {
	tr := &scriptedTransport{}
	conn := newScripted(tr)

	req, err := conn.Call("test1", nil)
	require.NoError(t, err)

	tr.frames = [][]byte{{0xc1}}
	_, err = conn.Read()
	require.True(t, errors.Is(err, common.ErrSync), "got %v", err)
	require.True(t, conn.Connected())
	require.Equal(t, 1, conn.Pending())
	require.False(t, req.Ready())
}

// TestSyncIncreases tests that ids are never reused, also across reconnects
func TestSyncIncreases(t *testing.T) {
	tr := &scriptedTransport{sendErrs: []error{nil, brokenPipe(), nil, nil}}
	conn := newScripted(tr)

	var last uint64
	for i := 0; i < 3; i++ {
		req, err := conn.Call("test1", nil)
		require.NoError(t, err)
		require.Greater(t, req.ID(), last)
		last = req.ID()
	}
}

// TestWriteMetrics tests that the client counters are exported
func TestWriteMetrics(t *testing.T) {
	tr := &scriptedTransport{}
	conn := newScripted(tr)

	_, err := conn.Call("test1", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	WriteMetrics(&buf)
	require.Contains(t, buf.String(), "lwtnt_calls_total")
	require.Contains(t, buf.String(), "lwtnt_connects_total")
}
