package client

import (
	"bytes"
	"sync/atomic"

	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/vmihailenco/msgpack/v5"
)

// CanceledMessage is the error message of requests that were pending when
// their connection was closed
const CanceledMessage = "Request canceled due to connection close"

// Request is a single call dispatched on a Connection. It is created by
// Connection.Call and resolved exactly once by the connection, either with
// the server's response or by cancellation. All accessors that need the
// response drive reads on the connection until the request is ready.
type Request struct {
	id   uint64
	conn *Connection

	// written once by the connection before ready is set
	data     []byte
	errMsg   string
	code     uint32
	canceled bool

	ready atomic.Bool
}

func newRequest(conn *Connection, id uint64) *Request {
	return &Request{id: id, conn: conn}
}

// ID returns the correlation id (sync) of the request
func (r *Request) ID() uint64 {
	return r.id
}

// Ready reports whether the request was resolved
func (r *Request) Ready() bool {
	return r.ready.Load()
}

// Wait blocks until the request is resolved. It reads responses from the
// connection, resolving other requests on the way. An error is only
// returned if a read failed and the request is still not resolved.
func (r *Request) Wait() error {
	for !r.Ready() {
		if _, err := r.conn.read(r); err != nil {
			if r.Ready() {
				return nil
			}
			return err
		}
	}
	return nil
}

// Result waits for the request and returns the decoded result. ok is false
// if the request failed, see ErrorMessage.
func (r *Request) Result() (result []interface{}, ok bool, err error) {
	if err := r.Wait(); err != nil {
		return nil, false, err
	}
	if r.errMsg != "" {
		return nil, false, nil
	}

	dec := msgpack.NewDecoder(bytes.NewReader(r.data))
	dec.UseLooseInterfaceDecoding(true)
	result, err = dec.DecodeSlice()
	if err != nil {
		return nil, false, common.NewError(common.ErrSync, "decode result", err)
	}
	if result == nil {
		result = []interface{}{}
	}
	return result, true, nil
}

// DecodeResult waits for the request and decodes the result into v, which
// must be a pointer. ok is false if the request failed.
func (r *Request) DecodeResult(v interface{}) (ok bool, err error) {
	if err := r.Wait(); err != nil {
		return false, err
	}
	if r.errMsg != "" {
		return false, nil
	}
	if err := msgpack.Unmarshal(r.data, v); err != nil {
		return false, common.NewError(common.ErrSync, "decode result", err)
	}
	return true, nil
}

// ErrorMessage waits for the request and returns its error message. ok is
// false if the request succeeded.
func (r *Request) ErrorMessage() (msg string, ok bool, err error) {
	if err := r.Wait(); err != nil {
		return "", false, err
	}
	return r.errMsg, r.errMsg != "", nil
}

// Canceled reports whether the request was resolved by a connection close
// instead of a server response
func (r *Request) Canceled() bool {
	return r.Ready() && r.canceled
}

// Code returns the server error code of a failed request, 0 otherwise
func (r *Request) Code() uint32 {
	if !r.Ready() {
		return 0
	}
	return r.code
}

// --------------------------------------------------------------------------
// Resolution (called by the connection with its lock held)
// --------------------------------------------------------------------------

// resolve stores the response and marks the request ready
func (r *Request) resolve(resp *common.Response) {
	if resp.Failed() {
		r.errMsg = resp.ErrorMessage()
		r.code = resp.ErrorCode()
	} else {
		r.data = resp.Data
	}
	r.ready.Store(true)
}

// cancel marks the request ready with the canceled message
func (r *Request) cancel() {
	r.errMsg = CanceledMessage
	r.canceled = true
	r.ready.Store(true)
}
