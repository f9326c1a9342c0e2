// Package client implements the connection of the tarantool connector. It
// provides a pipelined call interface over a single connection: calls are
// sent without waiting for their response and responses are matched back to
// their requests by correlation id (sync).
//
// The package focuses on:
//   - Dispatching calls and demultiplexing responses onto their requests
//   - Recovering from a silently broken connection with one reconnect per call
//   - Canceling all pending requests when the connection breaks or is closed
//   - Authentication with credentials taken from the url
//
// Key Components:
//
//   - Connection: Owns the transport and the table of pending requests. Call,
//     Read, Disconnect and Connected are serialized by one lock, which is also
//     held while blocking on the socket. There are no background goroutines,
//     responses are only read when a caller calls Read or waits on a Request.
//
//   - Request: One dispatched call. It becomes ready exactly once, either with
//     the server's response (result or error message) or by cancellation.
//     Wait, Result, DecodeResult and ErrorMessage drive reads on the
//     connection until the request is ready.
//
// Usage Example:
//
//	conn, err := client.New(common.DefaultClientConfig("guest@localhost:3301"))
//	if err != nil {
//	  return err
//	}
//	defer conn.Disconnect()
//
//	// Pipeline two calls
//	r1, _ := conn.Call("box.info", nil)
//	r2, _ := conn.Call("math.max", []interface{}{1, 2})
//
//	// Read both responses, in arrival order
//	for i := 0; i < 2; i++ {
//	  req, _ := conn.Read()
//	  fmt.Println(req.ID())
//	}
//
//	// Or wait for one of them
//	result, ok, err := r2.Result()
//	if !ok {
//	  msg, _, _ := r2.ErrorMessage()
//	}
//
// Error Handling:
//
//	Errors returned by this package are *common.Error values matching one of
//	the error kinds of the common package with errors.Is. Errors raised by
//	the called function on the server are never returned, they are stored on
//	the Request.
//
// Metrics:
//
//	Calls, retries, reads, cancellations, sync errors, connects and the call
//	latency are counted with VictoriaMetrics/metrics, see WriteMetrics.
//
// Thread Safety:
//
//	Connection and Request are safe for concurrent use from multiple
//	goroutines.
package client
