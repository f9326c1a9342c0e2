// Package base provides the foundation of the transport layer of the tarantool
// connector, implementing the core functionality independent of the specific
// socket type (TCP, Unix sockets). It serves as a base layer that is extended
// with protocol-specific connectors.
//
// The package focuses on:
//   - A socket agnostic client transport implementation
//   - Reading the 128 byte server greeting under the connect deadline
//   - Length prefixed framing (msgpack unsigned integer + packet)
//   - Mapping network failures to the error kinds of the common package
//
// Key Components:
//
//   - IClientConnector: Interface for protocol-specific operations that allows
//     extending the base transport with different socket types.
//
//   - clientTransport: Core client implementation that owns one connection.
//     Writes and reads are serialized independently of each other, so one
//     goroutine may block in Receive while others Send.
//
//   - WriteFrame/ReadFrame: The framing helpers, shared with the test server.
//
// Error Handling:
//
//   - Name resolution failures are reported as ErrResolve, expired deadlines as
//     ErrTimeout and all other dial failures as ErrConnect.
//   - A failed read or write closes the connection and is reported as ErrSystem.
//   - A frame larger than the configured send buffer is rejected with
//     ErrTooLargeRequest before anything is written.
//   - An unparsable length prefix is reported as ErrSync.
//
// Performance Optimizations:
//
//   - Frame Batching: The transport uses net.Buffers to reduce syscalls when
//     writing frames, combining header and payload into a single write operation.
//
//   - Buffered Reads: Frames are read through a bufio.Reader of RecvBufSize
//     bytes, so many small responses are served by one read syscall.
//
// Thread Safety:
//
//	All public methods are thread-safe.
package base
