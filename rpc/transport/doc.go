// Package transport defines the interface for the framed connection a
// tarantool client talks through. It provides a common contract that all
// transport implementations must fulfill, so the client does not depend on
// the kind of socket it is connected with.
//
// The package focuses on:
//   - Defining a clear interface for the client transport layer
//   - Keeping the handshake (dial and greeting) inside the transport
//   - Enabling multiple transport implementations (TCP, Unix sockets)
//
// Key Components:
//
//   - IProtoTransport: Interface for client-side transport implementations that
//     handles the connection, the server greeting and length prefixed framing.
package transport
