// Package common provides the data structures and utilities shared by the
// transport, serializer and client packages of the tarantool connector.
//
// The package focuses on:
//   - IPROTO protocol constants (header and body keys, request types, error codes)
//   - Parsing of the server greeting and the chap-sha1 auth scramble
//   - The client configuration and url parsing
//   - The error taxonomy every other package reports failures with
//   - Custom logging implementation integrated with Dragonboat's logger package
//
// Key Components:
//
//   - Response: A decoded response frame. Successful responses carry the raw
//     msgpack encoding of the result, failed ones the server's error message.
//
//   - Greeting: The 128 byte banner a server sends after accepting a
//     connection. It contains the server version and the salt used for auth.
//
//   - ClientConfig: Configuration of a connection, controlling the server url,
//     connect timeouts and buffer sizes.
//
//   - Error: A failure tagged with one of the error kinds (ErrResolve,
//     ErrTimeout, ErrSystem, ErrConnect, ErrSync, ErrTooLargeRequest,
//     ErrLogin, ErrUnknown), usable with errors.Is.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's
//     logging system while providing consistent formatting across the module.
package common
