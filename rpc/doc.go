// Package rpc provides a lightweight client for the tarantool IPROTO protocol.
// A single connection carries many calls at once: calls are dispatched
// without waiting and responses are matched to their requests by sync id,
// in whatever order the server sends them.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the client,
//     including the IPROTO keys, greeting and scramble, the error kinds,
//     configuration structures, and logging.
//
//   - transport: Framed connections with pluggable implementations
//     (TCP, Unix sockets).
//
//   - serializer: Msgpack encoding of call and auth requests and decoding
//     of responses (and the server side counterparts).
//
//   - client: The Connection with its pending request table, the Request
//     handle and the client metrics.
//
//   - tnttest: An in-process server for tests and local experiments.
package rpc
