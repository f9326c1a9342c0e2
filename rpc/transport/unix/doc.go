// Package unix implements the transport of the tarantool connector on top of
// Unix domain sockets, for servers listening on a local socket file
// (urls of the form "unix/:/path/to.sock").
//
// This package extends the base transport layer with a Unix socket-specific
// connector while inheriting framing, greeting handling and error
// classification from the base package.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
package unix
