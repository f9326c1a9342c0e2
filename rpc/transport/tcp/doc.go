// Package tcp implements the TCP socket based transport of the tarantool
// connector. It provides a concrete implementation of the base package's
// connector interface.
//
// This package builds on the base package's transport functionality, inheriting
// its framing, greeting handling and error classification. See the base package
// documentation for details on the underlying transport mechanisms.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector. It
//     applies the TCPNoDelay, SendBufSize and RecvBufSize options of the client
//     configuration to the socket.
package tcp
