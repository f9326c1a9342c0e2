// Package tnttest provides an in-process tarantool server for tests and
// local experiments. It implements the server side of the parts of IPROTO
// the client uses: the greeting, chap-sha1 authentication and CALL.
//
// Key Components:
//
//   - Server: Listens on a tcp or unix address, sends a greeting with a
//     random salt and dispatches calls to registered functions. Calls of one
//     connection run concurrently (bounded by a per-connection worker pool),
//     so a slow call does not hold back the responses of later ones.
//
//   - Func: A function callable through the server. Its context is canceled
//     when the connection closes.
//
// Failure Injection:
//
//   - CloseConnections drops all live connections while the listener keeps
//     accepting new ones, Close stops the server. A new server can be started
//     on the address of a closed one with WithAddress.
//
//   - WithoutGreeting makes the server accept connections but never greet,
//     which lets clients run into their connect timeout.
//
// Usage:
//
//	srv, _ := tnttest.NewServer(tnttest.WithUser("admin", "secret"))
//	defer srv.Close()
//
//	conn, _ := client.New(common.DefaultClientConfig("admin:secret@" + srv.Addr()))
package tnttest
