// Package cmd implements the command-line interface of lwtnt. It provides
// commands to talk to a tarantool server and to start a local test server.
//
// The package is organized into several subpackages:
//
//   - conn: Commands that call functions on a server (call, pipeline, wait, perf)
//   - serve: Command that starts the in-process test server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set through LWTNT_<FLAG> environment variables or a
// .env file. See lwtnt -help for a list of all commands.
package cmd
