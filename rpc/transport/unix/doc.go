// Package unix implements the raw query transport over a Unix domain socket.
// Useful for local query proxies and for tests that avoid the TCP stack.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets. The socket
//     path is taken from the configured host.
package unix
