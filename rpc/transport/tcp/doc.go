// Package tcp implements the raw query transport over a plain TCP socket, the
// default channel of the protocol (port 10011).
//
// This package builds on the base package's line transport, inheriting its line
// framing, serialized writes and close notification. See the base package
// documentation for details.
//
// Key Components:
//
//   - clientConnector: TCP specific implementation of base.IClientConnector. Dials with
//     the context deadline and tunes the socket (no-delay, keepalive, linger, buffers).
package tcp
