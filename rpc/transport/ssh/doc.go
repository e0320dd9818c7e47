// Package ssh implements the shell variant of the query transport: a
// secure-shell session is established first (password or keyboard-interactive
// authentication), then an interactive shell channel is opened and its data
// stream is framed into lines exactly like the raw TCP variant.
//
// Key Components:
//
//   - clientConnector: Dials TCP, performs the ssh handshake within the connect
//     deadline, optionally verifies the host key against a known_hosts file and
//     opens the shell.
//
//   - shellConn: Adapts the session's stdin/stdout pipes to io.ReadWriteCloser so the
//     base line transport can run on top of it. Closing it closes the session and the
//     ssh client.
package ssh
