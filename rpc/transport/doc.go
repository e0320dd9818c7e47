// Package transport defines the abstraction the query engine runs on. The
// protocol is spoken over physically different channels (a plain TCP socket, a
// unix socket, a shell channel of a secure-shell session) that all expose the
// same capability set.
//
// The package focuses on:
//   - Defining a small interface for line based client transports
//   - Enabling multiple transport implementations (tcp, unix, ssh)
//
// Key Components:
//
//   - ILineTransport: Interface for client-side transports. Handles connection
//     management, line framing, keepalive writes and close notification.
//
//   - LineHandleFunc / CloseHandleFunc: Callback types through which a transport
//     emits received lines and the end of the channel.
package transport
