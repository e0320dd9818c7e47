// Package base provides the foundation for all query transports, implementing
// the line framing independent of the specific medium (TCP, unix socket,
// secure-shell channel). It is extended with medium specific connectors.
//
// The package focuses on:
//   - A medium agnostic line transport over any io.ReadWriteCloser
//   - Buffered reading with newline framing and carriage return stripping
//   - Serialized, flushed writes of single lines and keepalive lines
//   - Exactly-once close notification for local closes and remote faults
//
// Key Components:
//
//   - IClientConnector: Interface for medium specific operations (dial, tune) that
//     allows extending the base transport with different channels.
//
//   - lineTransport: Core implementation. One reader goroutine per connection scans
//     lines and hands them to the registered handler in arrival order. Writes are
//     guarded by a mutex so the engine and the keepalive timer can send concurrently.
//
//   - TuneTCPConn: Applies TCP no-delay, keepalive, linger and buffer sizes, shared by
//     the tcp and ssh connectors.
//
// Thread Safety:
//
//	Send, SendKeepAlive and Close are safe for concurrent use. Handlers are invoked
//	from the reader goroutine only, so the line handler never runs concurrently
//	with itself. A write failure closes the transport asynchronously, so a caller
//	holding its own lock while sending is never re-entered by the close handler.
package base
