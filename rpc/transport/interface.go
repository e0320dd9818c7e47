package transport

import (
	"context"

	"github.com/ValentinKolb/sqc/rpc/common"
)

// --------------------------------------------------------------------------
// Handler Types
// --------------------------------------------------------------------------

// LineHandleFunc is called by the transport for every received logical line.
// The line terminator and surrounding whitespace are already stripped, empty
// lines are never delivered. Calls happen sequentially from a single reader goroutine.
type LineHandleFunc func(line string)

// CloseHandleFunc is called exactly once when the channel ended. err is nil if
// the transport was closed locally, otherwise it is the fault that ended it
// (remote close, read or write error).
type CloseHandleFunc func(err error)

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// ILineTransport is the interface for a line oriented query transport. It owns
// the physical connection only and knows nothing about the protocol on top.
type ILineTransport interface {
	// RegisterHandler registers the handler receiving incoming lines. Must be called before Connect.
	RegisterHandler(handler LineHandleFunc)
	// RegisterCloseHandler registers the handler notified when the channel ends. Must be called before Connect.
	RegisterCloseHandler(handler CloseHandleFunc)
	// Connect establishes the physical channel. It honours ctx and the configured connect timeout.
	Connect(ctx context.Context, config common.ClientConfig) error
	// Send writes line followed by the line terminator. No escaping is applied.
	Send(line string) error
	// SendKeepAlive writes a single whitespace line which the server ignores.
	SendKeepAlive() error
	// Close shuts the channel down. It is idempotent.
	Close() error
	// GetName returns the name of the transport (e.g. "tcp", "ssh")
	GetName() string
}
