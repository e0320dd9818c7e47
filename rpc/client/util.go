package client

import (
	"github.com/ValentinKolb/sqc/lib/sqerr"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	Logger = logger.GetLogger("client")
)

// registry maps connection handles to live clients. Nodes only carry the
// handle, so a node outliving its connection fails explicitly on lookup.
var registry = xsync.NewMapOf[uuid.UUID, *Client]()

// Lookup resolves a connection handle. Closed clients are no longer registered.
func Lookup(handle uuid.UUID) (*Client, error) {
	c, ok := registry.Load(handle)
	if !ok {
		return nil, sqerr.ErrUnknownHandle
	}
	return c, nil
}

// Connections returns the number of registered clients.
func Connections() int {
	return registry.Size()
}
