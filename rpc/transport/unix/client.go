package unix

import (
	"context"
	"io"
	"net"

	"github.com/ValentinKolb/sqc/rpc/common"
	"github.com/ValentinKolb/sqc/rpc/transport"
	"github.com/ValentinKolb/sqc/rpc/transport/base"
)

// clientConnector implements the IClientConnector interface for Unix sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "unix"
}

func (c *clientConnector) Connect(ctx context.Context, config common.ClientConfig) (io.ReadWriteCloser, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", config.Transport.Endpoint())
}

func (c *clientConnector) UpgradeConnection(io.ReadWriteCloser, common.ClientConfig) error {
	return nil
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixClientTransport creates a new query transport over a unix socket
func NewUnixClientTransport() transport.ILineTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
