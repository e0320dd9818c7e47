package tcp

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/ValentinKolb/sqc/rpc/common"
	"github.com/ValentinKolb/sqc/rpc/transport"
	"github.com/ValentinKolb/sqc/rpc/transport/base"
)

// clientConnector implements the IClientConnector interface for raw TCP sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(ctx context.Context, config common.ClientConfig) (io.ReadWriteCloser, error) {
	d := net.Dialer{
		KeepAlive: time.Duration(config.Transport.TCPConf.TCPKeepAliveSec) * time.Second,
	}
	return d.DialContext(ctx, "tcp", config.Transport.Endpoint())
}

func (c *clientConnector) UpgradeConnection(conn io.ReadWriteCloser, config common.ClientConfig) error {
	if nc, ok := conn.(net.Conn); ok {
		return base.TuneTCPConn(nc, config)
	}
	return nil
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPClientTransport creates a new raw TCP query transport
func NewTCPClientTransport() transport.ILineTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
