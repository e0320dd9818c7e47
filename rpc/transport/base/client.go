package base

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/sqc/lib/sqerr"
	"github.com/ValentinKolb/sqc/rpc/common"
	"github.com/ValentinKolb/sqc/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for medium specific connection operations
type IClientConnector interface {
	// Connect establishes the physical channel to the configured endpoint
	Connect(ctx context.Context, config common.ClientConfig) (io.ReadWriteCloser, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp", "ssh")
	GetName() string

	// UpgradeConnection applies medium specific settings to an established channel
	UpgradeConnection(conn io.ReadWriteCloser, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Line Transport
// -----------------------------------------------------------

// lineTransport implements the line framing independent of the specific
// transport medium (unix, tcp, ssh shell, etc.)
type lineTransport struct {
	connector    IClientConnector
	config       common.ClientConfig
	handler      transport.LineHandleFunc
	closeHandler transport.CloseHandleFunc

	connMu    sync.Mutex // guards conn between Connect and finish
	conn      io.ReadWriteCloser
	writer    *bufio.Writer
	writeMu   sync.Mutex // serializes writes, the reader needs no lock
	connected atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, ssh)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new line transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.ILineTransport {
	return &lineTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.ILineTransport)
// --------------------------------------------------------------------------

func (t *lineTransport) RegisterHandler(handler transport.LineHandleFunc) {
	t.handler = handler
}

func (t *lineTransport) RegisterCloseHandler(handler transport.CloseHandleFunc) {
	t.closeHandler = handler
}

func (t *lineTransport) GetName() string {
	return t.connector.GetName()
}

func (t *lineTransport) Connect(ctx context.Context, config common.ClientConfig) error {
	if t.closed.Load() {
		return sqerr.ErrConnectionClosed
	}
	if !t.connected.CompareAndSwap(false, true) {
		return sqerr.ErrAlreadyConnected
	}
	t.config = config

	ctx, cancel := context.WithTimeout(ctx, config.Timeout())
	defer cancel()

	endpoint := config.Transport.Endpoint()
	conn, err := t.connector.Connect(ctx, config)
	if err != nil {
		t.connected.Store(false)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", sqerr.ErrConnectTimeout, err)
		}
		return sqerr.NewConnectionError(fmt.Sprintf("connect to %s via %s", endpoint, t.GetName()), err)
	}

	if err := t.connector.UpgradeConnection(conn, config); err != nil {
		conn.Close()
		t.connected.Store(false)
		return sqerr.NewConnectionError(fmt.Sprintf("upgrade connection to %s", endpoint), err)
	}

	writeSize := config.Transport.SocketConf.WriteBufferSize
	if writeSize <= 0 {
		writeSize = common.DefaultWriteBufferBytes
	}

	t.connMu.Lock()
	if t.closed.Load() {
		t.connMu.Unlock()
		conn.Close()
		return sqerr.ErrConnectionClosed
	}
	t.conn = conn
	t.writer = bufio.NewWriterSize(conn, writeSize)
	t.connMu.Unlock()

	Logger.Infof("Connected to %s using %s transport", endpoint, t.GetName())

	go t.readLines()
	return nil
}

func (t *lineTransport) Send(line string) error {
	if t.closed.Load() || !t.connected.Load() {
		return sqerr.ErrConnectionClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if nc, ok := t.conn.(net.Conn); ok && t.config.TimeoutSecond > 0 {
		_ = nc.SetWriteDeadline(time.Now().Add(t.config.Timeout()))
	}

	if err := writeLine(t.writer, line); err != nil {
		cerr := sqerr.NewConnectionError("write failed", err)
		go t.finish(cerr)
		return cerr
	}
	return nil
}

func (t *lineTransport) SendKeepAlive() error {
	return t.Send(" ")
}

func (t *lineTransport) Close() error {
	t.finish(nil)
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// readLines reads lines in a loop and hands them to the handler
func (t *lineTransport) readLines() {
	scanner := newLineScanner(t.conn, t.config.Transport.SocketConf.ReadBufferSize)
	for scanner.Scan() {
		line := normalizeLine(scanner.Text())
		if line == "" {
			continue
		}
		Logger.Debugf("<- %s", line)
		if t.handler != nil {
			t.handler(line)
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	if t.closed.Load() {
		return
	}
	Logger.Warningf("Connection via %s ended: %v", t.GetName(), err)
	t.finish(sqerr.NewConnectionError("connection lost", err))
}

// finish closes the channel once and notifies the close handler
func (t *lineTransport) finish(err error) {
	t.closeOnce.Do(func() {
		t.connMu.Lock()
		t.closed.Store(true)
		conn := t.conn
		t.connMu.Unlock()

		if conn != nil {
			if cerr := conn.Close(); cerr != nil {
				Logger.Debugf("Error closing %s connection: %v", t.GetName(), cerr)
			}
		}
		if t.closeHandler != nil {
			t.closeHandler(err)
		}
	})
}
