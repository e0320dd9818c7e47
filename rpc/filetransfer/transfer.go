package filetransfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/sqc/lib/codec"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("filetransfer")

// DefaultPort is the file transfer port of a default server installation.
const DefaultPort = 30033

var (
	uploadedBytes   = metrics.NewCounter(`sqc_filetransfer_bytes_total{direction="upload"}`)
	downloadedBytes = metrics.NewCounter(`sqc_filetransfer_bytes_total{direction="download"}`)
)

// --------------------------------------------------------------------------
// Ticket
// --------------------------------------------------------------------------

// Ticket describes one prepared transfer.
type Ticket struct {
	Host             string
	Port             int
	Key              string
	Size             int64 // total size of the file
	SeekPos          int64 // offset the transfer starts at when resuming
	ClientTransferID int64
	ServerTransferID int64
}

// TicketFromRecord builds a ticket from the answer of ftinitupload or
// ftinitdownload. size is used when the answer carries none (uploads).
func TicketFromRecord(host string, size int64, r codec.Record) (Ticket, error) {
	key := r.Str("ftkey")
	if key == "" {
		return Ticket{}, fmt.Errorf("file transfer answer without ftkey: %s", r)
	}
	port, ok := r.Int("port")
	if !ok || port <= 0 || port > 65535 {
		return Ticket{}, fmt.Errorf("file transfer answer without valid port: %s", r)
	}

	t := Ticket{Host: host, Port: int(port), Key: key, Size: size}
	if s, ok := r.Int("size"); ok {
		t.Size = s
	}
	t.SeekPos, _ = r.Int("seekpos")
	t.ClientTransferID, _ = r.Int("clientftfid")
	t.ServerTransferID, _ = r.Int("serverftfid")
	return t, nil
}

// Address returns host:port of the transfer endpoint.
func (t Ticket) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Remaining returns the number of bytes the transfer moves.
func (t Ticket) Remaining() int64 {
	if t.SeekPos >= t.Size {
		return 0
	}
	return t.Size - t.SeekPos
}

// --------------------------------------------------------------------------
// Transfers
// --------------------------------------------------------------------------

// Upload sends Remaining bytes of r. It returns the number of bytes written.
func Upload(ctx context.Context, t Ticket, r io.Reader) (int64, error) {
	conn, stop, err := open(ctx, t)
	if err != nil {
		return 0, err
	}
	defer stop()
	defer conn.Close()

	n, err := io.CopyN(conn, r, t.Remaining())
	uploadedBytes.Add(int(n))
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return n, transferErr(ctx, "upload", err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
	Logger.Infof("Uploaded %d bytes to %s", n, t.Address())
	return n, nil
}

// Download writes Remaining bytes of the transfer to w. It returns the number
// of bytes received.
func Download(ctx context.Context, t Ticket, w io.Writer) (int64, error) {
	conn, stop, err := open(ctx, t)
	if err != nil {
		return 0, err
	}
	defer stop()
	defer conn.Close()

	n, err := io.CopyN(w, conn, t.Remaining())
	downloadedBytes.Add(int(n))
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return n, transferErr(ctx, "download", err)
	}
	Logger.Infof("Downloaded %d bytes from %s", n, t.Address())
	return n, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// open dials the transfer port and sends the key. The returned stop function
// detaches the context watcher.
func open(ctx context.Context, t Ticket) (net.Conn, func() bool, error) {
	if t.Key == "" {
		return nil, nil, fmt.Errorf("ticket without key")
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.Address())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to file transfer %s: %w", t.Address(), err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	// the key is sent without a line terminator
	if _, err := io.WriteString(conn, t.Key); err != nil {
		stop()
		conn.Close()
		return nil, nil, transferErr(ctx, "send key", err)
	}
	Logger.Debugf("Transfer %d opened on %s", t.ClientTransferID, t.Address())
	return conn, stop, nil
}

// transferErr prefers the context error when the context closed the connection
func transferErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%s: %w", op, err)
}
