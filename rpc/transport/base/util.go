package base

import (
	"bufio"
	"io"
	"net"
	"strings"
	"time"

	"github.com/ValentinKolb/sqc/rpc/common"
)

const (
	// LineTerminator ends every line written by the client.
	LineTerminator = "\n"

	// MaxLineBytes is the longest line the reader accepts (large list responses).
	MaxLineBytes = 4 << 20

	// lineNoise is trimmed from both ends of every received line
	lineNoise = " \r\n"
)

// newLineScanner creates a scanner splitting the stream on "\n". The server
// terminates lines with "\n\r", so the stray "\r" ends up at the start of the
// next line and is removed by normalizeLine.
func newLineScanner(r io.Reader, bufSize int) *bufio.Scanner {
	if bufSize <= 0 {
		bufSize = common.DefaultReadBufferBytes
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufSize), MaxLineBytes)
	scanner.Split(bufio.ScanLines)
	return scanner
}

// normalizeLine strips the line noise of the protocol: carriage returns,
// newlines and ASCII spaces. Other whitespace is part of the last value.
func normalizeLine(line string) string {
	return strings.Trim(line, lineNoise)
}

// writeLine writes line and the terminator and flushes the writer
func writeLine(w *bufio.Writer, line string) error {
	if _, err := w.WriteString(line); err != nil {
		return err
	}
	if _, err := w.WriteString(LineTerminator); err != nil {
		return err
	}
	return w.Flush()
}

// TuneTCPConn applies TCP specific settings from TCPConf and SocketConf to an
// established connection. Connections that are not TCP are left untouched.
func TuneTCPConn(conn net.Conn, config common.ClientConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	// Disable Nagle's algorithm: query lines are small and latency bound
	if err := tcpConn.SetNoDelay(config.Transport.TCPConf.TCPNoDelay); err != nil {
		return err
	}

	if size := config.Transport.SocketConf.WriteBufferSize; size > 0 {
		if err := tcpConn.SetWriteBuffer(size); err != nil {
			return err
		}
	}

	if size := config.Transport.SocketConf.ReadBufferSize; size > 0 {
		if err := tcpConn.SetReadBuffer(size); err != nil {
			return err
		}
	}

	if sec := config.Transport.TCPConf.TCPKeepAliveSec; sec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(sec) * time.Second); err != nil {
			return err
		}
	}

	if sec := config.Transport.TCPConf.TCPLingerSec; sec > 0 {
		if err := tcpConn.SetLinger(sec); err != nil {
			return err
		}
	}

	return nil
}
