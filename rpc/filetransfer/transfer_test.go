package filetransfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/sqc/lib/codec"
)

// transferServer accepts one connection, reads the key and then runs serve
func transferServer(t *testing.T, key string, serve func(conn net.Conn)) (int, <-chan string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	keys := make(chan string, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, len(key))
		if _, err := io.ReadFull(conn, buf); err != nil {
			keys <- ""
			return
		}
		keys <- string(buf)
		serve(conn)
	}()
	return listener.Addr().(*net.TCPAddr).Port, keys
}

func TestTicketFromRecord(t *testing.T) {
	r := codec.DecodeLine("clientftfid=1 serverftfid=7 ftkey=abc port=30033 seekpos=0 size=12")[0]
	ticket, err := TicketFromRecord("ts.example.com", 0, r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := Ticket{Host: "ts.example.com", Port: 30033, Key: "abc", Size: 12, ClientTransferID: 1, ServerTransferID: 7}
	if ticket != expected {
		t.Errorf("expected %+v, got %+v", expected, ticket)
	}
	if ticket.Address() != "ts.example.com:30033" {
		t.Errorf("unexpected address %s", ticket.Address())
	}

	upload := codec.DecodeLine("clientftfid=2 serverftfid=8 ftkey=def port=30033 seekpos=4")[0]
	ticket, err = TicketFromRecord("localhost", 10, upload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticket.Size != 10 || ticket.Remaining() != 6 {
		t.Errorf("expected size 10 and 6 remaining, got %d and %d", ticket.Size, ticket.Remaining())
	}

	for _, line := range []string{"port=30033", "ftkey=abc", "ftkey=abc port=0"} {
		if _, err := TicketFromRecord("localhost", 0, codec.DecodeLine(line)[0]); err == nil {
			t.Errorf("expected an error for %q", line)
		}
	}
}

func TestUpload(t *testing.T) {
	payload := []byte("hello file transfer")
	received := make(chan []byte, 1)
	port, keys := transferServer(t, "upkey", func(conn net.Conn) {
		data, _ := io.ReadAll(conn)
		received <- data
	})

	ticket := Ticket{Host: "127.0.0.1", Port: port, Key: "upkey", Size: int64(len(payload))}
	n, err := Upload(context.Background(), ticket, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("expected %d bytes, got %d", len(payload), n)
	}
	if key := <-keys; key != "upkey" {
		t.Errorf("expected key upkey, got %q", key)
	}
	select {
	case data := <-received:
		if !bytes.Equal(data, payload) {
			t.Errorf("expected %q, got %q", payload, data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not receive the upload")
	}
}

func TestUploadShortReader(t *testing.T) {
	port, _ := transferServer(t, "k", func(conn net.Conn) { _, _ = io.Copy(io.Discard, conn) })

	ticket := Ticket{Host: "127.0.0.1", Port: port, Key: "k", Size: 100}
	_, err := Upload(context.Background(), ticket, strings.NewReader("short"))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	payload := []byte("downloaded content")
	port, keys := transferServer(t, "downkey", func(conn net.Conn) {
		_, _ = conn.Write(payload)
	})

	var buf bytes.Buffer
	ticket := Ticket{Host: "127.0.0.1", Port: port, Key: "downkey", Size: int64(len(payload))}
	n, err := Download(context.Background(), ticket, &buf)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if n != int64(len(payload)) || !bytes.Equal(buf.Bytes(), payload) {
		t.Errorf("expected %q, got %q (%d bytes)", payload, buf.Bytes(), n)
	}
	if key := <-keys; key != "downkey" {
		t.Errorf("expected key downkey, got %q", key)
	}
}

func TestDownloadPeerClosesEarly(t *testing.T) {
	port, _ := transferServer(t, "k", func(conn net.Conn) {
		_, _ = conn.Write([]byte("part"))
	})

	var buf bytes.Buffer
	ticket := Ticket{Host: "127.0.0.1", Port: port, Key: "k", Size: 1000}
	n, err := Download(context.Background(), ticket, &buf)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
	if n != 4 || buf.String() != "part" {
		t.Errorf("expected the partial content, got %q", buf.String())
	}
}

func TestDownloadCancelled(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	port, _ := transferServer(t, "k", func(conn net.Conn) { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ticket := Ticket{Host: "127.0.0.1", Port: port, Key: "k", Size: 10}
	_, err := Download(ctx, ticket, io.Discard)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestTransferConnectFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	ticket := Ticket{Host: "127.0.0.1", Port: port, Key: "k", Size: 1}
	if _, err := Download(context.Background(), ticket, io.Discard); err == nil {
		t.Errorf("expected an error for a closed port")
	}
}
