package testserver

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("testserver")

// DefaultGreeting is the two line banner a ServerQuery endpoint sends on connect.
var DefaultGreeting = []string{
	"TS3",
	`Welcome to the TeamSpeak 3 ServerQuery interface, type "help" for a list of commands and "help <command>" for information on a specific command.`,
}

// lineEnding is what the server appends to every line.
const lineEnding = "\n\r"

// HandleFunc is called for every non-empty line a client sends. It answers
// through the session.
type HandleFunc func(s *Session, line string)

// Option configures a Server.
type Option func(*Server)

// WithGreeting replaces the default banner. No lines means no greeting.
func WithGreeting(lines ...string) Option {
	return func(s *Server) {
		s.greeting = lines
	}
}

// -----------------------------------------------------------
// Server
// -----------------------------------------------------------

// Server is a scripted query server accepting any number of connections.
type Server struct {
	listener  net.Listener
	handler   HandleFunc
	greeting  []string
	closed    atomic.Bool
	keepAlive atomic.Int64

	mu       sync.Mutex
	sessions map[*Session]struct{}
	received []string
	wg       sync.WaitGroup
}

// Start listens on network/address ("tcp" with "127.0.0.1:0", or "unix" with a
// socket path) and serves connections until Close.
func Start(network, address string, handler HandleFunc, opts ...Option) (*Server, error) {
	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %v", err)
	}

	s := &Server{
		listener: listener,
		handler:  handler,
		greeting: DefaultGreeting,
		sessions: make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	Logger.Infof("Starting %s test server on %s", network, listener.Addr())

	s.wg.Add(1)
	go s.accept()
	return s, nil
}

// Addr returns the listen address (host:port or socket path).
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Port returns the TCP port, 0 for unix sockets.
func (s *Server) Port() int {
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Received returns every non-empty line received so far, across all sessions.
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

// KeepAlives returns how many whitespace-only lines were received.
func (s *Server) KeepAlives() int {
	return int(s.keepAlive.Load())
}

// Sessions returns the number of open sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Broadcast sends lines to every open session (e.g. notifications).
func (s *Server) Broadcast(lines ...string) {
	for _, session := range s.snapshot() {
		if err := session.Send(lines...); err != nil {
			Logger.Warningf("Broadcast failed: %v", err)
		}
	}
}

// DropConnections closes every open session from the server side.
func (s *Server) DropConnections() {
	for _, session := range s.snapshot() {
		session.Close()
	}
}

// Close stops accepting, closes all sessions and waits for their goroutines.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.listener.Close()
	s.DropConnections()
	s.wg.Wait()
	return err
}

// -----------------------------------------------------------
// Helper Methods
// -----------------------------------------------------------

func (s *Server) snapshot() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		out = append(out, session)
	}
	return out
}

// accept accepts connections until the listener is closed
func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		session := &Session{conn: conn, server: s}
		s.mu.Lock()
		s.sessions[session] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(session)
	}
}

// handleConnection greets the client and feeds its lines to the handler
func (s *Server) handleConnection(session *Session) {
	defer s.wg.Done()
	defer func() {
		session.Close()
		s.mu.Lock()
		delete(s.sessions, session)
		s.mu.Unlock()
	}()

	if len(s.greeting) > 0 {
		if err := session.Send(s.greeting...); err != nil {
			Logger.Errorf("Failed to send greeting: %v", err)
			return
		}
	}

	scanner := bufio.NewScanner(session.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := strings.Trim(scanner.Text(), " \r\n")
		if line == "" {
			s.keepAlive.Add(1)
			continue
		}

		s.mu.Lock()
		s.received = append(s.received, line)
		s.mu.Unlock()

		if s.handler != nil {
			s.handler(session, line)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		Logger.Debugf("Connection ended: %v", err)
	}
}

// -----------------------------------------------------------
// Session
// -----------------------------------------------------------

// Session is one client connection of the test server.
type Session struct {
	conn    net.Conn
	server  *Server
	writeMu sync.Mutex
	once    sync.Once
}

// Send writes lines with the server's line ending.
func (s *Session) Send(lines ...string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteString(lineEnding)
	}
	_, err := io.WriteString(s.conn, sb.String())
	return err
}

// Close closes the session from the server side.
func (s *Session) Close() {
	s.once.Do(func() {
		_ = s.conn.Close()
	})
}

// Server returns the server the session belongs to.
func (s *Session) Server() *Server {
	return s.server
}
