package common

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// Protocol selects the physical channel the query protocol runs over.
type Protocol string

const (
	// ProtocolRaw is the plain newline delimited TCP socket.
	ProtocolRaw Protocol = "raw"
	// ProtocolSSH is an interactive shell channel of a secure-shell session.
	ProtocolSSH Protocol = "ssh"
	// ProtocolUnix is the raw protocol over a unix domain socket (local proxies, tests).
	ProtocolUnix Protocol = "unix"
)

const (
	DefaultRawPort          = 10011
	DefaultSSHPort          = 10022
	DefaultTimeoutSecond    = 10
	DefaultKeepAliveSecond  = 250
	DefaultReadBufferBytes  = 64 * 1024
	DefaultWriteBufferBytes = 16 * 1024
)

// SocketConf holds buffer sizes of the line reader and writer.
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP socket tuning, applied to raw and ssh connections.
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// SSHConf holds secure-shell specific settings.
type SSHConf struct {
	// KnownHostsFile enables host key verification. If empty, any host key is accepted.
	KnownHostsFile string
}

// ClientTransportConfig selects and tunes the transport.
type ClientTransportConfig struct {
	Protocol Protocol
	// Host is the server host name. For ProtocolUnix it is the socket path.
	Host string
	// Port is the query port. 0 selects the protocol's default port.
	Port int

	SocketConf SocketConf
	TCPConf    TCPConf
	SSHConf    SSHConf
}

// Endpoint returns the address to dial (host:port, or the socket path for unix).
func (c *ClientTransportConfig) Endpoint() string {
	if c.Protocol == ProtocolUnix {
		return c.Host
	}
	port := c.Port
	if port == 0 {
		port = c.Protocol.DefaultPort()
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// DefaultPort returns the default query port of the protocol.
func (p Protocol) DefaultPort() int {
	if p == ProtocolSSH {
		return DefaultSSHPort
	}
	return DefaultRawPort
}

// ParseProtocol converts a string into a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(strings.ToLower(s)) {
	case ProtocolRaw, "tcp", "":
		return ProtocolRaw, nil
	case ProtocolSSH:
		return ProtocolSSH, nil
	case ProtocolUnix:
		return ProtocolUnix, nil
	default:
		return "", fmt.Errorf("invalid protocol %q. must be one of raw, ssh, unix", s)
	}
}

// --------------------------------------------------------------------------
// Client configuration
// --------------------------------------------------------------------------

// ClientConfig holds everything needed to open and prepare a query session.
type ClientConfig struct {
	Transport ClientTransportConfig

	// Credentials. For ssh they authenticate the shell session, for raw
	// connections they are sent with the login command.
	Username string
	Password string

	// Session preparation after connect
	Nickname   string
	ServerID   int
	ServerPort int

	// TimeoutSecond bounds the connect phase including the greeting.
	TimeoutSecond int
	// KeepAliveSecond is the idle interval after which a keepalive is sent. 0 disables it.
	KeepAliveSecond int

	LogLevel string
}

// DefaultClientConfig returns a configuration for a local raw connection.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Transport: ClientTransportConfig{
			Protocol: ProtocolRaw,
			Host:     "127.0.0.1",
			SocketConf: SocketConf{
				WriteBufferSize: DefaultWriteBufferBytes,
				ReadBufferSize:  DefaultReadBufferBytes,
			},
			TCPConf: TCPConf{TCPNoDelay: true},
		},
		TimeoutSecond:   DefaultTimeoutSecond,
		KeepAliveSecond: DefaultKeepAliveSecond,
		LogLevel:        "info",
	}
}

// Timeout returns the connect timeout, falling back to the default.
func (c *ClientConfig) Timeout() time.Duration {
	if c.TimeoutSecond <= 0 {
		return DefaultTimeoutSecond * time.Second
	}
	return time.Duration(c.TimeoutSecond) * time.Second
}

// KeepAlive returns the keepalive interval. 0 means disabled.
func (c *ClientConfig) KeepAlive() time.Duration {
	if c.KeepAliveSecond <= 0 {
		return 0
	}
	return time.Duration(c.KeepAliveSecond) * time.Second
}

// Validate checks the configuration for obvious mistakes.
func (c *ClientConfig) Validate() error {
	if _, err := ParseProtocol(string(c.Transport.Protocol)); err != nil {
		return err
	}
	if c.Transport.Host == "" {
		return fmt.Errorf("no host configured")
	}
	if c.Transport.Port < 0 || c.Transport.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Transport.Port)
	}
	if c.Transport.Protocol == ProtocolSSH && c.Username == "" {
		return fmt.Errorf("ssh requires a username")
	}
	if c.Password != "" && c.Username == "" {
		return fmt.Errorf("password given without username")
	}
	if c.ServerID != 0 && c.ServerPort != 0 {
		return fmt.Errorf("server id and server port are mutually exclusive")
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Transport")
	addField("Protocol", string(c.Transport.Protocol))
	addField("Endpoint", c.Transport.Endpoint())
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Keepalive", fmt.Sprintf("%d sec", c.KeepAliveSecond))
	addField("TCP No Delay", strconv.FormatBool(c.Transport.TCPConf.TCPNoDelay))
	if c.Transport.Protocol == ProtocolSSH {
		knownHosts := c.Transport.SSHConf.KnownHostsFile
		if knownHosts == "" {
			knownHosts = "(host key not verified)"
		}
		addField("Known Hosts", knownHosts)
	}

	addSection("Session")
	addField("Username", c.Username)
	addField("Password", strings.Repeat("*", len(c.Password)))
	addField("Nickname", c.Nickname)
	switch {
	case c.ServerID != 0:
		addField("Server", fmt.Sprintf("id %d", c.ServerID))
	case c.ServerPort != 0:
		addField("Server", fmt.Sprintf("port %d", c.ServerPort))
	default:
		addField("Server", "(none selected)")
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
