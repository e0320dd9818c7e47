package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ValentinKolb/sqc/rpc/common"
	"github.com/ValentinKolb/sqc/rpc/transport"
	"github.com/ValentinKolb/sqc/rpc/transport/base"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// clientConnector implements the IClientConnector interface for the shell
// channel of a secure-shell session
type clientConnector struct{}

// shellConn exposes the interactive shell of an ssh session as a byte stream
type shellConn struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func (s *shellConn) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *shellConn) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

func (s *shellConn) Close() error {
	_ = s.stdin.Close()
	serr := s.session.Close()
	cerr := s.client.Close()
	if serr != nil && !errors.Is(serr, io.EOF) {
		return serr
	}
	return cerr
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "ssh"
}

func (c *clientConnector) Connect(ctx context.Context, config common.ClientConfig) (io.ReadWriteCloser, error) {
	endpoint := config.Transport.Endpoint()

	clientConfig, err := clientConfigFor(config)
	if err != nil {
		return nil, err
	}

	d := net.Dialer{
		KeepAlive: time.Duration(config.Transport.TCPConf.TCPKeepAliveSec) * time.Second,
	}
	netConn, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, err
	}
	if err := base.TuneTCPConn(netConn, config); err != nil {
		netConn.Close()
		return nil, err
	}

	// the handshake is not context aware, bound it by the context deadline
	if deadline, ok := ctx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, endpoint, clientConfig)
	if err != nil {
		netConn.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ssh handshake: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}
	_ = netConn.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)
	shell, err := openShell(client)
	if err != nil {
		client.Close()
		return nil, err
	}
	return shell, nil
}

func (c *clientConnector) UpgradeConnection(io.ReadWriteCloser, common.ClientConfig) error {
	// the underlying TCP connection is tuned before the handshake
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// clientConfigFor builds the ssh client configuration (password and keyboard
// interactive authentication, optional known_hosts verification)
func clientConfigFor(config common.ClientConfig) (*ssh.ClientConfig, error) {
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if file := config.Transport.SSHConf.KnownHostsFile; file != "" {
		cb, err := knownhosts.New(file)
		if err != nil {
			return nil, fmt.Errorf("load known hosts %s: %w", file, err)
		}
		hostKeyCallback = cb
	} else {
		base.Logger.Warningf("No known hosts file configured, the host key of %s is not verified", config.Transport.Endpoint())
	}

	password := config.Password
	answer := func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}
		return answers, nil
	}

	return &ssh.ClientConfig{
		User: config.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(answer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.Timeout(),
	}, nil
}

// openShell opens a session with an interactive shell and wires its pipes
func openShell(client *ssh.Client) (*shellConn, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	return &shellConn{
		client:  client,
		session: session,
		stdin:   stdin,
		stdout:  stdout,
	}, nil
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewSSHClientTransport creates a new query transport over an ssh shell channel
func NewSSHClientTransport() transport.ILineTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
