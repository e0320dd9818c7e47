package util

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/sqc/lib/cache"
	"github.com/ValentinKolb/sqc/lib/codec"
	"github.com/ValentinKolb/sqc/rpc/client"
	"github.com/ValentinKolb/sqc/rpc/common"
	"github.com/ValentinKolb/sqc/rpc/transport"
	"github.com/ValentinKolb/sqc/rpc/transport/ssh"
	"github.com/ValentinKolb/sqc/rpc/transport/tcp"
	"github.com/ValentinKolb/sqc/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Flags and Configuration
// --------------------------------------------------------------------------

// SetupClientFlags adds the connection flags to a command group
func SetupClientFlags(cmd *cobra.Command) {
	key := "protocol"
	cmd.PersistentFlags().String(key, "raw", WrapString("The channel to use (raw, ssh, unix)"))

	key = "host"
	cmd.PersistentFlags().String(key, "127.0.0.1", WrapString("The host of the query interface. For the unix protocol this is the socket path"))

	key = "port"
	cmd.PersistentFlags().Int(key, 0, WrapString("The port of the query interface (0 uses the default of the protocol: 10011 for raw, 10022 for ssh)"))

	key = "username"
	cmd.PersistentFlags().String(key, "", WrapString("The query login name. For ssh it authenticates the session, otherwise it is sent with the login command"))

	key = "password"
	cmd.PersistentFlags().String(key, "", WrapString("The query login password"))

	key = "nickname"
	cmd.PersistentFlags().String(key, "", WrapString("Nickname of the query client after connecting"))

	key = "server-id"
	cmd.PersistentFlags().Int(key, 0, WrapString("ID of the virtual server to select after connecting (0 selects none)"))

	key = "server-port"
	cmd.PersistentFlags().Int(key, 0, WrapString("Voice port of the virtual server to select after connecting (alternative to server-id)"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, common.DefaultTimeoutSecond, WrapString("Connect timeout in seconds, including the greeting"))

	key = "keepalive"
	cmd.PersistentFlags().Int(key, common.DefaultKeepAliveSecond, WrapString("Idle interval in seconds after which a keepalive is sent (0 disables it)"))

	key = "known-hosts"
	cmd.PersistentFlags().String(key, "", WrapString("known_hosts file used to verify the ssh host key (empty accepts any key)"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, common.DefaultWriteBufferBytes/1024, WrapString("The size of the write buffer for the transport (in KB)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, common.DefaultReadBufferBytes/1024, WrapString("The size of the read buffer for the transport (in KB)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY for the transport"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The TCP keepalive interval for the transport (in seconds)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time for the transport (in seconds)"))

	key = "json"
	cmd.PersistentFlags().Bool(key, false, WrapString("Print results as JSON instead of tables"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("sqc")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() (*common.ClientConfig, error) {
	protocol, err := common.ParseProtocol(viper.GetString("protocol"))
	if err != nil {
		return nil, err
	}

	conf := &common.ClientConfig{
		Transport: common.ClientTransportConfig{
			Protocol: protocol,
			Host:     viper.GetString("host"),
			Port:     viper.GetInt("port"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
			SSHConf: common.SSHConf{
				KnownHostsFile: viper.GetString("known-hosts"),
			},
		},
		Username:        viper.GetString("username"),
		Password:        viper.GetString("password"),
		Nickname:        viper.GetString("nickname"),
		ServerID:        viper.GetInt("server-id"),
		ServerPort:      viper.GetInt("server-port"),
		TimeoutSecond:   viper.GetInt("timeout"),
		KeepAliveSecond: viper.GetInt("keepalive"),
		LogLevel:        viper.GetString("log-level"),
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// GetTransport creates the transport for a protocol
func GetTransport(protocol common.Protocol) (transport.ILineTransport, error) {
	switch protocol {
	case common.ProtocolRaw:
		return tcp.NewTCPClientTransport(), nil
	case common.ProtocolSSH:
		return ssh.NewSSHClientTransport(), nil
	case common.ProtocolUnix:
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid protocol %s", protocol)
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// active is the session opened by SetupClient, closed by CloseClient
var active *client.Client

// SetupClient binds the flags, initializes logging and connects the session
// used by a command group
func SetupClient(cmd *cobra.Command) (*client.Client, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return nil, err
	}

	config, err := GetClientConfig()
	if err != nil {
		return nil, err
	}
	t, err := GetTransport(config.Transport.Protocol)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), config.Timeout())
	defer cancel()
	c, err := client.Connect(ctx, *config, t)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Transport.Endpoint(), err)
	}
	active = c
	return c, nil
}

// CloseClient closes the session opened by SetupClient, if any
func CloseClient() error {
	if active == nil {
		return nil
	}
	err := active.Close()
	active = nil
	return err
}

// WriteMetrics dumps all registered metrics in the Prometheus text format
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, true)
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// PrintRecords prints records as JSON (--json) or as key=value blocks
func PrintRecords(w io.Writer, records []codec.Record) error {
	if viper.GetBool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if records == nil {
			records = []codec.Record{}
		}
		return enc.Encode(records)
	}

	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "ok (no records)")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, r := range records {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		for _, key := range r.Keys() {
			v, _ := r.Get(key)
			fmt.Fprintf(tw, "%s\t%s\n", key, v)
		}
	}
	return tw.Flush()
}

// PrintNodes prints the snapshots of cache nodes
func PrintNodes(w io.Writer, nodes []*cache.Node) error {
	records := make([]codec.Record, len(nodes))
	for i, n := range nodes {
		records[i] = n.Snapshot()
	}
	return PrintRecords(w, records)
}

// SortedKeys returns the keys of m in lexical order
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stdout is where command results go, logs go to stderr
var Stdout io.Writer = os.Stdout
