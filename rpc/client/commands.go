package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/sqc/lib/cache"
	"github.com/ValentinKolb/sqc/lib/codec"
	"github.com/ValentinKolb/sqc/lib/sqerr"
	"github.com/ValentinKolb/sqc/rpc/filetransfer"
)

// Text message target modes.
const (
	TargetClient  = 1
	TargetChannel = 2
	TargetServer  = 3
)

// Event groups accepted by servernotifyregister.
const (
	EventsServer      = "server"
	EventsChannel     = "channel"
	EventsTextServer  = "textserver"
	EventsTextChannel = "textchannel"
	EventsTextPrivate = "textprivate"
	EventsTokenUsed   = "tokenused"
)

// listCommands builds the list command of every namespace
var listCommands = map[cache.Namespace]func() *codec.Command{
	cache.NamespaceClient: func() *codec.Command {
		return codec.NewCommand("clientlist").Flag("uid", "away", "voice", "times", "groups", "info", "icon", "country")
	},
	cache.NamespaceChannel: func() *codec.Command {
		return codec.NewCommand("channellist").Flag("topic", "flags", "voice", "limits", "icon", "secondsempty")
	},
	cache.NamespaceServer: func() *codec.Command {
		return codec.NewCommand("serverlist").Flag("uid")
	},
	cache.NamespaceServerGroup: func() *codec.Command {
		return codec.NewCommand("servergrouplist")
	},
	cache.NamespaceChannelGroup: func() *codec.Command {
		return codec.NewCommand("channelgrouplist")
	},
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the cache package in synchronizer.go)
// --------------------------------------------------------------------------

func (c *Client) List(ctx context.Context, ns cache.Namespace) ([]codec.Record, error) {
	build, ok := listCommands[ns]
	if !ok {
		return nil, fmt.Errorf("no list command for namespace %q", ns)
	}
	records, err := c.Execute(ctx, build())
	if sqerr.IsEmptyResult(err) {
		return []codec.Record{}, nil
	}
	return records, err
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

// Execute submits cmd and waits for its records.
func (c *Client) Execute(ctx context.Context, cmd *codec.Command) ([]codec.Record, error) {
	return c.engine.Execute(ctx, cmd)
}

// ExecuteLine parses a raw command line and executes it.
func (c *Client) ExecuteLine(ctx context.Context, line string) ([]codec.Record, error) {
	cmd, err := codec.ParseCommand(line)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, cmd)
}

// executeFirst executes cmd and returns its first record
func (c *Client) executeFirst(ctx context.Context, cmd *codec.Command) (codec.Record, error) {
	records, err := c.Execute(ctx, cmd)
	if err != nil {
		return codec.Record{}, err
	}
	if len(records) == 0 {
		return codec.NewRecord(), nil
	}
	return records[0], nil
}

// Whoami returns information about the query session itself.
func (c *Client) Whoami(ctx context.Context) (codec.Record, error) {
	return c.executeFirst(ctx, codec.NewCommand("whoami"))
}

// Version returns version, build and platform of the server.
func (c *Client) Version(ctx context.Context) (codec.Record, error) {
	return c.executeFirst(ctx, codec.NewCommand("version"))
}

// Login authenticates the query session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	_, err := c.Execute(ctx, codec.NewCommand("login").
		Set("client_login_name", username).
		Set("client_login_password", password))
	return err
}

// Logout drops the authentication, the selected server is deselected.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.Execute(ctx, codec.NewCommand("logout")); err != nil {
		return err
	}
	c.selectedServer.Store(0)
	return nil
}

// Use selects a virtual server by id.
func (c *Client) Use(ctx context.Context, serverID int64) error {
	if _, err := c.Execute(ctx, codec.NewCommand("use").Set("sid", serverID)); err != nil {
		return err
	}
	c.selectedServer.Store(serverID)
	return nil
}

// UseByPort selects a virtual server by its voice port.
func (c *Client) UseByPort(ctx context.Context, port int) error {
	if _, err := c.Execute(ctx, codec.NewCommand("use").Set("port", port)); err != nil {
		return err
	}
	who, err := c.Whoami(ctx)
	if err != nil {
		return err
	}
	sid, _ := who.Int("virtualserver_id")
	c.selectedServer.Store(sid)
	return nil
}

// RegisterEvents subscribes the session to an event group. channelID is only
// sent for EventsChannel, 0 means all channels.
func (c *Client) RegisterEvents(ctx context.Context, group string, channelID int64) error {
	cmd := codec.NewCommand("servernotifyregister").Set("event", group)
	if group == EventsChannel {
		cmd.Set("id", channelID)
	}
	_, err := c.Execute(ctx, cmd)
	return err
}

// SendTextMessage sends msg to a client, a channel or the whole server.
func (c *Client) SendTextMessage(ctx context.Context, targetMode int, target int64, msg string) error {
	_, err := c.Execute(ctx, codec.NewCommand("sendtextmessage").
		Set("targetmode", targetMode).
		Set("target", target).
		Set("msg", msg))
	return err
}

// ClientMove moves a client into a channel. An empty password is not sent.
func (c *Client) ClientMove(ctx context.Context, clientID, channelID int64, password string) error {
	cmd := codec.NewCommand("clientmove").Set("clid", clientID).Set("cid", channelID)
	if password != "" {
		cmd.Set("cpw", password)
	}
	_, err := c.Execute(ctx, cmd)
	return err
}

// Quit ends the session on the server side and closes the client.
func (c *Client) Quit(ctx context.Context) error {
	_, err := c.Execute(ctx, codec.NewCommand("quit"))
	closeErr := c.Close()
	if err != nil && !sqerr.IsConnectionClosed(err) {
		return err
	}
	return closeErr
}

// --------------------------------------------------------------------------
// Cached Lists
// --------------------------------------------------------------------------

// Nodes relists a namespace and returns its nodes sorted by id.
func (c *Client) Nodes(ctx context.Context, ns cache.Namespace) ([]*cache.Node, error) {
	if _, err := c.cache.Refresh(ctx, ns); err != nil {
		return nil, err
	}
	return c.cache.All(ns), nil
}

// Clients lists the clients of the selected server.
func (c *Client) Clients(ctx context.Context) ([]*cache.Node, error) {
	return c.Nodes(ctx, cache.NamespaceClient)
}

// Channels lists the channels of the selected server.
func (c *Client) Channels(ctx context.Context) ([]*cache.Node, error) {
	return c.Nodes(ctx, cache.NamespaceChannel)
}

// Servers lists the virtual servers.
func (c *Client) Servers(ctx context.Context) ([]*cache.Node, error) {
	return c.Nodes(ctx, cache.NamespaceServer)
}

// ServerGroups lists the server groups of the selected server.
func (c *Client) ServerGroups(ctx context.Context) ([]*cache.Node, error) {
	return c.Nodes(ctx, cache.NamespaceServerGroup)
}

// ChannelGroups lists the channel groups of the selected server.
func (c *Client) ChannelGroups(ctx context.Context) ([]*cache.Node, error) {
	return c.Nodes(ctx, cache.NamespaceChannelGroup)
}

// --------------------------------------------------------------------------
// File Transfer
// --------------------------------------------------------------------------

// TransferRequest names a file in a channel's file repository.
type TransferRequest struct {
	ChannelID int64
	Path      string // absolute within the channel, e.g. "/docs/readme.txt"
	Password  string // channel password, may be empty
	Size      int64  // uploads only
	Overwrite bool   // uploads only
	Resume    bool   // uploads only
}

// FTInitUpload prepares an upload and returns its ticket.
func (c *Client) FTInitUpload(ctx context.Context, req TransferRequest) (filetransfer.Ticket, error) {
	cmd := codec.NewCommand("ftinitupload").
		Set("clientftfid", c.transferID.Add(1)).
		Set("name", req.Path).
		Set("cid", req.ChannelID).
		Set("cpw", req.Password).
		Set("size", req.Size).
		Set("overwrite", req.Overwrite).
		Set("resume", req.Resume)
	return c.initTransfer(ctx, cmd, req.Size)
}

// FTInitDownload prepares a download and returns its ticket.
func (c *Client) FTInitDownload(ctx context.Context, req TransferRequest) (filetransfer.Ticket, error) {
	cmd := codec.NewCommand("ftinitdownload").
		Set("clientftfid", c.transferID.Add(1)).
		Set("name", req.Path).
		Set("cid", req.ChannelID).
		Set("cpw", req.Password).
		Set("seekpos", 0)
	return c.initTransfer(ctx, cmd, 0)
}

func (c *Client) initTransfer(ctx context.Context, cmd *codec.Command, size int64) (filetransfer.Ticket, error) {
	r, err := c.executeFirst(ctx, cmd)
	if err != nil {
		return filetransfer.Ticket{}, err
	}
	// some servers report failures in the answer instead of the terminator
	if status, ok := r.Int("status"); ok && status != 0 {
		return filetransfer.Ticket{}, &sqerr.ProtocolError{ID: sqerr.ID(status), Message: r.Str("msg")}
	}
	host := r.Str("ip")
	if host == "" || host == "0.0.0.0" {
		host = c.config.Transport.Host
	}
	return filetransfer.TicketFromRecord(host, size, r)
}
