package cache

import "github.com/ValentinKolb/sqc/lib/codec"

// --------------------------------------------------------------------------
// Typed Views
// --------------------------------------------------------------------------
//
// A view is a point in time copy of a node with the documented properties
// promoted to fields. Everything else stays available in Extra, so fields the
// server adds later are not lost.

// ClientView is a typed copy of a client node.
type ClientView struct {
	ID           int64   // clid
	ChannelID    int64   // cid
	DatabaseID   int64   // client_database_id
	Nickname     string  // client_nickname
	Type         int64   // client_type, 1 for query clients
	UniqueID     string  // client_unique_identifier
	Away         bool    // client_away
	AwayMessage  string  // client_away_message
	ServerGroups []int64 // client_servergroups
	Country      string  // client_country
	Extra        codec.Record
}

// IsQuery reports whether the client is a query connection.
func (c ClientView) IsQuery() bool {
	return c.Type == 1
}

// ChannelView is a typed copy of a channel node.
type ChannelView struct {
	ID           int64  // cid
	ParentID     int64  // pid
	Order        int64  // channel_order
	Name         string // channel_name
	Topic        string // channel_topic
	TotalClients int64  // total_clients
	MaxClients   int64  // channel_maxclients
	Permanent    bool   // channel_flag_permanent
	Default      bool   // channel_flag_default
	Extra        codec.Record
}

// ServerView is a typed copy of a virtual server node.
type ServerView struct {
	ID            int64  // virtualserver_id
	Port          int64  // virtualserver_port
	Name          string // virtualserver_name
	Status        string // virtualserver_status
	ClientsOnline int64  // virtualserver_clientsonline
	MaxClients    int64  // virtualserver_maxclients
	UniqueID      string // virtualserver_unique_identifier
	Extra         codec.Record
}

// ServerGroupView is a typed copy of a server group node.
type ServerGroupView struct {
	ID     int64  // sgid
	Name   string // name
	Type   int64  // type
	IconID int64  // iconid
	SaveDB bool   // savedb
	Extra  codec.Record
}

// ChannelGroupView is a typed copy of a channel group node.
type ChannelGroupView struct {
	ID     int64  // cgid
	Name   string // name
	Type   int64  // type
	IconID int64  // iconid
	SaveDB bool   // savedb
	Extra  codec.Record
}

// AsClient returns the client view, false for nodes of another namespace.
func (n *Node) AsClient() (ClientView, bool) {
	if n.namespace != NamespaceClient {
		return ClientView{}, false
	}
	f := newFields(n.Snapshot())
	return ClientView{
		ID:           f.int("clid"),
		ChannelID:    f.int("cid"),
		DatabaseID:   f.int("client_database_id"),
		Nickname:     f.str("client_nickname"),
		Type:         f.int("client_type"),
		UniqueID:     f.str("client_unique_identifier"),
		Away:         f.bool("client_away"),
		AwayMessage:  f.str("client_away_message"),
		ServerGroups: f.intList("client_servergroups"),
		Country:      f.str("client_country"),
		Extra:        f.extra,
	}, true
}

// AsChannel returns the channel view, false for nodes of another namespace.
func (n *Node) AsChannel() (ChannelView, bool) {
	if n.namespace != NamespaceChannel {
		return ChannelView{}, false
	}
	f := newFields(n.Snapshot())
	return ChannelView{
		ID:           f.int("cid"),
		ParentID:     f.int("pid"),
		Order:        f.int("channel_order"),
		Name:         f.str("channel_name"),
		Topic:        f.str("channel_topic"),
		TotalClients: f.int("total_clients"),
		MaxClients:   f.int("channel_maxclients"),
		Permanent:    f.bool("channel_flag_permanent"),
		Default:      f.bool("channel_flag_default"),
		Extra:        f.extra,
	}, true
}

// AsServer returns the server view, false for nodes of another namespace.
func (n *Node) AsServer() (ServerView, bool) {
	if n.namespace != NamespaceServer {
		return ServerView{}, false
	}
	f := newFields(n.Snapshot())
	return ServerView{
		ID:            f.int("virtualserver_id"),
		Port:          f.int("virtualserver_port"),
		Name:          f.str("virtualserver_name"),
		Status:        f.str("virtualserver_status"),
		ClientsOnline: f.int("virtualserver_clientsonline"),
		MaxClients:    f.int("virtualserver_maxclients"),
		UniqueID:      f.str("virtualserver_unique_identifier"),
		Extra:         f.extra,
	}, true
}

// AsServerGroup returns the server group view, false for nodes of another namespace.
func (n *Node) AsServerGroup() (ServerGroupView, bool) {
	if n.namespace != NamespaceServerGroup {
		return ServerGroupView{}, false
	}
	f := newFields(n.Snapshot())
	return ServerGroupView{
		ID:     f.int("sgid"),
		Name:   f.str("name"),
		Type:   f.int("type"),
		IconID: f.int("iconid"),
		SaveDB: f.bool("savedb"),
		Extra:  f.extra,
	}, true
}

// AsChannelGroup returns the channel group view, false for nodes of another namespace.
func (n *Node) AsChannelGroup() (ChannelGroupView, bool) {
	if n.namespace != NamespaceChannelGroup {
		return ChannelGroupView{}, false
	}
	f := newFields(n.Snapshot())
	return ChannelGroupView{
		ID:     f.int("cgid"),
		Name:   f.str("name"),
		Type:   f.int("type"),
		IconID: f.int("iconid"),
		SaveDB: f.bool("savedb"),
		Extra:  f.extra,
	}, true
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// fields takes promoted keys out of a snapshot, the rest ends up in extra
type fields struct {
	extra codec.Record
}

func newFields(snapshot codec.Record) *fields {
	return &fields{extra: snapshot}
}

func (f *fields) take(key string) codec.Value {
	v, _ := f.extra.Get(key)
	f.extra.Delete(key)
	return v
}

func (f *fields) str(key string) string {
	return f.take(key).Str()
}

func (f *fields) int(key string) int64 {
	i, _ := f.take(key).Int()
	return i
}

func (f *fields) bool(key string) bool {
	return f.int(key) != 0
}

func (f *fields) intList(key string) []int64 {
	list, _ := f.take(key).IntList()
	return list
}
