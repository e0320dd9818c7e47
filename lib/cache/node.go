package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/sqc/lib/codec"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Namespaces
// --------------------------------------------------------------------------

// Namespace is an entity kind. Every namespace has its own map keyed by the
// namespace's identity key.
type Namespace string

const (
	NamespaceClient       Namespace = "client"
	NamespaceChannel      Namespace = "channel"
	NamespaceServer       Namespace = "server"
	NamespaceServerGroup  Namespace = "servergroup"
	NamespaceChannelGroup Namespace = "channelgroup"
)

// Namespaces lists all namespaces in a stable order.
var Namespaces = []Namespace{
	NamespaceClient,
	NamespaceChannel,
	NamespaceServer,
	NamespaceServerGroup,
	NamespaceChannelGroup,
}

var identityKeys = map[Namespace]string{
	NamespaceClient:       "clid",
	NamespaceChannel:      "cid",
	NamespaceServer:       "virtualserver_id",
	NamespaceServerGroup:  "sgid",
	NamespaceChannelGroup: "cgid",
}

// IdentityKey returns the record key that identifies a node of the namespace.
func (ns Namespace) IdentityKey() string {
	return identityKeys[ns]
}

// Valid reports whether ns is a known namespace.
func (ns Namespace) Valid() bool {
	_, ok := identityKeys[ns]
	return ok
}

// ParseNamespace validates a namespace name.
func ParseNamespace(name string) (Namespace, error) {
	ns := Namespace(name)
	if !ns.Valid() {
		return "", fmt.Errorf("unknown namespace %q", name)
	}
	return ns, nil
}

// --------------------------------------------------------------------------
// Node
// --------------------------------------------------------------------------

// Node is the cached, live representation of one server entity. Its property
// snapshot is mutated only by the Synchronizer; everyone else reads copies.
// A destroyed node stays readable but is no longer updated.
type Node struct {
	namespace Namespace
	id        int64
	handle    uuid.UUID

	mu    sync.RWMutex
	props codec.Record

	destroyed atomic.Bool
	hooksMu   sync.Mutex
	hooks     []func(*Node)
}

func newNode(ns Namespace, id int64, handle uuid.UUID, props codec.Record) *Node {
	return &Node{namespace: ns, id: id, handle: handle, props: props.Clone()}
}

// Namespace returns the entity kind.
func (n *Node) Namespace() Namespace {
	return n.namespace
}

// ID returns the value of the identity key.
func (n *Node) ID() int64 {
	return n.id
}

// Handle identifies the connection that owns the node. It is resolved through
// the client registry, never dereferenced directly.
func (n *Node) Handle() uuid.UUID {
	return n.handle
}

// Snapshot returns a copy of the current properties.
func (n *Node) Snapshot() codec.Record {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.props.Clone()
}

// Get returns a single property.
func (n *Node) Get(key string) (codec.Value, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.props.Get(key)
}

// Str returns a property as text, "" if absent.
func (n *Node) Str(key string) string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.props.Str(key)
}

// Int returns an integer property.
func (n *Node) Int(key string) (int64, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.props.Int(key)
}

// Destroyed reports whether reconciliation evicted the node.
func (n *Node) Destroyed() bool {
	return n.destroyed.Load()
}

// OnDestroy registers fn to run once the node is destroyed. If it already is,
// fn runs immediately.
func (n *Node) OnDestroy(fn func(*Node)) {
	n.hooksMu.Lock()
	if !n.destroyed.Load() {
		n.hooks = append(n.hooks, fn)
		n.hooksMu.Unlock()
		return
	}
	n.hooksMu.Unlock()
	fn(n)
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	state := "live"
	if n.Destroyed() {
		state = "destroyed"
	}
	return fmt.Sprintf("%s(%d, %s)", n.namespace, n.id, state)
}

// merge applies a shallow patch: new keys overwrite, unseen keys stay
func (n *Node) merge(patch codec.Record) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.props.Merge(patch)
}

// destroy marks the node dead and runs its hooks exactly once
func (n *Node) destroy() {
	n.hooksMu.Lock()
	if n.destroyed.Swap(true) {
		n.hooksMu.Unlock()
		return
	}
	hooks := n.hooks
	n.hooks = nil
	n.hooksMu.Unlock()

	for _, fn := range hooks {
		fn(n)
	}
}
