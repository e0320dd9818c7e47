package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/sqc/lib/cache"
	"github.com/ValentinKolb/sqc/lib/codec"
	"github.com/ValentinKolb/sqc/rpc/common"
	"github.com/ValentinKolb/sqc/rpc/engine"
	"github.com/ValentinKolb/sqc/rpc/transport"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

// EventKind distinguishes the events a client delivers to its subscribers.
type EventKind int

const (
	EventNotify EventKind = iota // a server notification, after the cache was updated
	EventError                   // a diagnostic, no command was affected
	EventClose                   // the connection ended, always the last event
)

// String returns the name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventNotify:
		return "notify"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers in arrival order.
type Event struct {
	Kind EventKind
	// Name of the notification without the "notify" prefix, also set on errors raised while applying one
	Name    string
	Records []codec.Record
	// Node affected by the notification, if the cache knows one. For views that
	// ended (clientleftview, channeldeleted) the node is already destroyed.
	Node *cache.Node
	// Err is the diagnostic (EventError) or the close reason (EventClose, nil
	// for a local close).
	Err error
}

// EventHandler receives events on the client's dispatch goroutine. It must
// not block for long, and must not wait for command results of the same client
// since notifications are processed one after the other.
type EventHandler func(Event)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Option tunes a client.
type Option func(*options)

type options struct {
	engine engine.Options
}

// WithFloodUnit changes the length of one second of flood control delay.
func WithFloodUnit(unit time.Duration) Option {
	return func(o *options) {
		o.engine.FloodUnit = unit
	}
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// Client is one prepared query session: an engine, the cache of the session
// and a dispatch loop that keeps the cache current from notifications.
type Client struct {
	handle    uuid.UUID
	config    common.ClientConfig
	transport transport.ILineTransport
	engine    *engine.Engine
	cache     *cache.Synchronizer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	handlers  *xsync.MapOf[uint64, EventHandler]
	handlerID atomic.Uint64

	selectedServer atomic.Int64
	transferID     atomic.Int64
	closeOnce      sync.Once
}

// Connect opens a session on t and prepares it: login (raw connections with
// credentials only, the shell channel is authenticated by the session itself),
// server selection and nickname, as configured.
func Connect(ctx context.Context, config common.ClientConfig, t transport.ILineTransport, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := options{engine: engine.DefaultOptions()}
	o.engine.KeepAlive = config.KeepAlive()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		handle:    uuid.New(),
		config:    config,
		transport: t,
		done:      make(chan struct{}),
		handlers:  xsync.NewMapOf[uint64, EventHandler](),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.engine = engine.New(t, o.engine)
	c.cache = cache.NewSynchronizer(c.handle, c)

	if err := c.engine.Connect(ctx, config); err != nil {
		c.cancel()
		go drain(c.engine.Events())
		return nil, err
	}

	registry.Store(c.handle, c)
	go c.dispatch()

	if err := c.prepare(ctx); err != nil {
		Logger.Errorf("Failed to prepare session on %s: %v", config.Transport.Endpoint(), err)
		c.Close()
		return nil, err
	}

	Logger.Infof("Session %s on %s ready", c.handle, config.Transport.Endpoint())
	return c, nil
}

// prepare runs the configured login, use and nickname commands
func (c *Client) prepare(ctx context.Context) error {
	if c.config.Transport.Protocol != common.ProtocolSSH && c.config.Username != "" {
		if err := c.Login(ctx, c.config.Username, c.config.Password); err != nil {
			return err
		}
	}

	switch {
	case c.config.ServerID > 0:
		if err := c.Use(ctx, int64(c.config.ServerID)); err != nil {
			return err
		}
	case c.config.ServerPort > 0:
		if err := c.UseByPort(ctx, c.config.ServerPort); err != nil {
			return err
		}
	}

	if c.config.Nickname != "" {
		if _, err := c.Execute(ctx, codec.NewCommand("clientupdate").Set("client_nickname", c.config.Nickname)); err != nil {
			return err
		}
	}
	return nil
}

// Handle identifies the session in the connection registry.
func (c *Client) Handle() uuid.UUID {
	return c.handle
}

// Config returns the configuration the client was connected with.
func (c *Client) Config() common.ClientConfig {
	return c.config
}

// Cache returns the session's cache.
func (c *Client) Cache() *cache.Synchronizer {
	return c.cache
}

// Engine returns the underlying engine.
func (c *Client) Engine() *engine.Engine {
	return c.engine
}

// SelectedServer returns the id of the selected virtual server, 0 if none.
func (c *Client) SelectedServer() int64 {
	return c.selectedServer.Load()
}

// Subscribe registers h for all following events. The returned function
// removes the subscription.
func (c *Client) Subscribe(h EventHandler) (unsubscribe func()) {
	id := c.handlerID.Add(1)
	c.handlers.Store(id, h)
	return func() { c.handlers.Delete(id) }
}

// Done is closed once the connection ended and the last event was delivered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the fault that ended the connection, nil while open or after a local close.
func (c *Client) Err() error {
	return c.engine.Err()
}

// Close ends the session. Pending commands are rejected, the cache is cleared
// and the client is removed from the registry. Close blocks until the last
// event was delivered, so it must not be called from an EventHandler.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.engine.Close()
		c.cancel()
	})
	<-c.done
	return err
}

// --------------------------------------------------------------------------
// Dispatch Loop
// --------------------------------------------------------------------------

func (c *Client) dispatch() {
	defer close(c.done)

	for ev := range c.engine.Events() {
		switch ev := ev.(type) {
		case *engine.NotifyEvent:
			c.handleNotify(ev)

		case *engine.ErrorEvent:
			c.emit(Event{Kind: EventError, Err: ev.Err})

		case *engine.CloseEvent:
			c.cancel()
			registry.Delete(c.handle)
			c.cache.Clear()
			c.emit(Event{Kind: EventClose, Err: ev.Err})
		}
	}
	Logger.Debugf("Dispatch loop of %s stopped", c.handle)
}

func drain(events <-chan engine.Event) {
	for range events {
	}
}

func (c *Client) emit(ev Event) {
	c.handlers.Range(func(_ uint64, h EventHandler) bool {
		h(ev)
		return true
	})
}
