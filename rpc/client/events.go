package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/sqc/lib/cache"
	"github.com/ValentinKolb/sqc/lib/codec"
	"github.com/ValentinKolb/sqc/lib/sqerr"
	"github.com/ValentinKolb/sqc/rpc/engine"
)

// keys describing who caused a change, never stored in the cache
var invokerKeys = []string{"reasonid", "invokerid", "invokername", "invokeruid"}

// handleNotify applies a notification to the cache and re-emits it. A
// notification naming a node that is still unknown after relisting is dropped
// with an error event, other failures are reported and the notification is
// still delivered.
func (c *Client) handleNotify(ev *engine.NotifyEvent) {
	out := Event{Kind: EventNotify, Name: ev.Name, Records: ev.Records}

	node, err := c.applyNotify(c.ctx, ev)
	if err != nil {
		Logger.Warningf("Failed to apply notify%s: %v", ev.Name, err)
		var ce *sqerr.CacheInconsistencyError
		dropped := errors.As(err, &ce) && node == nil
		if ce != nil {
			ce.Event = codec.NotifyPrefix + ev.Name
		}
		c.emit(Event{Kind: EventError, Name: ev.Name, Err: err})
		if dropped {
			return
		}
	}
	out.Node = node
	c.emit(out)
}

// applyNotify updates the cache for the known notifications and returns the
// node of the first record
func (c *Client) applyNotify(ctx context.Context, ev *engine.NotifyEvent) (*cache.Node, error) {
	switch ev.Name {
	case engine.NotifyClientEnterView:
		return c.refreshCreated(ctx, cache.NamespaceClient, ev)
	case engine.NotifyChannelCreated:
		return c.refreshCreated(ctx, cache.NamespaceChannel, ev)

	case engine.NotifyClientLeftView:
		return c.refreshEvicted(ctx, cache.NamespaceClient, ev)
	case engine.NotifyChannelDeleted:
		return c.refreshEvicted(ctx, cache.NamespaceChannel, ev)

	case engine.NotifyClientMoved:
		return c.updateEach(ctx, cache.NamespaceClient, ev, func(r codec.Record) codec.Record {
			ctid, _ := sharedField(ev, r, "ctid")
			patch := codec.NewRecord()
			patch.Set("cid", ctid)
			return patch
		})

	case engine.NotifyChannelEdited:
		return c.updateEach(ctx, cache.NamespaceChannel, ev, func(r codec.Record) codec.Record {
			return r.Without(append([]string{"cid"}, invokerKeys...)...)
		})

	case engine.NotifyChannelMoved:
		return c.updateEach(ctx, cache.NamespaceChannel, ev, func(r codec.Record) codec.Record {
			patch := codec.NewRecord()
			cpid, _ := sharedField(ev, r, "cpid")
			patch.Set("pid", cpid)
			if order, ok := sharedField(ev, r, "order"); ok {
				patch.Set("channel_order", order)
			}
			return patch
		})

	case engine.NotifyServerEdited:
		sid := c.selectedServer.Load()
		if sid == 0 {
			return nil, nil
		}
		return c.cache.Update(ctx, cache.NamespaceServer, sid, ev.First().Without(invokerKeys...))
	}
	return nil, nil
}

// sharedField reads key from r, falling back to the first record: grouped
// notifications carry the fields common to all records only once
func sharedField(ev *engine.NotifyEvent, r codec.Record, key string) (codec.Value, bool) {
	if v, ok := r.Get(key); ok {
		return v, true
	}
	return ev.First().Get(key)
}

// refreshCreated relists the namespace and returns the node the event announced
func (c *Client) refreshCreated(ctx context.Context, ns cache.Namespace, ev *engine.NotifyEvent) (*cache.Node, error) {
	if _, err := c.cache.Refresh(ctx, ns); err != nil {
		return nil, err
	}
	id, _ := ev.First().Int(ns.IdentityKey())
	node, ok := c.cache.Get(ns, id)
	if !ok {
		return nil, &sqerr.CacheInconsistencyError{Namespace: string(ns), ID: id}
	}
	return node, nil
}

// refreshEvicted relists the namespace and returns the node that was evicted
func (c *Client) refreshEvicted(ctx context.Context, ns cache.Namespace, ev *engine.NotifyEvent) (*cache.Node, error) {
	id, _ := ev.First().Int(ns.IdentityKey())
	before, _ := c.cache.Get(ns, id)

	diff, err := c.cache.Refresh(ctx, ns)
	if err != nil {
		return before, err
	}
	for _, node := range diff.Destroyed {
		if node.ID() == id {
			return node, nil
		}
	}
	return before, nil
}

// updateEach patches the node of every record of the event
func (c *Client) updateEach(ctx context.Context, ns cache.Namespace, ev *engine.NotifyEvent, patchOf func(codec.Record) codec.Record) (*cache.Node, error) {
	var first *cache.Node
	var errs []error
	for _, r := range ev.Records {
		id, ok := r.Int(ns.IdentityKey())
		if !ok {
			errs = append(errs, fmt.Errorf("notify%s without numeric %s", ev.Name, ns.IdentityKey()))
			continue
		}
		node, err := c.cache.Update(ctx, ns, id, patchOf(r))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if first == nil {
			first = node
		}
	}
	return first, errors.Join(errs...)
}
