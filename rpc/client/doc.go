// Package client implements the high-level query client. It combines the
// engine with the cache of the session and keeps the cache current from
// server notifications.
//
// The package focuses on:
//   - Session preparation after connect (login, server selection, nickname)
//   - Typed convenience commands on top of raw command execution
//   - Cache driven event handling with corrective relisting
//   - A registry resolving connection handles stored in cache nodes
//
// Key Components:
//
//   - Client: One query session. It implements cache.Lister, so the cache
//     relists a namespace through the session it belongs to. A dispatch goroutine
//     consumes the engine's events, applies them to the cache and fans them out
//     to subscribers in arrival order.
//
//   - Lookup: Resolves the handle of a cache node to its live client. Closed
//     clients are removed, a stale handle yields sqerr.ErrUnknownHandle.
//
//   - Event: What subscribers receive. Notifications carry the affected cache
//     node (destroyed for clientleftview and channeldeleted), diagnostics carry
//     the error and the close event is always last.
//
// Usage Example:
//
//	config := common.DefaultClientConfig()
//	config.Username = "serveradmin"
//	config.Password = "secret"
//	config.ServerID = 1
//
//	c, err := client.Connect(ctx, config, tcp.NewTCPClientTransport())
//	if err != nil {
//	  return err
//	}
//	defer c.Close()
//
//	c.Subscribe(func(ev client.Event) {
//	  if ev.Kind == client.EventNotify && ev.Name == "clientmoved" {
//	    view, _ := ev.Node.AsClient()
//	    fmt.Printf("%s moved to %d\n", view.Nickname, view.ChannelID)
//	  }
//	})
//	_ = c.RegisterEvents(ctx, client.EventsChannel, 0)
//
//	clients, _ := c.Clients(ctx)
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Commands are still answered one
//	after the other, since the protocol has no request ids. Event handlers run
//	on the dispatch goroutine and must not call Close.
package client
