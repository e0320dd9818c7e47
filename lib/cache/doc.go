// Package cache keeps a live, per-connection mirror of the server's entities
// (clients, channels, virtual servers, server groups, channel groups).
//
// The package focuses on:
//   - One concurrent map per namespace, keyed by the namespace's identity key
//   - Reconciliation of complete list responses as the only way nodes are
//     created or destroyed
//   - Event driven shallow updates of existing nodes
//   - Corrective relisting when an event references an unknown node
//
// Key Components:
//
//   - Node: The cached entity. Its property snapshot is replaced by merges only,
//     so a reference taken earlier keeps seeing live data. Eviction marks the
//     node destroyed and runs its OnDestroy hooks, the reference itself stays valid.
//     The owning connection is referenced by a uuid handle, not by pointer.
//
//   - Synchronizer: Owns the namespace maps. Reconcile merges, creates and
//     evicts in one pass and reports the changes as a Diff. Update never creates
//     a node: an unknown id is resolved through one Refresh via the Lister, and
//     if it is still unknown a sqerr.CacheInconsistencyError is returned.
//
//   - Views: AsClient, AsChannel, AsServer, AsServerGroup and AsChannelGroup
//     copy a node into a struct with the documented fields and an Extra record
//     with everything else.
//
// Identity Keys:
//
//	client        clid
//	channel       cid
//	server        virtualserver_id
//	servergroup   sgid
//	channelgroup  cgid
package cache
