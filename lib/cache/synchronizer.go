package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/sqc/lib/codec"
	"github.com/ValentinKolb/sqc/lib/sqerr"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("cache")

// Lister issues the list command of a namespace and returns its decoded records.
type Lister interface {
	List(ctx context.Context, ns Namespace) ([]codec.Record, error)
}

// Diff describes what one reconciliation pass changed.
type Diff struct {
	Created   []*Node
	Updated   []*Node
	Destroyed []*Node
}

// Synchronizer owns the namespace maps of one connection. Reconcile is the
// only path that creates or destroys nodes.
type Synchronizer struct {
	handle uuid.UUID
	lister Lister

	// serializes reconciliation and updates, readers only use the maps
	mu     sync.Mutex
	spaces map[Namespace]*xsync.MapOf[int64, *Node]
}

// NewSynchronizer creates an empty cache for the connection identified by handle.
// lister may be nil, then Refresh and corrective lookups fail.
func NewSynchronizer(handle uuid.UUID, lister Lister) *Synchronizer {
	spaces := make(map[Namespace]*xsync.MapOf[int64, *Node], len(Namespaces))
	for _, ns := range Namespaces {
		spaces[ns] = xsync.NewMapOf[int64, *Node]()
	}
	return &Synchronizer{handle: handle, lister: lister, spaces: spaces}
}

// --------------------------------------------------------------------------
// Reconciliation
// --------------------------------------------------------------------------

// Reconcile brings a namespace in line with a complete list response. Known
// nodes are merged in place, unknown ones are created and every node missing
// from records is evicted and destroyed. Records without the identity key are
// skipped.
func (s *Synchronizer) Reconcile(ns Namespace, records []codec.Record) (Diff, error) {
	space, err := s.space(ns)
	if err != nil {
		return Diff{}, err
	}
	key := ns.IdentityKey()

	s.mu.Lock()
	var diff Diff
	seen := make(map[int64]struct{}, len(records))
	for _, r := range records {
		id, ok := r.Int(key)
		if !ok {
			Logger.Warningf("Skipping %s record without %s: %s", ns, key, r)
			continue
		}
		seen[id] = struct{}{}

		if node, ok := space.Load(id); ok {
			node.merge(r)
			diff.Updated = append(diff.Updated, node)
			continue
		}
		node := newNode(ns, id, s.handle, r)
		space.Store(id, node)
		diff.Created = append(diff.Created, node)
	}

	space.Range(func(id int64, node *Node) bool {
		if _, ok := seen[id]; !ok {
			space.Delete(id)
			diff.Destroyed = append(diff.Destroyed, node)
		}
		return true
	})
	s.mu.Unlock()

	// hooks run outside the lock so they may read the cache
	for _, node := range diff.Destroyed {
		node.destroy()
	}

	observeDiff(ns, diff)
	Logger.Debugf("Reconciled %s: %d created, %d updated, %d destroyed",
		ns, len(diff.Created), len(diff.Updated), len(diff.Destroyed))
	return diff, nil
}

// Refresh lists the namespace through the Lister and reconciles the result.
func (s *Synchronizer) Refresh(ctx context.Context, ns Namespace) (Diff, error) {
	if _, err := s.space(ns); err != nil {
		return Diff{}, err
	}
	if s.lister == nil {
		return Diff{}, fmt.Errorf("refresh %s: no lister", ns)
	}
	records, err := s.lister.List(ctx, ns)
	if err != nil {
		return Diff{}, fmt.Errorf("refresh %s: %w", ns, err)
	}
	return s.Reconcile(ns, records)
}

// Update merges patch into an existing node. An unknown id triggers one
// corrective Refresh; if the node is still unknown a CacheInconsistencyError
// is returned and nothing is created.
func (s *Synchronizer) Update(ctx context.Context, ns Namespace, id int64, patch codec.Record) (*Node, error) {
	node, err := s.Resolve(ctx, ns, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// a concurrent reconcile may have evicted the node meanwhile
	if node.Destroyed() {
		return nil, &sqerr.CacheInconsistencyError{Namespace: string(ns), ID: id}
	}
	node.merge(patch)
	return node, nil
}

// Resolve returns the node for id, relisting the namespace once if it is unknown.
func (s *Synchronizer) Resolve(ctx context.Context, ns Namespace, id int64) (*Node, error) {
	space, err := s.space(ns)
	if err != nil {
		return nil, err
	}
	if node, ok := space.Load(id); ok {
		return node, nil
	}

	Logger.Debugf("%s %d unknown, relisting", ns, id)
	if _, err := s.Refresh(ctx, ns); err != nil {
		return nil, err
	}
	if node, ok := space.Load(id); ok {
		return node, nil
	}
	return nil, &sqerr.CacheInconsistencyError{Namespace: string(ns), ID: id}
}

// --------------------------------------------------------------------------
// Read Access
// --------------------------------------------------------------------------

// Get returns a cached node without any lookup.
func (s *Synchronizer) Get(ns Namespace, id int64) (*Node, bool) {
	space, err := s.space(ns)
	if err != nil {
		return nil, false
	}
	return space.Load(id)
}

// All returns the cached nodes of a namespace sorted by id.
func (s *Synchronizer) All(ns Namespace) []*Node {
	space, err := s.space(ns)
	if err != nil {
		return nil
	}
	nodes := make([]*Node, 0, space.Size())
	space.Range(func(_ int64, node *Node) bool {
		nodes = append(nodes, node)
		return true
	})
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].id < nodes[j].id })
	return nodes
}

// Len returns the number of cached nodes in a namespace.
func (s *Synchronizer) Len(ns Namespace) int {
	space, err := s.space(ns)
	if err != nil {
		return 0
	}
	return space.Size()
}

// Clear evicts and destroys every node, used when the connection is lost.
func (s *Synchronizer) Clear() {
	var destroyed []*Node
	s.mu.Lock()
	for _, ns := range Namespaces {
		space := s.spaces[ns]
		space.Range(func(_ int64, node *Node) bool {
			destroyed = append(destroyed, node)
			return true
		})
		space.Clear()
	}
	s.mu.Unlock()

	for _, node := range destroyed {
		node.destroy()
	}
	Logger.Debugf("Cache cleared, %d nodes destroyed", len(destroyed))
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *Synchronizer) space(ns Namespace) (*xsync.MapOf[int64, *Node], error) {
	space, ok := s.spaces[ns]
	if !ok {
		return nil, fmt.Errorf("unknown namespace %q", ns)
	}
	return space, nil
}

func observeDiff(ns Namespace, diff Diff) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`sqc_cache_nodes_created_total{namespace=%q}`, ns)).Add(len(diff.Created))
	metrics.GetOrCreateCounter(fmt.Sprintf(`sqc_cache_nodes_destroyed_total{namespace=%q}`, ns)).Add(len(diff.Destroyed))
}
