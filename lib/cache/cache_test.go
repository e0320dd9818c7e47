package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ValentinKolb/sqc/lib/codec"
	"github.com/ValentinKolb/sqc/lib/sqerr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLister answers list commands from a fixed table and counts calls
type stubLister struct {
	mu      sync.Mutex
	results map[Namespace][]codec.Record
	err     error
	calls   map[Namespace]int
}

func newStubLister() *stubLister {
	return &stubLister{results: make(map[Namespace][]codec.Record), calls: make(map[Namespace]int)}
}

func (l *stubLister) List(_ context.Context, ns Namespace) ([]codec.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[ns]++
	if l.err != nil {
		return nil, l.err
	}
	return l.results[ns], nil
}

func (l *stubLister) set(ns Namespace, records ...codec.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results[ns] = records
}

func (l *stubLister) callCount(ns Namespace) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[ns]
}

func TestNamespaces(t *testing.T) {
	tests := []struct {
		ns  Namespace
		key string
	}{
		{NamespaceClient, "clid"},
		{NamespaceChannel, "cid"},
		{NamespaceServer, "virtualserver_id"},
		{NamespaceServerGroup, "sgid"},
		{NamespaceChannelGroup, "cgid"},
	}
	for _, tt := range tests {
		ns, err := ParseNamespace(string(tt.ns))
		require.NoError(t, err)
		assert.Equal(t, tt.key, ns.IdentityKey())
	}

	_, err := ParseNamespace("token")
	assert.Error(t, err)
}

func TestReconcileMergesAndEvicts(t *testing.T) {
	s := NewSynchronizer(uuid.New(), nil)

	diff, err := s.Reconcile(NamespaceClient, []codec.Record{
		codec.RecordOf("clid", 1, "client_nickname", "Alice", "cid", 1),
		codec.RecordOf("clid", 2, "client_nickname", "Bob", "cid", 1, "client_away", 0),
	})
	require.NoError(t, err)
	assert.Len(t, diff.Created, 2)
	assert.Empty(t, diff.Destroyed)

	one, ok := s.Get(NamespaceClient, 1)
	require.True(t, ok)
	two, ok := s.Get(NamespaceClient, 2)
	require.True(t, ok)

	var destroyedIDs []int64
	one.OnDestroy(func(n *Node) { destroyedIDs = append(destroyedIDs, n.ID()) })

	diff, err = s.Reconcile(NamespaceClient, []codec.Record{
		codec.RecordOf("clid", 2, "cid", 5),
	})
	require.NoError(t, err)
	assert.Empty(t, diff.Created)
	assert.Equal(t, []*Node{two}, diff.Updated)
	assert.Equal(t, []*Node{one}, diff.Destroyed)

	assert.True(t, one.Destroyed())
	assert.Equal(t, []int64{1}, destroyedIDs)
	assert.Equal(t, "Alice", one.Str("client_nickname"), "a destroyed node stays readable")

	// merged, not replaced
	assert.False(t, two.Destroyed())
	cid, _ := two.Int("cid")
	assert.Equal(t, int64(5), cid)
	assert.Equal(t, "Bob", two.Str("client_nickname"))
	assert.True(t, two.Snapshot().Has("client_away"))

	_, ok = s.Get(NamespaceClient, 1)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len(NamespaceClient))
}

func TestReconcileSkipsRecordsWithoutIdentity(t *testing.T) {
	s := NewSynchronizer(uuid.New(), nil)

	diff, err := s.Reconcile(NamespaceChannel, []codec.Record{
		codec.RecordOf("cid", 3, "channel_name", "Lobby"),
		codec.RecordOf("channel_name", "broken"),
		codec.RecordOf("cid", "abc"),
	})
	require.NoError(t, err)
	assert.Len(t, diff.Created, 1)
	assert.Equal(t, 1, s.Len(NamespaceChannel))
}

func TestReconcileUnknownNamespace(t *testing.T) {
	s := NewSynchronizer(uuid.New(), nil)
	_, err := s.Reconcile(Namespace("token"), nil)
	assert.Error(t, err)
}

func TestNodeSnapshotIsACopy(t *testing.T) {
	s := NewSynchronizer(uuid.New(), nil)
	_, err := s.Reconcile(NamespaceChannel, []codec.Record{codec.RecordOf("cid", 1, "channel_name", "Lobby")})
	require.NoError(t, err)

	node, _ := s.Get(NamespaceChannel, 1)
	snap := node.Snapshot()
	snap.Set("channel_name", codec.StringValue("changed"))
	assert.Equal(t, "Lobby", node.Str("channel_name"))
}

func TestUpdateKnownNode(t *testing.T) {
	lister := newStubLister()
	s := NewSynchronizer(uuid.New(), lister)
	_, err := s.Reconcile(NamespaceClient, []codec.Record{codec.RecordOf("clid", 7, "cid", 1, "client_nickname", "Alice")})
	require.NoError(t, err)

	node, err := s.Update(context.Background(), NamespaceClient, 7, codec.RecordOf("cid", 3))
	require.NoError(t, err)
	cid, _ := node.Int("cid")
	assert.Equal(t, int64(3), cid)
	assert.Equal(t, "Alice", node.Str("client_nickname"))
	assert.Equal(t, 0, lister.callCount(NamespaceClient))
}

func TestUpdateUnknownNodeRelistsOnce(t *testing.T) {
	lister := newStubLister()
	lister.set(NamespaceClient, codec.RecordOf("clid", 9, "cid", 1, "client_nickname", "Late"))
	s := NewSynchronizer(uuid.New(), lister)

	node, err := s.Update(context.Background(), NamespaceClient, 9, codec.RecordOf("cid", 4))
	require.NoError(t, err)
	assert.Equal(t, 1, lister.callCount(NamespaceClient))
	assert.Equal(t, "Late", node.Str("client_nickname"))
	cid, _ := node.Int("cid")
	assert.Equal(t, int64(4), cid)
}

func TestUpdateNeverFabricatesNodes(t *testing.T) {
	lister := newStubLister()
	lister.set(NamespaceChannel, codec.RecordOf("cid", 1))
	s := NewSynchronizer(uuid.New(), lister)

	_, err := s.Update(context.Background(), NamespaceChannel, 42, codec.RecordOf("channel_name", "ghost"))
	var ce *sqerr.CacheInconsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "channel", ce.Namespace)
	assert.Equal(t, int64(42), ce.ID)
	assert.Equal(t, 1, lister.callCount(NamespaceChannel))

	_, ok := s.Get(NamespaceChannel, 42)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len(NamespaceChannel), "the relisting itself is reconciled")
}

func TestRefreshPropagatesListerErrors(t *testing.T) {
	lister := newStubLister()
	lister.err = errors.New("boom")
	s := NewSynchronizer(uuid.New(), lister)

	_, err := s.Refresh(context.Background(), NamespaceServer)
	assert.ErrorIs(t, err, lister.err)

	_, err = NewSynchronizer(uuid.New(), nil).Refresh(context.Background(), NamespaceServer)
	assert.Error(t, err)
}

func TestAllSortedByID(t *testing.T) {
	s := NewSynchronizer(uuid.New(), nil)
	_, err := s.Reconcile(NamespaceServerGroup, []codec.Record{
		codec.RecordOf("sgid", 9, "name", "Guest"),
		codec.RecordOf("sgid", 2, "name", "Admin"),
		codec.RecordOf("sgid", 6, "name", "Normal"),
	})
	require.NoError(t, err)

	var ids []int64
	for _, n := range s.All(NamespaceServerGroup) {
		ids = append(ids, n.ID())
	}
	assert.Equal(t, []int64{2, 6, 9}, ids)
}

func TestClearDestroysEverything(t *testing.T) {
	s := NewSynchronizer(uuid.New(), nil)
	_, _ = s.Reconcile(NamespaceClient, []codec.Record{codec.RecordOf("clid", 1)})
	_, _ = s.Reconcile(NamespaceChannel, []codec.Record{codec.RecordOf("cid", 1), codec.RecordOf("cid", 2)})

	nodes := append(s.All(NamespaceClient), s.All(NamespaceChannel)...)
	s.Clear()

	for _, n := range nodes {
		assert.True(t, n.Destroyed(), n.String())
	}
	assert.Equal(t, 0, s.Len(NamespaceClient))
	assert.Equal(t, 0, s.Len(NamespaceChannel))

	called := false
	nodes[0].OnDestroy(func(*Node) { called = true })
	assert.True(t, called, "hooks registered after destruction run immediately")
}

func TestNodeHandle(t *testing.T) {
	handle := uuid.New()
	s := NewSynchronizer(handle, nil)
	_, _ = s.Reconcile(NamespaceServer, []codec.Record{codec.RecordOf("virtualserver_id", 1)})

	node, _ := s.Get(NamespaceServer, 1)
	assert.Equal(t, handle, node.Handle())
}

func TestViews(t *testing.T) {
	s := NewSynchronizer(uuid.New(), nil)
	_, _ = s.Reconcile(NamespaceClient, []codec.Record{codec.DecodeLine(
		`clid=5 cid=2 client_database_id=12 client_nickname=Alice\sB client_type=0 client_away=1 client_servergroups=6,8 client_idle_time=1200`,
	)[0]})
	_, _ = s.Reconcile(NamespaceChannel, []codec.Record{codec.DecodeLine(
		`cid=2 pid=0 channel_order=1 channel_name=Lobby total_clients=3 channel_flag_default=1 channel_needed_talk_power=0`,
	)[0]})

	client, _ := s.Get(NamespaceClient, 5)
	view, ok := client.AsClient()
	require.True(t, ok)
	assert.Equal(t, int64(5), view.ID)
	assert.Equal(t, int64(2), view.ChannelID)
	assert.Equal(t, "Alice B", view.Nickname)
	assert.True(t, view.Away)
	assert.False(t, view.IsQuery())
	assert.Equal(t, []int64{6, 8}, view.ServerGroups)
	assert.Equal(t, []string{"client_idle_time"}, view.Extra.Keys())

	_, ok = client.AsChannel()
	assert.False(t, ok)

	channel, _ := s.Get(NamespaceChannel, 2)
	cview, ok := channel.AsChannel()
	require.True(t, ok)
	assert.Equal(t, "Lobby", cview.Name)
	assert.Equal(t, int64(3), cview.TotalClients)
	assert.True(t, cview.Default)
	assert.False(t, cview.Permanent)
	assert.Equal(t, []string{"channel_needed_talk_power"}, cview.Extra.Keys())

	// views are copies, the node is untouched
	assert.True(t, channel.Snapshot().Has("channel_name"))
}
