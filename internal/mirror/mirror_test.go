package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/content-mirror/internal/content"
	"github.com/stacklok/content-mirror/internal/mirror/mocks"
	"github.com/stacklok/content-mirror/internal/mirrorerr"
	"github.com/stacklok/content-mirror/internal/resolve"
	"github.com/stacklok/content-mirror/internal/store"
	storemocks "github.com/stacklok/content-mirror/internal/store/mocks"
	mirrorsync "github.com/stacklok/content-mirror/internal/sync"
	"github.com/stacklok/content-mirror/internal/upstream"
	upstreammocks "github.com/stacklok/content-mirror/internal/upstream/mocks"
)

func fields(kv map[string]content.Value) content.Fields {
	f := content.Fields{}
	for k, v := range kv {
		f[k] = map[string]content.Value{"en-US": v}
	}
	return f
}

func article(id string, kv map[string]content.Value) content.Record {
	return content.NewEntry(id, "article", fields(kv))
}

// passThroughReads lets a mocked syncer run store reads directly
func passThroughReads(syncer *mocks.MockSyncer) {
	syncer.EXPECT().ReadCommitted(gomock.Any()).DoAndReturn(func(fn func() error) error {
		return fn()
	}).AnyTimes()
}

// newMirror wires a real coordinator over a memory store to a mocked upstream
func newMirror(t *testing.T, opts ...Option) (*Mirror, *upstreammocks.MockClient, store.Store) {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := upstreammocks.NewMockClient(ctrl)
	st := store.NewMemoryStore()
	return New(mirrorsync.NewCoordinator(client, st), st, opts...), client, st
}

func TestMirror_GettersSyncFirst(t *testing.T) {
	t.Parallel()

	m, client, _ := newMirror(t)
	ctx := context.Background()

	gomock.InOrder(
		client.EXPECT().Sync(gomock.Any(), upstream.Query{Initial: true}).Return(&upstream.DeltaBatch{
			Cursor:  "c1",
			Entries: []content.Record{article("e1", nil)},
			Assets:  []content.Record{content.NewAsset("a1", nil)},
		}, nil),
		client.EXPECT().Sync(gomock.Any(), upstream.Query{Cursor: "c1"}).Return(&upstream.DeltaBatch{Cursor: "c1"}, nil).Times(2),
	)

	entries, err := m.GetEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, content.IDs(entries))

	assets, err := m.GetAssets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, content.IDs(assets))

	all, err := m.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "a1"}, content.IDs(all))
}

func TestMirror_DeletionIsVisibleAfterSync(t *testing.T) {
	t.Parallel()

	m, client, _ := newMirror(t)
	ctx := context.Background()

	gomock.InOrder(
		client.EXPECT().Sync(gomock.Any(), upstream.Query{Initial: true}).Return(&upstream.DeltaBatch{
			Cursor:  "c1",
			Entries: []content.Record{article("e1", nil), article("e2", nil)},
		}, nil),
		client.EXPECT().Sync(gomock.Any(), upstream.Query{Cursor: "c1"}).Return(&upstream.DeltaBatch{
			Cursor:          "c2",
			DeletedEntryIDs: []string{"e1"},
		}, nil),
		client.EXPECT().Sync(gomock.Any(), upstream.Query{Cursor: "c2"}).Return(&upstream.DeltaBatch{Cursor: "c2"}, nil),
	)

	entries, err := m.GetEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, content.IDs(entries))

	entries, err = m.GetEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"e2"}, content.IDs(entries))

	all, err := m.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"e2"}, content.IDs(all))
}

func TestMirror_FailedSyncFailsReads(t *testing.T) {
	t.Parallel()

	syncErr := mirrorerr.Sync("sync", mirrorerr.Upstream("fetch delta", errors.New("connection refused")))

	tests := []struct {
		name string
		call func(*Mirror) error
	}{
		{name: "entries", call: func(m *Mirror) error { _, err := m.GetEntries(context.Background()); return err }},
		{name: "assets", call: func(m *Mirror) error { _, err := m.GetAssets(context.Background()); return err }},
		{name: "all", call: func(m *Mirror) error { _, err := m.GetAll(context.Background()); return err }},
		{name: "resolved", call: func(m *Mirror) error { _, err := m.GetResolvedEntries(context.Background()); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			syncer := mocks.NewMockSyncer(ctrl)
			st := storemocks.NewMockStore(ctrl)
			syncer.EXPECT().Sync(gomock.Any()).Return(nil, syncErr)
			// no store expectations: a failed sync must not read

			err := tt.call(New(syncer, st))
			require.Error(t, err)
			assert.ErrorIs(t, err, mirrorerr.ErrSync)
			assert.ErrorIs(t, err, mirrorerr.ErrUpstreamFetch)
		})
	}
}

func TestMirror_StoreReadErrorsAreClassified(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	syncer := mocks.NewMockSyncer(ctrl)
	st := storemocks.NewMockStore(ctrl)

	syncer.EXPECT().Sync(gomock.Any()).Return(&mirrorsync.Result{NoOp: true}, nil).Times(2)
	passThroughReads(syncer)
	st.EXPECT().GetAllEntries(gomock.Any()).Return(nil, errors.New("disk gone"))
	st.EXPECT().GetAll(gomock.Any()).Return(nil, mirrorerr.Store("get all", errors.New("locked")))

	m := New(syncer, st)

	_, err := m.GetEntries(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, mirrorerr.ErrStore)
	assert.Contains(t, err.Error(), "get entries")

	_, err = m.GetResolvedEntries(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, mirrorerr.ErrStore)
	assert.Equal(t, "STORE: get all: locked", err.Error())
}

func TestMirror_GetResolvedEntries(t *testing.T) {
	t.Parallel()

	m, client, _ := newMirror(t)
	ctx := context.Background()

	client.EXPECT().Sync(gomock.Any(), upstream.Query{Initial: true}).Return(&upstream.DeltaBatch{
		Cursor: "c1",
		Entries: []content.Record{
			article("e1", map[string]content.Value{
				"hero":    content.LinkValue(content.AssetLink("img")),
				"related": content.LinksValue([]content.Link{content.EntryLink("e2"), content.EntryLink("X")}),
			}),
			article("e2", map[string]content.Value{"title": content.ScalarValue("Second")}),
		},
		Assets: []content.Record{content.NewAsset("img", fields(map[string]content.Value{
			"file": content.ScalarValue("hero.png"),
		}))},
	}, nil)

	resolved, err := m.GetResolvedEntries(ctx)
	require.NoError(t, err)
	require.Len(t, resolved, 2, "assets never appear at the top level")
	assert.Equal(t, "e1", resolved[0].ID)
	assert.Equal(t, "e2", resolved[1].ID)

	hero, ok := resolved[0].Fields["hero"]["en-US"].Record()
	require.True(t, ok)
	assert.Equal(t, "img", hero.ID)

	related, ok := resolved[0].Fields["related"]["en-US"].Items()
	require.True(t, ok)
	require.Len(t, related, 2)
	e2, ok := related[0].Record()
	require.True(t, ok)
	assert.Equal(t, "e2", e2.ID)
	marker, ok := related[1].Unresolved()
	require.True(t, ok)
	assert.Equal(t, resolve.ReasonMissing, marker.Reason)
}

func TestMirror_GetResolvedEntriesUsesCache(t *testing.T) {
	t.Parallel()

	m, client, _ := newMirror(t)
	ctx := context.Background()

	gomock.InOrder(
		client.EXPECT().Sync(gomock.Any(), upstream.Query{Initial: true}).Return(&upstream.DeltaBatch{
			Cursor:  "c1",
			Entries: []content.Record{article("e1", map[string]content.Value{"title": content.ScalarValue("v1")})},
		}, nil),
		client.EXPECT().Sync(gomock.Any(), upstream.Query{Cursor: "c1"}).Return(&upstream.DeltaBatch{Cursor: "c1"}, nil),
		client.EXPECT().Sync(gomock.Any(), upstream.Query{Cursor: "c1"}).Return(&upstream.DeltaBatch{
			Cursor:  "c2",
			Entries: []content.Record{article("e1", map[string]content.Value{"title": content.ScalarValue("v2")})},
		}, nil),
	)

	first, err := m.GetResolvedEntries(ctx)
	require.NoError(t, err)
	second, err := m.GetResolvedEntries(ctx)
	require.NoError(t, err)
	// unchanged store content is served from the cache
	assert.Same(t, &first[0], &second[0])

	third, err := m.GetResolvedEntries(ctx)
	require.NoError(t, err)
	assert.NotSame(t, &first[0], &third[0])
	v, _ := third[0].Fields["title"]["en-US"].Scalar()
	assert.Equal(t, "v2", v)
}

func TestMirror_GetResolvedEntriesMalformed(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	syncer := mocks.NewMockSyncer(ctrl)
	st := storemocks.NewMockStore(ctrl)

	syncer.EXPECT().Sync(gomock.Any()).Return(&mirrorsync.Result{NoOp: true}, nil)
	passThroughReads(syncer)
	st.EXPECT().GetAll(gomock.Any()).Return([]content.Record{
		article("e1", map[string]content.Value{"ref": content.LinkValue(content.Link{Kind: "Space", ID: "s"})}),
	}, nil)

	_, err := New(syncer, st).GetResolvedEntries(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, mirrorerr.ErrResolution)
}

func TestMirror_CheckReadiness(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	syncer := mocks.NewMockSyncer(ctrl)
	m := New(syncer, storemocks.NewMockStore(ctrl))

	syncer.EXPECT().Cursor().Return("")
	assert.ErrorIs(t, m.CheckReadiness(context.Background()), ErrNotSynced)

	syncer.EXPECT().Cursor().Return("c1")
	assert.NoError(t, m.CheckReadiness(context.Background()))
}

func TestMirror_Sync(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	syncer := mocks.NewMockSyncer(ctrl)
	want := &mirrorsync.Result{Cursor: "c9", EntriesUpserted: 3}
	syncer.EXPECT().Sync(gomock.Any()).Return(want, nil)

	got, err := New(syncer, storemocks.NewMockStore(ctrl)).Sync(context.Background())
	require.NoError(t, err)
	assert.Same(t, want, got)
}

// heldAssetsStore blocks StoreAssets, after the entries of the same round are stored,
// until release is closed
type heldAssetsStore struct {
	*store.MemoryStore
	entriesStored chan struct{}
	assetsHeld    chan struct{}
	release       chan struct{}
}

func (s *heldAssetsStore) StoreEntries(ctx context.Context, entries []content.Record) error {
	defer close(s.entriesStored)
	return s.MemoryStore.StoreEntries(ctx, entries)
}

func (s *heldAssetsStore) StoreAssets(ctx context.Context, assets []content.Record) error {
	<-s.entriesStored
	close(s.assetsHeld)
	<-s.release
	return s.MemoryStore.StoreAssets(ctx, assets)
}

// roundInFlight is a syncer whose own Sync finds nothing new, as when another caller
// started the round that is currently applying
type roundInFlight struct {
	*mirrorsync.Coordinator
}

func (roundInFlight) Sync(context.Context) (*mirrorsync.Result, error) {
	return &mirrorsync.Result{NoOp: true}, nil
}

func TestMirror_GetResolvedEntriesWaitsForApplyingRound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := &heldAssetsStore{
		MemoryStore:   store.NewMemoryStore(),
		entriesStored: make(chan struct{}),
		assetsHeld:    make(chan struct{}),
		release:       make(chan struct{}),
	}
	ctrl := gomock.NewController(t)
	client := upstreammocks.NewMockClient(ctrl)
	client.EXPECT().Sync(gomock.Any(), upstream.Query{Initial: true}).Return(&upstream.DeltaBatch{
		Cursor:  "c1",
		Entries: []content.Record{article("e1", map[string]content.Value{"hero": content.LinkValue(content.AssetLink("a1"))})},
		Assets:  []content.Record{content.NewAsset("a1", nil)},
	}, nil)
	coordinator := mirrorsync.NewCoordinator(client, st)

	roundErr := make(chan error, 1)
	go func() {
		_, err := coordinator.Sync(ctx)
		roundErr <- err
	}()
	<-st.assetsHeld

	type readResult struct {
		resolved []resolve.ResolvedRecord
		err      error
	}
	read := make(chan readResult, 1)
	go func() {
		resolved, err := New(roundInFlight{coordinator}, st).GetResolvedEntries(ctx)
		read <- readResult{resolved, err}
	}()

	select {
	case <-read:
		t.Fatal("read returned while the round was still applying")
	case <-time.After(100 * time.Millisecond):
	}

	close(st.release)
	require.NoError(t, <-roundErr)

	got := <-read
	require.NoError(t, got.err)
	require.Len(t, got.resolved, 1)
	hero, ok := got.resolved[0].Fields["hero"]["en-US"].Record()
	require.True(t, ok, "the entry and its asset come from the same round")
	assert.Equal(t, "a1", hero.ID)
}
