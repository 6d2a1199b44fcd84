package timeline

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chronozoom/internal/cache"
	"chronozoom/internal/store"
	"chronozoom/internal/store/memstore"
	"chronozoom/internal/sync"
	"chronozoom/pkg/models"
)

// countingStore counts the store calls the engines make.
type countingStore struct {
	store.Store
	rangeQueries atomic.Int64
	tourQueries  atomic.Int64
	commits      atomic.Int64
	failCommit   error

	rangeGate atomic.Pointer[gate]
}

// gate holds one store call after it has read its rows.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

// holdNextRange makes the next TimelinesInRange call read its rows, signal
// entered, and wait for release before returning them.
func (s *countingStore) holdNextRange() *gate {
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	s.rangeGate.Store(g)
	return g
}

func (s *countingStore) TimelinesInRange(ctx context.Context, q store.RangeQuery) ([]models.Timeline, error) {
	s.rangeQueries.Add(1)
	rows, err := s.Store.TimelinesInRange(ctx, q)
	if g := s.rangeGate.Swap(nil); g != nil {
		close(g.entered)
		<-g.release
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
	}
	return rows, err
}

func (s *countingStore) Tours(ctx context.Context, collectionID uuid.UUID) ([]models.Tour, error) {
	s.tourQueries.Add(1)
	return s.Store.Tours(ctx, collectionID)
}

func (s *countingStore) Commit(ctx context.Context, b *store.Batch) error {
	if s.failCommit != nil {
		return s.failCommit
	}
	s.commits.Add(1)
	return s.Store.Commit(ctx, b)
}

type recordingFeed struct {
	mu     gosync.Mutex
	events []sync.TreeEvent
}

func (f *recordingFeed) BroadcastJSON(v any) {
	ev, ok := v.(sync.TreeEvent)
	if !ok {
		return
	}
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func (f *recordingFeed) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

type recordingThumbs struct {
	items []models.ContentItem
}

func (r *recordingThumbs) Enqueue(item models.ContentItem) {
	r.items = append(r.items, item)
}

type fixture struct {
	store  *countingStore
	cache  *cache.Cache
	query  *QueryEngine
	mutate *MutationEngine
	feed   *recordingFeed
	thumbs *recordingThumbs
}

var errStoreDown = errors.New("store down")

// newBareFixture builds engines over an empty memory store.
func newBareFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  &countingStore{Store: memstore.New()},
		cache:  cache.New(time.Minute),
		feed:   &recordingFeed{},
		thumbs: &recordingThumbs{},
	}
	log := zerolog.Nop()
	f.query = NewQueryEngine(f.store, f.cache, 0, nil, log)
	f.mutate = NewMutationEngine(f.store, f.cache, log, WithBroadcaster(f.feed), WithThumbnailer(f.thumbs))
	return f
}

// newFixture also seeds the sandbox collection.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := newBareFixture(t)
	require.NoError(t, f.mutate.EnsureSandbox(context.Background()))
	return f
}

var (
	alice = &models.User{DisplayName: "Alice", NameIdentifier: "alice", IdentityProvider: "idp"}
	bob   = &models.User{DisplayName: "Bob", NameIdentifier: "bob", IdentityProvider: "idp"}

	aliceRef = CollectionRef{SuperCollection: "Alice", Collection: "Alice"}
)

// withAlice registers alice, giving her the collection aliceRef.
func (f *fixture) withAlice(t *testing.T) {
	t.Helper()
	path, err := f.mutate.PutUser(context.Background(), alice, &UserInput{DisplayName: "Alice"})
	require.NoError(t, err)
	require.Equal(t, "/alice/alice", path)
}

func (f *fixture) root(t *testing.T, ref CollectionRef) models.Timeline {
	t.Helper()
	all, err := f.store.CollectionTimelines(context.Background(), ref.ID())
	require.NoError(t, err)
	require.NotEmpty(t, all)
	return all[0]
}

func (f *fixture) putTimeline(t *testing.T, ref CollectionRef, parent uuid.UUID, title string, from, to float64) uuid.UUID {
	t.Helper()
	id, err := f.mutate.PutTimeline(context.Background(), nil, ref, &TimelineInput{
		ParentID: &parent,
		Title:    title,
		FromYear: from,
		ToYear:   to,
	})
	require.NoError(t, err)
	return id
}

func requireKind(t *testing.T, want Kind, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want, KindOf(err), "error: %v", err)
}

func ptr[T any](v T) *T {
	return &v
}
