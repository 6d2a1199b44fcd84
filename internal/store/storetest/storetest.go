// Package storetest holds the behaviour every store.Store backend must
// share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronozoom/internal/store"
	"chronozoom/pkg/models"
)

// Opener returns an empty store. It is called once per subtest.
type Opener func(t *testing.T) store.Store

func Run(t *testing.T, open Opener) {
	t.Run("missing rows", func(t *testing.T) { testMissing(t, open(t)) })
	t.Run("tree round trip", func(t *testing.T) { testTree(t, open(t)) })
	t.Run("range query", func(t *testing.T) { testRange(t, open(t)) })
	t.Run("search", func(t *testing.T) { testSearch(t, open(t)) })
	t.Run("tours", func(t *testing.T) { testTours(t, open(t)) })
	t.Run("users and owners", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("updates overwrite", func(t *testing.T) { testUpdate(t, open(t)) })
	t.Run("deletes", func(t *testing.T) { testDelete(t, open(t)) })
}

// fixture is a small collection:
//
//	Cosmos [-13.7e9, 9999]
//	├── Earth [-4.5e9, 2000]
//	│   └── Life [-3.8e9, 2000]   exhibit "Cambrian" with two items
//	└── Stars [-13e9, -1e9]
type fixture struct {
	owner models.User
	super models.SuperCollection
	coll  models.Collection

	cosmos, earth, life, stars models.Timeline

	cambrian     models.Exhibit
	fossil, reef models.ContentItem
}

func seed(t *testing.T, s store.Store) fixture {
	t.Helper()
	var f fixture
	f.owner = models.User{ID: uuid.New(), DisplayName: "Alice", NameIdentifier: "alice", IdentityProvider: "dev"}
	f.super = models.SuperCollection{ID: uuid.New(), Title: "Alice", OwnerID: &f.owner.ID}
	f.coll = models.Collection{
		ID:                uuid.New(),
		SuperCollectionID: f.super.ID,
		Title:             "History",
		Path:              "/alice/history",
		Description:       "everything",
		OwnerID:           &f.owner.ID,
	}

	node := func(title string, parent *models.Timeline, from, to float64) models.Timeline {
		t := models.Timeline{ID: uuid.New(), CollectionID: f.coll.ID, Title: title, FromYear: from, ToYear: to}
		if parent != nil {
			t.ParentID = &parent.ID
			t.Depth = parent.Depth + 1
		}
		return t
	}
	f.cosmos = node("Cosmos", nil, -13.7e9, 9999)
	f.earth = node("Earth", &f.cosmos, -4.5e9, 2000)
	f.life = node("Life", &f.earth, -3.8e9, 2000)
	f.stars = node("Stars", &f.cosmos, -13e9, -1e9)
	f.earth.Regime = "Earth"

	f.cambrian = models.Exhibit{ID: uuid.New(), CollectionID: f.coll.ID, TimelineID: f.life.ID, Title: "Cambrian", Year: -5.4e8, Depth: 3}
	f.fossil = models.ContentItem{ID: uuid.New(), CollectionID: f.coll.ID, ExhibitID: f.cambrian.ID, Title: "Trilobite", Caption: "A fossil", MediaType: "image", Uri: "http://example.com/t.png", Order: 1, Depth: 4}
	f.reef = models.ContentItem{ID: uuid.New(), CollectionID: f.coll.ID, ExhibitID: f.cambrian.ID, Title: "Reef", Caption: "Early reef builders", Order: 0, Depth: 4}

	b := store.NewBatch()
	b.PutUser(f.owner)
	b.PutSuperCollection(f.super)
	b.PutCollection(f.coll)
	for _, tl := range []models.Timeline{f.cosmos, f.earth, f.life, f.stars} {
		b.PutTimeline(tl)
	}
	b.PutExhibit(f.cambrian)
	b.PutContentItem(f.fossil)
	b.PutContentItem(f.reef)
	require.NoError(t, s.Commit(context.Background(), b))
	return f
}

func ids(ts []models.Timeline) []uuid.UUID {
	out := make([]uuid.UUID, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func testMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, s.Ping(ctx))

	sc, err := s.SuperCollection(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, sc)
	c, err := s.Collection(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, c)
	tl, err := s.Timeline(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, tl)
	ex, err := s.Exhibit(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, ex)
	ci, err := s.ContentItem(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, ci)
	tour, err := s.Tour(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, tour)
	u, err := s.User(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, u)
	u, err = s.UserByIdentity(ctx, "nobody", "dev")
	require.NoError(t, err)
	assert.Nil(t, u)

	cols, err := s.Collections(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, cols)
	rows, err := s.CollectionTimelines(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testTree(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)

	coll, err := s.Collection(ctx, f.coll.ID)
	require.NoError(t, err)
	require.NotNil(t, coll)
	assert.Equal(t, f.coll, *coll)

	sc, err := s.SuperCollection(ctx, f.super.ID)
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.Equal(t, f.super, *sc)

	earth, err := s.Timeline(ctx, f.earth.ID)
	require.NoError(t, err)
	require.NotNil(t, earth)
	assert.Equal(t, f.earth, *earth)

	kids, err := s.ChildTimelines(ctx, f.cosmos.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.stars.ID, f.earth.ID}, ids(kids), "children ordered by from_year")

	all, err := s.CollectionTimelines(ctx, f.coll.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.cosmos.ID, f.stars.ID, f.earth.ID, f.life.ID}, ids(all), "shallowest first")

	exhibits, err := s.Exhibits(ctx, []uuid.UUID{f.earth.ID, f.life.ID})
	require.NoError(t, err)
	require.Len(t, exhibits, 1)
	assert.Equal(t, f.cambrian, exhibits[0])

	items, err := s.ContentItems(ctx, []uuid.UUID{f.cambrian.ID})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, f.reef, items[0], "items ordered by order")
	assert.Equal(t, f.fossil, items[1])

	ci, err := s.ContentItem(ctx, f.fossil.ID)
	require.NoError(t, err)
	require.NotNil(t, ci)
	assert.Equal(t, f.fossil, *ci)
}

func testRange(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)

	tests := []struct {
		name string
		q    store.RangeQuery
		want []uuid.UUID
	}{
		{
			name: "everything",
			q:    store.RangeQuery{FromYear: -13.7e9, ToYear: 9999},
			want: []uuid.UUID{f.cosmos.ID, f.stars.ID, f.earth.ID, f.life.ID},
		},
		{
			name: "window excludes stars",
			q:    store.RangeQuery{FromYear: 0, ToYear: 100},
			want: []uuid.UUID{f.cosmos.ID, f.earth.ID, f.life.ID},
		},
		{
			name: "touching edge intersects",
			q:    store.RangeQuery{FromYear: 2000, ToYear: 3000},
			want: []uuid.UUID{f.cosmos.ID, f.earth.ID, f.life.ID},
		},
		{
			name: "min span",
			q:    store.RangeQuery{FromYear: -13.7e9, ToYear: 9999, MinSpan: 1.2e10},
			want: []uuid.UUID{f.cosmos.ID, f.stars.ID},
		},
		{
			name: "limit keeps shallowest",
			q:    store.RangeQuery{FromYear: -13.7e9, ToYear: 9999, Limit: 2},
			want: []uuid.UUID{f.cosmos.ID, f.stars.ID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.q
			q.CollectionID = f.coll.ID
			rows, err := s.TimelinesInRange(ctx, q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(rows))
		})
	}

	rows, err := s.TimelinesInRange(ctx, store.RangeQuery{CollectionID: uuid.New(), FromYear: -13.7e9, ToYear: 9999})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testSearch(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)

	res, err := s.Search(ctx, f.coll.ID, "EAR")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, models.SearchResult{ID: f.earth.ID, Title: "Earth", Type: "timeline"}, res[0])
	assert.Equal(t, models.SearchResult{ID: f.reef.ID, Title: "Reef", Type: "contentitem"}, res[1], "caption matches")

	res, err = s.Search(ctx, f.coll.ID, "cambrian")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "exhibit", res[0].Type)

	res, err = s.Search(ctx, f.coll.ID, "%")
	require.NoError(t, err)
	assert.Empty(t, res, "wildcards are literal")

	epoch := models.Timeline{ID: uuid.New(), CollectionID: f.coll.ID, ParentID: &f.stars.ID, Depth: 2, Title: "ÉPOQUE Ædelstein", FromYear: -2e9, ToYear: -1e9}
	b := store.NewBatch()
	b.PutTimeline(epoch)
	require.NoError(t, s.Commit(ctx, b))
	for _, term := range []string{"époque", "ædel", "ÉPOQUE Æ"} {
		res, err = s.Search(ctx, f.coll.ID, term)
		require.NoError(t, err)
		require.Len(t, res, 1, term)
		assert.Equal(t, epoch.ID, res[0].ID, term)
	}

	res, err = s.Search(ctx, uuid.New(), "earth")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func testTours(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)

	second := models.Tour{ID: uuid.New(), CollectionID: f.coll.ID, Name: "Deep time", Sequence: 1, Bookmarks: []models.Bookmark{}}
	first := models.Tour{
		ID:           uuid.New(),
		CollectionID: f.coll.ID,
		Name:         "Life on Earth",
		Description:  "from cells to us",
		AudioURL:     "http://example.com/a.mp3",
		Category:     "biology",
		Sequence:     0,
		Bookmarks: []models.Bookmark{
			{ID: uuid.New(), Name: "Cells", URL: "/life", LapseTime: 5, Sequence: 0},
			{ID: uuid.New(), Name: "Cambrian", URL: "/life/cambrian", LapseTime: 10, Description: "boom", Sequence: 1},
		},
	}
	b := store.NewBatch()
	b.PutTour(second)
	b.PutTour(first)
	require.NoError(t, s.Commit(ctx, b))

	tours, err := s.Tours(ctx, f.coll.ID)
	require.NoError(t, err)
	require.Len(t, tours, 2)
	assert.Equal(t, first.ID, tours[0].ID)
	assert.Equal(t, first.Bookmarks, tours[0].Bookmarks)
	assert.Equal(t, second.ID, tours[1].ID)
	assert.Empty(t, tours[1].Bookmarks)

	got, err := s.Tour(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.Name, got.Name)
	assert.Equal(t, first.AudioURL, got.AudioURL)
	assert.Equal(t, first.Category, got.Category)
	assert.Len(t, got.Bookmarks, 2)

	// bookmarks are replaced wholesale
	first.Bookmarks = first.Bookmarks[1:]
	first.Bookmarks[0].Sequence = 0
	b = store.NewBatch()
	b.PutTour(first)
	require.NoError(t, s.Commit(ctx, b))
	got, err = s.Tour(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Bookmarks, 1)
	assert.Equal(t, "Cambrian", got.Bookmarks[0].Name)
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)

	u, err := s.UserByIdentity(ctx, "alice", "dev")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, f.owner, *u)

	u, err = s.UserByIdentity(ctx, "alice", "other")
	require.NoError(t, err)
	assert.Nil(t, u, "both halves of the identity must match")

	anon := models.User{ID: uuid.New(), NameIdentifier: "anonymous"}
	b := store.NewBatch()
	b.PutUser(anon)
	require.NoError(t, s.Commit(ctx, b))
	u, err = s.UserByIdentity(ctx, "anonymous", "")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, anon.ID, u.ID)

	owned, err := s.CollectionsByOwner(ctx, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, f.coll.ID, owned[0].ID)

	other := models.Collection{ID: uuid.New(), SuperCollectionID: f.super.ID, Title: "Art", Path: "/alice/art"}
	b = store.NewBatch()
	b.PutCollection(other)
	require.NoError(t, s.Commit(ctx, b))

	cols, err := s.Collections(ctx, f.super.ID)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "Art", cols[0].Title, "ordered by title")
	assert.Nil(t, cols[0].OwnerID)
	assert.Equal(t, "History", cols[1].Title)
}

func testUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)

	f.earth.Title = "Planet Earth"
	f.earth.FromYear = -4.6e9
	f.coll.Description = "updated"
	f.coll.PubliclySearchable = true
	f.fossil.Order = 5
	b := store.NewBatch()
	b.PutTimeline(f.earth)
	b.PutCollection(f.coll)
	b.PutContentItem(f.fossil)
	require.NoError(t, s.Commit(ctx, b))

	earth, err := s.Timeline(ctx, f.earth.ID)
	require.NoError(t, err)
	require.NotNil(t, earth)
	assert.Equal(t, "Planet Earth", earth.Title)
	assert.Equal(t, -4.6e9, earth.FromYear)

	coll, err := s.Collection(ctx, f.coll.ID)
	require.NoError(t, err)
	require.NotNil(t, coll)
	assert.Equal(t, "updated", coll.Description)
	assert.True(t, coll.PubliclySearchable)

	ci, err := s.ContentItem(ctx, f.fossil.ID)
	require.NoError(t, err)
	require.NotNil(t, ci)
	assert.Equal(t, 5, ci.Order)
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)

	b := store.NewBatch()
	b.DeleteContentItem(f.fossil.ID)
	b.DeleteContentItem(f.reef.ID)
	b.DeleteExhibit(f.cambrian.ID)
	b.DeleteTimeline(f.life.ID)
	b.DeleteTimeline(f.earth.ID)
	require.NoError(t, s.Commit(ctx, b))

	rows, err := s.CollectionTimelines(ctx, f.coll.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.cosmos.ID, f.stars.ID}, ids(rows))
	ex, err := s.Exhibit(ctx, f.cambrian.ID)
	require.NoError(t, err)
	assert.Nil(t, ex)
	items, err := s.ContentItems(ctx, []uuid.UUID{f.cambrian.ID})
	require.NoError(t, err)
	assert.Empty(t, items)

	b = store.NewBatch()
	b.DeleteTimeline(f.stars.ID)
	b.DeleteTimeline(f.cosmos.ID)
	b.DeleteCollection(f.coll.ID)
	b.DeleteSuperCollection(f.super.ID)
	b.DeleteUser(f.owner.ID)
	require.NoError(t, s.Commit(ctx, b))

	coll, err := s.Collection(ctx, f.coll.ID)
	require.NoError(t, err)
	assert.Nil(t, coll)
	sc, err := s.SuperCollection(ctx, f.super.ID)
	require.NoError(t, err)
	assert.Nil(t, sc)
	u, err := s.User(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Nil(t, u)
}
