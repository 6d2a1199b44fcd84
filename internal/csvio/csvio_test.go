package csvio

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronozoom/internal/cache"
	"chronozoom/internal/store/memstore"
	"chronozoom/internal/timeline"
	"chronozoom/pkg/models"
)

const earthCSV = `id,parent_id,title,regime,from_year,to_year
a,,Earth,Geology,-4500000000,2000
b,a,Life,,-3800000000,2000
`

type env struct {
	store *memstore.Store
	imp   *Importer
}

func newEnv(t *testing.T, users ...*models.User) *env {
	t.Helper()
	s := memstore.New()
	m := timeline.NewMutationEngine(s, cache.New(0), zerolog.Nop())
	for _, u := range users {
		_, err := m.PutUser(context.Background(), u, &timeline.UserInput{})
		require.NoError(t, err)
	}
	return &env{store: s, imp: &Importer{Mutate: m, Store: s, Log: zerolog.Nop()}}
}

func user(name string) (*models.User, timeline.CollectionRef) {
	u := &models.User{NameIdentifier: strings.ToLower(name), IdentityProvider: "dev", DisplayName: name}
	return u, timeline.CollectionRef{SuperCollection: name, Collection: name}
}

func titles(t *testing.T, e *env, ref timeline.CollectionRef) map[string]models.Timeline {
	t.Helper()
	rows, err := e.store.CollectionTimelines(context.Background(), ref.ID())
	require.NoError(t, err)
	out := make(map[string]models.Timeline, len(rows))
	for _, r := range rows {
		out[r.Title] = r
	}
	return out
}

func TestImportBuildsTree(t *testing.T) {
	alice, ref := user("Alice")
	e := newEnv(t, alice)

	res, err := e.imp.Import(context.Background(), alice, ref, strings.NewReader(earthCSV))
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 2}, res)

	got := titles(t, e, ref)
	require.Len(t, got, 3)
	root := got[timeline.RootTimelineTitle]
	earth, life := got["Earth"], got["Life"]
	require.NotNil(t, earth.ParentID)
	require.NotNil(t, life.ParentID)
	assert.Equal(t, root.ID, *earth.ParentID)
	assert.Equal(t, earth.ID, *life.ParentID)
	assert.Equal(t, "Geology", earth.Regime)
	assert.Equal(t, 2, life.Depth)
}

func TestImportRejectedRow(t *testing.T) {
	data := earthCSV + "c,,Future,,5000,20000\n"

	t.Run("stops", func(t *testing.T) {
		alice, ref := user("Alice")
		e := newEnv(t, alice)
		res, err := e.imp.Import(context.Background(), alice, ref, strings.NewReader(data))
		require.Error(t, err)
		assert.Equal(t, timeline.KindTimelineRangeInvalid, timeline.KindOf(err))
		assert.Contains(t, err.Error(), "line 4")
		assert.Equal(t, 2, res.Created)
	})

	t.Run("keep going", func(t *testing.T) {
		alice, ref := user("Alice")
		e := newEnv(t, alice)
		e.imp.KeepGoing = true
		res, err := e.imp.Import(context.Background(), alice, ref, strings.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, Result{Created: 2, Skipped: 1}, res)
	})
}

func TestImportByOtherUser(t *testing.T) {
	alice, ref := user("Alice")
	bob, _ := user("Bob")
	e := newEnv(t, alice, bob)
	e.imp.KeepGoing = true

	res, err := e.imp.Import(context.Background(), bob, ref, strings.NewReader(earthCSV))
	require.Error(t, err, "Life refers to the skipped Earth row")
	assert.Contains(t, err.Error(), "not seen before")
	assert.Equal(t, Result{Skipped: 1}, res)
	assert.Len(t, titles(t, e, ref), 1)
}

func TestImportBadInput(t *testing.T) {
	alice, ref := user("Alice")
	e := newEnv(t, alice)

	cases := map[string]string{
		"missing column": "id,title,from_year\na,Earth,0\n",
		"unknown parent": "id,parent_id,title,regime,from_year,to_year\nb,zz,Life,,0,1\n",
		"bad number":     "id,parent_id,title,regime,from_year,to_year\na,,Earth,,soon,1\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.imp.Import(context.Background(), alice, ref, strings.NewReader(data))
			require.Error(t, err)
		})
	}

	_, err := e.imp.Import(context.Background(), alice, timeline.CollectionRef{SuperCollection: "No", Collection: "Such"}, strings.NewReader(earthCSV))
	require.Error(t, err)
}

func TestExportRoundTrip(t *testing.T) {
	alice, aliceRef := user("Alice")
	bob, bobRef := user("Bob")
	e := newEnv(t, alice, bob)

	_, err := e.imp.Import(context.Background(), alice, aliceRef, strings.NewReader(earthCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := Export(context.Background(), e.store, aliceRef.ID(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, timeline.RootTimelineTitle, records[1][2], "root is written first")
	assert.Empty(t, records[1][1])

	res, err := e.imp.Import(context.Background(), bob, bobRef, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 2}, res)

	src, dst := titles(t, e, aliceRef), titles(t, e, bobRef)
	require.Len(t, dst, 3)
	for title, want := range src {
		got := dst[title]
		assert.Equal(t, want.FromYear, got.FromYear, title)
		assert.Equal(t, want.ToYear, got.ToYear, title)
		assert.Equal(t, want.Depth, got.Depth, title)
		assert.NotEqual(t, want.ID, got.ID, title)
	}
}
