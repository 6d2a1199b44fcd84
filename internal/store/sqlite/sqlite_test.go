package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronozoom/internal/store"
	"chronozoom/internal/store/storetest"
	"chronozoom/pkg/database"
	"chronozoom/pkg/models"
)

func openRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return NewRepo(db)
}

func TestRepo(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openRepo(t) })
}

func TestCommitRollsBack(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()

	sc := models.SuperCollection{ID: uuid.New(), Title: "Sandbox"}
	coll := models.Collection{ID: uuid.New(), SuperCollectionID: sc.ID, Title: "Sandbox"}
	orphan := models.Timeline{ID: uuid.New(), CollectionID: uuid.New(), Title: "Orphan", FromYear: 0, ToYear: 1}

	b := store.NewBatch()
	b.PutSuperCollection(sc)
	b.PutCollection(coll)
	b.PutTimeline(orphan)
	err := r.Commit(ctx, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply op 2")

	got, err := r.Collection(ctx, coll.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "earlier ops of a failed batch are rolled back")
	gotSC, err := r.SuperCollection(ctx, sc.ID)
	require.NoError(t, err)
	assert.Nil(t, gotSC)
}

func TestMigrateTwice(t *testing.T) {
	r := openRepo(t)
	require.NoError(t, database.Migrate(context.Background(), r.DB))
	require.NoError(t, r.Ping(context.Background()))
}
