package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronozoom/internal/store/memstore"
	"chronozoom/internal/store/sqlite"
	"chronozoom/pkg/utils"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	cfg := utils.DefaultConfig()
	cfg.Store = "memory"
	s, closer, err := OpenStore(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &memstore.Store{}, s)
	require.NoError(t, closer.Close())

	cfg.Store = "sqlite"
	cfg.DBPath = filepath.Join(t.TempDir(), "nested", "data.db")
	s, closer, err = OpenStore(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Repo{}, s)
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, closer.Close())

	cfg.Store = "postgres"
	_, _, err = OpenStore(ctx, cfg, zerolog.Nop())
	assert.Error(t, err)
}
