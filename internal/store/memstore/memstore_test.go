package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"chronozoom/internal/store"
	"chronozoom/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestCommitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, New().Commit(ctx, store.NewBatch()), context.Canceled)
}
