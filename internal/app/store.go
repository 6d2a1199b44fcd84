// Package app holds the startup wiring shared by the binaries.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"chronozoom/internal/store"
	"chronozoom/internal/store/memstore"
	"chronozoom/internal/store/sqlite"
	"chronozoom/pkg/database"
	"chronozoom/pkg/utils"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenStore opens the configured backend. The sqlite database is migrated
// before it is returned.
func OpenStore(ctx context.Context, cfg utils.Config, log zerolog.Logger) (store.Store, io.Closer, error) {
	switch cfg.Store {
	case "memory":
		log.Warn().Msg("using the in-memory store: nothing survives a restart")
		return memstore.New(), nopCloser{}, nil
	case "sqlite", "":
		db, err := database.Open(database.Config{Path: cfg.DBPath})
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Str("path", cfg.DBPath).Msg("sqlite store ready")
		return sqlite.NewRepo(db), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
