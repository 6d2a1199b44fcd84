package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"chronozoom/internal/app"
	"chronozoom/internal/csvio"
	"chronozoom/internal/timeline"
	"chronozoom/pkg/logger"
	"chronozoom/pkg/utils"
)

func main() {
	var (
		out        = flag.String("out", "data/timelines.csv", "output CSV path")
		super      = flag.String("super", timeline.SandboxTitle, "super collection title")
		collection = flag.String("collection", timeline.SandboxTitle, "collection title")
	)
	flag.Parse()

	boot := logger.Bootstrap(os.Stderr, "export-csv")
	cfg, err := utils.LoadConfig()
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	log, logCloser, err := logger.New(logger.Config{Level: cfg.Log.Level, Path: cfg.Log.Path, Service: "export-csv"})
	if err != nil {
		boot.Fatal().Err(err).Msg("init logger")
	}
	defer logCloser.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, storeCloser, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer storeCloser.Close()

	ref := timeline.CollectionRef{SuperCollection: *super, Collection: *collection}
	coll, err := st.Collection(ctx, ref.ID())
	if err != nil {
		log.Fatal().Err(err).Msg("get collection")
	}
	if coll == nil {
		log.Fatal().Str("collection", ref.String()).Msg("collection not found")
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		log.Fatal().Err(err).Msg("create output dir")
	}
	f, err := os.Create(*out)
	if err != nil {
		log.Fatal().Err(err).Msg("create output")
	}
	n, err := csvio.Export(ctx, st, coll.ID, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Fatal().Err(err).Msg("export failed")
	}
	log.Info().Str("collection", ref.String()).Int("timelines", n).Str("out", *out).Msg("export done")
}
