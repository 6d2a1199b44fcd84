package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"chronozoom/internal/app"
	"chronozoom/internal/cache"
	"chronozoom/internal/csvio"
	"chronozoom/internal/timeline"
	"chronozoom/pkg/logger"
	"chronozoom/pkg/models"
	"chronozoom/pkg/utils"
)

func main() {
	var (
		in         = flag.String("in", "data/timelines.csv", "input CSV path")
		super      = flag.String("super", timeline.SandboxTitle, "super collection title")
		collection = flag.String("collection", timeline.SandboxTitle, "collection title")
		nameID     = flag.String("nameid", "", "name identifier of the importing user (empty: anonymous)")
		idp        = flag.String("idp", "dev", "identity provider of the importing user")
		keepGoing  = flag.Bool("keep-going", false, "skip rejected rows instead of stopping")
	)
	flag.Parse()

	boot := logger.Bootstrap(os.Stderr, "import-csv")
	cfg, err := utils.LoadConfig()
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	log, logCloser, err := logger.New(logger.Config{Level: cfg.Log.Level, Path: cfg.Log.Path, Service: "import-csv"})
	if err != nil {
		boot.Fatal().Err(err).Msg("init logger")
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, storeCloser, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer storeCloser.Close()

	mutate := timeline.NewMutationEngine(st, cache.New(cfg.CacheTTL), log)
	if cfg.SeedSandbox {
		if err := mutate.EnsureSandbox(ctx); err != nil {
			log.Fatal().Err(err).Msg("seed sandbox")
		}
	}

	var acting *models.User
	if *nameID != "" {
		acting = &models.User{NameIdentifier: *nameID, IdentityProvider: *idp}
	}

	f, err := os.Open(*in)
	if err != nil {
		log.Fatal().Err(err).Msg("open input")
	}
	defer f.Close()

	ref := timeline.CollectionRef{SuperCollection: *super, Collection: *collection}
	imp := &csvio.Importer{Mutate: mutate, Store: st, Log: log, KeepGoing: *keepGoing}
	res, err := imp.Import(ctx, acting, ref, f)
	if err != nil {
		log.Fatal().Err(err).Int("created", res.Created).Msg("import failed")
	}
	log.Info().
		Str("collection", ref.String()).
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Msg("import done")
}
