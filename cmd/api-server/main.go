package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	gosync "sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"chronozoom/internal/app"
	"chronozoom/internal/auth"
	"chronozoom/internal/cache"
	"chronozoom/internal/metrics"
	synchub "chronozoom/internal/sync"
	"chronozoom/internal/thumbnail"
	"chronozoom/internal/timeline"
	"chronozoom/pkg/logger"
	"chronozoom/pkg/utils"
)

func main() {
	boot := logger.Bootstrap(os.Stderr, "api-server")
	cfg, err := utils.LoadConfig()
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	log, logCloser, err := logger.New(logger.Config{Level: cfg.Log.Level, Path: cfg.Log.Path, Service: "api-server"})
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	c := cache.New(cfg.CacheTTL)
	metrics.RegisterCache(reg, c)

	hub := synchub.NewHub(log)
	feedSrv := synchub.NewServer(cfg.Server.SyncAddr, hub, log)
	thumbs := thumbnail.NewDispatcher(cfg.Server.ThumbnailAddr, cfg.ThumbnailDir, thumbnail.NewRegistry(), m, log)

	query := timeline.NewQueryEngine(st, c, cfg.MaxElements, m, log)
	mutate := timeline.NewMutationEngine(st, c, log,
		timeline.WithBroadcaster(hub),
		timeline.WithThumbnailer(thumbs),
		timeline.WithMetrics(m),
	)
	if cfg.SeedSandbox {
		if err := mutate.EnsureSandbox(ctx); err != nil {
			log.Fatal().Err(err).Msg("seed sandbox")
		}
	}

	tokens := auth.TokenService{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Duration: cfg.Auth.JWTDuration,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), app.RequestLogger(log))
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	app.RegisterOps(router, st, hub, reg)
	router.GET("/ws", synchub.WSHandler(hub))

	api := router.Group("/api")
	api.Use(auth.IdentityMiddleware(tokens, st, log))
	timeline.NewHandler(query, mutate, log).RegisterRoutes(api)

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 3)
	var wg gosync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Run(ctx, time.Minute)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feedSrv.Run(); err != nil {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := thumbs.Run(); err != nil {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("HTTP API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := feedSrv.Close(); err != nil {
		log.Error().Err(err).Msg("feed shutdown")
	}
	if err := thumbs.Close(); err != nil {
		log.Error().Err(err).Msg("thumbnail shutdown")
	}

	wg.Wait()
	log.Info().Msg("servers stopped")
}
