package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"chronozoom/internal/app"
	"chronozoom/internal/cache"
	"chronozoom/internal/grpcserver"
	"chronozoom/internal/timeline"
	"chronozoom/pkg/logger"
	"chronozoom/pkg/utils"
)

func main() {
	boot := logger.Bootstrap(os.Stderr, "grpc-server")
	cfg, err := utils.LoadConfig()
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	log, logCloser, err := logger.New(logger.Config{Level: cfg.Log.Level, Path: cfg.Log.Path, Service: "grpc-server"})
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

	c := cache.New(cfg.CacheTTL)
	go c.Run(ctx, time.Minute)
	query := timeline.NewQueryEngine(st, c, cfg.MaxElements, nil, log)

	listener, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Server.GRPCAddr).Msg("grpc listen")
	}

	health := grpcserver.NewHealth(st, log)
	go health.Watch(ctx, 10*time.Second)

	g := grpc.NewServer()
	grpcserver.Register(g, grpcserver.NewServer(query))
	healthpb.RegisterHealthServer(g, health.Server)
	reflection.Register(g)

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down grpc server")
		g.GracefulStop()
	}()

	log.Info().Str("addr", cfg.Server.GRPCAddr).Msg("gRPC server listening")
	if err := g.Serve(listener); err != nil {
		log.Error().Err(err).Msg("grpc server stopped")
	}
}
