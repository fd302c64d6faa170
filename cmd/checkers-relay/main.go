package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appcfg "github.com/park285/Cheese-Checkers/internal/config"
	"github.com/park285/Cheese-Checkers/internal/matchstore"
	"github.com/park285/Cheese-Checkers/internal/msgcat"
	"github.com/park285/Cheese-Checkers/internal/obslog"
	"github.com/park285/Cheese-Checkers/internal/relay"
	"github.com/park285/Cheese-Checkers/internal/statusapi"
)

func main() {
	cfg, err := appcfg.LoadRelay()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(obslog.Defaults{File: "logs/checkers-relay.log", Console: true}); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("match_store_init_failed", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	var archive relay.Archiver
	if cfg.DatabaseURL != "" {
		repo, err := matchstore.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive_init_failed", zap.Error(err))
		}
		defer func() { _ = repo.Close() }()
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = repo.EnsureSchema(sctx)
		cancel()
		if err != nil {
			logger.Fatal("archive_schema_failed", zap.Error(err))
		}
		archive = repo
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.New(cfg, store, archive).Serve(gctx) })
	if cfg.StatusAddr != "" {
		cat, err := msgcat.New(msgcat.DefaultLang, cfg.MessagesDir)
		if err != nil {
			logger.Fatal("message_catalog_failed", zap.Error(err))
		}
		g.Go(func() error { return statusapi.NewServer(store, cat).ListenAndServe(gctx, cfg.StatusAddr) })
	}

	logger.Info("relay_started",
		zap.String("addr", cfg.Addr),
		zap.String("ws_addr", cfg.WSAddr),
		zap.String("status_addr", cfg.StatusAddr),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.Bool("archive", archive != nil))

	if err := g.Wait(); err != nil {
		logger.Error("relay_stopped", zap.Error(err))
		obslog.Sync()
		os.Exit(1)
	}
	logger.Info("relay_stopped")
}

func openStore(ctx context.Context, cfg *appcfg.RelayConfig) (matchstore.Store, error) {
	if cfg.RedisURL == "" {
		return matchstore.NewMemoryStore(), nil
	}
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return matchstore.OpenRedis(sctx, cfg.RedisURL)
}
