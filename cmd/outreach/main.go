package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/leadwire/outreach/internal/api"
	"github.com/leadwire/outreach/internal/cache"
	"github.com/leadwire/outreach/internal/config"
	"github.com/leadwire/outreach/internal/dispatch"
	"github.com/leadwire/outreach/internal/drip"
	"github.com/leadwire/outreach/internal/importer"
	"github.com/leadwire/outreach/internal/schedule"
	"github.com/leadwire/outreach/internal/store"
	"github.com/leadwire/outreach/internal/tracker"
	"github.com/leadwire/outreach/internal/transport"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("loading config failed", "err", err)
		os.Exit(1)
	}

	slog.Info("outreach starting",
		"addr", cfg.Server.Address,
		"db", cfg.Database.SQLitePath,
		"interval", cfg.Dispatch.Interval.String(),
		"redis", cfg.Redis.Enabled,
	)

	db, err := store.Open(cfg.Database.SQLitePath)
	if err != nil {
		slog.Error("opening store failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	messages := store.NewMessageRepo(db)
	contacts := store.NewContactRepo(db)
	templates := store.NewTemplateRepo(db)
	settings := store.NewSettingsRepo(db)

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisCache = cache.NewRedisCache(rdb, cfg.Redis.TTL)
	}
	// Interface values must stay nil when redis is off, hence the
	// explicit split.
	var correlations cache.CorrelationCache
	var guard cache.TriggerGuard
	if redisCache != nil {
		correlations = redisCache
		guard = redisCache
	}

	registry := transport.NewRegistry()
	gateway := transport.NewGatewayClient(cfg.Gateway.URL)

	dispatcher := dispatch.NewDispatcher(messages, settings, registry, correlations, cfg.Dispatch.SendTimeout)

	ctx := context.Background()
	if err := dispatcher.RecoverInterrupted(ctx); err != nil {
		slog.Error("startup recovery failed", "err", err)
		os.Exit(1)
	}

	loop, err := dispatch.NewTicker(cfg.Dispatch.Interval, dispatcher.Tick)
	if err != nil {
		slog.Error("creating dispatch loop failed", "err", err)
		os.Exit(1)
	}
	loop.Start()
	defer loop.Stop()

	scheduler := schedule.NewService(messages, contacts, templates)
	dripEngine := drip.NewEngine(messages, settings, contacts, guard)
	deliveryTracker := tracker.New(messages, correlations)
	contactImporter := importer.New(cfg.Import.BatchSize)

	handler := api.NewHandler(
		loop, scheduler, dripEngine, deliveryTracker, contactImporter,
		contacts, templates, settings, registry, gateway,
	)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: api.Router(handler),
	}

	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "err", err)
	}
}
