package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/prometheus/client_golang/prometheus"

	"wardrobe-backend/config"
	"wardrobe-backend/internal/api"
	"wardrobe-backend/internal/db"
	"wardrobe-backend/internal/logger"
	"wardrobe-backend/internal/metrics"
	"wardrobe-backend/internal/notification"
	"wardrobe-backend/internal/rfid"
	"wardrobe-backend/internal/scancache"
	"wardrobe-backend/internal/store"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: "wardrobed",
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
	})

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zl := log.Zerolog(ctx)
	zl.Info().Str("path", configPath).Msg("configuration loaded")

	gormDB, err := db.Init(&cfg.Database, zl)
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to initialize database")
	}
	appStore := store.NewGormStore(gormDB)

	var (
		cache  scancache.Cache
		pinger api.Pinger
	)
	switch strings.ToLower(cfg.Cache.Backend) {
	case "redis":
		rc, err := scancache.NewRedis(ctx, cfg.Cache)
		if err != nil {
			zl.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rc.Close()
		cache, pinger = rc, rc
	default:
		cache = scancache.NewMemory()
	}
	zl.Info().Str("backend", cfg.Cache.Backend).Msg("scan cache ready")

	opts := []rfid.Option{rfid.WithMetrics(metrics.NewRFIDMetrics(prometheus.DefaultRegisterer))}

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore, webpushOptions, log,
			metrics.NewPushMetrics(prometheus.DefaultRegisterer))
		pool.Start(ctx)
		opts = append(opts, rfid.WithNotifier(pool))
	} else {
		zl.Warn().Msg("push notifications disabled")
	}

	svc := rfid.NewService(appStore, cache, log, cfg.RFID, opts...)
	go rfid.NewOfflineSweeper(appStore, log, cfg.RFID).Run(ctx)

	router := api.NewRouter(api.Deps{
		Config:   cfg,
		Store:    appStore,
		RFID:     svc,
		Webpush:  webpushOptions,
		Logger:   log,
		Gatherer: prometheus.DefaultGatherer,
		Cache:    pinger,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal().Err(err).Msg("HTTP server ListenAndServe")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	zl.Info().Msg("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error().Err(err).Msg("HTTP server Shutdown")
		return
	}
	zl.Info().Msg("server gracefully stopped")
}
