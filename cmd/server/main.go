package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/messenger-server-go/internal/config"
	"github.com/openclaw/messenger-server-go/internal/database"
	"github.com/openclaw/messenger-server-go/internal/directory"
	"github.com/openclaw/messenger-server-go/internal/handler"
	"github.com/openclaw/messenger-server-go/internal/jobs"
	"github.com/openclaw/messenger-server-go/internal/middleware"
	"github.com/openclaw/messenger-server-go/internal/offline"
	"github.com/openclaw/messenger-server-go/internal/redis"
	"github.com/openclaw/messenger-server-go/internal/repository"
	"github.com/openclaw/messenger-server-go/internal/router"
	"github.com/openclaw/messenger-server-go/internal/server"
	"github.com/openclaw/messenger-server-go/internal/service"
	"github.com/openclaw/messenger-server-go/internal/sse"
	"github.com/openclaw/messenger-server-go/internal/transport"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	redisClient, err := redis.NewClient(context.Background(), cfg.RedisURL, config.PingTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	var archive repository.MessageArchive
	if cfg.ArchiveDSN != "" {
		db, err := database.Connect(cfg.ArchiveDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to archive database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping archive database")
		}
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate archive database")
		}
		cancel()

		archive = repository.NewMessageArchiveRepository(db.DB)
		log.Info().Str("driver", db.DriverName()).Msg("archive database connected")
	}

	wire := transport.NewRedis(redisClient, transport.RedisOptions{
		CommandKey: cfg.CommandKey(),
		EventKey:   cfg.EventKey(),
		FanoutKey:  cfg.FanoutKey(),
		ReplyTTL:   cfg.ReplyTTL(),
	})

	dir := directory.New()
	store := offline.NewStore(
		offline.WithCapacity(cfg.StoreCapacity),
		offline.WithFile(cfg.StoreFile),
	)
	if err := store.Load(); err != nil {
		log.Fatal().Err(err).Str("path", cfg.StoreFile).Msg("failed to load offline store")
	}

	msgRouter := router.New(dir, store, wire, router.WithArchive(archive))

	maintenanceOpts := []jobs.Option{}
	if archive != nil {
		maintenanceOpts = append(maintenanceOpts, jobs.WithArchive(archive))
	}
	maintenance := jobs.NewMaintenanceJob(dir, store, msgRouter, jobs.MaintenanceConfig{
		Interval:          cfg.MaintenanceInterval(),
		InactivityTimeout: cfg.InactivityTimeout(),
		Retention:         cfg.Retention(),
		ArchiveRetention:  cfg.ArchiveRetention(),
		SnapshotInterval:  cfg.SnapshotInterval(),
	}, maintenanceOpts...)

	loop := server.New(server.Config{PollTimeout: cfg.PollTimeout()}, wire, msgRouter, maintenance, store)

	broker := sse.NewBroker(wire)
	defer broker.Close()

	adminService := service.NewAdminService(dir, store, msgRouter, archive)
	adminHandler := handler.NewAdminHandler(adminService)
	eventsHandler := handler.NewEventsHandler(broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
			"online":    dir.OnlineCount(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// SSE streams stay open, so the timeout only wraps the JSON routes.
		r.Get("/events", eventsHandler.ServeHTTP)
		r.With(chimiddleware.Timeout(config.ServerRequestTimeout)).Mount("/", adminHandler.Routes())
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting admin server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("admin server error")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(ctx)
	}()
	log.Info().
		Str("commands", cfg.CommandKey()).
		Str("events", cfg.EventKey()).
		Str("fanout", cfg.FanoutKey()).
		Msg("messaging server running")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server")
	case err := <-loopDone:
		if err != nil {
			log.Error().Err(err).Msg("server loop exited")
		}
	}

	loop.Stop()
	stop()
	select {
	case <-loopDone:
	case <-time.After(cfg.PollTimeout() + time.Second):
		log.Warn().Msg("server loop did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("admin server forced to shutdown")
	}

	loop.Shutdown()

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
