package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zhejian/url-shortener/shortlink/internal/config"
	"github.com/zhejian/url-shortener/shortlink/internal/events"
	"github.com/zhejian/url-shortener/shortlink/internal/infra"
	"github.com/zhejian/url-shortener/shortlink/internal/observability"
	"github.com/zhejian/url-shortener/shortlink/internal/server"
	"github.com/zhejian/url-shortener/shortlink/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	obs, err := observability.Setup(ctx, observability.Config{
		ServiceName:  cfg.Observability.ServiceName,
		Environment:  cfg.App.Environment,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
	})
	if err != nil {
		log.Fatalf("Failed to setup observability: %v", err)
	}
	logger := obs.Logger

	fatal := func(msg string, err error) {
		logger.Error(msg, slog.String("error", err.Error()))
		os.Exit(1)
	}

	connString := cfg.Database.ConnectionString()
	if err := infra.Migrate(connString); err != nil {
		fatal("failed to apply migrations", err)
	}

	db, err := infra.NewPostgresPool(ctx, connString)
	if err != nil {
		fatal("failed to connect to database", err)
	}
	defer db.Close()
	logger.Info("database connected")

	deps := server.Deps{DB: db, Obs: obs}

	if cfg.Cache.Enabled() {
		cache, err := infra.NewCacheClient(ctx, cfg.Cache.ConnectionString())
		if err != nil {
			fatal("failed to connect to cache", err)
		}
		defer cache.Close()
		deps.Cache = cache
		logger.Info("cache connected", slog.Duration("ttl", cfg.Cache.TTL))
	}

	var relay *telemetry.Client
	if cfg.Telemetry.URL != "" {
		tcfg := telemetry.Config{
			URL:     cfg.Telemetry.URL,
			Stack:   cfg.Telemetry.Stack,
			Timeout: cfg.Telemetry.Timeout,
		}
		if cfg.Telemetry.AuthEnabled() {
			tcfg.Tokens = telemetry.NewTokenCache(cfg.Telemetry.AuthURL, telemetry.Credentials{
				Email:        cfg.Telemetry.Email,
				Name:         cfg.Telemetry.Name,
				RollNo:       cfg.Telemetry.RollNo,
				AccessCode:   cfg.Telemetry.AccessCode,
				ClientID:     cfg.Telemetry.ClientID,
				ClientSecret: cfg.Telemetry.ClientSecret,
			}, cfg.Telemetry.Timeout)
		}
		relay = telemetry.NewClient(tcfg, logger)
		deps.Recorder = relay
		logger.Info("log relay enabled", slog.String("url", cfg.Telemetry.URL))
	}

	if cfg.Broker.URL != "" {
		conn, err := infra.NewBrokerConnection(cfg.Broker.URL)
		if err != nil {
			fatal("failed to connect to broker", err)
		}
		defer conn.Close()

		publisher, err := events.NewPublisher(conn, cfg.Broker.Exchange)
		if err != nil {
			fatal("failed to create click publisher", err)
		}
		defer publisher.Close()
		deps.Publisher = publisher
		logger.Info("click events enabled", slog.String("exchange", cfg.Broker.Exchange))
	}

	srv := server.NewServer(cfg, deps)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Server.Port),
			slog.String("base_url", cfg.App.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server failed to start", err)
		}
	}()

	// Wait for interrupt signal (Ctrl+C or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.String("error", err.Error()))
	}
	if relay != nil {
		if err := relay.Close(shutdownCtx); err != nil {
			logger.Warn("log relay did not drain", slog.String("error", err.Error()))
		}
	}
	obs.Shutdown(shutdownCtx)

	logger.Info("server exited gracefully")
}
