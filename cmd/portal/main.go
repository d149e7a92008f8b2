package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/portalkit/auth-portal/internal/api"
	"github.com/portalkit/auth-portal/internal/config"
	"github.com/portalkit/auth-portal/internal/sessions"
	"github.com/portalkit/auth-portal/internal/upstream"
	"github.com/portalkit/auth-portal/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "auth-portal",
	})
	log := logger.Get()

	factory := func() (sessions.Client, error) {
		return upstream.New(upstream.Options{
			BaseURL: cfg.Backend.BaseURL,
			Timeout: cfg.Backend.Timeout,
			Log:     log,
		})
	}

	var (
		rdb   *redis.Client
		store sessions.SnapshotStore
	)
	if cfg.Session.Store == "redis" {
		rdb, err = sessions.ConnectRedis(ctx, sessions.RedisConfig{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer rdb.Close()
		store = sessions.NewRedisStore(rdb, cfg.Session.TTL)
	}

	registry := sessions.NewRegistry(factory, sessions.Options{
		TTL:       cfg.Session.TTL,
		Snapshots: store,
		Log:       log,
	})
	registry.Start(ctx)

	e := api.NewRouter(api.Dependencies{
		Registry:     registry,
		Redis:        rdb,
		Log:          log,
		CookieSecure: cfg.Session.CookieSecure,
	})

	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("backend", cfg.Backend.BaseURL).Msg("portal listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
