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

	"github.com/casahub/casahub/internal/auth"
	"github.com/casahub/casahub/internal/config"
	"github.com/casahub/casahub/internal/db"
	casahubhttp "github.com/casahub/casahub/internal/http"
	"github.com/casahub/casahub/internal/observability"
	"github.com/casahub/casahub/internal/redisclient"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracer(ctx, "casahub-api", cfg.OTLPEndpoint)

		if err != nil {
			log.Error("init tracer", "error", err)
			os.Exit(1)
		}

		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("connect postgres", "error", err)
		os.Exit(1)
	}

	defer pool.Close()

	rds := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	defer func() { _ = rds.Close() }()

	if err := rds.Ping(ctx); err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}

	jwtManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	if err != nil {
		log.Error("jwt manager", "error", err)
		os.Exit(1)
	}

	if err := db.SeedOwner(ctx, log, pool, cfg); err != nil {
		log.Error("seed owner", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	prom := observability.NewProm(registry)

	router := casahubhttp.NewRouter(cfg, log, pool, rds, jwtManager, prom, registry)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("api listening", "port", cfg.Port, "env", cfg.Env)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		log.Error("graceful shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("api stopped")
}
