package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casahub/casahub/internal/config"
	"github.com/casahub/casahub/internal/db"
	"github.com/casahub/casahub/internal/notifications"
	"github.com/casahub/casahub/internal/observability"
	"github.com/casahub/casahub/internal/queue/worker"
	"github.com/casahub/casahub/internal/repo/postgres"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthAddr = ":8090"

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("connect postgres", "error", err)
		os.Exit(1)
	}

	defer pool.Close()

	registry := prometheus.NewRegistry()
	prom := observability.NewProm(registry)

	jobsRepo := postgres.NewJobsRepo(pool, prom)
	sessionsRepo := postgres.NewSessionsRepo(pool, prom)

	var notifier notifications.Notifier

	if cfg.MailgunDomain != "" && cfg.MailgunAPIKey != "" {
		notifier = notifications.NewMailgunNotifier(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender)
		log.Info("using mailgun notifier", "domain", cfg.MailgunDomain)
	} else {
		notifier = notifications.NewLogNotifier(log)
		log.Info("no mail provider configured, emails go to the log")
	}

	w := worker.New(worker.Config{}, jobsRepo, sessionsRepo, notifier, prom, log)

	// health + metrics on a side port
	mux := http.NewServeMux()
	mux.Handle("/", w.HealthHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	healthSrv := &http.Server{
		Addr:              healthAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("worker health endpoint", "addr", healthAddr)

		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health server", "error", err)
		}
	}()

	log.Info("worker started", "env", cfg.Env)

	if err := w.Run(ctx); err != nil {
		log.Error("worker run", "error", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = healthSrv.Shutdown(sctx)

	log.Info("worker stopped")
}
