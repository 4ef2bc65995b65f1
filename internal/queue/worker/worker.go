package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/casahub/casahub/internal/domain/job"
	"github.com/casahub/casahub/internal/jobs"
	"github.com/casahub/casahub/internal/notifications"
	"github.com/casahub/casahub/internal/observability"
)

type JobsRepository interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
}

type SessionsCleaner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

type Config struct {
	WorkerID        string
	PollInterval    time.Duration
	CleanupInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerID == "" {
		host, _ := os.Hostname()
		c.WorkerID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}

	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 5 * time.Minute
	}

	return c
}

// Worker drains the outbox: claim a job, run it, record the outcome. It also
// keeps the session ledger tidy by scheduling periodic cleanup jobs.
type Worker struct {
	cfg      Config
	repo     JobsRepository
	cleaner  SessionsCleaner
	notifier notifications.Notifier
	prom     *observability.Prom
	log      *slog.Logger

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, cleaner SessionsCleaner, notifier notifications.Notifier, prom *observability.Prom, log *slog.Logger) *Worker {
	return &Worker{
		cfg:      cfg.withDefaults(),
		repo:     repo,
		cleaner:  cleaner,
		notifier: notifier,
		prom:     prom,
		log:      log,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()

	cleanup := time.NewTicker(w.cfg.CleanupInterval)
	defer cleanup.Stop()

	// one cleanup straight away so a restart doesn't postpone it a full interval
	w.enqueueCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker shutting down", "worker_id", w.cfg.WorkerID)
			return nil

		case <-cleanup.C:
			w.enqueueCleanup(ctx)

		case <-poll.C:
			w.drain(ctx)
		}
	}
}

// drain keeps claiming until the queue is momentarily empty, so a burst
// doesn't crawl along at one job per tick.
func (w *Worker) drain(ctx context.Context) {
	for {
		processed, err := w.ProcessOne(ctx)

		if err != nil {
			w.log.Error("process job", "error", err, "worker_id", w.cfg.WorkerID)
			return
		}

		if !processed {
			return
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// enqueueCleanup relies on the idempotency key: when several workers share
// the queue only one cleanup job per time bucket actually lands.
func (w *Worker) enqueueCleanup(ctx context.Context) {
	bucket := time.Now().UTC().Truncate(w.cfg.CleanupInterval).Format(time.RFC3339)
	key := jobs.TypeSessionsCleanup + ":" + bucket

	req := jobs.NewSessionsCleanup()
	req.IdempotencyKey = &key

	_, err := w.repo.Create(ctx, req)

	if err != nil {
		w.log.Error("enqueue sessions cleanup", "error", err)
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}
