package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/casahub/casahub/internal/domain/job"
	"github.com/casahub/casahub/internal/jobs"
)

type fakeJobsRepo struct {
	queue []job.Job

	done        []string
	failed      []string
	rescheduled []string
	created     []job.CreateRequest
}

func (f *fakeJobsRepo) Create(_ context.Context, req job.CreateRequest) (job.Job, error) {
	f.created = append(f.created, req)
	return job.New(req), nil
}

func (f *fakeJobsRepo) ClaimNext(context.Context, string) (job.Job, error) {
	if len(f.queue) == 0 {
		return job.Job{}, job.ErrJobNotFound
	}

	j := f.queue[0]
	f.queue = f.queue[1:]

	return j, nil
}

func (f *fakeJobsRepo) MarkDone(_ context.Context, id string) error {
	f.done = append(f.done, id)
	return nil
}

func (f *fakeJobsRepo) MarkFailed(_ context.Context, id string, _ string) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeJobsRepo) Reschedule(_ context.Context, id string, _ time.Time, _ string) error {
	f.rescheduled = append(f.rescheduled, id)
	return nil
}

type fakeNotifier struct {
	confirmations []string
	resets        []string
	err           error
}

func (f *fakeNotifier) SendConfirmationEmail(_ context.Context, to, _, _ string) error {
	if f.err != nil {
		return f.err
	}

	f.confirmations = append(f.confirmations, to)
	return nil
}

func (f *fakeNotifier) SendPasswordResetEmail(_ context.Context, to, _, _ string) error {
	if f.err != nil {
		return f.err
	}

	f.resets = append(f.resets, to)
	return nil
}

type fakeCleaner struct {
	removed int64
	calls   int
}

func (f *fakeCleaner) DeleteExpired(context.Context) (int64, error) {
	f.calls++
	return f.removed, nil
}

func newTestWorker(repo *fakeJobsRepo, notifier *fakeNotifier, cleaner *fakeCleaner) *Worker {
	return New(Config{WorkerID: "test-worker"}, repo, cleaner, notifier, nil, slog.New(slog.DiscardHandler))
}

func confirmationJob(t *testing.T, attempts, maxAttempts int) job.Job {
	t.Helper()

	req, err := jobs.NewConfirmationEmail(jobs.ConfirmationEmailPayload{
		UserID: "u1",
		Email:  "ada@example.com",
		Name:   "Ada",
		Role:   "owner",
		Link:   "http://localhost:8080/api/v1/auth/confirm?token=x",
	})

	if err != nil {
		t.Fatalf("NewConfirmationEmail: %v", err)
	}

	j := job.New(req)
	j.Attempts = attempts

	if maxAttempts > 0 {
		j.MaxAttempts = maxAttempts
	}

	return j
}

func TestProcessOneEmptyQueue(t *testing.T) {
	repo := &fakeJobsRepo{}

	processed, err := newTestWorker(repo, &fakeNotifier{}, &fakeCleaner{}).ProcessOne(context.Background())

	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	if processed {
		t.Fatal("nothing to process, got processed=true")
	}
}

func TestProcessOneSendsConfirmation(t *testing.T) {
	repo := &fakeJobsRepo{queue: []job.Job{confirmationJob(t, 0, 0)}}
	notifier := &fakeNotifier{}

	processed, err := newTestWorker(repo, notifier, &fakeCleaner{}).ProcessOne(context.Background())

	if err != nil || !processed {
		t.Fatalf("ProcessOne = (%v, %v)", processed, err)
	}

	if len(notifier.confirmations) != 1 || notifier.confirmations[0] != "ada@example.com" {
		t.Fatalf("confirmations = %v", notifier.confirmations)
	}

	if len(repo.done) != 1 {
		t.Fatalf("done = %v, want one job", repo.done)
	}
}

func TestProcessOneReschedulesOnTransientFailure(t *testing.T) {
	j := confirmationJob(t, 0, 10)
	repo := &fakeJobsRepo{queue: []job.Job{j}}
	notifier := &fakeNotifier{err: errors.New("smtp down")}

	processed, err := newTestWorker(repo, notifier, &fakeCleaner{}).ProcessOne(context.Background())

	if err != nil || !processed {
		t.Fatalf("ProcessOne = (%v, %v)", processed, err)
	}

	if len(repo.rescheduled) != 1 || repo.rescheduled[0] != j.ID {
		t.Fatalf("rescheduled = %v", repo.rescheduled)
	}

	if len(repo.failed) != 0 {
		t.Fatalf("failed = %v, want none", repo.failed)
	}
}

func TestProcessOneGivesUpWhenExhausted(t *testing.T) {
	j := confirmationJob(t, 9, 10) // this attempt is the last one
	repo := &fakeJobsRepo{queue: []job.Job{j}}
	notifier := &fakeNotifier{err: errors.New("smtp down")}

	processed, err := newTestWorker(repo, notifier, &fakeCleaner{}).ProcessOne(context.Background())

	if err != nil || !processed {
		t.Fatalf("ProcessOne = (%v, %v)", processed, err)
	}

	if len(repo.failed) != 1 || repo.failed[0] != j.ID {
		t.Fatalf("failed = %v", repo.failed)
	}

	if len(repo.rescheduled) != 0 {
		t.Fatalf("rescheduled = %v, want none", repo.rescheduled)
	}
}

func TestProcessOneBadPayloadIsPermanent(t *testing.T) {
	j := job.New(job.CreateRequest{
		Type:    jobs.TypeConfirmationEmail,
		Payload: json.RawMessage(`{broken`),
	})

	repo := &fakeJobsRepo{queue: []job.Job{j}}

	processed, err := newTestWorker(repo, &fakeNotifier{}, &fakeCleaner{}).ProcessOne(context.Background())

	if err != nil || !processed {
		t.Fatalf("ProcessOne = (%v, %v)", processed, err)
	}

	// no retry can fix a broken payload
	if len(repo.failed) != 1 {
		t.Fatalf("failed = %v, want the job", repo.failed)
	}

	if len(repo.rescheduled) != 0 {
		t.Fatalf("rescheduled = %v, want none", repo.rescheduled)
	}
}

func TestProcessOneUnknownTypeIsPermanent(t *testing.T) {
	j := job.New(job.CreateRequest{Type: "nope", Payload: json.RawMessage(`{}`)})

	repo := &fakeJobsRepo{queue: []job.Job{j}}

	processed, err := newTestWorker(repo, &fakeNotifier{}, &fakeCleaner{}).ProcessOne(context.Background())

	if err != nil || !processed {
		t.Fatalf("ProcessOne = (%v, %v)", processed, err)
	}

	if len(repo.failed) != 1 {
		t.Fatalf("failed = %v, want the job", repo.failed)
	}
}

func TestProcessOneRunsSessionsCleanup(t *testing.T) {
	j := job.New(jobs.NewSessionsCleanup())

	repo := &fakeJobsRepo{queue: []job.Job{j}}
	cleaner := &fakeCleaner{removed: 3}

	processed, err := newTestWorker(repo, &fakeNotifier{}, cleaner).ProcessOne(context.Background())

	if err != nil || !processed {
		t.Fatalf("ProcessOne = (%v, %v)", processed, err)
	}

	if cleaner.calls != 1 {
		t.Fatalf("cleaner calls = %d, want 1", cleaner.calls)
	}

	if len(repo.done) != 1 {
		t.Fatalf("done = %v, want the job", repo.done)
	}
}
