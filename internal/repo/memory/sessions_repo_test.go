package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/casahub/casahub/internal/domain/session"
	"github.com/casahub/casahub/internal/repo/memory"
	"github.com/google/uuid"
)

func newSession(userID, role, hash string, ttl time.Duration) session.Session {
	now := time.Now().UTC()

	return session.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		TokenHash: hash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

func TestReplaceSupersedesPriorSession(t *testing.T) {
	repo := memory.NewSessionsRepo()
	ctx := context.Background()

	first := newSession("u1", "owner", "hash-1", time.Hour)
	second := newSession("u1", "owner", "hash-2", time.Hour)

	if err := repo.Replace(ctx, first); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if err := repo.Replace(ctx, second); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	// old token must be gone
	_, err := repo.FindByTokenHash(ctx, "hash-1")

	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("old hash lookup = %v, want ErrSessionNotFound", err)
	}

	s, err := repo.FindByTokenHash(ctx, "hash-2")

	if err != nil {
		t.Fatalf("new hash lookup: %v", err)
	}

	if s.ID != second.ID {
		t.Fatalf("lookup returned %q, want %q", s.ID, second.ID)
	}

	if repo.Count() != 1 {
		t.Fatalf("ledger rows = %d, want 1", repo.Count())
	}
}

func TestSeparateRolesKeepSeparateSessions(t *testing.T) {
	repo := memory.NewSessionsRepo()
	ctx := context.Background()

	asOwner := newSession("u1", "owner", "hash-owner", time.Hour)
	asCustomer := newSession("u1", "customer", "hash-customer", time.Hour)

	if err := repo.Replace(ctx, asOwner); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if err := repo.Replace(ctx, asCustomer); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if repo.Count() != 2 {
		t.Fatalf("ledger rows = %d, want 2 (one per role)", repo.Count())
	}
}

// Many logins racing on the same identity must still leave exactly one row.
func TestConcurrentReplaceLeavesOneSession(t *testing.T) {
	repo := memory.NewSessionsRepo()
	ctx := context.Background()

	const logins = 50

	var wg sync.WaitGroup

	for i := 0; i < logins; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			s := newSession("u1", "customer", fmt.Sprintf("hash-%d", i), time.Hour)

			if err := repo.Replace(ctx, s); err != nil {
				t.Errorf("Replace: %v", err)
			}
		}(i)
	}

	wg.Wait()

	if repo.Count() != 1 {
		t.Fatalf("ledger rows = %d, want exactly 1 after %d racing logins", repo.Count(), logins)
	}

	active, err := repo.FindActive(ctx, "u1", "customer")

	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}

	if len(active) != 1 {
		t.Fatalf("active sessions = %d, want 1", len(active))
	}

	// the surviving row must be internally consistent
	s, err := repo.FindByTokenHash(ctx, active[0].TokenHash)

	if err != nil {
		t.Fatalf("FindByTokenHash: %v", err)
	}

	if s.ID != active[0].ID {
		t.Fatal("hash index and identity index disagree")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	repo := memory.NewSessionsRepo()
	ctx := context.Background()

	s := newSession("u1", "owner", "hash-1", time.Hour)

	if err := repo.Replace(ctx, s); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if err := repo.Delete(ctx, s.ID); err != nil {
		t.Fatalf("first Delete: %v", err)
	}

	if err := repo.Delete(ctx, s.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}

	if repo.Count() != 0 {
		t.Fatalf("ledger rows = %d, want 0", repo.Count())
	}
}

func TestDeleteExpired(t *testing.T) {
	repo := memory.NewSessionsRepo()
	ctx := context.Background()

	if err := repo.Replace(ctx, newSession("u1", "owner", "hash-live", time.Hour)); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if err := repo.Replace(ctx, newSession("u2", "owner", "hash-dead", -time.Minute)); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	removed, err := repo.DeleteExpired(ctx)

	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}

	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	if _, err := repo.FindByTokenHash(ctx, "hash-live"); err != nil {
		t.Fatalf("live session disappeared: %v", err)
	}
}
