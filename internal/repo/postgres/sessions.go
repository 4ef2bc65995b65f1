package postgres

import (
	"context"
	"errors"

	"github.com/casahub/casahub/internal/domain/session"
	"github.com/casahub/casahub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionsRepo is the durable ledger of currently-valid logins. The schema
// carries UNIQUE(user_id, role) so even a lost race between two concurrent
// logins cannot leave two rows for the same identity.
type SessionsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewSessionsRepo(pool *pgxpool.Pool, prom *observability.Prom) *SessionsRepo {
	return &SessionsRepo{pool: pool, prom: prom}
}

func (r *SessionsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *SessionsRepo) FindActive(ctx context.Context, userID, role string) ([]session.Session, error) {
	var out []session.Session

	err := r.observe("sessions.find_active", func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT id, user_id, role, token_hash, expires_at, created_at
			FROM sessions
			WHERE user_id = $1 AND role = $2
		`, userID, role)

		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			var s session.Session

			err = rows.Scan(&s.ID, &s.UserID, &s.Role, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)

			if err != nil {
				return err
			}

			out = append(out, s)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

// Replace atomically supersedes any prior session for (user, role) with the
// new one. Delete-then-insert inside one transaction; the ON CONFLICT arm
// covers the window where a concurrent login inserted between our delete and
// insert — last writer wins, never two rows.
func (r *SessionsRepo) Replace(ctx context.Context, s session.Session) error {
	return r.observe("sessions.replace", func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

		if err != nil {
			return err
		}

		defer func() { _ = tx.Rollback(ctx) }()

		_, err = tx.Exec(ctx, `
			DELETE FROM sessions
			WHERE user_id = $1 AND role = $2
		`, s.UserID, s.Role)

		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO sessions (id, user_id, role, token_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, role) DO UPDATE
			SET id = EXCLUDED.id,
			    token_hash = EXCLUDED.token_hash,
			    expires_at = EXCLUDED.expires_at,
			    created_at = EXCLUDED.created_at
		`, s.ID, s.UserID, s.Role, s.TokenHash, s.ExpiresAt, s.CreatedAt)

		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}

func (r *SessionsRepo) FindByTokenHash(ctx context.Context, tokenHash string) (session.Session, error) {
	var s session.Session

	err := r.observe("sessions.find_by_token", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, user_id, role, token_hash, expires_at, created_at
			FROM sessions
			WHERE token_hash = $1
		`, tokenHash).Scan(&s.ID, &s.UserID, &s.Role, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Session{}, session.ErrSessionNotFound
		}

		return session.Session{}, err
	}

	return s, nil
}

// Delete is idempotent: removing an already-removed session is a no-op.
func (r *SessionsRepo) Delete(ctx context.Context, id string) error {
	return r.observe("sessions.delete", func() error {
		_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
		return err
	})
}

// DeleteExpired removes lapsed ledger rows; run periodically by the worker.
func (r *SessionsRepo) DeleteExpired(ctx context.Context) (int64, error) {
	var removed int64

	err := r.observe("sessions.delete_expired", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)

		if err != nil {
			return err
		}

		removed = tag.RowsAffected()
		return nil
	})

	return removed, err
}
