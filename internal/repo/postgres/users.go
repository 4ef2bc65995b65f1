package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/casahub/casahub/internal/domain/user"
	"github.com/casahub/casahub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const userColumns = `id, email, password_hash, name, role, phone, address, birth_date, gender, avatar_url,
	confirmed, failed_logins, locked_until, created_at, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role,
		&u.Phone, &u.Address, &u.BirthDate, &u.Gender, &u.AvatarURL,
		&u.Confirmed, &u.FailedLogins, &u.LockedUntil,
		&u.CreatedAt, &u.UpdatedAt,
	)

	return u, err
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) error {
	err := r.observe("users.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO users (id, email, password_hash, name, role, phone, address, birth_date, gender, avatar_url,
				confirmed, failed_logins, locked_until, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		`, u.ID, user.NormalizeEmail(u.Email), u.PasswordHash, u.Name, u.Role,
			u.Phone, u.Address, u.BirthDate, u.Gender, u.AvatarURL,
			u.Confirmed, u.FailedLogins, u.LockedUntil, u.CreatedAt, u.UpdatedAt)

		return err
	})

	if err != nil {
		// unique index on (lower(email), role)
		if IsUniqueViolation(err) {
			return user.ErrEmailTaken
		}
		return err
	}

	return nil
}

func (r *UsersRepo) GetByEmailRole(ctx context.Context, email, role string) (user.User, error) {
	var u user.User
	var err error

	err = r.observe("users.get_by_email_role", func() error {
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1 AND role = $2`,
			user.NormalizeEmail(email), role))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrUserNotFound
		}

		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User
	var err error

	err = r.observe("users.get_by_id", func() error {
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrUserNotFound
		}

		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, req user.UpdateProfileRequest) (user.User, error) {
	var u user.User
	var err error

	err = r.observe("users.update_profile", func() error {
		u, err = scanUser(r.pool.QueryRow(ctx, `
			UPDATE users
			SET name = $2,
			    phone = $3,
			    address = $4,
			    birth_date = $5,
			    gender = $6,
			    avatar_url = $7,
			    updated_at = NOW()
			WHERE id = $1
			RETURNING `+userColumns,
			id, req.Name, req.Phone, req.Address, req.BirthDate, req.Gender, req.AvatarURL))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrUserNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

// UpdatePassword stores a new hash and clears the lockout counters so a
// just-reset account can log in straight away.
func (r *UsersRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.observe("users.update_password", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE users
			SET password_hash = $2,
			    failed_logins = 0,
			    locked_until = NULL,
			    updated_at = NOW()
			WHERE id = $1
		`, id, passwordHash)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return user.ErrUserNotFound
		}

		return nil
	})
}

// RecordLoginFailure bumps the counter and arms the lockout window once the
// threshold is crossed, all in one UPDATE so concurrent failures cannot
// under-count. Returns whether this failure locked the account.
func (r *UsersRepo) RecordLoginFailure(ctx context.Context, id string, threshold int, window time.Duration) (bool, error) {
	var failed int
	var lockedUntil *time.Time

	err := r.observe("users.record_login_failure", func() error {
		return r.pool.QueryRow(ctx, `
			UPDATE users
			SET failed_logins = failed_logins + 1,
			    locked_until = CASE
			        WHEN failed_logins + 1 >= $2 THEN NOW() + $3::interval
			        ELSE locked_until
			    END,
			    updated_at = NOW()
			WHERE id = $1
			RETURNING failed_logins, locked_until
		`, id, threshold, window.String()).Scan(&failed, &lockedUntil)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, user.ErrUserNotFound
		}
		return false, err
	}

	return failed >= threshold, nil
}

func (r *UsersRepo) ResetLoginFailures(ctx context.Context, id string) error {
	return r.observe("users.reset_login_failures", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE users
			SET failed_logins = 0,
			    locked_until = NULL,
			    updated_at = NOW()
			WHERE id = $1
		`, id)

		return err
	})
}

func (r *UsersRepo) MarkConfirmed(ctx context.Context, id string) error {
	return r.observe("users.mark_confirmed", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE users
			SET confirmed = TRUE,
			    updated_at = NOW()
			WHERE id = $1
		`, id)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return user.ErrUserNotFound
		}

		return nil
	})
}
