package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/casahub/casahub/internal/config"
	"github.com/casahub/casahub/internal/domain/user"
	"github.com/casahub/casahub/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SeedOwner creates a confirmed demo owner account when SEED_OWNER_* is set.
// Meant for dev/staging; a no-op when the account already exists.
func SeedOwner(ctx context.Context, log *slog.Logger, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.SeedOwnerEmail == "" || cfg.SeedOwnerPassword == "" {
		return nil
	}

	email := user.NormalizeEmail(cfg.SeedOwnerEmail)

	var dummy string
	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1 AND role = $2`, email, user.RoleOwner).Scan(&dummy)

	if err == nil {
		return nil // already seeded
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(cfg.SeedOwnerPassword)

	if err != nil {
		return err
	}

	now := time.Now().UTC()

	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, confirmed, failed_logins, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, 0, $6, $6)
	`, uuid.NewString(), email, hash, cfg.SeedOwnerName, user.RoleOwner, now)

	if err != nil {
		return err
	}

	log.Info("seeded owner account", "email", email)
	return nil
}
