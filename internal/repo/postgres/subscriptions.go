package postgres

import (
	"context"
	"errors"

	"github.com/casahub/casahub/internal/domain/subscription"
	"github.com/casahub/casahub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewSubscriptionsRepo(pool *pgxpool.Pool, prom *observability.Prom) *SubscriptionsRepo {
	return &SubscriptionsRepo{pool: pool, prom: prom}
}

func (r *SubscriptionsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *SubscriptionsRepo) RecordPayment(ctx context.Context, s subscription.Subscription, reference string) error {
	return r.observe("subscriptions.record_payment", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO subscriptions (id, owner_id, plan, amount_cents, reference, paid_at, expires_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, s.ID, s.OwnerID, string(s.Plan), s.AmountCents, reference, s.PaidAt, s.ExpiresAt)

		return err
	})
}

// GetCurrent returns the owner's most recent still-active subscription.
func (r *SubscriptionsRepo) GetCurrent(ctx context.Context, ownerID string) (subscription.Subscription, error) {
	var s subscription.Subscription
	var plan string

	err := r.observe("subscriptions.get_current", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, owner_id, plan, amount_cents, paid_at, expires_at
			FROM subscriptions
			WHERE owner_id = $1 AND expires_at > NOW()
			ORDER BY expires_at DESC
			LIMIT 1
		`, ownerID).Scan(&s.ID, &s.OwnerID, &plan, &s.AmountCents, &s.PaidAt, &s.ExpiresAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return subscription.Subscription{}, subscription.ErrNoActiveSubscription
		}

		return subscription.Subscription{}, err
	}

	s.Plan = subscription.Plan(plan)
	return s, nil
}

func (r *SubscriptionsRepo) HasActive(ctx context.Context, ownerID string) (bool, error) {
	var exists bool

	err := r.observe("subscriptions.has_active", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM subscriptions
				WHERE owner_id = $1 AND expires_at > NOW()
			)
		`, ownerID).Scan(&exists)
	})

	if err != nil {
		return false, err
	}

	return exists, nil
}
