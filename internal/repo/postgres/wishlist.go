package postgres

import (
	"context"
	"time"

	"github.com/casahub/casahub/internal/domain/wishlist"
	"github.com/casahub/casahub/internal/observability"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WishlistRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewWishlistRepo(pool *pgxpool.Pool, prom *observability.Prom) *WishlistRepo {
	return &WishlistRepo{pool: pool, prom: prom}
}

func (r *WishlistRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Add is an idempotent upsert: wishing twice is not an error.
func (r *WishlistRepo) Add(ctx context.Context, customerID, propertyID string) (wishlist.Item, error) {
	item := wishlist.Item{
		CustomerID: customerID,
		PropertyID: propertyID,
		AddedAt:    time.Now().UTC(),
	}

	err := r.observe("wishlist.add", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO wishlist_items (customer_id, property_id, added_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (customer_id, property_id) DO NOTHING
		`, item.CustomerID, item.PropertyID, item.AddedAt)

		return err
	})

	if err != nil {
		return wishlist.Item{}, err
	}

	return item, nil
}

func (r *WishlistRepo) Remove(ctx context.Context, customerID, propertyID string) error {
	return r.observe("wishlist.remove", func() error {
		tag, err := r.pool.Exec(ctx, `
			DELETE FROM wishlist_items
			WHERE customer_id = $1 AND property_id = $2
		`, customerID, propertyID)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return wishlist.ErrNotFound
		}

		return nil
	})
}

func (r *WishlistRepo) ListByCustomer(ctx context.Context, customerID string) ([]wishlist.Item, error) {
	var out []wishlist.Item

	err := r.observe("wishlist.list_by_customer", func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT customer_id, property_id, added_at
			FROM wishlist_items
			WHERE customer_id = $1
			ORDER BY added_at DESC
		`, customerID)

		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			var item wishlist.Item

			err = rows.Scan(&item.CustomerID, &item.PropertyID, &item.AddedAt)

			if err != nil {
				return err
			}

			out = append(out, item)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}
