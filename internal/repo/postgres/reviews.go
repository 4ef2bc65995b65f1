package postgres

import (
	"context"

	"github.com/casahub/casahub/internal/domain/review"
	"github.com/casahub/casahub/internal/observability"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReviewsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewReviewsRepo(pool *pgxpool.Pool, prom *observability.Prom) *ReviewsRepo {
	return &ReviewsRepo{pool: pool, prom: prom}
}

func (r *ReviewsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *ReviewsRepo) Create(ctx context.Context, req review.CreateReviewRequest) (review.Review, error) {
	rv := review.NewFromCreateRequest(req)

	err := r.observe("reviews.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO reviews (id, property_id, customer_id, rating, comment, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, rv.ID, rv.PropertyID, rv.CustomerID, rv.Rating, rv.Comment, rv.CreatedAt)

		return err
	})

	if err != nil {
		// unique (property_id, customer_id)
		if IsUniqueViolation(err) {
			return review.Review{}, review.ErrAlreadyReviewed
		}
		return review.Review{}, err
	}

	return rv, nil
}

// ListByProperty returns the reviews plus the average rating in one query.
func (r *ReviewsRepo) ListByProperty(ctx context.Context, propertyID string) ([]review.Review, float64, error) {
	var out []review.Review
	var avg float64

	err := r.observe("reviews.list_by_property", func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT id, property_id, customer_id, rating, comment, created_at,
			       AVG(rating) OVER () AS avg_rating
			FROM reviews
			WHERE property_id = $1
			ORDER BY created_at DESC
		`, propertyID)

		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			var rv review.Review

			err = rows.Scan(&rv.ID, &rv.PropertyID, &rv.CustomerID, &rv.Rating, &rv.Comment, &rv.CreatedAt, &avg)

			if err != nil {
				return err
			}

			out = append(out, rv)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, 0, err
	}

	return out, avg, nil
}
