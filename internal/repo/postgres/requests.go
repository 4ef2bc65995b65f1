package postgres

import (
	"context"
	"errors"

	"github.com/casahub/casahub/internal/domain/property"
	"github.com/casahub/casahub/internal/domain/request"
	"github.com/casahub/casahub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RequestsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRequestsRepo(pool *pgxpool.Pool, prom *observability.Prom) *RequestsRepo {
	return &RequestsRepo{pool: pool, prom: prom}
}

func (r *RequestsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const requestColumns = `id, property_id, customer_id, message, status, created_at, updated_at`

func scanRequest(row pgx.Row) (request.ViewingRequest, error) {
	var vr request.ViewingRequest
	var status string

	err := row.Scan(&vr.ID, &vr.PropertyID, &vr.CustomerID, &vr.Message, &status, &vr.CreatedAt, &vr.UpdatedAt)

	vr.Status = request.Status(status)
	return vr, err
}

// Create inserts a pending request inside one transaction: verify the
// property exists, reject a duplicate open request, then insert.
func (r *RequestsRepo) Create(ctx context.Context, req request.CreateRequest) (request.ViewingRequest, error) {
	vr := request.NewFromCreateRequest(req)

	err := r.observe("requests.create", func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

		if err != nil {
			return err
		}

		defer func() { _ = tx.Rollback(ctx) }()

		var exists bool

		err = tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM properties WHERE id = $1)`, req.PropertyID).Scan(&exists)

		if err != nil {
			return err
		}

		if !exists {
			return property.ErrNotFound
		}

		// one open request per (customer, property)
		err = tx.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM viewing_requests
				WHERE property_id = $1 AND customer_id = $2 AND status = 'pending'
			)
		`, req.PropertyID, req.CustomerID).Scan(&exists)

		if err != nil {
			return err
		}

		if exists {
			return request.ErrAlreadyRequested
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO viewing_requests (id, property_id, customer_id, message, status, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, vr.ID, vr.PropertyID, vr.CustomerID, vr.Message, string(vr.Status), vr.CreatedAt, vr.UpdatedAt)

		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})

	if err != nil {
		return request.ViewingRequest{}, err
	}

	return vr, nil
}

// UpdateStatus locks the row, checks the workflow transition, then writes.
func (r *RequestsRepo) UpdateStatus(ctx context.Context, id string, to request.Status) (request.ViewingRequest, error) {
	var vr request.ViewingRequest

	err := r.observe("requests.update_status", func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

		if err != nil {
			return err
		}

		defer func() { _ = tx.Rollback(ctx) }()

		vr, err = scanRequest(tx.QueryRow(ctx,
			`SELECT `+requestColumns+` FROM viewing_requests WHERE id = $1 FOR UPDATE`, id))

		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return request.ErrNotFound
			}
			return err
		}

		if !request.CanTransition(vr.Status, to) {
			return request.ErrInvalidTransition
		}

		vr, err = scanRequest(tx.QueryRow(ctx, `
			UPDATE viewing_requests
			SET status = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+requestColumns, id, string(to)))

		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})

	if err != nil {
		return request.ViewingRequest{}, err
	}

	return vr, nil
}

func (r *RequestsRepo) GetByID(ctx context.Context, id string) (request.ViewingRequest, error) {
	var vr request.ViewingRequest
	var err error

	err = r.observe("requests.get_by_id", func() error {
		vr, err = scanRequest(r.pool.QueryRow(ctx,
			`SELECT `+requestColumns+` FROM viewing_requests WHERE id = $1`, id))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return request.ViewingRequest{}, request.ErrNotFound
		}
		return request.ViewingRequest{}, err
	}

	return vr, nil
}

func (r *RequestsRepo) ListByCustomer(ctx context.Context, customerID string) ([]request.ViewingRequest, error) {
	return r.list(ctx, "requests.list_by_customer",
		`SELECT `+requestColumns+` FROM viewing_requests WHERE customer_id = $1 ORDER BY created_at DESC`,
		customerID)
}

// ListByOwner returns requests against any of the owner's properties.
func (r *RequestsRepo) ListByOwner(ctx context.Context, ownerID string) ([]request.ViewingRequest, error) {
	return r.list(ctx, "requests.list_by_owner", `
		SELECT vr.id, vr.property_id, vr.customer_id, vr.message, vr.status, vr.created_at, vr.updated_at
		FROM viewing_requests vr
		JOIN properties p ON p.id = vr.property_id
		WHERE p.owner_id = $1
		ORDER BY vr.created_at DESC
	`, ownerID)
}

func (r *RequestsRepo) list(ctx context.Context, op, query string, args ...interface{}) ([]request.ViewingRequest, error) {
	var out []request.ViewingRequest

	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, query, args...)

		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			vr, err := scanRequest(rows)

			if err != nil {
				return err
			}

			out = append(out, vr)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}
