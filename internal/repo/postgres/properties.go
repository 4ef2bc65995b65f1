package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/casahub/casahub/internal/domain/property"
	"github.com/casahub/casahub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PropertiesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewPropertiesRepo(pool *pgxpool.Pool, prom *observability.Prom) *PropertiesRepo {
	return &PropertiesRepo{pool: pool, prom: prom}
}

func (r *PropertiesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const propertyColumns = `id, owner_id, title, description, city, address, price_cents,
	bedrooms, bathrooms, area_sqm, available, created_at, updated_at`

func scanProperty(row pgx.Row) (property.Property, error) {
	var p property.Property

	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.City, &p.Address,
		&p.PriceCents, &p.Bedrooms, &p.Bathrooms, &p.AreaSqm, &p.Available,
		&p.CreatedAt, &p.UpdatedAt,
	)

	return p, err
}

func (r *PropertiesRepo) Create(ctx context.Context, req property.CreatePropertyRequest) (property.Property, error) {
	p := property.NewFromCreateRequest(req)

	err := r.observe("properties.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO properties (id, owner_id, title, description, city, address, price_cents,
				bedrooms, bathrooms, area_sqm, available, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, p.ID, p.OwnerID, p.Title, p.Description, p.City, p.Address, p.PriceCents,
			p.Bedrooms, p.Bathrooms, p.AreaSqm, p.Available, p.CreatedAt, p.UpdatedAt)

		return err
	})

	if err != nil {
		return property.Property{}, err
	}

	return p, nil
}

func (r *PropertiesRepo) GetByID(ctx context.Context, id string) (property.Property, error) {
	var p property.Property
	var err error

	err = r.observe("properties.get_by_id", func() error {
		p, err = scanProperty(r.pool.QueryRow(ctx,
			`SELECT `+propertyColumns+` FROM properties WHERE id = $1`, id))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return property.Property{}, property.ErrNotFound
		}

		return property.Property{}, err
	}

	return p, nil
}

// ListCursor pages newest-first over (created_at, id). afterCreatedAt/afterID
// are zero on the first page. Fetches limit+1 to learn whether more remain.
func (r *PropertiesRepo) ListCursor(ctx context.Context, f property.ListFilter, afterCreatedAt time.Time, afterID string) ([]property.Property, bool, error) {
	var conds []string
	var args []interface{}

	argsPosition := 1

	conds = append(conds, "available = TRUE")

	if f.City != nil {
		conds = append(conds, fmt.Sprintf("LOWER(city) = LOWER($%d)", argsPosition))
		args = append(args, *f.City)
		argsPosition++
	}

	if f.MinPrice != nil {
		conds = append(conds, fmt.Sprintf("price_cents >= $%d", argsPosition))
		args = append(args, *f.MinPrice)
		argsPosition++
	}

	if f.MaxPrice != nil {
		conds = append(conds, fmt.Sprintf("price_cents <= $%d", argsPosition))
		args = append(args, *f.MaxPrice)
		argsPosition++
	}

	if !afterCreatedAt.IsZero() && afterID != "" {
		conds = append(conds, fmt.Sprintf("(created_at, id) < ($%d, $%d)", argsPosition, argsPosition+1))
		args = append(args, afterCreatedAt, afterID)
		argsPosition += 2
	}

	query := `SELECT ` + propertyColumns + ` FROM properties WHERE ` + strings.Join(conds, " AND ")

	// stable ordering for pagination
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argsPosition)
	args = append(args, f.Limit+1)

	var out []property.Property

	err := r.observe("properties.list_cursor", func() error {
		rows, err := r.pool.Query(ctx, query, args...)

		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			p, err := scanProperty(rows)

			if err != nil {
				return err
			}

			out = append(out, p)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, false, err
	}

	hasMore := len(out) > f.Limit

	if hasMore {
		out = out[:f.Limit]
	}

	return out, hasMore, nil
}

func (r *PropertiesRepo) ListByOwner(ctx context.Context, ownerID string) ([]property.Property, error) {
	var out []property.Property

	err := r.observe("properties.list_by_owner", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+propertyColumns+` FROM properties WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)

		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			p, err := scanProperty(rows)

			if err != nil {
				return err
			}

			out = append(out, p)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

// Update is owner-scoped: the WHERE clause carries owner_id so one owner
// can never mutate another owner's listing.
func (r *PropertiesRepo) Update(ctx context.Context, id, ownerID string, req property.UpdatePropertyRequest) (property.Property, error) {
	available := true
	if req.Available != nil {
		available = *req.Available
	}

	var p property.Property
	var err error

	err = r.observe("properties.update", func() error {
		p, err = scanProperty(r.pool.QueryRow(ctx, `
			UPDATE properties
			SET title = $3,
			    description = $4,
			    city = $5,
			    address = $6,
			    price_cents = $7,
			    bedrooms = $8,
			    bathrooms = $9,
			    area_sqm = $10,
			    available = $11,
			    updated_at = NOW()
			WHERE id = $1 AND owner_id = $2
			RETURNING `+propertyColumns,
			id, ownerID, req.Title, req.Description, req.City, req.Address,
			req.PriceCents, req.Bedrooms, req.Bathrooms, req.AreaSqm, available))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return property.Property{}, property.ErrNotFound
		}
		return property.Property{}, err
	}

	return p, nil
}

func (r *PropertiesRepo) Delete(ctx context.Context, id, ownerID string) error {
	return r.observe("properties.delete", func() error {
		tag, err := r.pool.Exec(ctx,
			`DELETE FROM properties WHERE id = $1 AND owner_id = $2`, id, ownerID)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return property.ErrNotFound
		}

		return nil
	})
}
