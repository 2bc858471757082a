package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gynecloud/notify-engine/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Create(ctx context.Context, t *Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO tenant (id, slug, name, active) VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		t.ID, t.Slug, t.Name, t.Active).Scan(&t.CreatedAt)
}

func (r *repoPG) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	var t Tenant
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, slug, name, active, created_at FROM tenant WHERE slug = $1`, slug).
		Scan(&t.ID, &t.Slug, &t.Name, &t.Active, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repoPG) ListActive(ctx context.Context) ([]*Tenant, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT id, slug, name, active, created_at FROM tenant WHERE active ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.Active, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &t)
	}
	return items, rows.Err()
}
