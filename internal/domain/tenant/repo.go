package tenant

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("tenant: not found")

type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	ListActive(ctx context.Context) ([]*Tenant, error)
}
