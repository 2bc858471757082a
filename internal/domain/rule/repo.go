package rule

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the data access interface for notification rules.
type Repository interface {
	ListActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Rule, error)
	CreateBatch(ctx context.Context, rules []*Rule) error
}
