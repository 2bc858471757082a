package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a clinic. Rules and patients are scoped to it.
type Tenant struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Slug      string    `db:"slug" json:"slug"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
