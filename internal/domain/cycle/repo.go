package cycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("cycle: log not found")

// Repository defines the data access interface for cycle logs.
type Repository interface {
	Create(ctx context.Context, c *CycleLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*CycleLog, error)
	// Latest returns the log with the greatest start date, the prediction anchor.
	Latest(ctx context.Context, patientID uuid.UUID) (*CycleLog, error)
	GetOpen(ctx context.Context, patientID uuid.UUID) (*CycleLog, error)
	SetEndDate(ctx context.Context, id uuid.UUID, end time.Time) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*CycleLog, error)
}
