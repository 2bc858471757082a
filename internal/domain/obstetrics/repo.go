package obstetrics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("obstetrics: pregnancy not found")

// PregnancyRepository defines the data access interface for pregnancy logs.
type PregnancyRepository interface {
	Create(ctx context.Context, p *PregnancyLog) error
	GetActive(ctx context.Context, patientID uuid.UUID) (*PregnancyLog, error)
	End(ctx context.Context, id uuid.UUID, at time.Time) error
	SetNotificationsEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*PregnancyLog, error)
}
