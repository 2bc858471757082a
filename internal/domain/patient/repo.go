package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient: not found")

// Repository defines the data access interface for patients and the records
// the notification engine reads from them.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Patient, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	ListSubscriptions(ctx context.Context, patientID uuid.UUID) ([]*PushSubscription, error)
	// UpsertSubscription keys on endpoint; a re-registered endpoint moves to
	// the new patient and keys.
	UpsertSubscription(ctx context.Context, s *PushSubscription) error
	DeleteSubscription(ctx context.Context, id uuid.UUID) error

	// SymptomsOn returns the tags logged for the given day, empty if none.
	SymptomsOn(ctx context.Context, patientID uuid.UUID, day time.Time) ([]string, error)
	UpsertSymptomLog(ctx context.Context, s *SymptomLog) error
}
