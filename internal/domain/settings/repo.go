package settings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("settings: not found")

// Repository defines the data access interface for notification settings.
type Repository interface {
	Get(ctx context.Context, patientID uuid.UUID) (*NotificationSettings, error)
	// Insert stores defaults unless a row already exists.
	Insert(ctx context.Context, s *NotificationSettings) error
	Update(ctx context.Context, s *NotificationSettings) error
	// LockForUpdate reads the row under a row lock; it must run inside a
	// transaction.
	LockForUpdate(ctx context.Context, patientID uuid.UUID) (*NotificationSettings, error)
	MarkContraceptiveSent(ctx context.Context, patientID uuid.UUID, day time.Time) error
	ListContraceptiveEnabled(ctx context.Context) ([]PillReminder, error)
}
