package settings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetOrCreate returns the patient's settings, inserting defaults on a miss.
func (s *Service) GetOrCreate(ctx context.Context, patientID uuid.UUID) (*NotificationSettings, error) {
	st, err := s.repo.Get(ctx, patientID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err := s.repo.Insert(ctx, Defaults(patientID)); err != nil {
		return nil, err
	}
	// Re-read so a concurrent insert wins consistently.
	return s.repo.Get(ctx, patientID)
}

// Update validates and stores the patient's switches. The pill sent-date is
// owned by the ticker and never written here.
func (s *Service) Update(ctx context.Context, st *NotificationSettings) error {
	if err := Validate(st); err != nil {
		return err
	}
	if _, err := s.GetOrCreate(ctx, st.PatientID); err != nil {
		return err
	}
	return s.repo.Update(ctx, st)
}

// LockForUpdate reads the settings row under a row lock. The caller owns the
// transaction.
func (s *Service) LockForUpdate(ctx context.Context, patientID uuid.UUID) (*NotificationSettings, error) {
	return s.repo.LockForUpdate(ctx, patientID)
}

func (s *Service) MarkContraceptiveSent(ctx context.Context, patientID uuid.UUID, day time.Time) error {
	return s.repo.MarkContraceptiveSent(ctx, patientID, day)
}

func (s *Service) ListContraceptiveEnabled(ctx context.Context) ([]PillReminder, error) {
	return s.repo.ListContraceptiveEnabled(ctx)
}
