package obstetrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gynecloud/notify-engine/internal/platform/clock"
)

var ErrActiveExists = errors.New("obstetrics: patient already has an active pregnancy")

// Service provides business logic for pregnancy tracking.
type Service struct {
	repo  PregnancyRepository
	clock clock.Clock
}

func NewService(repo PregnancyRepository, c clock.Clock) *Service {
	return &Service{repo: repo, clock: c}
}

// Start opens a pregnancy. The due date defaults to Naegele's rule.
func (s *Service) Start(ctx context.Context, p *PregnancyLog) error {
	if p.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if p.LastPeriodDate.IsZero() {
		return fmt.Errorf("last_period_date is required")
	}
	today := clock.Today(s.clock)
	if clock.DaysBetween(p.LastPeriodDate, today) < 0 {
		return fmt.Errorf("last_period_date is in the future")
	}
	if _, err := s.repo.GetActive(ctx, p.PatientID); err == nil {
		return ErrActiveExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if p.DueDate == nil {
		due := EstimatedDueDate(clock.InZone(p.LastPeriodDate, s.clock.Location()))
		p.DueDate = &due
	}
	p.Active = true
	p.EndedAt = nil
	return s.repo.Create(ctx, p)
}

// End closes the patient's active pregnancy; cycle notifications resume.
func (s *Service) End(ctx context.Context, patientID uuid.UUID) error {
	p, err := s.repo.GetActive(ctx, patientID)
	if err != nil {
		return err
	}
	return s.repo.End(ctx, p.ID, s.clock.Now())
}

func (s *Service) Active(ctx context.Context, patientID uuid.UUID) (*PregnancyLog, error) {
	return s.repo.GetActive(ctx, patientID)
}

func (s *Service) SetNotifications(ctx context.Context, patientID uuid.UUID, enabled bool) error {
	p, err := s.repo.GetActive(ctx, patientID)
	if err != nil {
		return err
	}
	return s.repo.SetNotificationsEnabled(ctx, p.ID, enabled)
}
