package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gynecloud/notify-engine/internal/platform/clock"
)

var ErrOpenLogExists = errors.New("cycle: an open period log already exists")

// Service validates cycle logs before they reach storage.
type Service struct {
	repo  Repository
	clock clock.Clock
}

func NewService(repo Repository, c clock.Clock) *Service {
	return &Service{repo: repo, clock: c}
}

// Log records a new period start. A period without an end date becomes the
// patient's single open log.
func (s *Service) Log(ctx context.Context, c *CycleLog) error {
	if c.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if c.StartDate.IsZero() {
		return fmt.Errorf("start_date is required")
	}
	today := clock.Today(s.clock)
	start := clock.InZone(c.StartDate, s.clock.Location())
	if start.After(today) {
		return ErrFutureAnchor
	}
	if c.EndDate != nil && clock.DaysBetween(start, *c.EndDate) < 0 {
		return fmt.Errorf("end_date must not precede start_date")
	}
	if c.Open() {
		if _, err := s.repo.GetOpen(ctx, c.PatientID); err == nil {
			return ErrOpenLogExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return s.repo.Create(ctx, c)
}

// Close sets the end date of an open log. Closed logs are immutable.
func (s *Service) Close(ctx context.Context, id uuid.UUID, end time.Time) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !c.Open() {
		return fmt.Errorf("cycle log %s is already closed", id)
	}
	if clock.DaysBetween(c.StartDate, end) < 0 {
		return fmt.Errorf("end_date must not precede start_date")
	}
	return s.repo.SetEndDate(ctx, id, end)
}

// Latest returns the prediction anchor, or ErrNotFound when none was logged.
func (s *Service) Latest(ctx context.Context, patientID uuid.UUID) (*CycleLog, error) {
	return s.repo.Latest(ctx, patientID)
}
