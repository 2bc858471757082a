package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Service is the edge for patient-owned records the engine consumes. It
// rejects invalid input so the workers never see it.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Register(ctx context.Context, p *Patient) error {
	if p.TenantID == uuid.Nil {
		return fmt.Errorf("tenant_id is required")
	}
	if p.AvgCycleLength == 0 {
		p.AvgCycleLength = 28
	}
	if p.AvgPeriodLength == 0 {
		p.AvgPeriodLength = 5
	}
	if err := Validate(p); err != nil {
		return err
	}
	p.Email, _ = NormalizeEmail(p.Email)
	p.Active = true
	return s.repo.Create(ctx, p)
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetActive(ctx, id, false)
}

// RegisterSubscription validates and stores a device subscription.
func (s *Service) RegisterSubscription(ctx context.Context, sub *PushSubscription) error {
	if sub.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	sub.Endpoint = strings.TrimSpace(sub.Endpoint)
	if err := ValidateSubscription(sub); err != nil {
		return err
	}
	if _, err := s.repo.GetByID(ctx, sub.PatientID); err != nil {
		return err
	}
	return s.repo.UpsertSubscription(ctx, sub)
}

// LogSymptoms records the day's symptom tags, lower-cased and de-duplicated.
func (s *Service) LogSymptoms(ctx context.Context, l *SymptomLog) error {
	if l.PatientID == uuid.Nil || l.Date.IsZero() {
		return fmt.Errorf("patient_id and date are required")
	}
	seen := make(map[string]bool, len(l.Symptoms))
	tags := make([]string, 0, len(l.Symptoms))
	for _, t := range l.Symptoms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	l.Symptoms = tags
	return s.repo.UpsertSymptomLog(ctx, l)
}
