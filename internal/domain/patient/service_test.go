package patient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
	subs     map[string]*PushSubscription
	symptoms map[string]*SymptomLog
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{
		patients: make(map[uuid.UUID]*Patient),
		subs:     make(map[string]*PushSubscription),
		symptoms: make(map[string]*SymptomLog),
	}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPatientRepo) ListActiveByTenant(_ context.Context, tenantID uuid.UUID) ([]*Patient, error) {
	var out []*Patient
	for _, p := range m.patients {
		if p.TenantID == tenantID && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPatientRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	p, ok := m.patients[id]
	if !ok {
		return ErrNotFound
	}
	p.Active = active
	return nil
}

func (m *mockPatientRepo) ListSubscriptions(_ context.Context, patientID uuid.UUID) ([]*PushSubscription, error) {
	var out []*PushSubscription
	for _, s := range m.subs {
		if s.PatientID == patientID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockPatientRepo) UpsertSubscription(_ context.Context, s *PushSubscription) error {
	if existing, ok := m.subs[s.Endpoint]; ok {
		s.ID = existing.ID
	} else {
		s.ID = uuid.New()
	}
	m.subs[s.Endpoint] = s
	return nil
}

func (m *mockPatientRepo) DeleteSubscription(_ context.Context, id uuid.UUID) error {
	for k, s := range m.subs {
		if s.ID == id {
			delete(m.subs, k)
		}
	}
	return nil
}

func (m *mockPatientRepo) SymptomsOn(_ context.Context, patientID uuid.UUID, day time.Time) ([]string, error) {
	if l, ok := m.symptoms[patientID.String()+day.Format("2006-01-02")]; ok {
		return l.Symptoms, nil
	}
	return []string{}, nil
}

func (m *mockPatientRepo) UpsertSymptomLog(_ context.Context, s *SymptomLog) error {
	m.symptoms[s.PatientID.String()+s.Date.Format("2006-01-02")] = s
	return nil
}

func TestService_Register(t *testing.T) {
	repo := newMockPatientRepo()
	svc := NewService(repo)

	p := &Patient{TenantID: uuid.New(), Email: " Ana@Example.com", FullName: "Ana"}
	if err := svc.Register(context.Background(), p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.Email != "ana@example.com" {
		t.Errorf("expected normalized email, got %q", p.Email)
	}
	if p.AvgCycleLength != 28 || p.AvgPeriodLength != 5 || !p.Active {
		t.Errorf("expected defaults applied, got %+v", p)
	}

	if err := svc.Register(context.Background(), &Patient{Email: "a@b.c"}); err == nil {
		t.Error("expected error without tenant")
	}
	if err := svc.Register(context.Background(), &Patient{TenantID: uuid.New(), Email: "a@b.c", AvgCycleLength: 60}); err == nil {
		t.Error("expected range error")
	}
}

func TestService_RegisterSubscription(t *testing.T) {
	repo := newMockPatientRepo()
	svc := NewService(repo)
	p := &Patient{TenantID: uuid.New(), Email: "ana@example.com"}
	_ = svc.Register(context.Background(), p)
	p256dh, auth := validKeys(t)

	sub := &PushSubscription{PatientID: p.ID, Endpoint: " https://push.example/abc ", P256dh: p256dh, Auth: auth}
	if err := svc.RegisterSubscription(context.Background(), sub); err != nil {
		t.Fatalf("RegisterSubscription: %v", err)
	}
	if sub.Endpoint != "https://push.example/abc" {
		t.Errorf("expected trimmed endpoint, got %q", sub.Endpoint)
	}

	// Same endpoint again updates in place.
	again := &PushSubscription{PatientID: p.ID, Endpoint: "https://push.example/abc", P256dh: p256dh, Auth: auth}
	_ = svc.RegisterSubscription(context.Background(), again)
	if again.ID != sub.ID || len(repo.subs) != 1 {
		t.Errorf("expected upsert by endpoint, got %d subs", len(repo.subs))
	}

	bad := &PushSubscription{PatientID: p.ID, Endpoint: "http://push.example/x", P256dh: p256dh, Auth: auth}
	if err := svc.RegisterSubscription(context.Background(), bad); !errors.Is(err, ErrInvalidSubscription) {
		t.Errorf("expected ErrInvalidSubscription, got %v", err)
	}

	orphan := &PushSubscription{PatientID: uuid.New(), Endpoint: "https://push.example/y", P256dh: p256dh, Auth: auth}
	if err := svc.RegisterSubscription(context.Background(), orphan); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_LogSymptoms(t *testing.T) {
	repo := newMockPatientRepo()
	svc := NewService(repo)
	pid := uuid.New()
	today := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	err := svc.LogSymptoms(context.Background(), &SymptomLog{
		PatientID: pid, Date: today, Symptoms: []string{" Sangrado ", "sangrado", "", "Náuseas"},
	})
	if err != nil {
		t.Fatalf("LogSymptoms: %v", err)
	}
	got, _ := repo.SymptomsOn(context.Background(), pid, today)
	if len(got) != 2 || got[0] != "sangrado" || got[1] != "náuseas" {
		t.Errorf("unexpected tags %v", got)
	}
}

func TestService_Deactivate(t *testing.T) {
	repo := newMockPatientRepo()
	svc := NewService(repo)
	p := &Patient{TenantID: uuid.New(), Email: "ana@example.com"}
	_ = svc.Register(context.Background(), p)

	if err := svc.Deactivate(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	active, _ := repo.ListActiveByTenant(context.Background(), p.TenantID)
	if len(active) != 0 {
		t.Error("expected patient excluded from active list")
	}
}
