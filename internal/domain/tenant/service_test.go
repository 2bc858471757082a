package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/gynecloud/notify-engine/internal/domain/rule"
	"github.com/gynecloud/notify-engine/internal/platform/db"
)

type mockTenantRepo struct {
	bySlug map[string]*Tenant
}

func newMockTenantRepo() *mockTenantRepo {
	return &mockTenantRepo{bySlug: make(map[string]*Tenant)}
}

func (m *mockTenantRepo) Create(_ context.Context, t *Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	m.bySlug[t.Slug] = t
	return nil
}

func (m *mockTenantRepo) GetBySlug(_ context.Context, slug string) (*Tenant, error) {
	t, ok := m.bySlug[slug]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (m *mockTenantRepo) ListActive(_ context.Context) ([]*Tenant, error) {
	var out []*Tenant
	for _, t := range m.bySlug {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

type mockRuleRepo struct {
	created []*rule.Rule
	err     error
}

func (m *mockRuleRepo) ListActiveByTenant(_ context.Context, tenantID uuid.UUID) ([]*rule.Rule, error) {
	var out []*rule.Rule
	for _, r := range m.created {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRuleRepo) CreateBatch(_ context.Context, rules []*rule.Rule) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, rules...)
	return nil
}

func TestCreate_SeedsRules(t *testing.T) {
	repo := newMockTenantRepo()
	rules := &mockRuleRepo{}
	svc := NewService(repo, rules, db.NoopTransactor{})

	tn := &Tenant{Slug: " Clinica-Sol ", Name: "Clínica Sol"}
	seeded, err := svc.Create(context.Background(), tn)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tn.Slug != "clinica-sol" || !tn.Active {
		t.Errorf("unexpected tenant %+v", tn)
	}
	if len(seeded) == 0 || len(rules.created) != len(seeded) {
		t.Fatalf("expected seeded rules stored, got %d/%d", len(rules.created), len(seeded))
	}
	for _, r := range seeded {
		if r.TenantID != tn.ID {
			t.Errorf("rule %q not scoped to tenant", r.Name)
		}
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(newMockTenantRepo(), &mockRuleRepo{}, db.NoopTransactor{})
	if _, err := svc.Create(context.Background(), &Tenant{Slug: "x", Name: "X"}); err == nil {
		t.Error("expected slug error")
	}
	if _, err := svc.Create(context.Background(), &Tenant{Slug: "clinica", Name: " "}); err == nil {
		t.Error("expected name error")
	}
}

func TestCreate_DuplicateSlug(t *testing.T) {
	repo := newMockTenantRepo()
	svc := NewService(repo, &mockRuleRepo{}, db.NoopTransactor{})
	if _, err := svc.Create(context.Background(), &Tenant{Slug: "clinica", Name: "A"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(context.Background(), &Tenant{Slug: "clinica", Name: "B"}); !errors.Is(err, ErrSlugTaken) {
		t.Errorf("expected ErrSlugTaken, got %v", err)
	}
}

func TestCreate_SeedFailurePropagates(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(newMockTenantRepo(), &mockRuleRepo{err: boom}, db.NoopTransactor{})
	if _, err := svc.Create(context.Background(), &Tenant{Slug: "clinica", Name: "A"}); !errors.Is(err, boom) {
		t.Errorf("expected seed error, got %v", err)
	}
}
