package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gynecloud/notify-engine/internal/domain/rule"
	"github.com/gynecloud/notify-engine/internal/platform/db"
)

var ErrSlugTaken = errors.New("tenant: slug already in use")

type Service struct {
	repo  Repository
	rules rule.Repository
	tx    db.Transactor
}

func NewService(repo Repository, rules rule.Repository, tx db.Transactor) *Service {
	return &Service{repo: repo, rules: rules, tx: tx}
}

// Create registers a clinic and seeds its default rule set atomically.
func (s *Service) Create(ctx context.Context, t *Tenant) ([]*rule.Rule, error) {
	t.Slug = strings.ToLower(strings.TrimSpace(t.Slug))
	if err := db.ValidateTenantSlug(t.Slug); err != nil {
		return nil, err
	}
	if strings.TrimSpace(t.Name) == "" {
		return nil, fmt.Errorf("tenant: name is required")
	}
	t.Active = true

	var seeded []*rule.Rule
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetBySlug(ctx, t.Slug); err == nil {
			return ErrSlugTaken
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.repo.Create(ctx, t); err != nil {
			return fmt.Errorf("create tenant: %w", err)
		}
		seeded = rule.DefaultRules(t.ID)
		if err := s.rules.CreateBatch(ctx, seeded); err != nil {
			return fmt.Errorf("seed rules: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seeded, nil
}

// ListActive returns the clinics the planner iterates.
func (s *Service) ListActive(ctx context.Context) ([]*Tenant, error) {
	return s.repo.ListActive(ctx)
}
