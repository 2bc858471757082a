package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gynecloud/notify-engine/internal/domain/cycle"
	"github.com/gynecloud/notify-engine/internal/domain/obstetrics"
	"github.com/gynecloud/notify-engine/internal/domain/patient"
	"github.com/gynecloud/notify-engine/internal/domain/rule"
	"github.com/gynecloud/notify-engine/internal/domain/settings"
	"github.com/gynecloud/notify-engine/internal/domain/tenant"
)

// The engine reads patient-owned records through these narrow views;
// the domain repositories and services satisfy them.

type TenantLister interface {
	ListActive(ctx context.Context) ([]*tenant.Tenant, error)
}

type PatientStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	ListActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]*patient.Patient, error)
	ListSubscriptions(ctx context.Context, patientID uuid.UUID) ([]*patient.PushSubscription, error)
	DeleteSubscription(ctx context.Context, id uuid.UUID) error
	SymptomsOn(ctx context.Context, patientID uuid.UUID, day time.Time) ([]string, error)
}

type CycleReader interface {
	Latest(ctx context.Context, patientID uuid.UUID) (*cycle.CycleLog, error)
}

type PregnancyReader interface {
	GetActive(ctx context.Context, patientID uuid.UUID) (*obstetrics.PregnancyLog, error)
}

type RuleLister interface {
	ListActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]*rule.Rule, error)
}

type SettingsStore interface {
	GetOrCreate(ctx context.Context, patientID uuid.UUID) (*settings.NotificationSettings, error)
	LockForUpdate(ctx context.Context, patientID uuid.UUID) (*settings.NotificationSettings, error)
	MarkContraceptiveSent(ctx context.Context, patientID uuid.UUID, day time.Time) error
	ListContraceptiveEnabled(ctx context.Context) ([]settings.PillReminder, error)
}
