package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the notification recipient. Patients are deactivated, never
// deleted.
type Patient struct {
	ID              uuid.UUID `db:"id" json:"id"`
	TenantID        uuid.UUID `db:"tenant_id" json:"tenant_id"`
	Email           string    `db:"email" json:"email"`
	FullName        string    `db:"full_name" json:"full_name"`
	AvgCycleLength  int       `db:"avg_cycle_length" json:"avg_cycle_length"`
	AvgPeriodLength int       `db:"avg_period_length" json:"avg_period_length"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// FirstName is what templates greet the patient with.
func (p *Patient) FirstName() string {
	for i, r := range p.FullName {
		if r == ' ' {
			return p.FullName[:i]
		}
	}
	return p.FullName
}

// PushSubscription is one browser/device registered for Web Push.
type PushSubscription struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Endpoint  string    `db:"endpoint" json:"endpoint"`
	P256dh    string    `db:"p256dh" json:"p256dh"`
	Auth      string    `db:"auth" json:"auth"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SymptomLog holds the symptom tags a patient reported for one day.
type SymptomLog struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Date      time.Time `db:"date" json:"date"`
	Symptoms  []string  `db:"symptoms" json:"symptoms"`
	Mood      *string   `db:"mood" json:"mood,omitempty"`
	Flow      *string   `db:"flow" json:"flow,omitempty"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
