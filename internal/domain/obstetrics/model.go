package obstetrics

import (
	"time"

	"github.com/google/uuid"
)

// PregnancyLog is a pregnancy tracked for notification purposes. While active
// it overrides every cycle notification for the patient.
type PregnancyLog struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	PatientID            uuid.UUID  `db:"patient_id" json:"patient_id"`
	LastPeriodDate       time.Time  `db:"last_period_date" json:"last_period_date"`
	DueDate              *time.Time `db:"due_date" json:"due_date,omitempty"`
	Active               bool       `db:"active" json:"active"`
	NotificationsEnabled bool       `db:"notifications_enabled" json:"notifications_enabled"`
	StartedAt            time.Time  `db:"started_at" json:"started_at"`
	EndedAt              *time.Time `db:"ended_at" json:"ended_at,omitempty"`
}

// Gestation is the gestational age on a given local day.
type Gestation struct {
	Days      int `json:"gestation_days"`
	Week      int `json:"gestation_week"`
	DayOfWeek int `json:"gestation_day_of_week"`
	Trimester int `json:"trimester"`
}
