package cycle

import (
	"time"

	"github.com/google/uuid"
)

// CycleLog is one logged period. StartDate and EndDate are calendar dates.
type CycleLog struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PatientID uuid.UUID  `db:"patient_id" json:"patient_id"`
	StartDate time.Time  `db:"start_date" json:"start_date"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
	Notes     *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Open reports whether the period is still ongoing.
func (c *CycleLog) Open() bool { return c.EndDate == nil }

type Phase string

const (
	PhaseMenstrual  Phase = "menstrual"
	PhaseFollicular Phase = "follicular"
	PhaseOvulation  Phase = "ovulation"
	PhaseLuteal     Phase = "luteal"
)

type Probability string

const (
	ProbabilityLow    Probability = "low"
	ProbabilityMedium Probability = "medium"
	ProbabilityHigh   Probability = "high"
)

// Prediction is the predictor output. All dates are local midnights.
type Prediction struct {
	CycleDay             int         `json:"cycle_day"`
	NextPeriodStart      time.Time   `json:"next_period_start"`
	NextPeriodEnd        time.Time   `json:"next_period_end"`
	OvulationDate        time.Time   `json:"ovulation_date"`
	FertileWindowStart   time.Time   `json:"fertile_window_start"`
	FertileWindowEnd     time.Time   `json:"fertile_window_end"`
	Phase                Phase       `json:"phase"`
	PregnancyProbability Probability `json:"pregnancy_probability"`
}
