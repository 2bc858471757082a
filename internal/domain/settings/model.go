package settings

import (
	"time"

	"github.com/google/uuid"
)

// NotificationSettings holds a patient's master switches. One row per
// patient, created with defaults on first read.
type NotificationSettings struct {
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`

	CycleFertileWindow         bool `db:"cycle_fertile_window" json:"cycle_fertile_window"`
	CyclePeriodPredictions     bool `db:"cycle_period_predictions" json:"cycle_period_predictions"`
	CyclePMS                   bool `db:"cycle_pms" json:"cycle_pms"`
	CycleRhythmMethod          bool `db:"cycle_rhythm_method" json:"cycle_rhythm_method"`
	PeriodConfirmationReminder bool `db:"period_confirmation_reminder" json:"period_confirmation_reminder"`

	PrenatalDailyTips           bool `db:"prenatal_daily_tips" json:"prenatal_daily_tips"`
	PrenatalSymptomAlerts       bool `db:"prenatal_symptom_alerts" json:"prenatal_symptom_alerts"`
	PrenatalUltrasoundReminders bool `db:"prenatal_ultrasound_reminders" json:"prenatal_ultrasound_reminders"`
	PrenatalLabReminders        bool `db:"prenatal_lab_reminders" json:"prenatal_lab_reminders"`
	PrenatalWeekMilestones      bool `db:"prenatal_week_milestones" json:"prenatal_week_milestones"`

	ContraceptiveEnabled      bool       `db:"contraceptive_enabled" json:"contraceptive_enabled"`
	ContraceptiveTime         *string    `db:"contraceptive_time" json:"contraceptive_time,omitempty"`
	LastContraceptiveSentDate *time.Time `db:"last_contraceptive_sent_date" json:"last_contraceptive_sent_date,omitempty"`

	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Defaults returns the settings a new patient starts with. Rhythm-method
// abstinence reminders and pill reminders are opt-in.
func Defaults(patientID uuid.UUID) *NotificationSettings {
	return &NotificationSettings{
		PatientID:                   patientID,
		CycleFertileWindow:          true,
		CyclePeriodPredictions:      true,
		CyclePMS:                    true,
		CycleRhythmMethod:           false,
		PeriodConfirmationReminder:  true,
		PrenatalDailyTips:           true,
		PrenatalSymptomAlerts:       true,
		PrenatalUltrasoundReminders: true,
		PrenatalLabReminders:        true,
		PrenatalWeekMilestones:      true,
	}
}

// PillTime returns the configured reminder time, or "" when unset.
func (s *NotificationSettings) PillTime() string {
	if s.ContraceptiveTime == nil {
		return ""
	}
	return *s.ContraceptiveTime
}

// PillReminder is a contraceptive-enabled patient as seen by the pill ticker.
type PillReminder struct {
	PatientID         uuid.UUID
	TenantID          uuid.UUID
	ContraceptiveTime string
	LastSentDate      *time.Time
}
