package rule

import (
	"strconv"
	"strings"
	"time"

	"github.com/gynecloud/notify-engine/internal/domain/cycle"
	"github.com/gynecloud/notify-engine/internal/domain/obstetrics"
)

// DateLayout is how dates are rendered into templates.
const DateLayout = "02/01/2006"

// Context is the per-patient, per-day state rules are evaluated against.
// Cycle and Gestation are mutually exclusive; a nil family means its
// triggers do not match.
type Context struct {
	Today       time.Time
	PatientName string
	ClinicName  string
	Symptoms    []string

	IsPregnant bool
	Cycle      *CycleState
	Gestation  *GestationState
	Pill       *PillState

	IsAnnualCheckup bool
}

// CycleState is the predictor output plus the day-relative markers derived
// from it.
type CycleState struct {
	cycle.Prediction

	IsOvulationDay bool
	IsFertileStart bool
	IsFertileEnd   bool
	// DaysAfterOvulation is nil before ovulation in the current cycle.
	DaysAfterOvulation *int
	DaysBeforePeriod   int

	PeriodConfirmationNeeded bool
	DaysLate                 int
}

type GestationState struct {
	obstetrics.Gestation
	DueDate              *time.Time
	NotificationsEnabled bool
}

// PillState follows the cycle day on a 21+7 pack.
type PillState struct {
	Number  int
	Subtype string
	Event   string
}

// Vars flattens the context into template variables. Absent families
// contribute no keys.
func (c *Context) Vars() map[string]string {
	v := map[string]string{
		"today":        c.Today.Format(DateLayout),
		"patient_name": c.PatientName,
		"clinic_name":  c.ClinicName,
		"symptoms":     strings.Join(c.Symptoms, ", "),
		"is_pregnant":  strconv.FormatBool(c.IsPregnant),
	}
	if cs := c.Cycle; cs != nil {
		v["cycle_day"] = strconv.Itoa(cs.CycleDay)
		v["next_period_start"] = cs.NextPeriodStart.Format(DateLayout)
		v["next_period_end"] = cs.NextPeriodEnd.Format(DateLayout)
		v["ovulation_date"] = cs.OvulationDate.Format(DateLayout)
		v["fertile_window_start"] = cs.FertileWindowStart.Format(DateLayout)
		v["fertile_window_end"] = cs.FertileWindowEnd.Format(DateLayout)
		v["phase"] = string(cs.Phase)
		v["pregnancy_probability"] = string(cs.PregnancyProbability)
		v["days_before_period"] = strconv.Itoa(cs.DaysBeforePeriod)
		if cs.DaysAfterOvulation != nil {
			v["days_after_ovulation"] = strconv.Itoa(*cs.DaysAfterOvulation)
		}
		if cs.PeriodConfirmationNeeded {
			v["days_late"] = strconv.Itoa(cs.DaysLate)
		}
	}
	if g := c.Gestation; g != nil {
		v["gestation_days"] = strconv.Itoa(g.Days)
		v["gestation_week"] = strconv.Itoa(g.Week)
		v["gestation_day_of_week"] = strconv.Itoa(g.DayOfWeek)
		v["trimester"] = strconv.Itoa(g.Trimester)
		if g.DueDate != nil {
			v["due_date"] = g.DueDate.Format(DateLayout)
		}
	}
	if p := c.Pill; p != nil {
		v["pill_number"] = strconv.Itoa(p.Number)
		v["pill_subtype"] = p.Subtype
		v["pill_event"] = p.Event
	}
	return v
}
