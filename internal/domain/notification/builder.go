package notification

import (
	"fmt"
	"time"

	"github.com/gynecloud/notify-engine/internal/domain/cycle"
	"github.com/gynecloud/notify-engine/internal/domain/obstetrics"
	"github.com/gynecloud/notify-engine/internal/domain/patient"
	"github.com/gynecloud/notify-engine/internal/domain/rule"
	"github.com/gynecloud/notify-engine/internal/platform/clock"
)

// Pill pack layout: 21 active pills followed by 7 placebo/rest days.
const (
	activePills = 21
	packDays    = 28
)

// Snapshot is everything the context builder reads for one patient. It is
// loaded by the caller so building stays pure.
type Snapshot struct {
	Patient     *patient.Patient
	ClinicName  string
	LatestCycle *cycle.CycleLog
	Pregnancy   *obstetrics.PregnancyLog
	Symptoms    []string
}

// BuildContext derives the evaluation context for today (local midnight in
// the clinic zone). A non-nil error is a warning: the returned context is
// still usable but carries no cycle prediction.
func BuildContext(s Snapshot, today time.Time) (*rule.Context, error) {
	loc := today.Location()
	c := &rule.Context{
		Today:       today,
		PatientName: s.Patient.FirstName(),
		ClinicName:  s.ClinicName,
		Symptoms:    s.Symptoms,
	}
	if c.Symptoms == nil {
		c.Symptoms = []string{}
	}
	c.IsAnnualCheckup = isAnniversary(s.Patient.CreatedAt.In(loc), today)

	if s.Pregnancy != nil && s.Pregnancy.Active {
		lmp := clock.InZone(s.Pregnancy.LastPeriodDate, loc)
		g := &rule.GestationState{
			Gestation:            obstetrics.GestationOn(lmp, today),
			NotificationsEnabled: s.Pregnancy.NotificationsEnabled,
		}
		due := obstetrics.EstimatedDueDate(lmp)
		if s.Pregnancy.DueDate != nil {
			due = clock.InZone(*s.Pregnancy.DueDate, loc)
		}
		g.DueDate = &due
		c.IsPregnant = true
		c.Gestation = g
		return c, nil
	}

	if s.LatestCycle == nil {
		return c, nil
	}
	anchor := clock.InZone(s.LatestCycle.StartDate, loc)
	pred, err := cycle.Predict(anchor, s.Patient.AvgCycleLength, s.Patient.AvgPeriodLength, today)
	if err != nil {
		return c, fmt.Errorf("predict cycle from %s: %w", clock.FormatDay(anchor), err)
	}
	c.Cycle = cycleState(pred, anchor, s.Patient.AvgCycleLength, today)
	c.Pill = pillState(pred.CycleDay)
	return c, nil
}

func cycleState(p cycle.Prediction, anchor time.Time, avgCycle int, today time.Time) *rule.CycleState {
	cs := &rule.CycleState{
		Prediction:       p,
		IsOvulationDay:   clock.SameDay(today, p.OvulationDate),
		IsFertileStart:   clock.SameDay(today, p.FertileWindowStart),
		IsFertileEnd:     clock.SameDay(today, p.FertileWindowEnd),
		DaysBeforePeriod: clock.DaysBetween(today, p.NextPeriodStart),
	}
	if since := clock.DaysBetween(p.OvulationDate, today); since >= 0 {
		cs.DaysAfterOvulation = &since
	}
	// Lateness is measured against the period expected one cycle after the
	// latest logged start; logging a new period moves the anchor.
	expected := clock.AddDays(anchor, avgCycle)
	if late := clock.DaysBetween(expected, today); late > 0 {
		cs.PeriodConfirmationNeeded = true
		cs.DaysLate = late
	}
	return cs
}

func pillState(cycleDay int) *rule.PillState {
	ps := &rule.PillState{Number: cycleDay}
	switch {
	case cycleDay <= activePills:
		ps.Subtype = "active_pill"
	case cycleDay <= packDays:
		ps.Subtype = "placebo"
	}
	if cycleDay == 1 {
		ps.Event = "new_pack"
	}
	return ps
}

// isAnniversary is true on the yearly return of the signup date, never in
// the signup year itself. Feb 29 signups are remembered on Feb 28 in common
// years.
func isAnniversary(created, today time.Time) bool {
	if today.Year() <= created.Year() {
		return false
	}
	month, day := created.Month(), created.Day()
	if month == time.February && day == 29 && !isLeap(today.Year()) {
		day = 28
	}
	return today.Month() == month && today.Day() == day
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// PillDay is the position in a 28-day pack counted from anchor, 1-based.
func PillDay(anchor, today time.Time) int {
	d := clock.DaysBetween(anchor, today) % packDays
	if d < 0 {
		d += packDays
	}
	return d + 1
}

// RestWeek reports whether pillDay falls on the placebo days.
func RestWeek(pillDay int) bool {
	return pillDay > activePills
}
