package notification

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gynecloud/notify-engine/internal/domain/cycle"
	"github.com/gynecloud/notify-engine/internal/domain/obstetrics"
	"github.com/gynecloud/notify-engine/internal/domain/patient"
	"github.com/gynecloud/notify-engine/internal/platform/clock"
)

func testPatient(created time.Time) *patient.Patient {
	return &patient.Patient{
		ID:              uuid.New(),
		FullName:        "Ana Pérez",
		AvgCycleLength:  28,
		AvgPeriodLength: 5,
		Active:          true,
		CreatedAt:       created,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return clock.Date(y, m, d, vet)
}

func cycleSnapshot(anchor time.Time) Snapshot {
	pt := testPatient(time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC))
	return Snapshot{
		Patient:     pt,
		ClinicName:  "Clínica Sol",
		LatestCycle: &cycle.CycleLog{PatientID: pt.ID, StartDate: anchor},
	}
}

func TestBuildContext_OvulationDay(t *testing.T) {
	c, err := BuildContext(cycleSnapshot(dbDate(2026, 2, 1)), day(2026, 2, 15))
	if err != nil {
		t.Fatalf("unexpected warning: %v", err)
	}
	if c.PatientName != "Ana" || c.ClinicName != "Clínica Sol" {
		t.Errorf("names = %q, %q", c.PatientName, c.ClinicName)
	}
	cs := c.Cycle
	if cs == nil {
		t.Fatal("expected cycle state")
	}
	if cs.CycleDay != 15 {
		t.Errorf("cycle day = %d, want 15", cs.CycleDay)
	}
	if !cs.IsOvulationDay || cs.IsFertileStart || cs.IsFertileEnd {
		t.Errorf("flags = ovulation %v, start %v, end %v", cs.IsOvulationDay, cs.IsFertileStart, cs.IsFertileEnd)
	}
	if cs.DaysAfterOvulation == nil || *cs.DaysAfterOvulation != 0 {
		t.Errorf("days after ovulation = %v, want 0", cs.DaysAfterOvulation)
	}
	if cs.DaysBeforePeriod != 14 {
		t.Errorf("days before period = %d, want 14", cs.DaysBeforePeriod)
	}
	if cs.PeriodConfirmationNeeded {
		t.Error("period confirmation should not be needed mid-cycle")
	}
	if c.Pill == nil || c.Pill.Number != 15 || c.Pill.Subtype != "active_pill" || c.Pill.Event != "" {
		t.Errorf("pill = %+v", c.Pill)
	}

	vars := c.Vars()
	if vars["ovulation_date"] != "15/02/2026" || vars["next_period_start"] != "01/03/2026" {
		t.Errorf("vars = %v", vars)
	}
}

func TestBuildContext_FertileWindowBounds(t *testing.T) {
	snap := cycleSnapshot(dbDate(2026, 2, 1))

	c, _ := BuildContext(snap, day(2026, 2, 10))
	if !c.Cycle.IsFertileStart {
		t.Error("expected fertile window start on 2026-02-10")
	}
	if c.Cycle.DaysAfterOvulation != nil {
		t.Errorf("days after ovulation should be unset before ovulation, got %d", *c.Cycle.DaysAfterOvulation)
	}

	c, _ = BuildContext(snap, day(2026, 2, 16))
	if !c.Cycle.IsFertileEnd {
		t.Error("expected fertile window end on 2026-02-16")
	}
	if c.Cycle.DaysAfterOvulation == nil || *c.Cycle.DaysAfterOvulation != 1 {
		t.Errorf("days after ovulation = %v, want 1", c.Cycle.DaysAfterOvulation)
	}
}

func TestBuildContext_PillState(t *testing.T) {
	snap := cycleSnapshot(dbDate(2026, 2, 1))
	tests := []struct {
		on      time.Time
		number  int
		subtype string
		event   string
	}{
		{day(2026, 2, 1), 1, "active_pill", "new_pack"},
		{day(2026, 2, 21), 21, "active_pill", ""},
		{day(2026, 2, 22), 22, "placebo", ""},
		{day(2026, 2, 28), 28, "placebo", ""},
		{day(2026, 3, 1), 1, "active_pill", "new_pack"},
	}
	for _, tt := range tests {
		c, err := BuildContext(snap, tt.on)
		if err != nil {
			t.Fatalf("%s: %v", clock.FormatDay(tt.on), err)
		}
		p := c.Pill
		if p.Number != tt.number || p.Subtype != tt.subtype || p.Event != tt.event {
			t.Errorf("%s: pill = %+v", clock.FormatDay(tt.on), p)
		}
	}
}

func TestBuildContext_PillBeyondPack(t *testing.T) {
	snap := cycleSnapshot(dbDate(2026, 2, 1))
	snap.Patient.AvgCycleLength = 35

	c, _ := BuildContext(snap, day(2026, 3, 3))
	if c.Pill.Number != 31 || c.Pill.Subtype != "" {
		t.Errorf("pill = %+v, want number 31 with no subtype", c.Pill)
	}
}

func TestBuildContext_PeriodConfirmation(t *testing.T) {
	snap := cycleSnapshot(dbDate(2026, 2, 1))
	tests := []struct {
		on     time.Time
		needed bool
		late   int
	}{
		{day(2026, 3, 1), false, 0},
		{day(2026, 3, 2), true, 1},
		{day(2026, 3, 4), true, 3},
	}
	for _, tt := range tests {
		c, _ := BuildContext(snap, tt.on)
		cs := c.Cycle
		if cs.PeriodConfirmationNeeded != tt.needed || cs.DaysLate != tt.late {
			t.Errorf("%s: needed=%v late=%d, want %v %d",
				clock.FormatDay(tt.on), cs.PeriodConfirmationNeeded, cs.DaysLate, tt.needed, tt.late)
		}
	}
}

func TestBuildContext_FutureAnchorIsWarning(t *testing.T) {
	c, err := BuildContext(cycleSnapshot(dbDate(2026, 3, 10)), day(2026, 3, 1))
	if !errors.Is(err, cycle.ErrFutureAnchor) {
		t.Fatalf("expected ErrFutureAnchor, got %v", err)
	}
	if c == nil || c.Cycle != nil || c.Pill != nil {
		t.Errorf("expected usable context without cycle state, got %+v", c)
	}
	if _, ok := c.Vars()["cycle_day"]; ok {
		t.Error("cycle_day should not be rendered without a prediction")
	}
}

func TestBuildContext_NoCycleLog(t *testing.T) {
	snap := cycleSnapshot(time.Time{})
	snap.LatestCycle = nil
	c, err := BuildContext(snap, day(2026, 3, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Cycle != nil || c.IsPregnant {
		t.Errorf("expected empty context, got %+v", c)
	}
	if c.Symptoms == nil {
		t.Error("symptoms should be an empty list, not nil")
	}
}

func TestBuildContext_PregnancyOverridesCycle(t *testing.T) {
	snap := cycleSnapshot(dbDate(2026, 2, 1))
	snap.Pregnancy = &obstetrics.PregnancyLog{
		PatientID:            snap.Patient.ID,
		LastPeriodDate:       dbDate(2026, 1, 1),
		Active:               true,
		NotificationsEnabled: true,
	}

	c, err := BuildContext(snap, day(2026, 2, 15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.IsPregnant || c.Gestation == nil {
		t.Fatal("expected pregnancy context")
	}
	if c.Cycle != nil || c.Pill != nil {
		t.Error("cycle state must be absent while pregnant")
	}
	if c.Gestation.Days != 45 || c.Gestation.Week != 6 {
		t.Errorf("gestation = %+v", c.Gestation.Gestation)
	}
	if got := clock.FormatDay(*c.Gestation.DueDate); got != "2026-10-08" {
		t.Errorf("due date = %s, want 2026-10-08", got)
	}

	stored := dbDate(2026, 10, 1)
	snap.Pregnancy.DueDate = &stored
	c, _ = BuildContext(snap, day(2026, 2, 15))
	if got := clock.FormatDay(*c.Gestation.DueDate); got != "2026-10-01" {
		t.Errorf("stored due date should win, got %s", got)
	}
}

func TestBuildContext_InactivePregnancyIgnored(t *testing.T) {
	snap := cycleSnapshot(dbDate(2026, 2, 1))
	snap.Pregnancy = &obstetrics.PregnancyLog{LastPeriodDate: dbDate(2026, 1, 1), Active: false}
	c, _ := BuildContext(snap, day(2026, 2, 15))
	if c.IsPregnant || c.Cycle == nil {
		t.Error("an ended pregnancy must not suppress the cycle")
	}
}

func TestIsAnniversary(t *testing.T) {
	tests := []struct {
		name    string
		created time.Time
		today   time.Time
		want    bool
	}{
		{"signup year", day(2025, 6, 10), day(2025, 6, 10), false},
		{"first anniversary", day(2025, 6, 10), day(2026, 6, 10), true},
		{"day after", day(2025, 6, 10), day(2026, 6, 11), false},
		{"leap signup in common year", day(2024, 2, 29), day(2025, 2, 28), true},
		{"leap signup in leap year", day(2024, 2, 29), day(2028, 2, 29), true},
		{"leap signup on feb 28 of leap year", day(2024, 2, 29), day(2028, 2, 28), false},
		{"leap signup on mar 1", day(2024, 2, 29), day(2025, 3, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAnniversary(tt.created, tt.today); got != tt.want {
				t.Errorf("isAnniversary() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildContext_AnnualCheckupUsesClinicZone(t *testing.T) {
	// 02:00 UTC on June 11 is still June 10 in the clinic.
	snap := cycleSnapshot(dbDate(2026, 6, 1))
	snap.Patient.CreatedAt = time.Date(2025, 6, 11, 2, 0, 0, 0, time.UTC)

	c, _ := BuildContext(snap, day(2026, 6, 10))
	if !c.IsAnnualCheckup {
		t.Error("expected annual checkup on the local signup date")
	}
}

func TestPillDay(t *testing.T) {
	anchor := day(2026, 2, 1)
	tests := []struct {
		on   time.Time
		want int
		rest bool
	}{
		{day(2026, 2, 1), 1, false},
		{day(2026, 2, 21), 21, false},
		{day(2026, 2, 22), 22, true},
		{day(2026, 2, 23), 23, true},
		{day(2026, 2, 24), 24, true},
		{day(2026, 2, 28), 28, true},
		{day(2026, 3, 1), 1, false},
		{day(2026, 3, 29), 1, false},
	}
	for _, tt := range tests {
		got := PillDay(anchor, tt.on)
		if got != tt.want {
			t.Errorf("PillDay(%s) = %d, want %d", clock.FormatDay(tt.on), got, tt.want)
		}
		if RestWeek(got) != tt.rest {
			t.Errorf("RestWeek(%d) = %v, want %v", got, RestWeek(got), tt.rest)
		}
	}
}
