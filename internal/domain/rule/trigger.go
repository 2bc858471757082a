package rule

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Family groups triggers by the patient state they read.
type Family int

const (
	FamilyUnknown Family = iota
	// FamilyCycle triggers read menstrual-cycle or pill state and are
	// silenced by an active pregnancy.
	FamilyCycle
	FamilyPrenatal
	FamilyLifecycle
)

// Trigger is a decoded trigger_condition. Each variant matches against one
// family of context fields; a context without that family never matches.
type Trigger interface {
	Family() Family
	Match(c *Context) bool
}

type CycleDay struct{ Day int }

type DaysBeforePeriod struct{ Days int }

type DaysAfterOvulation struct{ Days int }

// Flag names a boolean cycle marker.
type Flag string

const (
	FlagOvulationDay Flag = "is_ovulation_day"
	FlagFertileStart Flag = "is_fertile_start"
	FlagFertileEnd   Flag = "is_fertile_end"
)

// CycleFlag matches a cycle marker. A stored value of false never matches.
type CycleFlag struct {
	Flag  Flag
	Value bool
}

// Contraceptive matches the pill schedule: "active_pill", "placebo" or
// "new_pack".
type Contraceptive struct{ Subtype string }

type PeriodConfirmation struct{ DayLate int }

type AnnualCheckup struct{}

// GestationWeek fires during gestational week Week. End is kept for display;
// matching uses the start week only.
type GestationWeek struct {
	Week int
	End  int
}

type PrenatalDay struct {
	Trimester int
	Day       int
}

type SymptomAlert struct{ Symptom string }

// Unknown is any shape that does not decode to a known variant.
type Unknown struct{ Raw json.RawMessage }

func (CycleDay) Family() Family           { return FamilyCycle }
func (DaysBeforePeriod) Family() Family   { return FamilyCycle }
func (DaysAfterOvulation) Family() Family { return FamilyCycle }
func (CycleFlag) Family() Family          { return FamilyCycle }
func (Contraceptive) Family() Family      { return FamilyCycle }
func (PeriodConfirmation) Family() Family { return FamilyCycle }
func (AnnualCheckup) Family() Family      { return FamilyLifecycle }
func (GestationWeek) Family() Family      { return FamilyPrenatal }
func (PrenatalDay) Family() Family        { return FamilyPrenatal }
func (SymptomAlert) Family() Family       { return FamilyPrenatal }
func (Unknown) Family() Family            { return FamilyUnknown }

func (t CycleDay) Match(c *Context) bool {
	return c.Cycle != nil && c.Cycle.CycleDay == t.Day
}

func (t DaysBeforePeriod) Match(c *Context) bool {
	return c.Cycle != nil && c.Cycle.DaysBeforePeriod == t.Days
}

func (t DaysAfterOvulation) Match(c *Context) bool {
	return c.Cycle != nil && c.Cycle.DaysAfterOvulation != nil && *c.Cycle.DaysAfterOvulation == t.Days
}

func (t CycleFlag) Match(c *Context) bool {
	if c.Cycle == nil || !t.Value {
		return false
	}
	switch t.Flag {
	case FlagOvulationDay:
		return c.Cycle.IsOvulationDay
	case FlagFertileStart:
		return c.Cycle.IsFertileStart
	case FlagFertileEnd:
		return c.Cycle.IsFertileEnd
	}
	return false
}

func (t Contraceptive) Match(c *Context) bool {
	if c.Pill == nil {
		return false
	}
	if t.Subtype == "new_pack" {
		return c.Pill.Event == "new_pack"
	}
	return c.Pill.Subtype != "" && c.Pill.Subtype == t.Subtype
}

func (t PeriodConfirmation) Match(c *Context) bool {
	return c.Cycle != nil && c.Cycle.PeriodConfirmationNeeded && c.Cycle.DaysLate == t.DayLate
}

func (AnnualCheckup) Match(c *Context) bool { return c.IsAnnualCheckup }

func (t GestationWeek) Match(c *Context) bool {
	return c.Gestation != nil && c.Gestation.Week == t.Week
}

func (t PrenatalDay) Match(c *Context) bool {
	return c.Gestation != nil && c.Gestation.Trimester == t.Trimester && c.Gestation.DayOfWeek == t.Day
}

func (t SymptomAlert) Match(c *Context) bool {
	needle := strings.ToLower(strings.TrimSpace(t.Symptom))
	if needle == "" {
		return false
	}
	for _, s := range c.Symptoms {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func (Unknown) Match(*Context) bool { return false }

// familyKeys are the discriminants; companion keys (subtype, day_late,
// semana_fin, dia) are read only alongside their discriminant.
var familyKeys = []string{
	"cycle_day", "days_before_period", "days_after_ovulation",
	"is_ovulation_day", "is_fertile_start", "is_fertile_end",
	"type", "event", "gestation_week", "semana_inicio", "trimestre", "sintoma_disparador",
}

// ParseTrigger decodes a trigger_condition. Anything that is not an object
// with exactly one discriminant key, or whose values have the wrong shape,
// yields Unknown.
func ParseTrigger(raw json.RawMessage) Trigger {
	unknown := Unknown{Raw: raw}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return unknown
	}
	var key string
	for _, k := range familyKeys {
		if _, ok := m[k]; ok {
			if key != "" {
				return unknown
			}
			key = k
		}
	}

	switch key {
	case "cycle_day":
		if n, ok := intValue(m[key]); ok {
			return CycleDay{Day: n}
		}
	case "days_before_period":
		if n, ok := intValue(m[key]); ok {
			return DaysBeforePeriod{Days: n}
		}
	case "days_after_ovulation":
		if n, ok := intValue(m[key]); ok {
			return DaysAfterOvulation{Days: n}
		}
	case "is_ovulation_day", "is_fertile_start", "is_fertile_end":
		if b, ok := boolValue(m[key]); ok {
			return CycleFlag{Flag: Flag(key), Value: b}
		}
	case "type":
		if s, ok := stringValue(m[key]); ok && s == "contraceptive" {
			sub, _ := stringValue(m["subtype"])
			switch sub {
			case "active_pill", "placebo", "new_pack":
				return Contraceptive{Subtype: sub}
			}
		}
	case "event":
		s, _ := stringValue(m[key])
		switch s {
		case "period_confirmation":
			if n, ok := intValue(m["day_late"]); ok {
				return PeriodConfirmation{DayLate: n}
			}
		case "annual_checkup":
			return AnnualCheckup{}
		}
	case "gestation_week":
		if n, ok := intValue(m[key]); ok {
			return GestationWeek{Week: n, End: n}
		}
	case "semana_inicio":
		if n, ok := intValue(m[key]); ok {
			end, ok := intValue(m["semana_fin"])
			if !ok {
				end = n
			}
			return GestationWeek{Week: n, End: end}
		}
	case "trimestre":
		t, ok1 := intValue(m[key])
		d, ok2 := intValue(m["dia"])
		if ok1 && ok2 {
			return PrenatalDay{Trimester: t, Day: d}
		}
	case "sintoma_disparador":
		if s, ok := stringValue(m[key]); ok && strings.TrimSpace(s) != "" {
			return SymptomAlert{Symptom: s}
		}
	}
	return unknown
}

// intValue accepts a JSON integer or a numeric string.
func intValue(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var n json.Number
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		n = json.Number(strings.TrimSpace(s))
	} else if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		return 0, false
	}
	return v, true
}

func boolValue(raw json.RawMessage) (bool, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseBool(s); err == nil {
			return v, true
		}
	}
	return false, false
}

func stringValue(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}
