package obstetrics

import (
	"time"

	"github.com/gynecloud/notify-engine/internal/platform/clock"
)

// naegeleDays is the span from last menstrual period to estimated delivery.
const naegeleDays = 280

// GestationOn computes gestational age from the last period date. Weeks are
// whole weeks elapsed; the day of week is 1-based.
func GestationOn(lastPeriod, today time.Time) Gestation {
	days := clock.DaysBetween(lastPeriod, today)
	if days < 0 {
		days = 0
	}
	week := days / 7
	g := Gestation{
		Days:      days,
		Week:      week,
		DayOfWeek: days%7 + 1,
	}
	switch {
	case week < 14:
		g.Trimester = 1
	case week < 28:
		g.Trimester = 2
	default:
		g.Trimester = 3
	}
	return g
}

// EstimatedDueDate applies Naegele's rule.
func EstimatedDueDate(lastPeriod time.Time) time.Time {
	return clock.AddDays(lastPeriod, naegeleDays)
}
