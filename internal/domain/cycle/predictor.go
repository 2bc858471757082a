package cycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/gynecloud/notify-engine/internal/platform/clock"
)

const (
	MinCycleLength  = 21
	MaxCycleLength  = 45
	MinPeriodLength = 1
	MaxPeriodLength = 15

	// lutealDays is the fixed distance from ovulation to the next period.
	lutealDays = 14
)

var ErrFutureAnchor = errors.New("cycle: last period start is in the future")

// ValidateLengths checks the patient's averages against the accepted ranges.
func ValidateLengths(avgCycle, avgPeriod int) error {
	if avgCycle < MinCycleLength || avgCycle > MaxCycleLength {
		return fmt.Errorf("cycle: average cycle length %d outside %d-%d", avgCycle, MinCycleLength, MaxCycleLength)
	}
	if avgPeriod < MinPeriodLength || avgPeriod > MaxPeriodLength {
		return fmt.Errorf("cycle: average period length %d outside %d-%d", avgPeriod, MinPeriodLength, MaxPeriodLength)
	}
	return nil
}

// Predict projects the current cycle from the latest period start. Both dates
// are local days; the result is a pure function of the inputs.
func Predict(lastPeriodStart time.Time, avgCycle, avgPeriod int, today time.Time) (Prediction, error) {
	if err := ValidateLengths(avgCycle, avgPeriod); err != nil {
		return Prediction{}, err
	}
	loc := today.Location()
	anchor := clock.InZone(lastPeriodStart, loc)
	today = clock.InZone(today, loc)

	elapsed := clock.DaysBetween(anchor, today)
	if elapsed < 0 {
		return Prediction{}, ErrFutureAnchor
	}

	cycleDay := elapsed%avgCycle + 1
	cycles := elapsed / avgCycle
	next := clock.AddDays(anchor, (cycles+1)*avgCycle)
	if !next.After(today) {
		next = clock.AddDays(next, avgCycle)
	}
	ovulation := clock.AddDays(next, -lutealDays)

	return Prediction{
		CycleDay:             cycleDay,
		NextPeriodStart:      next,
		NextPeriodEnd:        clock.AddDays(next, avgPeriod-1),
		OvulationDate:        ovulation,
		FertileWindowStart:   clock.AddDays(ovulation, -5),
		FertileWindowEnd:     clock.AddDays(ovulation, 1),
		Phase:                phaseFor(cycleDay, avgCycle, avgPeriod),
		PregnancyProbability: probabilityFor(clock.DaysBetween(ovulation, today)),
	}, nil
}

func phaseFor(cycleDay, avgCycle, avgPeriod int) Phase {
	switch {
	case cycleDay <= avgPeriod:
		return PhaseMenstrual
	case cycleDay < avgCycle-lutealDays:
		return PhaseFollicular
	case cycleDay <= avgCycle-lutealDays+2:
		return PhaseOvulation
	default:
		return PhaseLuteal
	}
}

func probabilityFor(daysFromOvulation int) Probability {
	if daysFromOvulation < 0 {
		daysFromOvulation = -daysFromOvulation
	}
	switch {
	case daysFromOvulation <= 1:
		return ProbabilityHigh
	case daysFromOvulation <= 3:
		return ProbabilityMedium
	default:
		return ProbabilityLow
	}
}
