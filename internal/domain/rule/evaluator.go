package rule

import "github.com/gynecloud/notify-engine/internal/domain/settings"

// Evaluate reports whether r fires for the given context. Master switches
// are checked first; a switch can only remove rules, never add them.
func Evaluate(r *Rule, c *Context, s *settings.NotificationSettings) bool {
	t := r.Trigger()
	if !Allowed(r, t, c, s) {
		return false
	}
	return t.Match(c)
}

// Allowed applies pregnancy dominance and the patient's master switches.
func Allowed(r *Rule, t Trigger, c *Context, s *settings.NotificationSettings) bool {
	if s == nil {
		return false
	}
	if c.IsPregnant {
		return allowedPregnant(r, t, c, s)
	}
	return allowedCycle(r, t, s)
}

func allowedPregnant(r *Rule, t Trigger, c *Context, s *settings.NotificationSettings) bool {
	switch t.Family() {
	case FamilyCycle, FamilyUnknown:
		return false
	case FamilyLifecycle:
		return true
	}
	if c.Gestation == nil || !c.Gestation.NotificationsEnabled {
		return false
	}
	switch t.(type) {
	case PrenatalDay:
		return s.PrenatalDailyTips
	case SymptomAlert:
		return s.PrenatalSymptomAlerts
	case GestationWeek:
		switch r.ResolvedSubcategory() {
		case SubcategoryUltrasound:
			return s.PrenatalUltrasoundReminders
		case SubcategoryLab:
			return s.PrenatalLabReminders
		default:
			return s.PrenatalWeekMilestones
		}
	}
	return false
}

func allowedCycle(r *Rule, t Trigger, s *settings.NotificationSettings) bool {
	if t.Family() == FamilyPrenatal || r.Type.Prenatal() {
		return false
	}
	switch t.(type) {
	case Contraceptive:
		return s.ContraceptiveEnabled
	case CycleFlag, DaysAfterOvulation:
		return s.CycleFertileWindow
	case DaysBeforePeriod:
		switch r.ResolvedSubcategory() {
		case SubcategoryRhythm:
			return s.CycleRhythmMethod
		case SubcategoryPMS:
			return s.CyclePMS
		default:
			return s.CyclePeriodPredictions
		}
	case PeriodConfirmation:
		return s.PeriodConfirmationReminder
	}
	return true
}
