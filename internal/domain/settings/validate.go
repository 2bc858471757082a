package settings

import (
	"errors"
	"fmt"

	"github.com/gynecloud/notify-engine/internal/platform/clock"
)

var ErrInvalidTime = errors.New("settings: contraceptive_time must be HH:MM")

// Validate enforces that an enabled pill reminder has a well-formed time.
func Validate(s *NotificationSettings) error {
	if s.ContraceptiveTime != nil && *s.ContraceptiveTime != "" {
		if _, _, err := clock.ParseHHMM(*s.ContraceptiveTime); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTime, err)
		}
	}
	if s.ContraceptiveEnabled && s.PillTime() == "" {
		return fmt.Errorf("%w: required when contraceptive reminders are enabled", ErrInvalidTime)
	}
	return nil
}
