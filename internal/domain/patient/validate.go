package patient

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"github.com/gynecloud/notify-engine/internal/domain/cycle"
)

var ErrInvalidSubscription = errors.New("patient: invalid push subscription")

// NormalizeEmail trims and lower-cases an address and checks its syntax.
func NormalizeEmail(email string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return "", fmt.Errorf("invalid email %q", email)
	}
	return e, nil
}

// Validate checks a patient before it is stored.
func Validate(p *Patient) error {
	var errs []string
	if _, err := NormalizeEmail(p.Email); err != nil {
		errs = append(errs, err.Error())
	}
	if err := cycle.ValidateLengths(p.AvgCycleLength, p.AvgPeriodLength); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateSubscription rejects subscriptions the push transport could never
// deliver to: non-https endpoints and missing or malformed keys.
func ValidateSubscription(s *PushSubscription) error {
	u, err := url.Parse(s.Endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: endpoint is not a URL", ErrInvalidSubscription)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("%w: endpoint must use https", ErrInvalidSubscription)
	}
	if err := validateKey("p256dh", s.P256dh, 65); err != nil {
		return err
	}
	if err := validateKey("auth", s.Auth, 16); err != nil {
		return err
	}
	return nil
}

func validateKey(name, value string, size int) error {
	if value == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidSubscription, name)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
	if err != nil {
		return fmt.Errorf("%w: %s is not base64url", ErrInvalidSubscription, name)
	}
	if len(raw) != size {
		return fmt.Errorf("%w: %s must decode to %d bytes, got %d", ErrInvalidSubscription, name, size, len(raw))
	}
	return nil
}
