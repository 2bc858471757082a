package notification

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/rs/zerolog"

	"github.com/gynecloud/notify-engine/internal/domain/cycle"
	"github.com/gynecloud/notify-engine/internal/domain/obstetrics"
	"github.com/gynecloud/notify-engine/internal/domain/patient"
	"github.com/gynecloud/notify-engine/internal/domain/settings"
	"github.com/gynecloud/notify-engine/internal/platform/clock"
	"github.com/gynecloud/notify-engine/internal/platform/db"
	"github.com/gynecloud/notify-engine/internal/platform/mailer"
	"github.com/gynecloud/notify-engine/internal/platform/metrics"
	"github.com/gynecloud/notify-engine/internal/platform/push"
)

// PillTicker sends the daily "take your pill" reminder at the patient's
// chosen time. It runs every tick interval and bypasses the pending queue.
type PillTicker struct {
	settings    SettingsStore
	patients    PatientStore
	cycles      CycleReader
	pregnancies PregnancyReader
	repo        Repository
	tx          db.Transactor
	out         Transports
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	window      time.Duration
}

type PillDeps struct {
	Settings    SettingsStore
	Patients    PatientStore
	Cycles      CycleReader
	Pregnancies PregnancyReader
	Repo        Repository
	Tx          db.Transactor
	Out         Transports
	Clock       clock.Clock
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// NewPillTicker builds a ticker for the given cadence. A reminder matches
// the tick whose wall time is closest to it, within half the interval.
func NewPillTicker(d PillDeps, interval time.Duration) *PillTicker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &PillTicker{
		settings:    d.Settings,
		patients:    d.Patients,
		cycles:      d.Cycles,
		pregnancies: d.Pregnancies,
		repo:        d.Repo,
		tx:          d.Tx,
		out:         d.Out,
		clock:       d.Clock,
		metrics:     d.Metrics,
		logger:      d.Logger.With().Str("job", "pill").Logger(),
		window:      interval / 2,
	}
}

// PillResult summarises one tick.
type PillResult struct {
	Candidates int
	Sent       int
	Failed     int
}

func (t *PillTicker) Tick(ctx context.Context) (PillResult, error) {
	var res PillResult
	now := t.clock.Now()
	today := clock.Today(t.clock)

	reminders, err := t.settings.ListContraceptiveEnabled(ctx)
	if err != nil {
		return res, fmt.Errorf("list pill reminders: %w", err)
	}
	for _, pr := range reminders {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if pr.LastSentDate != nil && clock.SameDay(*pr.LastSentDate, today) {
			continue
		}
		if !DueAt(pr.ContraceptiveTime, now, t.window) {
			continue
		}
		res.Candidates++
		sent, err := t.Remind(ctx, pr, now, today)
		if err != nil {
			res.Failed++
			t.metrics.PillReminder("error")
			t.logger.Error().Err(err).Str("patient_id", pr.PatientID.String()).Msg("pill reminder failed")
			continue
		}
		if sent {
			res.Sent++
			t.metrics.PillReminder("sent")
		}
	}
	if res.Candidates > 0 {
		t.logger.Info().Int("candidates", res.Candidates).Int("sent", res.Sent).Int("failed", res.Failed).Msg("pill tick complete")
	}
	return res, nil
}

// DueAt reports whether hhmm falls within window of now's wall time.
// Distance is circular minute-of-day, not a same-hour minute comparison:
// an 08:55 reminder is due on the 09:00 tick and a 23:55 reminder on the
// midnight tick. With quarter-hour ticks a same-hour check never matches
// reminders set at :53 to :59.
func DueAt(hhmm string, now time.Time, window time.Duration) bool {
	h, m, err := clock.ParseHHMM(hhmm)
	if err != nil {
		return false
	}
	const day = 24 * 60
	diff := (now.Hour()*60 + now.Minute()) - (h*60 + m)
	if diff < 0 {
		diff = -diff
	}
	if diff > day/2 {
		diff = day - diff
	}
	return time.Duration(diff)*time.Minute < window
}

// Remind checks the patient's state and sends the reminder under the
// settings row lock. It reports whether a reminder went out.
func (t *PillTicker) Remind(ctx context.Context, pr settings.PillReminder, now, today time.Time) (bool, error) {
	pt, err := t.patients.GetByID(ctx, pr.PatientID)
	if errors.Is(err, patient.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load patient: %w", err)
	}
	if !pt.Active {
		return false, nil
	}

	if _, err := t.pregnancies.GetActive(ctx, pt.ID); err == nil {
		return false, nil
	} else if !errors.Is(err, obstetrics.ErrNotFound) {
		return false, fmt.Errorf("load pregnancy: %w", err)
	}

	latest, err := t.cycles.Latest(ctx, pt.ID)
	if errors.Is(err, cycle.ErrNotFound) {
		t.logger.Debug().Str("patient_id", pt.ID.String()).Msg("no cycle anchor for pill schedule")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load cycle log: %w", err)
	}
	anchor := clock.InZone(latest.StartDate, today.Location())
	if anchor.After(today) {
		return false, nil
	}
	pillDay := PillDay(anchor, today)
	if RestWeek(pillDay) {
		t.metrics.PillReminder("rest_week")
		return false, nil
	}

	sent := false
	err = t.tx.InTx(ctx, func(ctx context.Context) error {
		st, err := t.settings.LockForUpdate(ctx, pt.ID)
		if err != nil {
			return fmt.Errorf("lock settings: %w", err)
		}
		if !st.ContraceptiveEnabled {
			return nil
		}
		if st.LastContraceptiveSentDate != nil && clock.SameDay(*st.LastContraceptiveSentDate, today) {
			return nil
		}

		subject := "Hora de tu píldora"
		body := fmt.Sprintf("<p>Hola %s, es hora de tomar tu píldora anticonceptiva (píldora %d de %d).</p>",
			html.EscapeString(pt.FirstName()), pillDay, activePills)
		text := mailer.PlainText(body)

		var used []string
		var errs []error
		if err := pushToPatient(ctx, t.out.Push, t.patients, t.metrics, t.logger, pt, push.Payload{
			Title:              subject,
			Body:               text,
			Tag:                "pill-" + clock.FormatDay(today),
			RequireInteraction: true,
		}); err != nil {
			errs = append(errs, fmt.Errorf("push: %w", err))
		} else {
			used = append(used, UsedPush)
		}
		if err := mailToPatient(ctx, t.out.Mail, pt, subject, body, text); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		} else {
			used = append(used, UsedEmail)
		}

		entry := &SentLog{
			Kind:        KindContraceptivePill,
			RecipientID: pt.ID,
			LocalDay:    today,
			SentAt:      now,
		}
		if len(used) == 0 {
			msg := errors.Join(errs...).Error()
			entry.Status = StatusFailed
			entry.Error = &msg
			return t.repo.AppendSentLog(ctx, entry)
		}
		if len(errs) > 0 {
			t.logger.Warn().Err(errors.Join(errs...)).Str("patient_id", pt.ID.String()).Msg("pill reminder partially delivered")
		}
		entry.Status = StatusSent
		entry.ChannelUsed = used[0]
		if len(used) == 2 {
			entry.ChannelUsed = UsedDual
		}
		if err := t.settings.MarkContraceptiveSent(ctx, pt.ID, today); err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		sent = true
		return t.repo.AppendSentLog(ctx, entry)
	})
	if err != nil {
		return false, err
	}
	return sent, nil
}
