package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gynecloud/notify-engine/internal/domain/patient"
	"github.com/gynecloud/notify-engine/internal/platform/clock"
	"github.com/gynecloud/notify-engine/internal/platform/db"
	"github.com/gynecloud/notify-engine/internal/platform/mailer"
	"github.com/gynecloud/notify-engine/internal/platform/metrics"
	"github.com/gynecloud/notify-engine/internal/platform/push"
)

const errRecipientGone = "recipient gone"

// Transports bundles the outbound senders. A nil sender counts as a failed
// attempt on its channel.
type Transports struct {
	Push push.Sender
	Mail mailer.Sender
}

type DeliveryConfig struct {
	BatchSize  int
	MaxRetries int
	Workers    int
}

// Deliverer drains due items from the pending queue.
type Deliverer struct {
	repo     Repository
	patients PatientStore
	tx       db.Transactor
	out      Transports
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	cfg      DeliveryConfig
}

func NewDeliverer(repo Repository, patients PatientStore, tx db.Transactor, out Transports,
	c clock.Clock, m *metrics.Metrics, logger zerolog.Logger, cfg DeliveryConfig) *Deliverer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Deliverer{
		repo:     repo,
		patients: patients,
		tx:       tx,
		out:      out,
		clock:    c,
		metrics:  m,
		logger:   logger.With().Str("job", "delivery").Logger(),
		cfg:      cfg,
	}
}

// DrainResult counts outcomes of one drain.
type DrainResult struct {
	Claimed  int
	Sent     int
	Retrying int
	Failed   int
	Skipped  int
}

// Outcome is what happened to one claimed item.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeSent
	OutcomeRetrying
	OutcomeFailed
)

// Drain delivers up to one batch of due items. Each item is claimed and
// finished in its own transaction.
func (d *Deliverer) Drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	ids, err := d.repo.ListDue(ctx, d.clock.Now(), d.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list due: %w", err)
	}

	var sent, retrying, failed, skipped int64
	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			o, err := d.DeliverOne(ctx, id)
			if err != nil {
				d.logger.Error().Err(err).Str("notification_id", id.String()).Msg("delivery failed")
				atomic.AddInt64(&skipped, 1)
				return nil
			}
			switch o {
			case OutcomeSent:
				atomic.AddInt64(&sent, 1)
			case OutcomeRetrying:
				atomic.AddInt64(&retrying, 1)
			case OutcomeFailed:
				atomic.AddInt64(&failed, 1)
			default:
				atomic.AddInt64(&skipped, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res = DrainResult{
		Claimed:  len(ids) - int(skipped),
		Sent:     int(sent),
		Retrying: int(retrying),
		Failed:   int(failed),
		Skipped:  int(skipped),
	}
	if len(ids) > 0 {
		d.logger.Info().
			Int("due", len(ids)).
			Int("sent", res.Sent).
			Int("retrying", res.Retrying).
			Int("failed", res.Failed).
			Int("skipped", res.Skipped).
			Msg("drain complete")
	}
	return res, nil
}

// DeliverOne claims and attempts a single item.
func (d *Deliverer) DeliverOne(ctx context.Context, id uuid.UUID) (Outcome, error) {
	result := OutcomeSkipped
	err := d.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := d.repo.ClaimForUpdate(ctx, id)
		if errors.Is(err, ErrNotClaimable) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}

		pt, err := d.patients.GetByID(ctx, p.RecipientID)
		if errors.Is(err, patient.ErrNotFound) || (err == nil && !pt.Active) {
			result = OutcomeFailed
			return d.finishFailed(ctx, p, errRecipientGone)
		}
		if err != nil {
			return fmt.Errorf("load recipient: %w", err)
		}

		used, attemptErr := d.attempt(ctx, p, pt)
		if used != "" {
			result = OutcomeSent
			return d.finishSent(ctx, p, used)
		}

		p.RetryCount++
		if p.RetryCount >= d.cfg.MaxRetries {
			result = OutcomeFailed
			return d.finishFailed(ctx, p, attemptErr.Error())
		}
		result = OutcomeRetrying
		msg := attemptErr.Error()
		p.Status = StatusRetrying
		p.LastError = &msg
		d.logger.Warn().Str("notification_id", p.ID.String()).Int("retry_count", p.RetryCount).
			Str("error", msg).Msg("delivery attempt failed")
		return d.repo.Update(ctx, p)
	})
	return result, err
}

// attempt tries push first for push/dual and falls back to email for
// email/dual. It returns the channel that succeeded, or the combined error.
func (d *Deliverer) attempt(ctx context.Context, p *Pending, pt *patient.Patient) (string, error) {
	var errs []string
	if p.Channel.UsesPush() {
		err := pushToPatient(ctx, d.out.Push, d.patients, d.metrics, d.logger, pt, push.Payload{
			Title: p.Subject,
			Body:  p.BodyText,
			Tag:   p.RuleID.String() + "-" + clock.FormatDay(p.LocalDay),
		})
		if err == nil {
			d.metrics.Delivery(UsedPush, "ok")
			return UsedPush, nil
		}
		d.metrics.Delivery(UsedPush, "error")
		errs = append(errs, "push: "+err.Error())
	}
	if p.Channel.UsesEmail() {
		err := mailToPatient(ctx, d.out.Mail, pt, p.Subject, p.BodyHTML, p.BodyText)
		if err == nil {
			d.metrics.Delivery(UsedEmail, "ok")
			return UsedEmail, nil
		}
		d.metrics.Delivery(UsedEmail, "error")
		errs = append(errs, "email: "+err.Error())
	}
	if len(errs) == 0 {
		errs = append(errs, fmt.Sprintf("unsupported channel %q", p.Channel))
	}
	return "", errors.New(strings.Join(errs, "; "))
}

func (d *Deliverer) finishSent(ctx context.Context, p *Pending, used string) error {
	p.Status = StatusSent
	p.LastError = nil
	if err := d.repo.Update(ctx, p); err != nil {
		return err
	}
	ruleID := p.RuleID
	return d.repo.AppendSentLog(ctx, &SentLog{
		RuleID:      &ruleID,
		Kind:        KindRule,
		RecipientID: p.RecipientID,
		LocalDay:    p.LocalDay,
		SentAt:      d.clock.Now(),
		ChannelUsed: used,
		Status:      StatusSent,
	})
}

func (d *Deliverer) finishFailed(ctx context.Context, p *Pending, reason string) error {
	p.Status = StatusFailed
	p.LastError = &reason
	d.logger.Warn().Str("notification_id", p.ID.String()).Int("retry_count", p.RetryCount).
		Str("error", reason).Msg("notification abandoned")
	if err := d.repo.Update(ctx, p); err != nil {
		return err
	}
	ruleID := p.RuleID
	return d.repo.AppendSentLog(ctx, &SentLog{
		RuleID:      &ruleID,
		Kind:        KindRule,
		RecipientID: p.RecipientID,
		LocalDay:    p.LocalDay,
		SentAt:      d.clock.Now(),
		Status:      StatusFailed,
		Error:       &reason,
	})
}

// pushToPatient fans out to every device of pt and prunes the ones the push
// service reports gone. Success means at least one device accepted.
func pushToPatient(ctx context.Context, s push.Sender, patients PatientStore, m *metrics.Metrics,
	logger zerolog.Logger, pt *patient.Patient, payload push.Payload) error {
	if s == nil {
		return push.ErrNotConfigured
	}
	subs, err := patients.ListSubscriptions(ctx, pt.ID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return errors.New("no push subscriptions")
	}
	targets := make([]push.Subscription, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, push.Subscription{
			ID:       sub.ID.String(),
			Endpoint: sub.Endpoint,
			P256dh:   sub.P256dh,
			Auth:     sub.Auth,
		})
	}

	res := push.Broadcast(ctx, s, targets, payload)
	for _, gone := range res.Gone {
		id, err := uuid.Parse(gone.ID)
		if err != nil {
			continue
		}
		if err := patients.DeleteSubscription(ctx, id); err != nil {
			return fmt.Errorf("prune subscription: %w", err)
		}
		logger.Info().Str("patient_id", pt.ID.String()).Str("subscription_id", gone.ID).Msg("pruned expired push subscription")
	}
	m.SubscriptionsPruned(len(res.Gone))
	if res.OK() {
		return nil
	}
	return res.Err()
}

func mailToPatient(ctx context.Context, s mailer.Sender, pt *patient.Patient, subject, html, text string) error {
	if s == nil {
		return mailer.ErrNotConfigured
	}
	return s.Send(ctx, mailer.Message{
		To:      pt.Email,
		ToName:  pt.FullName,
		Subject: subject,
		HTML:    html,
		Text:    text,
	})
}
