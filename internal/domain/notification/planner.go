package notification

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gynecloud/notify-engine/internal/domain/cycle"
	"github.com/gynecloud/notify-engine/internal/domain/obstetrics"
	"github.com/gynecloud/notify-engine/internal/domain/patient"
	"github.com/gynecloud/notify-engine/internal/domain/rule"
	"github.com/gynecloud/notify-engine/internal/domain/tenant"
	"github.com/gynecloud/notify-engine/internal/platform/clock"
	"github.com/gynecloud/notify-engine/internal/platform/db"
	"github.com/gynecloud/notify-engine/internal/platform/metrics"
)

// lateGrace is how far out an item is scheduled when its send time has
// already passed today.
const lateGrace = 5 * time.Minute

// PlannerConfig holds the planner's tunables.
type PlannerConfig struct {
	DefaultSendTime string
	Workers         int
}

// Planner evaluates every active rule for every active patient once per
// local day and enqueues what fires.
type Planner struct {
	tenants     TenantLister
	patients    PatientStore
	cycles      CycleReader
	pregnancies PregnancyReader
	settings    SettingsStore
	rules       RuleLister
	repo        Repository
	tx          db.Transactor
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	cfg         PlannerConfig
}

type PlannerDeps struct {
	Tenants     TenantLister
	Patients    PatientStore
	Cycles      CycleReader
	Pregnancies PregnancyReader
	Settings    SettingsStore
	Rules       RuleLister
	Repo        Repository
	Tx          db.Transactor
	Clock       clock.Clock
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

func NewPlanner(d PlannerDeps, cfg PlannerConfig) *Planner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.DefaultSendTime == "" {
		cfg.DefaultSendTime = "09:00"
	}
	return &Planner{
		tenants:     d.Tenants,
		patients:    d.Patients,
		cycles:      d.Cycles,
		pregnancies: d.Pregnancies,
		settings:    d.Settings,
		rules:       d.Rules,
		repo:        d.Repo,
		tx:          d.Tx,
		clock:       d.Clock,
		metrics:     d.Metrics,
		logger:      d.Logger.With().Str("job", "planner").Logger(),
		cfg:         cfg,
	}
}

// PlanResult summarises one planner run.
type PlanResult struct {
	Tenants  int
	Patients int
	Enqueued int
	Failed   int
}

// Run plans today's notifications. Failures on one patient or tenant are
// logged and counted; only a failure to list tenants aborts the run.
func (p *Planner) Run(ctx context.Context) (PlanResult, error) {
	now := p.clock.Now()
	today := clock.Today(p.clock)
	var res PlanResult

	tenants, err := p.tenants.ListActive(ctx)
	if err != nil {
		return res, fmt.Errorf("list tenants: %w", err)
	}
	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		tr, err := p.planTenant(ctx, t, now, today)
		res.Tenants++
		res.Patients += tr.Patients
		res.Enqueued += tr.Enqueued
		res.Failed += tr.Failed
		if err != nil {
			res.Failed++
			p.logger.Error().Err(err).Str("tenant_id", t.ID.String()).Msg("tenant planning failed")
		}
	}
	p.logger.Info().
		Int("tenants", res.Tenants).
		Int("patients", res.Patients).
		Int("enqueued", res.Enqueued).
		Int("failed", res.Failed).
		Str("day", clock.FormatDay(today)).
		Msg("planner run complete")
	return res, nil
}

func (p *Planner) planTenant(ctx context.Context, t *tenant.Tenant, now, today time.Time) (PlanResult, error) {
	var res PlanResult
	rules, err := p.rules.ListActiveByTenant(ctx, t.ID)
	if err != nil {
		return res, fmt.Errorf("list rules: %w", err)
	}
	if len(rules) == 0 {
		return res, nil
	}
	patients, err := p.patients.ListActiveByTenant(ctx, t.ID)
	if err != nil {
		return res, fmt.Errorf("list patients: %w", err)
	}

	var enqueued, failed int64
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for _, pt := range patients {
		pt := pt
		g.Go(func() error {
			n, err := p.PlanPatient(ctx, t, pt, rules, now, today)
			atomic.AddInt64(&enqueued, int64(n))
			if err != nil {
				atomic.AddInt64(&failed, 1)
				p.logger.Error().Err(err).
					Str("tenant_id", t.ID.String()).
					Str("patient_id", pt.ID.String()).
					Msg("patient planning failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Patients = len(patients)
	res.Enqueued = int(enqueued)
	res.Failed = int(failed)
	p.metrics.Enqueued(t.Slug, res.Enqueued)
	return res, nil
}

// PlanPatient evaluates rules for one patient and enqueues the firing ones
// in a single transaction. It returns the number of rows written.
func (p *Planner) PlanPatient(ctx context.Context, t *tenant.Tenant, pt *patient.Patient, rules []*rule.Rule, now, today time.Time) (int, error) {
	enqueued := 0
	err := p.tx.InTx(ctx, func(ctx context.Context) error {
		enqueued = 0
		snap, err := p.snapshot(ctx, t, pt, today)
		if err != nil {
			return err
		}
		st, err := p.settings.GetOrCreate(ctx, pt.ID)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		c, warn := BuildContext(snap, today)
		if warn != nil {
			p.logger.Warn().Err(warn).Str("patient_id", pt.ID.String()).Msg("cycle prediction skipped")
		}
		vars := c.Vars()

		for _, r := range rules {
			if !rule.Evaluate(r, c, st) {
				continue
			}
			if sent, err := p.repo.SentSince(ctx, r.ID, pt.ID, today); err != nil {
				return fmt.Errorf("dedup sent log: %w", err)
			} else if sent {
				continue
			}
			if open, err := p.repo.HasOpenPending(ctx, r.ID, pt.ID, today); err != nil {
				return fmt.Errorf("dedup pending: %w", err)
			} else if open {
				continue
			}

			sendTime := r.SendTime
			if sendTime == "" {
				sendTime = p.cfg.DefaultSendTime
			}
			at, err := ScheduledFor(sendTime, today, now)
			if err != nil {
				p.logger.Warn().Err(err).Str("rule_id", r.ID.String()).Msg("invalid send_time, using default")
				if at, err = ScheduledFor(p.cfg.DefaultSendTime, today, now); err != nil {
					return err
				}
			}

			content := rule.Render(r, vars)
			ok, err := p.repo.Enqueue(ctx, &Pending{
				RuleID:       r.ID,
				RecipientID:  pt.ID,
				TenantID:     t.ID,
				LocalDay:     today,
				Subject:      content.Subject,
				BodyHTML:     content.HTML,
				BodyText:     content.Text,
				ScheduledFor: at,
				Channel:      r.Channel,
				Status:       StatusPending,
			})
			if err != nil {
				return fmt.Errorf("enqueue rule %s: %w", r.ID, err)
			}
			if ok {
				enqueued++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return enqueued, nil
}

func (p *Planner) snapshot(ctx context.Context, t *tenant.Tenant, pt *patient.Patient, today time.Time) (Snapshot, error) {
	snap := Snapshot{Patient: pt, ClinicName: t.Name}

	latest, err := p.cycles.Latest(ctx, pt.ID)
	switch {
	case err == nil:
		snap.LatestCycle = latest
	case !errors.Is(err, cycle.ErrNotFound):
		return snap, fmt.Errorf("load cycle log: %w", err)
	}

	preg, err := p.pregnancies.GetActive(ctx, pt.ID)
	switch {
	case err == nil:
		snap.Pregnancy = preg
	case !errors.Is(err, obstetrics.ErrNotFound):
		return snap, fmt.Errorf("load pregnancy: %w", err)
	}

	if snap.Symptoms, err = p.patients.SymptomsOn(ctx, pt.ID, today); err != nil {
		return snap, fmt.Errorf("load symptoms: %w", err)
	}
	return snap, nil
}

// ScheduledFor returns sendTime ("HH:MM") on today's date, or now+5m when
// that moment has already passed.
func ScheduledFor(sendTime string, today, now time.Time) (time.Time, error) {
	at, err := clock.AtLocalTime(today, sendTime)
	if err != nil {
		return time.Time{}, err
	}
	if !at.After(now) {
		return now.Add(lateGrace), nil
	}
	return at, nil
}
