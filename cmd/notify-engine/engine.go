package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gynecloud/notify-engine/internal/config"
	"github.com/gynecloud/notify-engine/internal/domain/cycle"
	"github.com/gynecloud/notify-engine/internal/domain/notification"
	"github.com/gynecloud/notify-engine/internal/domain/obstetrics"
	"github.com/gynecloud/notify-engine/internal/domain/patient"
	"github.com/gynecloud/notify-engine/internal/domain/rule"
	"github.com/gynecloud/notify-engine/internal/domain/settings"
	"github.com/gynecloud/notify-engine/internal/domain/tenant"
	"github.com/gynecloud/notify-engine/internal/platform/clock"
	"github.com/gynecloud/notify-engine/internal/platform/db"
	"github.com/gynecloud/notify-engine/internal/platform/joblock"
	"github.com/gynecloud/notify-engine/internal/platform/mailer"
	"github.com/gynecloud/notify-engine/internal/platform/metrics"
	"github.com/gynecloud/notify-engine/internal/platform/push"
	"github.com/gynecloud/notify-engine/internal/platform/scheduler"
)

// Job names accepted by the scheduler, `run` and the ops API.
const (
	jobPlanner  = "planner"
	jobPill     = "pill"
	jobDelivery = "delivery"
	jobCleanup  = "cleanup"
)

const cleanupSpec = "30 3 * * *"

// engine is the wired set of jobs shared by `serve` and `run`.
type engine struct {
	pool          *pgxpool.Pool
	redis         *redis.Client
	clock         clock.Clock
	metrics       *metrics.Metrics
	scheduler     *scheduler.Scheduler
	notifications notification.Repository
}

func newEngine(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*engine, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("connected to database")

	eng := &engine{
		pool:    pool,
		clock:   clock.NewSystem(loc),
		metrics: metrics.New(),
	}

	var locker joblock.Locker
	if cfg.RedisURL != "" {
		client, err := joblock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, err
		}
		eng.redis = client
		locker = joblock.NewRedis(client)
		logger.Info().Msg("using redis job locks")
	} else {
		locker = joblock.NewPostgres(pool)
		logger.Info().Msg("using postgres advisory job locks")
	}

	tx := db.NewTransactor(pool)
	tenants := tenant.NewRepoPG(pool)
	patients := patient.NewRepoPG(pool)
	cycles := cycle.NewRepoPG(pool)
	pregnancies := obstetrics.NewPregnancyRepoPG(pool)
	rules := rule.NewRepoPG(pool)
	prefs := settings.NewService(settings.NewRepoPG(pool))
	eng.notifications = notification.NewRepoPG(pool)
	out := newTransports(cfg)

	planner := notification.NewPlanner(notification.PlannerDeps{
		Tenants:     tenants,
		Patients:    patients,
		Cycles:      cycles,
		Pregnancies: pregnancies,
		Settings:    prefs,
		Rules:       rules,
		Repo:        eng.notifications,
		Tx:          tx,
		Clock:       eng.clock,
		Metrics:     eng.metrics,
		Logger:      logger,
	}, notification.PlannerConfig{
		DefaultSendTime: cfg.DefaultSendTime,
		Workers:         cfg.WorkerPoolSize,
	})
	pill := notification.NewPillTicker(notification.PillDeps{
		Settings:    prefs,
		Patients:    patients,
		Cycles:      cycles,
		Pregnancies: pregnancies,
		Repo:        eng.notifications,
		Tx:          tx,
		Out:         out,
		Clock:       eng.clock,
		Metrics:     eng.metrics,
		Logger:      logger,
	}, cfg.PillTickInterval)
	deliverer := notification.NewDeliverer(eng.notifications, patients, tx, out, eng.clock, eng.metrics, logger,
		notification.DeliveryConfig{
			BatchSize:  cfg.DeliveryBatchSize,
			MaxRetries: cfg.MaxRetries,
			Workers:    cfg.WorkerPoolSize,
		})
	cleaner := notification.NewCleaner(eng.notifications, eng.clock, cfg.RetentionDays, logger)

	jobs, err := jobTable(cfg, jobRunners{
		planner: func(ctx context.Context) error {
			_, err := planner.Run(ctx)
			return err
		},
		pill: func(ctx context.Context) error {
			_, err := pill.Tick(ctx)
			return err
		},
		delivery: func(ctx context.Context) error {
			_, err := deliverer.Drain(ctx)
			return err
		},
		cleanup: func(ctx context.Context) error {
			_, err := cleaner.Run(ctx)
			return err
		},
	})
	if err != nil {
		eng.Close()
		return nil, err
	}
	eng.scheduler = scheduler.New(loc, locker, logger, scheduler.WithMetrics(eng.metrics))
	for _, j := range jobs {
		if err := eng.scheduler.Register(j); err != nil {
			eng.Close()
			return nil, err
		}
	}
	return eng, nil
}

func (e *engine) Close() {
	if e.redis != nil {
		e.redis.Close()
	}
	e.pool.Close()
}

func (e *engine) healthChecks() []db.Check {
	if e.redis == nil {
		return nil
	}
	return []db.Check{{
		Name:  "redis",
		Probe: func(ctx context.Context) error { return e.redis.Ping(ctx).Err() },
	}}
}

// newTransports builds the configured senders. Unconfigured channels stay
// nil so every attempt on them fails and the item retries or fails over.
func newTransports(cfg *config.Config) notification.Transports {
	var out notification.Transports
	if cfg.PushEnabled() {
		out.Push = push.NewClient(push.Config{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
			TTL:        cfg.PushTTL,
			Timeout:    cfg.PushTimeout,
			Icon:       cfg.PushIcon,
			Badge:      cfg.PushBadge,
			URL:        cfg.PushURL,
		})
	}
	if cfg.EmailEnabled() {
		out.Mail = mailer.NewSMTP(mailer.Config{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			FromAddress: cfg.SMTPFromAddress,
			FromName:    cfg.SMTPFromName,
			Timeout:     cfg.SMTPTimeout,
		})
	}
	return out
}

type jobRunners struct {
	planner, pill, delivery, cleanup func(ctx context.Context) error
}

// jobTable maps the engine jobs onto cron specs in the clinic zone.
func jobTable(cfg *config.Config, r jobRunners) ([]scheduler.Job, error) {
	plannerSpec, err := scheduler.DailyAt(cfg.PlannerTime)
	if err != nil {
		return nil, fmt.Errorf("PLANNER_TIME: %w", err)
	}
	return []scheduler.Job{
		{Name: jobPlanner, Spec: plannerSpec, Run: r.planner, LockTTL: time.Hour},
		{Name: jobPill, Spec: scheduler.Every(cfg.PillTickInterval), Run: r.pill, LockTTL: cfg.PillTickInterval},
		{Name: jobDelivery, Spec: scheduler.Every(cfg.DeliveryInterval), Run: r.delivery, LockTTL: 10 * time.Minute},
		{Name: jobCleanup, Spec: cleanupSpec, Run: r.cleanup, LockTTL: 30 * time.Minute},
	}, nil
}
