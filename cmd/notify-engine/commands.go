package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/gynecloud/notify-engine/internal/config"
	"github.com/gynecloud/notify-engine/internal/domain/cycle"
	"github.com/gynecloud/notify-engine/internal/domain/obstetrics"
	"github.com/gynecloud/notify-engine/internal/domain/patient"
	"github.com/gynecloud/notify-engine/internal/domain/rule"
	"github.com/gynecloud/notify-engine/internal/domain/tenant"
	"github.com/gynecloud/notify-engine/internal/platform/auth"
	"github.com/gynecloud/notify-engine/internal/platform/clock"
	"github.com/gynecloud/notify-engine/internal/platform/db"
	"github.com/gynecloud/notify-engine/internal/platform/push"
)

// withPool loads config, opens a pool and hands both to fn.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func clinicClock(cfg *config.Config) (clock.Clock, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return clock.NewSystem(loc), nil
}

// parseDay reads a YYYY-MM-DD flag as a local day in loc.
func parseDay(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

func uuidFlag(cmd *cobra.Command, name string) (uuid.UUID, error) {
	v, _ := cmd.Flags().GetString(name)
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s must be a UUID", name)
	}
	return id, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "run [planner|pill|delivery|cleanup]",
		Short:     "Run one engine job now and exit",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{jobPlanner, jobPill, jobDelivery, jobCleanup},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			ctx := context.Background()
			eng, err := newEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer eng.Close()
			return eng.scheduler.RunNow(ctx, args[0])
		},
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage clinics",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a clinic and seed its default rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, _ := cmd.Flags().GetString("slug")
			name, _ := cmd.Flags().GetString("name")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				svc := tenant.NewService(tenant.NewRepoPG(pool), rule.NewRepoPG(pool), db.NewTransactor(pool))
				t := &tenant.Tenant{Slug: slug, Name: name}
				seeded, err := svc.Create(ctx, t)
				if err != nil {
					return err
				}
				fmt.Printf("Created tenant %s (%s) with %d default rules.\n", t.Slug, t.ID, len(seeded))
				return nil
			})
		},
	}
	createCmd.Flags().String("slug", "", "Tenant identifier (lowercase, digits, - and _)")
	createCmd.Flags().String("name", "", "Clinic display name")
	_ = createCmd.MarkFlagRequired("slug")
	_ = createCmd.MarkFlagRequired("name")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List active clinics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				tenants, err := tenant.NewRepoPG(pool).ListActive(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSLUG\tNAME")
				for _, t := range tenants {
					fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Slug, t.Name)
				}
				return w.Flush()
			})
		},
	}

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}

func patientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Manage notification recipients",
	}

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register a patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuidFlag(cmd, "tenant")
			if err != nil {
				return err
			}
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			cycleLen, _ := cmd.Flags().GetInt("cycle-length")
			periodLen, _ := cmd.Flags().GetInt("period-length")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				p := &patient.Patient{
					TenantID:        tenantID,
					Email:           email,
					FullName:        name,
					AvgCycleLength:  cycleLen,
					AvgPeriodLength: periodLen,
				}
				if err := patient.NewService(patient.NewRepoPG(pool)).Register(ctx, p); err != nil {
					return err
				}
				fmt.Printf("Registered patient %s.\n", p.ID)
				return nil
			})
		},
	}
	registerCmd.Flags().String("tenant", "", "Clinic ID")
	registerCmd.Flags().String("email", "", "Email address")
	registerCmd.Flags().String("name", "", "Full name")
	registerCmd.Flags().Int("cycle-length", 28, "Average cycle length in days")
	registerCmd.Flags().Int("period-length", 5, "Average period length in days")

	subscribeCmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Register a Web Push subscription for a patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := uuidFlag(cmd, "patient")
			if err != nil {
				return err
			}
			endpoint, _ := cmd.Flags().GetString("endpoint")
			p256dh, _ := cmd.Flags().GetString("p256dh")
			authKey, _ := cmd.Flags().GetString("auth")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				sub := &patient.PushSubscription{PatientID: patientID, Endpoint: endpoint, P256dh: p256dh, Auth: authKey}
				if err := patient.NewService(patient.NewRepoPG(pool)).RegisterSubscription(ctx, sub); err != nil {
					return err
				}
				fmt.Printf("Subscription %s stored.\n", sub.ID)
				return nil
			})
		},
	}
	subscribeCmd.Flags().String("patient", "", "Patient ID")
	subscribeCmd.Flags().String("endpoint", "", "Push service endpoint URL")
	subscribeCmd.Flags().String("p256dh", "", "Client public key (base64url)")
	subscribeCmd.Flags().String("auth", "", "Client auth secret (base64url)")

	deactivateCmd := &cobra.Command{
		Use:   "deactivate",
		Short: "Stop all notifications for a patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := uuidFlag(cmd, "patient")
			if err != nil {
				return err
			}
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				return patient.NewService(patient.NewRepoPG(pool)).Deactivate(ctx, patientID)
			})
		},
	}
	deactivateCmd.Flags().String("patient", "", "Patient ID")

	symptomsCmd := &cobra.Command{
		Use:   "symptoms",
		Short: "Record the symptoms a patient reported for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := uuidFlag(cmd, "patient")
			if err != nil {
				return err
			}
			on, _ := cmd.Flags().GetString("date")
			tags, _ := cmd.Flags().GetStringSlice("tag")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				clk, err := clinicClock(cfg)
				if err != nil {
					return err
				}
				d := clock.Today(clk)
				if on != "" {
					if d, err = parseDay(on, clk.Location()); err != nil {
						return err
					}
				}
				return patient.NewService(patient.NewRepoPG(pool)).LogSymptoms(ctx, &patient.SymptomLog{
					PatientID: patientID,
					Date:      d,
					Symptoms:  tags,
				})
			})
		},
	}
	symptomsCmd.Flags().String("patient", "", "Patient ID")
	symptomsCmd.Flags().String("date", "", "Day (YYYY-MM-DD), default today")
	symptomsCmd.Flags().StringSlice("tag", nil, "Symptom tag, repeatable")

	cmd.AddCommand(registerCmd, subscribeCmd, deactivateCmd, symptomsCmd)
	return cmd
}

func cycleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Record menstrual cycles",
	}

	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Record a period start",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := uuidFlag(cmd, "patient")
			if err != nil {
				return err
			}
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				clk, err := clinicClock(cfg)
				if err != nil {
					return err
				}
				c := &cycle.CycleLog{PatientID: patientID}
				if c.StartDate, err = parseDay(start, clk.Location()); err != nil {
					return err
				}
				if end != "" {
					e, err := parseDay(end, clk.Location())
					if err != nil {
						return err
					}
					c.EndDate = &e
				}
				if err := cycle.NewService(cycle.NewRepoPG(pool), clk).Log(ctx, c); err != nil {
					return err
				}
				fmt.Printf("Cycle log %s recorded.\n", c.ID)
				return nil
			})
		},
	}
	logCmd.Flags().String("patient", "", "Patient ID")
	logCmd.Flags().String("start", "", "Period start (YYYY-MM-DD)")
	logCmd.Flags().String("end", "", "Period end (YYYY-MM-DD), optional")

	closeCmd := &cobra.Command{
		Use:   "close",
		Short: "Set the end date of an open period",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuidFlag(cmd, "id")
			if err != nil {
				return err
			}
			end, _ := cmd.Flags().GetString("end")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				clk, err := clinicClock(cfg)
				if err != nil {
					return err
				}
				d, err := parseDay(end, clk.Location())
				if err != nil {
					return err
				}
				return cycle.NewService(cycle.NewRepoPG(pool), clk).Close(ctx, id, d)
			})
		},
	}
	closeCmd.Flags().String("id", "", "Cycle log ID")
	closeCmd.Flags().String("end", "", "Period end (YYYY-MM-DD)")

	cmd.AddCommand(logCmd, closeCmd)
	return cmd
}

func pregnancyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pregnancy",
		Short: "Track pregnancies",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start tracking a pregnancy; cycle notifications stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := uuidFlag(cmd, "patient")
			if err != nil {
				return err
			}
			lmp, _ := cmd.Flags().GetString("lmp")
			due, _ := cmd.Flags().GetString("due")
			notify, _ := cmd.Flags().GetBool("notify")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				clk, err := clinicClock(cfg)
				if err != nil {
					return err
				}
				p := &obstetrics.PregnancyLog{PatientID: patientID, NotificationsEnabled: notify}
				if p.LastPeriodDate, err = parseDay(lmp, clk.Location()); err != nil {
					return err
				}
				if due != "" {
					d, err := parseDay(due, clk.Location())
					if err != nil {
						return err
					}
					p.DueDate = &d
				}
				if err := obstetrics.NewService(obstetrics.NewPregnancyRepoPG(pool), clk).Start(ctx, p); err != nil {
					return err
				}
				fmt.Printf("Pregnancy %s started, due %s.\n", p.ID, clock.FormatDay(*p.DueDate))
				return nil
			})
		},
	}
	startCmd.Flags().String("patient", "", "Patient ID")
	startCmd.Flags().String("lmp", "", "Last menstrual period (YYYY-MM-DD)")
	startCmd.Flags().String("due", "", "Due date (YYYY-MM-DD), default LMP + 280 days")
	startCmd.Flags().Bool("notify", true, "Send prenatal notifications")

	endCmd := &cobra.Command{
		Use:   "end",
		Short: "End the active pregnancy; cycle notifications resume",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := uuidFlag(cmd, "patient")
			if err != nil {
				return err
			}
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				clk, err := clinicClock(cfg)
				if err != nil {
					return err
				}
				return obstetrics.NewService(obstetrics.NewPregnancyRepoPG(pool), clk).End(ctx, patientID)
			})
		},
	}
	endCmd.Flags().String("patient", "", "Patient ID")

	cmd.AddCommand(startCmd, endCmd)
	return cmd
}

func vapidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vapid",
		Short: "Web Push key management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "keys",
		Short: "Generate a VAPID key pair for Web Push",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, pub, err := push.GenerateKeys()
			if err != nil {
				return err
			}
			fmt.Printf("VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
			return nil
		},
	})
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the ops API",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.OpsJWTSecret == "" {
				return fmt.Errorf("OPS_JWT_SECRET is not set")
			}
			for _, r := range roles {
				if r != auth.RoleOps && r != auth.RoleViewer {
					return fmt.Errorf("unknown role %q", r)
				}
			}
			tok, err := auth.IssueToken([]byte(cfg.OpsJWTSecret), subject, roles, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().String("subject", "operator", "Token subject")
	cmd.Flags().StringSlice("role", []string{auth.RoleViewer}, "Granted role (ops or viewer), repeatable")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
