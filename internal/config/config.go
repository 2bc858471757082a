package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"

	"github.com/gynecloud/notify-engine/internal/platform/clock"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	ClinicTimezone    string        `mapstructure:"CLINIC_TIMEZONE"`
	PlannerTime       string        `mapstructure:"PLANNER_TIME"`
	DefaultSendTime   string        `mapstructure:"DEFAULT_SEND_TIME"`
	PillTickInterval  time.Duration `mapstructure:"PILL_TICK_INTERVAL"`
	DeliveryInterval  time.Duration `mapstructure:"DELIVERY_INTERVAL"`
	DeliveryBatchSize int           `mapstructure:"DELIVERY_BATCH_SIZE"`
	MaxRetries        int           `mapstructure:"MAX_RETRIES"`
	WorkerPoolSize    int           `mapstructure:"WORKER_POOL_SIZE"`
	RetentionDays     int           `mapstructure:"RETENTION_DAYS"`

	VAPIDPublicKey  string        `mapstructure:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `mapstructure:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string        `mapstructure:"VAPID_SUBJECT"`
	PushTimeout     time.Duration `mapstructure:"PUSH_TIMEOUT"`
	PushTTL         int           `mapstructure:"PUSH_TTL"`
	PushIcon        string        `mapstructure:"PUSH_ICON"`
	PushBadge       string        `mapstructure:"PUSH_BADGE"`
	PushURL         string        `mapstructure:"PUSH_URL"`

	SMTPHost        string        `mapstructure:"SMTP_HOST"`
	SMTPPort        int           `mapstructure:"SMTP_PORT"`
	SMTPUsername    string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword    string        `mapstructure:"SMTP_PASSWORD"`
	SMTPFromAddress string        `mapstructure:"SMTP_FROM_ADDRESS"`
	SMTPFromName    string        `mapstructure:"SMTP_FROM_NAME"`
	SMTPTimeout     time.Duration `mapstructure:"SMTP_TIMEOUT"`

	OpsJWTSecret string `mapstructure:"OPS_JWT_SECRET"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"CLINIC_TIMEZONE", "PLANNER_TIME", "DEFAULT_SEND_TIME", "PILL_TICK_INTERVAL",
	"DELIVERY_INTERVAL", "DELIVERY_BATCH_SIZE", "MAX_RETRIES", "WORKER_POOL_SIZE", "RETENTION_DAYS",
	"VAPID_PUBLIC_KEY", "VAPID_PRIVATE_KEY", "VAPID_SUBJECT", "PUSH_TIMEOUT", "PUSH_TTL",
	"PUSH_ICON", "PUSH_BADGE", "PUSH_URL",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM_ADDRESS",
	"SMTP_FROM_NAME", "SMTP_TIMEOUT",
	"OPS_JWT_SECRET",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8090")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CLINIC_TIMEZONE", clock.DefaultZone)
	v.SetDefault("PLANNER_TIME", "08:00")
	v.SetDefault("DEFAULT_SEND_TIME", "09:00")
	v.SetDefault("PILL_TICK_INTERVAL", "15m")
	v.SetDefault("DELIVERY_INTERVAL", "2m")
	v.SetDefault("DELIVERY_BATCH_SIZE", 50)
	v.SetDefault("MAX_RETRIES", 5)
	v.SetDefault("WORKER_POOL_SIZE", 8)
	v.SetDefault("RETENTION_DAYS", 30)
	v.SetDefault("PUSH_TIMEOUT", "10s")
	v.SetDefault("PUSH_TTL", 86400)
	v.SetDefault("PUSH_ICON", "/static/icons/icon-192.png")
	v.SetDefault("PUSH_BADGE", "/static/icons/badge-72.png")
	v.SetDefault("PUSH_URL", "/")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM_NAME", "Tu Clínica")
	v.SetDefault("SMTP_TIMEOUT", "15s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.OpsJWTSecret == "" {
		log.Println("WARNING: ops API is unauthenticated (ENV=development, OPS_JWT_SECRET empty)")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the engine is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves the clinic timezone.
func (c *Config) Location() (*time.Location, error) {
	return clock.LoadZone(c.ClinicTimezone)
}

// PushEnabled reports whether a VAPID key pair is configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPrivateKey != "" && c.VAPIDPublicKey != ""
}

// EmailEnabled reports whether an SMTP relay is configured.
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFromAddress != ""
}

// Validate checks that the configuration is safe to run the engine with.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("CLINIC_TIMEZONE: %w", err)
	}
	if _, _, err := clock.ParseHHMM(c.PlannerTime); err != nil {
		return fmt.Errorf("PLANNER_TIME: %w", err)
	}
	if _, _, err := clock.ParseHHMM(c.DefaultSendTime); err != nil {
		return fmt.Errorf("DEFAULT_SEND_TIME: %w", err)
	}
	if c.PillTickInterval <= 0 {
		return fmt.Errorf("PILL_TICK_INTERVAL must be positive, got %s", c.PillTickInterval)
	}
	if c.DeliveryInterval <= 0 {
		return fmt.Errorf("DELIVERY_INTERVAL must be positive, got %s", c.DeliveryInterval)
	}
	if c.DeliveryBatchSize <= 0 {
		return fmt.Errorf("DELIVERY_BATCH_SIZE must be positive, got %d", c.DeliveryBatchSize)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.MaxRetries)
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("WORKER_POOL_SIZE must be at least 1, got %d", c.WorkerPoolSize)
	}
	if (c.VAPIDPrivateKey == "") != (c.VAPIDPublicKey == "") {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}
	if c.PushEnabled() && c.VAPIDSubject == "" {
		return fmt.Errorf("VAPID_SUBJECT (contact email) is required when push is enabled")
	}
	if c.IsProduction() && c.OpsJWTSecret == "" {
		return fmt.Errorf("OPS_JWT_SECRET is required in production")
	}
	return nil
}
