package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gynecloud/notify-engine/internal/config"
	"github.com/gynecloud/notify-engine/internal/platform/auth"
)

func noop(context.Context) error { return nil }

func TestJobTable(t *testing.T) {
	cfg := &config.Config{
		PlannerTime:      "08:00",
		PillTickInterval: 15 * time.Minute,
		DeliveryInterval: 90 * time.Second,
	}
	jobs, err := jobTable(cfg, jobRunners{planner: noop, pill: noop, delivery: noop, cleanup: noop})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{
		jobPlanner:  "0 8 * * *",
		jobPill:     "*/15 * * * *",
		jobDelivery: "@every 1m30s",
		jobCleanup:  cleanupSpec,
	}
	if len(jobs) != len(want) {
		t.Fatalf("got %d jobs, want %d", len(jobs), len(want))
	}
	for _, j := range jobs {
		if j.Spec != want[j.Name] {
			t.Errorf("%s spec = %q, want %q", j.Name, j.Spec, want[j.Name])
		}
		if j.Run == nil || j.LockTTL <= 0 {
			t.Errorf("%s: incomplete job %+v", j.Name, j)
		}
	}
}

func TestJobTable_BadPlannerTime(t *testing.T) {
	cfg := &config.Config{PlannerTime: "8am", PillTickInterval: time.Minute, DeliveryInterval: time.Minute}
	if _, err := jobTable(cfg, jobRunners{}); err == nil {
		t.Error("expected error for malformed PLANNER_TIME")
	}
}

func TestParseDay(t *testing.T) {
	loc := time.FixedZone("VET", -4*3600)
	d, err := parseDay("2026-03-01", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Location() != loc || d.Day() != 1 || d.Hour() != 0 {
		t.Errorf("parseDay = %s", d)
	}
	if _, err := parseDay("01/03/2026", loc); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestNewTransports(t *testing.T) {
	out := newTransports(&config.Config{})
	if out.Push != nil || out.Mail != nil {
		t.Error("unconfigured transports must be nil interfaces")
	}

	out = newTransports(&config.Config{
		VAPIDPublicKey:  "pub",
		VAPIDPrivateKey: "priv",
		VAPIDSubject:    "ops@clinica.example",
		SMTPHost:        "smtp.example.com",
		SMTPFromAddress: "no-reply@clinica.example",
	})
	if out.Push == nil || out.Mail == nil {
		t.Error("configured transports should be set")
	}
}

func TestOpsAuth(t *testing.T) {
	secret := "s3cret"
	e := echo.New()
	e.Use(opsAuth(&config.Config{Env: "production", OpsJWTSecret: secret}, zerolog.Nop()))
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/api/v1/jobs", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health without token = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("/api/v1/jobs without token = %d, want 401", rec.Code)
	}

	tok, err := auth.IssueToken([]byte(secret), "tester", []string{auth.RoleViewer}, time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("/api/v1/jobs with token = %d, want 200", rec.Code)
	}
}

func TestOpsAuth_DevWithoutSecret(t *testing.T) {
	e := echo.New()
	e.Use(opsAuth(&config.Config{Env: "development"}, zerolog.Nop()))
	e.GET("/api/v1/jobs", func(c echo.Context) error {
		roles := auth.RolesFromContext(c.Request().Context())
		if len(roles) != 1 || roles[0] != auth.RoleOps {
			return c.NoContent(http.StatusForbidden)
		}
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("dev request = %d, want 200", rec.Code)
	}
}
