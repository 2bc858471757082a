package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"
)

type contextKey string

const TenantIDKey contextKey = "tenant_id"

var tenantSlugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,62}$`)

// ValidateTenantSlug checks a tenant slug before it reaches SQL or logs.
func ValidateTenantSlug(slug string) error {
	if !tenantSlugPattern.MatchString(slug) {
		return fmt.Errorf("invalid tenant identifier: %q", slug)
	}
	return nil
}

// TenantMiddleware scopes ops requests to a tenant slug taken from the
// X-Tenant-ID header or tenant query parameter. Requests without one are
// cross-tenant.
func TenantMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			slug := extractTenantID(c)
			if slug == "" {
				return next(c)
			}
			if err := ValidateTenantSlug(slug); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
			}

			ctx := WithTenant(c.Request().Context(), slug)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", slug)
			return next(c)
		}
	}
}

func extractTenantID(c echo.Context) string {
	if tid := c.Request().Header.Get("X-Tenant-ID"); tid != "" {
		return tid
	}
	return c.QueryParam("tenant")
}

// WithTenant stores a tenant slug in ctx.
func WithTenant(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, TenantIDKey, slug)
}

// TenantFromContext retrieves the tenant slug from context.
func TenantFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(TenantIDKey).(string)
	return tid
}
