package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestValidateTenantSlug(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"clinica-caracas", true},
		{"gyn_01", true},
		{"ab", true},
		{"a", false},
		{"", false},
		{"Clinica", false},
		{"drop;table", false},
		{"a b", false},
		{"-leading", false},
	}
	for _, tt := range tests {
		err := ValidateTenantSlug(tt.input)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateTenantSlug(%q) err = %v, want valid=%v", tt.input, err, tt.valid)
		}
	}
}

func TestTenantMiddleware_FromHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-ID", "clinica-norte")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got string
	h := TenantMiddleware()(func(c echo.Context) error {
		got = TenantFromContext(c.Request().Context())
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "clinica-norte" {
		t.Errorf("expected clinica-norte, got %q", got)
	}
}

func TestTenantMiddleware_HeaderBeatsQuery(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?tenant=query-tenant", nil)
	req.Header.Set("X-Tenant-ID", "header-tenant")
	c := e.NewContext(req, httptest.NewRecorder())

	if tid := extractTenantID(c); tid != "header-tenant" {
		t.Errorf("expected header-tenant, got %s", tid)
	}
}

func TestTenantMiddleware_Invalid(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?tenant=Bad%20Tenant", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := TenantMiddleware()(func(c echo.Context) error { return nil })(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 HTTPError, got %v", err)
	}
}

func TestTenantFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), TenantIDKey, 12345)
	if tid := TenantFromContext(ctx); tid != "" {
		t.Errorf("expected empty string when context value is wrong type, got %q", tid)
	}
}

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestNoopTransactor(t *testing.T) {
	called := false
	err := NoopTransactor{}.InTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("expected fn to run without error, called=%v err=%v", called, err)
	}
}

func TestPoolTransactor_NoPool(t *testing.T) {
	err := NewTransactor(nil).InTx(context.Background(), func(ctx context.Context) error { return nil })
	if err == nil {
		t.Error("expected error without a pool")
	}
}
