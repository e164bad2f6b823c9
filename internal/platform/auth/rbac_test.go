package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestCan(t *testing.T) {
	tests := []struct {
		roles []string
		cap   Capability
		want  bool
	}{
		{[]string{RoleAdmin}, CapDelete, true},
		{[]string{RoleFrontDesk}, CapApprove, true},
		{[]string{RoleFrontDesk}, CapSettle, false},
		{[]string{RoleLab}, CapCharge, true},
		{[]string{RoleLab}, CapApprove, false},
		{[]string{RoleCashier}, CapSettle, true},
		{[]string{RolePatient}, CapBook, true},
		{[]string{RolePatient}, CapReadBilling, false},
		{[]string{"patient", "cashier"}, CapSettle, true},
		{nil, CapReadNotifications, false},
		{[]string{"unknown"}, CapBook, false},
	}
	for _, tt := range tests {
		if got := Can(tt.roles, tt.cap); got != tt.want {
			t.Errorf("Can(%v, %s) = %v, want %v", tt.roles, tt.cap, got, tt.want)
		}
	}
}

func TestRequireCapability(t *testing.T) {
	e := echo.New()
	handler := RequireCapability(CapSettle)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithUser(context.Background(), uuid.New(), []string{RoleLab}))
	err := handler(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithUser(context.Background(), uuid.New(), []string{RoleCashier}))
	rec := httptest.NewRecorder()
	if err := handler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}
