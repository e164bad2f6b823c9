package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Capability is a yes/no permission checked in front of a core operation.
type Capability string

const (
	CapBook              Capability = "appointments.book"
	CapApprove           Capability = "appointments.approve"
	CapDelete            Capability = "appointments.delete"
	CapReadAppointments  Capability = "appointments.read"
	CapCharge            Capability = "billing.charge"
	CapSettle            Capability = "billing.settle"
	CapReadBilling       Capability = "billing.read"
	CapReadNotifications Capability = "notifications.read"
)

const (
	RoleAdmin     = "admin"
	RoleFrontDesk = "frontdesk"
	RoleLab       = "lab"
	RoleCashier   = "cashier"
	RolePatient   = "patient"
)

var roleCapabilities = map[string][]Capability{
	RoleFrontDesk: {CapBook, CapApprove, CapReadAppointments, CapReadBilling, CapCharge, CapReadNotifications},
	RoleLab:       {CapReadAppointments, CapCharge, CapReadBilling, CapReadNotifications},
	RoleCashier:   {CapReadAppointments, CapReadBilling, CapSettle, CapReadNotifications},
	RolePatient:   {CapBook, CapReadNotifications},
}

// Can reports whether any of roles grants c. Admin is granted everything.
func Can(roles []string, c Capability) bool {
	for _, r := range roles {
		if r == RoleAdmin {
			return true
		}
		for _, granted := range roleCapabilities[r] {
			if granted == c {
				return true
			}
		}
	}
	return false
}

// CanContext checks the roles of the authenticated user in ctx.
func CanContext(ctx context.Context, c Capability) bool {
	return Can(RolesFromContext(ctx), c)
}

// RequireCapability rejects requests whose user lacks c with 403.
func RequireCapability(c Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			if !CanContext(ec.Request().Context(), c) {
				return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("missing capability: %s", c))
			}
			return next(ec)
		}
	}
}
