package scheduling

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	lifecycle *Lifecycle
}

func NewHandler(l *Lifecycle) *Handler {
	return &Handler{lifecycle: l}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	book := api.Group("", auth.RequireCapability(auth.CapBook))
	book.POST("/appointments", h.Create)

	read := api.Group("", auth.RequireCapability(auth.CapReadAppointments))
	read.GET("/appointments", h.List)
	read.GET("/appointments/:id", h.Get)

	approve := api.Group("", auth.RequireCapability(auth.CapApprove))
	approve.POST("/appointments/:id/status", h.ChangeStatus)

	del := api.Group("", auth.RequireCapability(auth.CapDelete))
	del.DELETE("/appointments/:id", h.Delete)
	del.POST("/appointments/compact", h.Compact)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func isPatient(roles []string) bool {
	for _, r := range roles {
		if r == auth.RolePatient {
			return true
		}
	}
	return false
}

func (h *Handler) Create(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if isPatient(auth.RolesFromContext(ctx)) {
		// Patients book online for themselves and never pick their own code or price.
		user := auth.UserIDFromContext(ctx)
		req.RequestedBy = &user
		req.Source = SourceOnline
		req.PatientCode = ""
		req.BasePrice = nil
	}
	a, err := h.lifecycle.Create(ctx, req)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.lifecycle.Get(c.Request().Context(), id)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Status: Status(c.QueryParam("status")), Limit: pg.Limit, Offset: pg.Offset}
	if s := c.QueryParam("specialist_ref"); s != "" {
		ref, err := uuid.Parse(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid specialist_ref")
		}
		f.SpecialistRef = &ref
	}
	if d := c.QueryParam("date"); d != "" {
		day, err := time.ParseInLocation("2006-01-02", d, h.lifecycle.Location())
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		next := day.AddDate(0, 0, 1)
		f.From, f.To = &day, &next
	}

	items, total, err := h.lifecycle.List(c.Request().Context(), f)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

type statusRequest struct {
	Status Status `json:"status"`
}

// ChangeStatus only completes appointments. Confirming and cancelling touch
// billing and go through /approve and /cancel.
func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	switch req.Status {
	case StatusCompleted:
	case StatusConfirmed:
		return apperror.ToHTTP(apperror.Validation("status", "use POST /appointments/:id/approve to confirm"))
	case StatusCancelled:
		return apperror.ToHTTP(apperror.Validation("status", "use POST /appointments/:id/cancel to cancel"))
	default:
		return apperror.ToHTTP(apperror.Validation("status", "unsupported target status"))
	}
	a, err := h.lifecycle.ChangeStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.lifecycle.Delete(c.Request().Context(), id); err != nil {
		return apperror.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type compactRequest struct {
	Delete []uuid.UUID `json:"delete"`
}

// Compact optionally deletes appointments and renumbers patient codes.
func (h *Handler) Compact(c echo.Context) error {
	var req compactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	var (
		n   int
		err error
	)
	if len(req.Delete) > 0 {
		n, err = h.lifecycle.DeleteAndCompact(ctx, req.Delete)
	} else {
		n, err = h.lifecycle.Compact(ctx)
	}
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"renumbered": n})
}
