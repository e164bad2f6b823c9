package provisioning

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/domain/billing"
	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
)

type Handler struct {
	orch *Orchestrator
}

func NewHandler(o *Orchestrator) *Handler {
	return &Handler{orch: o}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	approve := api.Group("", auth.RequireCapability(auth.CapApprove))
	approve.POST("/appointments/:id/approve", h.Approve)
	approve.POST("/appointments/:id/cancel", h.Cancel)
	approve.POST("/walk-ins", h.WalkIn)

	settle := api.Group("", auth.RequireCapability(auth.CapSettle))
	settle.POST("/billing/transactions/:id/settle", h.Settle)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func staffFrom(c echo.Context) *uuid.UUID {
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != uuid.Nil {
		return &uid
	}
	return nil
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	out, err := h.orch.ApproveAndProvision(c.Request().Context(), id, staffFrom(c))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) WalkIn(c echo.Context) error {
	var req WalkInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.StaffRef == nil {
		req.StaffRef = staffFrom(c)
	}
	out, err := h.orch.CreateWalkIn(c.Request().Context(), req)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) Settle(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var p billing.Payment
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	bill, err := h.orch.Settle(c.Request().Context(), id, p)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, bill)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.orch.Cancel(c.Request().Context(), id)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}
