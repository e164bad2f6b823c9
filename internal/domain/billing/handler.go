package billing

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	ledger *Ledger
	labs   *LabCharges
}

func NewHandler(ledger *Ledger, labs *LabCharges) *Handler {
	return &Handler{ledger: ledger, labs: labs}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireCapability(auth.CapReadBilling))
	read.GET("/billing/transactions", h.List)
	read.GET("/billing/transactions/:id", h.Get)
	read.GET("/appointments/:id/bill", h.PendingFor)

	charge := api.Group("", auth.RequireCapability(auth.CapCharge))
	charge.POST("/appointments/:id/bill/items", h.Merge)
	charge.POST("/visits/:id/lab-charges", h.AddLabCharges)

	settle := api.Group("", auth.RequireCapability(auth.CapSettle))
	settle.POST("/billing/transactions/:id/cancel", h.Cancel)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

type totalResponse struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Status: Status(c.QueryParam("status")), Limit: pg.Limit, Offset: pg.Offset}
	if s := c.QueryParam("appointment_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment_id")
		}
		f.AppointmentID = &id
	}
	items, total, err := h.ledger.List(c.Request().Context(), f)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	if items == nil {
		items = []*Transaction{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	t, err := h.ledger.Get(c.Request().Context(), id)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) PendingFor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	t, err := h.ledger.PendingFor(c.Request().Context(), id)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

type mergeRequest struct {
	Items []ItemInput `json:"items"`
}

func (h *Handler) Merge(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req mergeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	total, err := h.ledger.Merge(c.Request().Context(), id, req.Items)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, totalResponse{TotalAmount: total})
}

func (h *Handler) AddLabCharges(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req LabChargeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.VisitID = id
	total, err := h.labs.Add(c.Request().Context(), req)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, totalResponse{TotalAmount: total})
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	t, err := h.ledger.Cancel(c.Request().Context(), id)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}
