package scheduling

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/AlarisGit/FamilyHealth/internal/platform/apierror"
	"github.com/AlarisGit/FamilyHealth/internal/platform/auth"
	"github.com/AlarisGit/FamilyHealth/internal/platform/validate"
	"github.com/AlarisGit/FamilyHealth/pkg/localtime"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the slot and visit endpoints. mw must include
// auth.CallerMiddleware.
func (h *Handler) RegisterRoutes(api *echo.Group, mw ...echo.MiddlewareFunc) {
	api.GET("/slots/search", h.SearchSlots, mw...)
	api.POST("/visits", h.BookVisit, mw...)
	api.GET("/visits", h.ListVisits, mw...)
	api.DELETE("/visits/:id", h.CancelVisit, mw...)
}

func callerOf(ctx context.Context) (auth.Caller, error) {
	caller, ok := auth.CallerFromContext(ctx)
	if !ok {
		return auth.Caller{}, apierror.InvalidRequest("patient_id is required")
	}
	return caller, nil
}

// -- Slots --

type slotSearchParams struct {
	Type        string `query:"type" validate:"required,oneof=doctor service"`
	TimeFrom    string `query:"time_from" validate:"required,localtime"`
	TimeTo      string `query:"time_to" validate:"required,localtime"`
	District    string `query:"district" validate:"max=100"`
	ClinicID    int64  `query:"clinic_id" validate:"gte=0"`
	DirectionID int64  `query:"direction_id" validate:"gte=0"`
	DoctorName  string `query:"doctor_name" validate:"max=100"`
	ServiceID   int64  `query:"service_id" validate:"gte=0"`
	IncludeBusy bool   `query:"include_busy"`
}

func (h *Handler) SearchSlots(c echo.Context) error {
	caller, err := callerOf(c.Request().Context())
	if err != nil {
		return err
	}
	if busy, _ := strconv.ParseBool(c.QueryParam("include_busy")); busy && !caller.Privileged {
		return apierror.Forbidden("include_busy is only available to privileged callers")
	}
	var p slotSearchParams
	if err := validate.Bind(c, &p); err != nil {
		return err
	}

	kind, _ := ParseSlotKind(p.Type)
	from, _ := localtime.Parse(p.TimeFrom)
	to, _ := localtime.Parse(p.TimeTo)

	slots, err := h.svc.SearchSlots(c.Request().Context(), caller, SlotQuery{
		Kind:        kind,
		From:        from,
		To:          to,
		District:    p.District,
		ClinicID:    p.ClinicID,
		DirectionID: p.DirectionID,
		DoctorName:  p.DoctorName,
		ServiceID:   p.ServiceID,
		IncludeBusy: p.IncludeBusy,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": slots})
}

// -- Visits --

type bookVisitBody struct {
	VisitType string `json:"visit_type" validate:"required,oneof=DOCTOR SERVICE"`
	DoctorID  *int64 `json:"doctor_id"`
	ServiceID *int64 `json:"service_id"`
	ClinicID  *int64 `json:"clinic_id"`
	Start     string `json:"start" validate:"required,localtime"`
}

func (h *Handler) BookVisit(c echo.Context) error {
	caller, err := callerOf(c.Request().Context())
	if err != nil {
		return err
	}
	var body bookVisitBody
	if err := validate.Bind(c, &body); err != nil {
		return err
	}
	start, _ := localtime.Parse(body.Start)

	res, err := h.svc.BookVisit(c.Request().Context(), caller, BookingRequest{
		VisitType: VisitType(body.VisitType),
		DoctorID:  body.DoctorID,
		ServiceID: body.ServiceID,
		ClinicID:  body.ClinicID,
		Start:     start,
	})
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if !res.Created {
		status = http.StatusOK
	}
	return c.JSON(status, map[string]interface{}{"visit_id": res.VisitID, "status": "booked"})
}

type listVisitsParams struct {
	TimeFrom string `query:"time_from" validate:"localtime"`
	TimeTo   string `query:"time_to" validate:"localtime"`
	Scope    string `query:"scope" validate:"max=10"`
}

func (h *Handler) ListVisits(c echo.Context) error {
	caller, err := callerOf(c.Request().Context())
	if err != nil {
		return err
	}
	var p listVisitsParams
	if err := validate.Bind(c, &p); err != nil {
		return err
	}

	q := VisitQuery{Scope: p.Scope, From: optionalTime(p.TimeFrom), To: optionalTime(p.TimeTo)}
	items, err := h.svc.ListVisits(c.Request().Context(), caller, q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": items})
}

func optionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := localtime.Parse(s)
	if err != nil {
		return nil
	}
	return &t
}

func (h *Handler) CancelVisit(c echo.Context) error {
	caller, err := callerOf(c.Request().Context())
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return apierror.InvalidRequest("invalid visit id")
	}
	if err := h.svc.CancelVisit(c.Request().Context(), caller, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}
