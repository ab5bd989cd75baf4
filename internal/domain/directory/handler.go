package directory

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/AlarisGit/FamilyHealth/internal/platform/validate"
)

type Handler struct {
	svc *Directory
}

func NewHandler(svc *Directory) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/clinics", h.ListClinics)
	api.GET("/directions", h.ListDirections)
	api.GET("/doctors", h.ListDoctors)
	api.GET("/services", h.ListServices)
}

func (h *Handler) ListClinics(c echo.Context) error {
	items, err := h.svc.ListClinics(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListDirections(c echo.Context) error {
	items, err := h.svc.ListDirections(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	var f DoctorFilter
	if err := validate.Bind(c, &f); err != nil {
		return err
	}
	items, err := h.svc.ListDoctors(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListServices(c echo.Context) error {
	var f ServiceFilter
	if err := validate.Bind(c, &f); err != nil {
		return err
	}
	items, err := h.svc.ListServices(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}
