package workflow

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/domain/billing"
	"github.com/clinicore/clinicore/internal/domain/consultation"
	"github.com/clinicore/clinicore/internal/domain/pharmacy"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
)

type Handler struct {
	coordinator *Coordinator
}

func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole("admin", "physician"))
	clinical.POST("/consultations/:id/complete", h.Complete)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, consultation.ErrNotFound), errors.Is(err, billing.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrCrossTenantAccess):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, consultation.ErrConsultationNotOpen):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, pharmacy.ErrInvalidProductReference):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, consultation.ErrInvalidArgument), errors.Is(err, pharmacy.ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) Complete(c echo.Context) error {
	consultationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req CompleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.coordinator.Complete(c.Request().Context(), db.ScopeFromContext(c.Request().Context()),
		consultationID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}
