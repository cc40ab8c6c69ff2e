package consultation

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	clinical.POST("/consultations", h.Start)
	clinical.PATCH("/consultations/:id/notes", h.UpdateNotes)

	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar"))
	readGroup.GET("/consultations/:id", h.Get)
	readGroup.GET("/consultations", h.ListByPatient)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrCrossTenantAccess):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrEntryNotCallable), errors.Is(err, ErrConsultationNotOpen):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

type startRequest struct {
	QueueEntryID   uuid.UUID  `json:"queue_entry_id"`
	ClinicianID    *uuid.UUID `json:"clinician_id,omitempty"`
	ChiefComplaint string     `json:"chief_complaint"`
}

func (h *Handler) Start(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.QueueEntryID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "queue_entry_id is required")
	}

	// Clinician defaults to the authenticated caller.
	clinicianID := uuid.Nil
	if req.ClinicianID != nil {
		clinicianID = *req.ClinicianID
	} else if uid, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); err == nil {
		clinicianID = uid
	}

	cons, err := h.svc.Start(c.Request().Context(), db.ScopeFromContext(c.Request().Context()),
		req.QueueEntryID, clinicianID, req.ChiefComplaint)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cons)
}

type notesRequest struct {
	DiagnosisNotes string `json:"diagnosis_notes"`
}

func (h *Handler) UpdateNotes(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req notesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cons, err := h.svc.UpdateNotes(c.Request().Context(), db.ScopeFromContext(c.Request().Context()), id, req.DiagnosisNotes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cons, err := h.svc.Get(c.Request().Context(), db.ScopeFromContext(c.Request().Context()), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	pg := pagination.FromContext(c)
	cons, total, err := h.svc.ListByPatient(c.Request().Context(), db.ScopeFromContext(c.Request().Context()),
		patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(cons, total, pg.Limit, pg.Offset))
}
