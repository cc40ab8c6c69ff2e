package queue

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
	// Registry administration
	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.POST("/queues", h.CreateQueue)
	adminGroup.PATCH("/queues/:id", h.RenameQueue)
	adminGroup.POST("/queues/:id/disable", h.DisableQueue)
	adminGroup.POST("/queues/:id/enable", h.EnableQueue)

	// Read endpoints polled by front-desk and clinician screens
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar"))
	readGroup.GET("/queues", h.ListQueues)
	readGroup.GET("/queues/:id", h.GetQueue)
	readGroup.GET("/queues/:id/entries", h.ListEntries)
	readGroup.GET("/entries/:id", h.GetEntry)

	// Entry lifecycle
	writeGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar"))
	writeGroup.POST("/queues/:id/entries", h.Join)
	writeGroup.POST("/entries/:id/call", h.CallEntry)
	writeGroup.POST("/entries/:id/cancel", h.CancelEntry)
}

// httpError maps domain sentinels onto wire statuses. State conflicts are 409
// so a polling UI can refresh and retry; scope violations are 403 and never
// downgraded to 404.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrCrossTenantAccess):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrDuplicateActiveEntry),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrQueueDisabled):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

type createQueueRequest struct {
	Name     string       `json:"name"`
	Ordering OrderingRule `json:"ordering_rule"`
}

func (h *Handler) CreateQueue(c echo.Context) error {
	var req createQueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	def, err := h.svc.CreateQueue(c.Request().Context(), db.ScopeFromContext(c.Request().Context()), req.Name, req.Ordering)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, def)
}

type renameQueueRequest struct {
	Name string `json:"name"`
}

func (h *Handler) RenameQueue(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req renameQueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	def, err := h.svc.RenameQueue(c.Request().Context(), db.ScopeFromContext(c.Request().Context()), id, req.Name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, def)
}

func (h *Handler) DisableQueue(c echo.Context) error {
	return h.setDisabled(c, true)
}

func (h *Handler) EnableQueue(c echo.Context) error {
	return h.setDisabled(c, false)
}

func (h *Handler) setDisabled(c echo.Context, disabled bool) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	def, err := h.svc.SetQueueDisabled(c.Request().Context(), db.ScopeFromContext(c.Request().Context()), id, disabled)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, def)
}

func (h *Handler) GetQueue(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	def, err := h.svc.GetQueue(c.Request().Context(), db.ScopeFromContext(c.Request().Context()), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, def)
}

func (h *Handler) ListQueues(c echo.Context) error {
	includeDisabled := c.QueryParam("include_disabled") == "true"
	defs, err := h.svc.ListQueues(c.Request().Context(), db.ScopeFromContext(c.Request().Context()), includeDisabled)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, defs)
}

func (h *Handler) Join(c echo.Context) error {
	queueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue id")
	}
	var req JoinRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := h.svc.Join(c.Request().Context(), db.ScopeFromContext(c.Request().Context()), queueID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) ListEntries(c echo.Context) error {
	queueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue id")
	}
	pg := pagination.FromContext(c)
	includeTerminal := c.QueryParam("include_terminal") == "true"

	entries, total, err := h.svc.ListEntries(c.Request().Context(), db.ScopeFromContext(c.Request().Context()),
		queueID, includeTerminal, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.GetEntry(c.Request().Context(), db.ScopeFromContext(c.Request().Context()), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) CallEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.Call(c.Request().Context(), db.ScopeFromContext(c.Request().Context()), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) CancelEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.Cancel(c.Request().Context(), db.ScopeFromContext(c.Request().Context()), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}
