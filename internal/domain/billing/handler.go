package billing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/pkg/pagination"
)

// Handler exposes the reconciliation surface: billing staff review jobs the
// dispatcher could not settle and either retry them or retire them.
type Handler struct {
	repo       JobRepository
	dispatcher *Dispatcher
}

func NewHandler(repo JobRepository, dispatcher *Dispatcher) *Handler {
	return &Handler{repo: repo, dispatcher: dispatcher}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	billingGroup := api.Group("", auth.RequireRole("admin", "billing"))
	billingGroup.GET("/billing/invoice-jobs", h.ListJobs)
	billingGroup.GET("/billing/invoice-jobs/:id", h.GetJob)
	billingGroup.GET("/consultations/:id/invoice-job", h.GetJobByConsultation)
	billingGroup.POST("/billing/invoice-jobs/:id/retry", h.RetryJob)
	billingGroup.POST("/billing/invoice-jobs/:id/fail", h.FailJob)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrCrossTenantAccess):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrJobNotPending):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) ListJobs(c echo.Context) error {
	status := JobStatus(c.QueryParam("status"))
	if status == "" {
		status = JobPending
	}
	if status != JobPending && status != JobDispatching && status != JobSent && status != JobFailed {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	scope := db.ScopeFromContext(c.Request().Context())
	pg := pagination.FromContext(c)
	jobs, total, err := h.repo.ListByStatus(c.Request().Context(), scope.BranchID, status, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(jobs, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetJob(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	job, err := h.scopedJob(c, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, job)
}

func (h *Handler) GetJobByConsultation(c echo.Context) error {
	consultationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	job, err := h.repo.GetByConsultation(c.Request().Context(), consultationID)
	if err != nil {
		return httpError(err)
	}
	if job.BranchID != db.ScopeFromContext(c.Request().Context()).BranchID {
		return httpError(ErrCrossTenantAccess)
	}
	return c.JSON(http.StatusOK, job)
}

// RetryJob pushes a pending job through the dispatcher immediately instead of
// waiting for the next sweep.
func (h *Handler) RetryJob(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	job, err := h.scopedJob(c, id)
	if err != nil {
		return httpError(err)
	}
	if job.Status != JobPending {
		return httpError(ErrJobNotPending)
	}
	if err := h.dispatcher.Dispatch(c.Request().Context(), job); err != nil {
		// A lost claim means another dispatcher holds the job right now.
		if errors.Is(err, ErrJobNotPending) {
			return httpError(err)
		}
		// The delivery failure is recorded on the job; report the refreshed row.
		if refreshed, getErr := h.repo.GetByID(c.Request().Context(), id); getErr == nil {
			return c.JSON(http.StatusOK, refreshed)
		}
		return httpError(err)
	}
	refreshed, err := h.repo.GetByID(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, refreshed)
}

type failRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) FailJob(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req failRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Reason == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reason is required")
	}
	if _, err := h.scopedJob(c, id); err != nil {
		return httpError(err)
	}
	if err := h.repo.MarkFailed(c.Request().Context(), id, req.Reason); err != nil {
		return httpError(err)
	}
	job, err := h.repo.GetByID(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, job)
}

func (h *Handler) scopedJob(c echo.Context, id uuid.UUID) (*InvoiceJob, error) {
	job, err := h.repo.GetByID(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if job.BranchID != db.ScopeFromContext(c.Request().Context()).BranchID {
		return nil, ErrCrossTenantAccess
	}
	return job, nil
}
