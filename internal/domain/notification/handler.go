package notification

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/gynecloud/notify-engine/internal/platform/auth"
	"github.com/gynecloud/notify-engine/internal/platform/clock"
	"github.com/gynecloud/notify-engine/internal/platform/db"
	"github.com/gynecloud/notify-engine/internal/platform/joblock"
	"github.com/gynecloud/notify-engine/internal/platform/scheduler"
	"github.com/gynecloud/notify-engine/pkg/pagination"
)

// JobRunner runs a registered engine job on demand.
type JobRunner interface {
	RunNow(ctx context.Context, name string) error
	Names() []string
}

// Handler exposes the queue and audit log to operators.
type Handler struct {
	repo  Repository
	jobs  JobRunner
	clock clock.Clock
}

func NewHandler(repo Repository, jobs JobRunner, c clock.Clock) *Handler {
	return &Handler{repo: repo, jobs: jobs, clock: c}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleViewer))
	read.GET("/notifications/stats", h.Stats)
	read.GET("/notifications/pending", h.ListPending)
	read.GET("/notifications/sent", h.ListSent)
	read.GET("/jobs", h.ListJobs)

	ops := api.Group("", auth.RequireRole(auth.RoleOps))
	ops.POST("/jobs/:job/run", h.RunJob)
}

func (h *Handler) Stats(c echo.Context) error {
	st, err := h.repo.Stats(c.Request().Context(), clock.Today(h.clock))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) filter(c echo.Context) (Filter, error) {
	pg := pagination.FromContext(c)
	f := Filter{
		TenantSlug: db.TenantFromContext(c.Request().Context()),
		Limit:      pg.Limit,
		Offset:     pg.Offset,
	}
	if v := c.QueryParam("recipient"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid recipient id")
		}
		f.RecipientID = &id
	}
	if v := c.QueryParam("status"); v != "" {
		switch s := Status(v); s {
		case StatusPending, StatusRetrying, StatusSent, StatusFailed:
			f.Status = s
		default:
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
	}
	return f, nil
}

func (h *Handler) ListPending(c echo.Context) error {
	f, err := h.filter(c)
	if err != nil {
		return err
	}
	items, total, err := h.repo.ListPending(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Pending{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, f.Limit, f.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) ListSent(c echo.Context) error {
	f, err := h.filter(c)
	if err != nil {
		return err
	}
	items, total, err := h.repo.ListSent(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*SentLog{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, f.Limit, f.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) ListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"jobs": h.jobs.Names()})
}

func (h *Handler) RunJob(c echo.Context) error {
	name := c.Param("job")
	err := h.jobs.RunNow(c.Request().Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		return echo.NewHTTPError(http.StatusNotFound, "unknown job")
	case errors.Is(err, joblock.ErrLocked):
		return echo.NewHTTPError(http.StatusConflict, "job already running")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"job": name, "status": "completed"})
}
