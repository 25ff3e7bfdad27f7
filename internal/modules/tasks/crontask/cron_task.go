package crontask

import (
	"errors"

	"github.com/gin-gonic/gin"
	pkgcron "github.com/wsic/generator/internal/pkg/cron"
	"github.com/wsic/generator/internal/pkg/response"
)

// Handler wraps the maintenance scheduler for HTTP access.
type Handler struct {
	sched *pkgcron.Scheduler
}

func NewHandler(sched *pkgcron.Scheduler) *Handler {
	return &Handler{sched: sched}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, guard ...gin.HandlerFunc) {
	g := rg.Group("/cron-task", guard...)
	g.GET("", h.list)
	g.POST("/:name/run", h.run)
}

// GET /cron-task
func (h *Handler) list(c *gin.Context) {
	response.OK(c, h.sched.List())
}

// POST /cron-task/:name/run runs a job synchronously and reports its outcome.
func (h *Handler) run(c *gin.Context) {
	name := c.Param("name")
	err := h.sched.RunNow(c.Request.Context(), name)
	switch {
	case errors.Is(err, pkgcron.ErrJobNotFound):
		response.NotFoundMsg(c, "job not found")
	case err != nil:
		response.InternalError(c, err)
	default:
		response.OK(c, gin.H{"name": name, "status": pkgcron.StatusFulfill})
	}
}
