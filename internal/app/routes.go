package app

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wsic/generator/internal/middleware"
	"github.com/wsic/generator/internal/modules/audit"
	"github.com/wsic/generator/internal/modules/generation"
	"github.com/wsic/generator/internal/modules/health"
	"github.com/wsic/generator/internal/modules/tasks/crontask"
	"github.com/wsic/generator/internal/pkg/response"
)

const healthMessage = "Topic Generator API is running!"

func (a *App) registerRoutes(gen *generation.Handler, auditSvc *audit.Service) {
	r := a.router

	r.NoRoute(func(c *gin.Context) {
		response.NotFoundMsg(c, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{
			"ok":      0,
			"code":    http.StatusMethodNotAllowed,
			"message": "method not allowed",
		})
	})

	r.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, healthMessage)
	})
	r.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	health.RegisterRoutes(r.Group(""), a.probes()...)

	signed := middleware.Signature(a.cfg.QStash, a.logger)
	var replay middleware.ReplayStore
	if a.redis != nil {
		replay = a.redis
	}
	guard := []gin.HandlerFunc{
		signed,
		middleware.Idempotence(replay, a.cfg.Generation.ReplayTTL, a.logger),
	}

	root := r.Group("")
	gen.RegisterRoutes(root, guard...)
	crontask.NewHandler(a.sched).RegisterRoutes(root, signed)
	if auditSvc != nil {
		audit.NewHandler(auditSvc).RegisterRoutes(root)
	}
}

func (a *App) probes() []health.Probe {
	probes := []health.Probe{{
		Name:     "mongo",
		Required: true,
		Check:    func(ctx context.Context) error { return a.mongo.Ping(ctx, nil) },
	}}
	if a.redis != nil {
		probes = append(probes, health.Probe{Name: "redis", Check: a.redis.Ping})
	}
	if a.audit != nil {
		probes = append(probes, health.Probe{Name: "audit", Check: func(ctx context.Context) error {
			sqlDB, err := a.audit.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	}
	return probes
}
