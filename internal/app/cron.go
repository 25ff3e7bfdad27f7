package app

import (
	"context"
	"time"

	"github.com/wsic/generator/internal/config"
	pkgcron "github.com/wsic/generator/internal/pkg/cron"
	"github.com/wsic/generator/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

const (
	staleSweepInterval = 5 * time.Minute
	purgeInterval      = 6 * time.Hour
)

// registerCronJobs registers the generation tracker maintenance jobs.
func registerCronJobs(sched *pkgcron.Scheduler, tasks *taskqueue.Service, gen config.GenerationConfig, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")

	sched.Register(pkgcron.Job{
		Name:        "fail_stale_generations",
		Description: "Fail generation requests running longer than " + humanizeDuration(gen.StaleAfter),
		Interval:    staleSweepInterval,
		Fn: func(ctx context.Context) error {
			n, err := tasks.FailStale(ctx, gen.StaleAfter)
			if err != nil {
				cronLogger.Warn("fail stale generations failed", zap.Error(err))
				return err
			}
			if n > 0 {
				cronLogger.Info("failed stale generations", zap.Int("count", n))
			}
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "purge_generation_tasks",
		Description: "Delete finished generation requests older than " + humanizeDuration(gen.Retention),
		Interval:    purgeInterval,
		Fn: func(ctx context.Context) error {
			n, err := tasks.DeleteFinished(ctx, time.Now().Add(-gen.Retention))
			if err != nil {
				cronLogger.Warn("purge generation tasks failed", zap.Error(err))
				return err
			}
			cronLogger.Info("purged generation tasks", zap.Int("count", n))
			return nil
		},
	})
}
