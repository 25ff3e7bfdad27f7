package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/wsic/generator/internal/config"
	"github.com/wsic/generator/internal/database"
	"github.com/wsic/generator/internal/middleware"
	"github.com/wsic/generator/internal/modules/audit"
	"github.com/wsic/generator/internal/modules/embedding"
	"github.com/wsic/generator/internal/modules/generation"
	"github.com/wsic/generator/internal/modules/insertion"
	"github.com/wsic/generator/internal/modules/notify"
	pkgcron "github.com/wsic/generator/internal/pkg/cron"
	"github.com/wsic/generator/internal/pkg/metrics"
	pkgredis "github.com/wsic/generator/internal/pkg/redis"
	"github.com/wsic/generator/internal/pkg/taskqueue"
	"github.com/wsic/generator/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg     *config.AppConfig
	router  *gin.Engine
	logger  *zap.Logger
	mongo   *mongo.Client
	redis   *pkgredis.Client
	audit   *gorm.DB
	metrics *metrics.Metrics
	sched   *pkgcron.Scheduler
	cancel  context.CancelFunc
}

// New initializes the application: document store, optional redis and audit
// database, agents, workflow and routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	mongoClient, mdb, err := database.ConnectMongo(cfg.Mongo)
	if err != nil {
		return nil, fmt.Errorf("mongo: %w", err)
	}
	idxCtx, idxCancel := context.WithTimeout(context.Background(), cfg.Mongo.Timeout)
	if err := database.EnsureIndexes(idxCtx, mdb); err != nil {
		logger.Warn("ensure mongo indexes failed", zap.Error(err))
	}
	idxCancel()

	var rc *pkgredis.Client
	if cfg.RedisURL != "" {
		rc, err = pkgredis.Connect(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, request tracking and replay disabled", zap.Error(err))
			rc = nil
		}
	} else {
		logger.Info("redis_url is empty, request tracking and replay disabled")
	}

	auditDB, err := database.ConnectAudit(cfg)
	if err != nil {
		return nil, fmt.Errorf("audit database: %w", err)
	}

	m := metrics.New()
	checker, err := buildRunner(cfg.Agents.Checker, logger, m)
	if err != nil {
		return nil, err
	}
	generator, err := buildRunner(cfg.Agents.Generator, logger, m)
	if err != nil {
		return nil, err
	}

	st := store.NewMongo(mdb)
	var publisher notify.Publisher
	if rc != nil {
		publisher = rc
	}
	notifier := notify.New(st, publisher, cfg.Generation.FallbackUserID, logger)

	var (
		recorder insertion.Recorder
		auditSvc *audit.Service
	)
	if auditDB != nil {
		auditSvc = audit.NewService(auditDB)
		recorder = auditSvc
	}

	var embedder embedding.Embedder
	if e := embedding.NewOpenAIEmbedder(cfg.Embedding); e != nil {
		embedder = e
	} else {
		logger.Warn("embedding api key is empty, topics get zero vectors")
	}

	workflow := insertion.New(insertion.Options{
		Store:      st,
		Embedder:   embedder,
		Dimensions: cfg.Embedding.Dimensions,
		Notifier:   notifier,
		Recorder:   recorder,
		Metrics:    m,
		Logger:     logger,
	})

	var (
		tracker generation.Tracker
		tasks   *taskqueue.Service
	)
	if rc != nil {
		tasks = taskqueue.NewService(rc)
		tracker = tasks
	}
	svc := generation.NewService(generation.Options{
		Checker:     checker,
		Generator:   generator,
		Inserter:    workflow,
		Notifier:    notifier,
		Tracker:     tracker,
		DedupWindow: cfg.Generation.DedupWindow,
		Metrics:     m,
		Logger:      logger,
	})

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	ctx, cancel := context.WithCancel(context.Background())
	sched := pkgcron.New(logger)
	if tasks != nil {
		registerCronJobs(sched, tasks, cfg.Generation, logger)
	}
	sched.Start(ctx)

	app := &App{
		cfg:     cfg,
		router:  router,
		logger:  logger,
		mongo:   mongoClient,
		redis:   rc,
		audit:   auditDB,
		metrics: m,
		sched:   sched,
		cancel:  cancel,
	}
	app.registerRoutes(generation.NewHandler(svc, logger), auditSvc)
	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops the maintenance jobs and closes every connection.
func (a *App) Shutdown(ctx context.Context) {
	a.cancel()
	a.sched.Wait()

	if err := a.mongo.Disconnect(ctx); err != nil {
		a.logger.Warn("mongo disconnect failed", zap.Error(err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if err := database.CloseAudit(a.audit); err != nil {
		a.logger.Warn("audit database close failed", zap.Error(err))
	}
}

func corsConfig(cfg *config.AppConfig) cors.Config {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", middleware.HeaderSignature, middleware.HeaderMessageID},
		ExposeHeaders: []string{
			"Content-Length",
			middleware.HeaderReplayed,
			generation.HeaderReplayed,
			generation.HeaderRequestID,
		},
		MaxAge: 12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		c.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	} else {
		c.AllowOriginFunc = func(string) bool { return true }
	}
	return c
}
