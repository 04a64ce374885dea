package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/uni-enroll-api/api/swagger"
	"github.com/noah-isme/uni-enroll-api/internal/handler"
	"github.com/noah-isme/uni-enroll-api/internal/middleware"
	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/internal/repository"
	"github.com/noah-isme/uni-enroll-api/internal/service"
	"github.com/noah-isme/uni-enroll-api/internal/stream"
	"github.com/noah-isme/uni-enroll-api/pkg/cache"
	"github.com/noah-isme/uni-enroll-api/pkg/config"
	"github.com/noah-isme/uni-enroll-api/pkg/database"
	"github.com/noah-isme/uni-enroll-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uni-enroll-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uni-enroll-api/pkg/middleware/requestid"
	"github.com/noah-isme/uni-enroll-api/pkg/pool"
)

// @title University Enrollment API
// @version 0.1.0
// @description Course-section enrollment with asynchronous seat confirmation
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db.DB, logr); err != nil {
		logr.Sugar().Fatalw("failed to run migrations", "error", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	metricsSvc := service.NewMetricsService()

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	periodRepo := repository.NewPeriodRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, true)
	publisher := stream.NewPublisher(redisClient, cfg.Stream, logr)

	intakeSvc := service.NewIntakeService(enrollmentRepo, periodRepo, sectionRepo, publisher, metricsSvc, nil, logr)
	catalogSvc := service.NewCatalogService(periodRepo, sectionRepo, cacheSvc, logr)
	exportSvc := service.NewExportService(scheduleRepo, periodRepo, nil, nil, nil, logr)
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "uni-enroll-api",
	})

	pipeline := service.NewValidationPipeline(sectionRepo, scheduleRepo, enrollmentRepo, nil, logr)
	processor := service.NewProcessor(enrollmentRepo, pipeline, cacheSvc, metricsSvc, logr)

	// The pool context is the base context of every task handler; it
	// stays alive until all in-flight work has drained.
	poolCtx, poolCancel := context.WithCancel(context.Background())
	defer poolCancel()

	workers := pool.New("enroll-confirm", processor.Handle, pool.Config{
		Size:   cfg.Pool.Size,
		Logger: logr,
		Init: func(ctx context.Context, workerID int) error {
			return db.PingContext(ctx)
		},
		OnStats: func(st pool.Stats) {
			metricsSvc.SetPoolStats(st.Workers, st.Busy, st.Queued)
		},
	})
	if err := workers.Start(poolCtx); err != nil {
		logr.Sugar().Fatalw("failed to start worker pool", "error", err)
	}

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	consumer := stream.NewConsumer(redisClient, cfg.Stream, func(_ context.Context, event stream.Event) error {
		return workers.Submit(pool.Task{ID: event.RecordID, Payload: event, Enqueued: event.RequestedAt})
	}, logr)
	if err := consumer.Start(consumerCtx); err != nil {
		logr.Sugar().Fatalw("failed to start stream consumer", "error", err)
	}

	reconciler := service.NewReconciler(enrollmentRepo, publisher, metricsSvc, logr,
		cfg.Stream.ReconcileEvery, cfg.Stream.ReconcileAfter)
	go reconciler.Run(consumerCtx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	enrollmentHandler := handler.NewEnrollmentHandler(intakeSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	scheduleHandler := handler.NewScheduleHandler(exportSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, redisClient)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/sections", catalogHandler.Sections)
	api.GET("/periods", catalogHandler.Periods)

	protected := api.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.JWT(authSvc))
	}

	intake := protected.Group("")
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		intake.Use(limiter.Handler())
	}
	intake.POST("/enrollments", enrollmentHandler.Create)

	protected.GET("/enrollments/:id", enrollmentHandler.Get)

	selfScoped := protected.Group("")
	staffOnly := protected.Group("")
	if cfg.Auth.Enabled {
		selfScoped.Use(middleware.RBAC(string(models.RoleAdmin), string(models.RoleStaff), "SELF"))
		staffOnly.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleStaff))
	}
	selfScoped.GET("/students/:studentId/enrollments", enrollmentHandler.ListByStudent)
	selfScoped.GET("/students/:studentId/schedule/export", scheduleHandler.Export)
	staffOnly.PUT("/periods/:id/activate", catalogHandler.ActivatePeriod)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	// Intake stops first so nothing new reaches the stream, then the
	// consumer, then the pool drains in-flight confirmations.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("server shutdown", "error", err)
	}

	consumerCancel()
	consumer.Wait()
	workers.Stop()

	logr.Info("shutdown complete")
}
