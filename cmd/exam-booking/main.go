package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/akashi1113/student-system-sub001/api/swagger"
	"github.com/akashi1113/student-system-sub001/internal/handler"
	"github.com/akashi1113/student-system-sub001/internal/middleware"
	"github.com/akashi1113/student-system-sub001/internal/models"
	"github.com/akashi1113/student-system-sub001/internal/repository"
	"github.com/akashi1113/student-system-sub001/internal/service"
	"github.com/akashi1113/student-system-sub001/pkg/cache"
	"github.com/akashi1113/student-system-sub001/pkg/config"
	"github.com/akashi1113/student-system-sub001/pkg/database"
	"github.com/akashi1113/student-system-sub001/pkg/jobs"
	"github.com/akashi1113/student-system-sub001/pkg/logger"
	corsmiddleware "github.com/akashi1113/student-system-sub001/pkg/middleware/cors"
	reqidmiddleware "github.com/akashi1113/student-system-sub001/pkg/middleware/requestid"
)

// @title Exam Booking API
// @version 1.0.0
// @description Capacity-constrained exam time-slot reservation engine
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

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The engine stays correct without Redis: the slot cache turns off
		// and the reconciler mutex degrades to best effort.
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slotRepo := repository.NewSlotRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.SlotCache.TTL, logr, cfg.SlotCache.Enabled && redisClient != nil)

	var notificationSvc *service.NotificationService
	queue := jobs.NewQueue("notifications", func(ctx context.Context, job jobs.Job) error {
		return notificationSvc.Dispatch(ctx, job)
	}, jobs.QueueConfig{Workers: cfg.Notification.Workers, Logger: logr})
	notificationSvc = service.NewNotificationService(notificationRepo, queue, metrics, nil, logr)
	queue.Start(ctx)
	defer queue.Stop()

	bookingSvc := service.NewBookingService(db, slotRepo, bookingRepo, notificationSvc, cacheSvc, metrics, nil,
		service.BookingPolicy{
			CheckInEarlyWindow: cfg.Booking.CheckInEarlyWindow,
			CheckInGrace:       cfg.Booking.CheckInGrace,
			NumberPrefix:       cfg.Booking.NumberPrefix,
		}, validate, logr)
	slotSvc := service.NewSlotService(slotRepo, bookingRepo, cacheSvc, notificationSvc, validate, logr)
	exportSvc := service.NewExportService(slotRepo, bookingRepo, logr)
	reconcilerSvc := service.NewReconcilerService(bookingSvc, bookingRepo, slotRepo, cacheRepo, notificationSvc, metrics, nil,
		service.ReconcilerPolicy{
			LockTTL:            cfg.Reconciler.LockTTL,
			Retention:          cfg.Notification.Retention,
			HighPriorityAlerts: cfg.Notification.HighPriorityAlerts,
		}, logr)

	if cfg.Reconciler.Enabled {
		go reconcilerSvc.Run(ctx, cfg.Reconciler.Interval)
	}

	slotHandler := handler.NewSlotHandler(slotSvc, exportSvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	reconcileHandler := handler.NewReconcileHandler(reconcilerSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))

	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	api.GET("/slots", slotHandler.List)
	api.GET("/slots/:id", slotHandler.Get)
	api.POST("/slots", adminOnly, slotHandler.Create)
	api.PUT("/slots/:id", adminOnly, slotHandler.Update)
	api.POST("/slots/:id/cancel", adminOnly, slotHandler.Cancel)
	api.GET("/slots/:id/roster", adminOnly, slotHandler.ExportRoster)

	api.POST("/bookings", bookingHandler.Reserve)
	api.GET("/bookings", bookingHandler.List)
	api.GET("/bookings/:id", bookingHandler.Get)
	api.POST("/bookings/:id/confirm", bookingHandler.Confirm)
	api.POST("/bookings/:id/cancel", bookingHandler.Cancel)
	api.POST("/bookings/:id/check-in", bookingHandler.CheckIn)

	api.GET("/notifications", notificationHandler.List)
	api.POST("/notifications/:id/read", notificationHandler.MarkRead)

	api.POST("/admin/reconcile", adminOnly, reconcileHandler.Trigger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
