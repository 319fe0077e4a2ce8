package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/adelegard/TouchrServer/broker"
	"github.com/adelegard/TouchrServer/config"
	"github.com/adelegard/TouchrServer/handler"
	"github.com/adelegard/TouchrServer/job"
	"github.com/adelegard/TouchrServer/middleware"
	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
)

func init() {
	// Timestamps are stored and compared in UTC.
	time.Local = time.UTC
}

func main() {
	cfg := config.Load()
	utils.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := utils.InitDB(cfg.DatabaseURL); err != nil {
		utils.Log.WithError(err).Fatal("failed to connect to database")
	}
	defer utils.CloseDB()

	// Redis is optional: without it the hub stays pod-local and favorites are not locked.
	rdb := utils.GetRedis()
	if err := utils.InitRedis(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB); err != nil {
		utils.Log.WithError(err).Warn("redis unavailable, running single-pod")
		utils.CloseRedis()
	} else {
		rdb = utils.GetRedis()
		defer utils.CloseRedis()
	}

	middleware.InitAuth(cfg.JWTSecret, time.Duration(cfg.JWTTTLHours)*time.Hour)
	db := utils.GetDB()

	sysSvc := service.NewSystemSettingsService(db)
	if err := sysSvc.InitDefaultSettings(ctx); err != nil {
		utils.Log.WithError(err).Warn("failed to init default settings")
	}
	templateSvc := service.NewNotificationTemplateService(db)
	if err := templateSvc.InitDefaultTemplates(ctx); err != nil {
		utils.Log.WithError(err).Warn("failed to init default notification templates")
	}
	accountSvc := service.NewAccountService(db, middleware.GenerateToken)
	if err := accountSvc.InitDefaultRoles(ctx, cfg.AdminUsernames...); err != nil {
		utils.Log.WithError(err).Warn("failed to init default roles")
	}

	friendSvc := service.NewFriendshipService(db)
	typeSvc := service.NewTouchTypeService(db)
	feedSvc := service.NewFeedService(db, friendSvc)
	favSvc := service.NewFavoriteService(db, rdb, typeSvc)
	touchSvc := service.NewTouchService(db, friendSvc, typeSvc, sysSvc)
	pushSvc := service.NewPushService(db, templateSvc, sysSvc)
	touchSvc.SetNotifier(pushSvc)

	hub := handler.NewHub(rdb)
	hub.StartPubSub()
	defer hub.StopPubSub()
	pushSvc.AddTransport(hub)

	if cfg.RabbitMQURL != "" {
		publisher, err := broker.Dial(cfg.RabbitMQURL, cfg.PushExchange)
		if err != nil {
			utils.Log.WithError(err).Fatal("failed to connect to RabbitMQ")
		}
		defer publisher.Close()
		pushSvc.AddTransport(publisher)
	}

	runner := job.NewRunner(db, typeSvc, sysSvc)
	scheduler := job.NewScheduler(10 * time.Minute)
	if err := scheduler.ScheduleUnusedTouchTypes(cfg.GCSchedule, runner); err != nil {
		utils.Log.WithError(err).Fatal("failed to schedule job")
	}
	scheduler.Start()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	limiter.StartCleanup(10*time.Minute, ctx.Done())

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := handler.NewRouter(handler.Services{
		Accounts:     accountSvc,
		Friends:      friendSvc,
		Types:        typeSvc,
		Touches:      touchSvc,
		Feeds:        feedSvc,
		Favorites:    favSvc,
		Pushes:       pushSvc,
		Templates:    templateSvc,
		Settings:     sysSvc,
		Jobs:         runner,
		Hub:          hub,
		TouchLimiter: limiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		utils.Log.WithField("port", cfg.Port).Info("touchr server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	<-ctx.Done()
	utils.Log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Log.WithError(err).Error("server shutdown failed")
	}
	scheduler.Stop()
	touchSvc.Wait()
}
