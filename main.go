package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	handlers "NeighborSafe/internal/handler"
	"NeighborSafe/internal/listeners"
	"NeighborSafe/internal/models"
	"NeighborSafe/internal/service"
	"NeighborSafe/pkg/backup"
	"NeighborSafe/pkg/cache"
	"NeighborSafe/pkg/config"
	"NeighborSafe/pkg/geocode"
	"NeighborSafe/pkg/logger"
	"NeighborSafe/pkg/metrics"
	"NeighborSafe/pkg/middleware"
	"NeighborSafe/pkg/notification"
	"NeighborSafe/pkg/scheduler"
	"NeighborSafe/pkg/sse"
	"NeighborSafe/pkg/util"
	"NeighborSafe/pkg/websocket"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := config.GlobalConfig
	logger.Init(cfg.Log)
	defer logger.Sync()

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := util.InitDatabase(cfg.DBDriver, cfg.DSN, cfg.Mode != "release")
	if err != nil {
		logger.L().Fatal("open database", zap.Error(err))
	}
	if err := models.Migrate(db); err != nil {
		logger.L().Fatal("migrate", zap.Error(err))
	}

	appCache, err := cache.NewCache(cache.Config{
		Type:  cfg.CacheType,
		Local: cache.DefaultConfig().Local,
		Redis: cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		},
	})
	if err != nil {
		logger.L().Fatal("init cache", zap.Error(err))
	}
	defer appCache.Close()

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.NewMetrics()
	}

	hub := websocket.NewHub(websocket.DefaultConfig())
	defer hub.Close()
	sseHub := sse.NewHub(30 * time.Second)

	listeners.InitChangeListeners(hub, sseHub)
	listeners.InitCascadeListeners(db, m)
	listeners.InitMetricsListeners(m)

	dispatcher := notification.NewEdgeDispatcher(cfg.DispatchURL, time.Duration(cfg.DispatchTimeout)*time.Second)
	geocoder := geocode.NewClient(cfg.GeocodeURL, time.Duration(cfg.GeocodeTimeout)*time.Second)

	statusSvc := service.NewStatusService(db, logger.L())
	resolver := service.NewCorrelationResolver(db, statusSvc, logger.L())
	if cfg.CorrelationWindowMinutes > 0 || cfg.CorrelationLookback > 0 {
		resolver.WithWindow(
			time.Duration(cfg.CorrelationWindowMinutes)*time.Minute,
			int(cfg.CorrelationLookback),
		)
	}
	fanout := service.NewFanoutNotifier(db, dispatcher, logger.L())

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:       "300-M",
		AddHeaders: true,
		SkipPaths:  []string{"/api/health"},
		PerRouteRates: map[string]string{
			cfg.APIPrefix + "/panic": "10-M",
		},
	}, nil)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(sessions.Sessions("session", cookie.NewStore([]byte(cfg.SessionSecret))))
	engine.Use(middleware.OperationLogMiddleware(func(c *gin.Context, record middleware.OperationRecord) {
		user := models.CurrentUser(c)
		if user == nil {
			return
		}
		entry := &models.OperationLog{
			UserID:    user.ID,
			Action:    record.Action,
			Target:    record.Target,
			IPAddress: record.IPAddress,
			Device:    record.Device,
			Browser:   record.Browser,
			OS:        record.OS,
		}
		if err := models.CreateOperationLog(db, entry); err != nil {
			logger.Warn("operation log failed", zap.Error(err))
		}
	}))
	if m != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	h := handlers.NewHandlers(db, resolver, statusSvc, fanout, geocoder, hub, sseHub, appCache, m, limiter)
	h.Register(engine)

	cron := scheduler.NewCron(time.Local)
	sweeper := service.NewStaleSweeper(db, logger.L())
	sweepExpr := cfg.StaleSweepCron
	if sweepExpr == "" {
		sweepExpr = "@hourly"
	}
	if _, err := cron.Add(sweepExpr, sweeper); err != nil {
		logger.Warn("schedule stale sweep failed", zap.Error(err))
	}
	if cfg.BackupDir != "" {
		job := backup.NewJob(cfg.DBDriver, cfg.DSN, cfg.BackupDir)
		if _, err := cron.Add(cfg.BackupSchedule, job); err != nil {
			logger.Warn("schedule backup failed", zap.Error(err))
		}
	}
	cron.Start()
	defer cron.Stop()

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: engine,
	}
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L().Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.L().Fatal("forced shutdown", zap.Error(err))
	}
}
