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

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/config"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/middleware"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/event"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/gateway"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/handler"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/repository"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/service"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/shared/lock"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/shared/monitor"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/shared/mq"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/shared/sse"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/shared/storage"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting recon service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := initDatabase(cfg.Database, cfg.Server.Mode)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(entity.All()...); err != nil {
			zapLogger.Fatal("AutoMigrate recon tables failed", zap.Error(err))
		}
	}

	metrics := monitor.NewReconMetrics(prometheus.DefaultRegisterer)
	hub := sse.NewHub(zapLogger.Named("sse"))
	sinks := []event.Sink{event.NewHubSink(hub)}

	var distLock lock.DistributedLock = lock.NopLock{}
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = initRedis(cfg.Redis)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// callbacks still serialize on row locks
			zapLogger.Warn("Redis unavailable, distributed lock disabled", zap.Error(err))
		}
		distLock = lock.NewRedisLock(redisClient, cfg.Lock.Prefix)
		defer redisClient.Close()
	}

	if cfg.RabbitMQ.Enabled {
		queue := mq.New(&mq.Config{
			URL:               cfg.RabbitMQ.URL(),
			Exchange:          cfg.RabbitMQ.Exchange,
			ReconnectInterval: cfg.RabbitMQ.ReconnectInterval,
		}, zapLogger)
		go queue.Start(ctx)
		sinks = append(sinks, event.NewQueueSink(queue))
	}

	var archiver service.Archiver
	if cfg.MinIO.Enabled {
		store, err := storage.NewObjectStore(storage.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			zapLogger.Fatal("Failed to init object storage", zap.Error(err))
		}
		if err := store.EnsureBucket(ctx); err != nil {
			zapLogger.Warn("Export archive bucket unavailable", zap.Error(err))
		} else {
			archiver = store
		}
	}

	services := service.NewServices(service.Deps{
		Repos: repository.NewRepositories(db),
		Gateway: gateway.NewClient(gateway.Config{
			TmnCode:       cfg.Gateway.TmnCode,
			HashSecret:    cfg.Gateway.HashSecret,
			PayURL:        cfg.Gateway.PayURL,
			ReturnURL:     cfg.Gateway.ReturnURL,
			Locale:        cfg.Gateway.Locale,
			ExpireMinutes: cfg.Gateway.ExpireMinutes,
		}),
		Lock:     distLock,
		LockTTL:  cfg.Lock.TTL,
		Events:   event.NewDispatcher(zapLogger.Named("events"), metrics, sinks...),
		Metrics:  metrics,
		Archiver: archiver,
		Logger:   zapLogger,
	})
	handlers := handler.NewHandlers(services, handler.NewSSEHandler(hub), zapLogger)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	// event stream must not be buffered by the compressor
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/recon/events"})))

	registerRoutes(router, handlers, cfg, db, redisClient)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // Disable for SSE long-lived connections
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	stop()

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig, mode string) (*gorm.DB, error) {
	logLevel := logger.Warn
	if mode == "debug" {
		logLevel = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config, db *gorm.DB, rdb *redis.Client) {
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		checks := gin.H{"database": "ok"}
		status := http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			checks["database"] = "down"
			status = http.StatusServiceUnavailable
		}
		if rdb != nil {
			checks["redis"] = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				// degraded, not fatal: row locks still serialize callbacks
				checks["redis"] = "down"
			}
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": 40400, "message": "Not found"})
	})

	v1 := r.Group("/api/v1")
	handler.RegisterGatewayRoutes(v1, h)

	authed := v1.Group("", middleware.JWTAuth(cfg.JWT.Secret))
	handler.RegisterRoutes(authed, h)
}
