package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/tripscore/internal/api/handlers"
	"github.com/langchou/tripscore/internal/cache"
	"github.com/langchou/tripscore/internal/config"
	"github.com/langchou/tripscore/internal/repository"
	"github.com/langchou/tripscore/internal/service"
	"github.com/langchou/tripscore/internal/state"
	"github.com/langchou/tripscore/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting Tripscore", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	// 创建 Repository
	userRepo := repository.NewUserRepository(db)
	tripRepo := repository.NewTripRepository(db)
	batchRepo := repository.NewBatchRepository(db)

	// 摘要缓存：配了 Redis 走 Redis，否则退回进程内存储
	cacheStore := newCacheStore(ctx, cfg, logger)
	cacheManager := cache.NewManager(cacheStore, logger)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run()

	// 行程状态机，状态变化推给对应用户
	stateManager := state.NewManager(func(tripID, from, to string) {
		logger.Debug("Trip state changed",
			zap.String("trip_id", tripID),
			zap.String("from", from),
			zap.String("to", to))
	})

	// 创建服务
	ingestService := service.NewIngestService(logger, tripRepo, batchRepo, stateManager, wsHub)
	analysisService := service.NewAnalysisService(
		cfg,
		logger,
		userRepo,
		tripRepo,
		batchRepo,
		cacheManager,
		stateManager,
		wsHub,
	)

	// WebSocket 初始数据：该用户当前的行程状态快照
	wsHub.SetInitDataProvider(func(userID string) interface{} {
		return analysisService.TripStates(userID)
	})

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		ingestService,
		analysisService,
		stateManager,
		wsHub,
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// newCacheStore Redis 可用时用 Redis，连不上或未配置都退回内存
func newCacheStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) cache.Store {
	if cfg.RedisAddr == "" {
		logger.Info("Redis not configured, using in-memory summary cache")
		return cache.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unreachable, falling back to in-memory summary cache",
			zap.String("addr", cfg.RedisAddr),
			zap.Error(err))
		return cache.NewMemoryStore()
	}

	logger.Info("Using Redis summary cache", zap.String("addr", cfg.RedisAddr))
	return cache.NewRedisStore(client, cfg.CacheTTL)
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
