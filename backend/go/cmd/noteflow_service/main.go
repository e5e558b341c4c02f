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

	"NoteFlow/backend/go/internal/analysis_service/publisher"
	"NoteFlow/backend/go/internal/config"
	"NoteFlow/backend/go/internal/database/kafka"
	"NoteFlow/backend/go/internal/database/milvus"
	"NoteFlow/backend/go/internal/database/minio"
	"NoteFlow/backend/go/internal/database/mysql"
	"NoteFlow/backend/go/internal/database/redis"
	"NoteFlow/backend/go/internal/embedding"
	"NoteFlow/backend/go/internal/models"
	noteapi "NoteFlow/backend/go/internal/note_service/api"
	noteservice "NoteFlow/backend/go/internal/note_service/service"
	notestore "NoteFlow/backend/go/internal/note_service/store"
	userapi "NoteFlow/backend/go/internal/user_service/api"
	userservice "NoteFlow/backend/go/internal/user_service/service"
	userstore "NoteFlow/backend/go/internal/user_service/store"
	"NoteFlow/backend/go/pkg/circuitbreaker"
	"NoteFlow/backend/go/pkg/httpmiddleware"
	"NoteFlow/backend/go/pkg/logger"
	"NoteFlow/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// 2. 初始化 Logger
	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	appLogger := logger.New("noteflow_service", "", "")
	appLogger.Info("Logger initialized for NoteFlow Service")

	ctx := context.Background()

	// 3. 初始化 MySQL 并迁移表结构
	db, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to connect to MySQL: %v", err))
	}
	if err := db.AutoMigrate(&models.User{}, &models.Note{}, &models.Category{}); err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to migrate database schema: %v", err))
	}
	defer mysql.Close()

	// 4. 初始化 Redis（登录会话镜像）
	rdb, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	defer redis.Close()

	// 5. 初始化 Milvus。集合创建失败不阻断启动：
	//    写路径在 worker 进程里，API 进程只有语义检索依赖它。
	milvusClient, err := milvus.GetClient(ctx, &cfg.Databases.Milvus)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to connect to Milvus: %v", err))
	}
	if err := milvusClient.EnsureCollection(ctx); err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("初始化 Milvus 集合失败，语义检索暂不可用")
	}
	defer milvusClient.Close()

	// 6. 初始化 MinIO（笔记附件）
	if err := minio.EnsureBucket(ctx, &cfg.Databases.MinIO); err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to initialize MinIO: %v", err))
	}
	minioClient, err := minio.GetClient(&cfg.Databases.MinIO)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to create MinIO client: %v", err))
	}

	// 7. 初始化 Kafka 和分析任务发布器
	kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to create kafka client: %v", err))
	}
	defer kafkaClient.Close()
	if controller, err := kafkaClient.GetControllerInfo(); err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("查询 Kafka controller 失败")
	} else {
		appLogger.Info("Kafka controller: " + controller)
	}
	taskPublisher := publisher.NewTaskPublisher(kafkaClient.NewWriter(cfg.Analysis.Topic), appLogger)
	defer taskPublisher.Close()
	appLogger.Info("Analysis task publisher initialized")

	// 8. 初始化 Embedding 客户端（语义检索的查询向量）
	embedder, err := embedding.NewEmdModel(cfg.Embedding)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to create embedding client: %v", err))
	}

	// 9. 组装业务层
	userSvc := userservice.NewService(userstore.NewStore(db), rdb, cfg.Auth.JwtSecret, cfg.Auth.TokenTTL)
	userHandler := userapi.NewHandler(userSvc)

	noteStore := notestore.NewStore(db)
	attachments := notestore.NewAttachmentStore(minioClient, &cfg.Databases.MinIO)
	noteSvc := noteservice.NewService(noteStore, attachments, taskPublisher, embedder, milvusClient, appLogger)
	noteHandler := noteapi.NewHandler(noteSvc)

	// 10. 组装 HTTP 引擎和中间件
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger("noteflow_service"))

	limiter, err := ratelimiter.FromConfig(cfg.Middleware.RateLimiter)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to build rate limiter: %v", err))
	}
	if limiter != nil {
		r.Use(httpmiddleware.RateLimit(limiter))
		appLogger.Info("Rate limiter enabled: " + cfg.Middleware.RateLimiter.Algorithm)
	}

	if cfg.Middleware.CircuitBreaker.Enabled {
		timeout, err := time.ParseDuration(cfg.Middleware.CircuitBreaker.Timeout)
		if err != nil {
			appLogger.Fatal(fmt.Sprintf("Failed to parse circuit breaker timeout: %v", err))
		}
		breaker := circuitbreaker.New(
			cfg.Middleware.CircuitBreaker.FailureThreshold,
			cfg.Middleware.CircuitBreaker.SuccessThreshold,
			timeout,
		)
		r.Use(httpmiddleware.CircuitBreak(breaker))
		appLogger.Info("Circuit breaker enabled")
	}

	// 登出后的 token 由会话镜像兜底：中间件在签名验证之外还会查 Redis。
	authMiddleware := httpmiddleware.JWTAuth(cfg.Auth.JwtSecret, userSvc)

	apiV1 := r.Group("/api/v1")
	userHandler.RegisterRoutes(apiV1, authMiddleware)
	noteHandler.RegisterRoutes(apiV1, authMiddleware)

	r.GET("/health", func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]error{
			"mysql":  mysql.HealthCheck(checkCtx),
			"redis":  redis.HealthCheck(checkCtx),
			"milvus": milvusClient.HealthCheck(checkCtx),
			"kafka":  kafkaClient.HealthCheck(checkCtx),
		}

		status := http.StatusOK
		detail := gin.H{}
		for name, err := range checks {
			if err != nil {
				status = http.StatusServiceUnavailable
				detail[name] = err.Error()
			} else {
				detail[name] = "ok"
			}
		}
		c.JSON(status, gin.H{"status": detail})
	})

	// 11. 启动 HTTP 服务并等待退出信号
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	go func() {
		appLogger.Info("Starting HTTP server on " + cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(fmt.Sprintf("Failed to start HTTP server: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down NoteFlow Service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(fmt.Sprintf("HTTP server shutdown error: %v", err))
	}
	appLogger.Info("NoteFlow Service stopped")
}
