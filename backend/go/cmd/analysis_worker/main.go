package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"NoteFlow/backend/go/internal/analysis_service/consumer"
	"NoteFlow/backend/go/internal/analysis_service/service"
	"NoteFlow/backend/go/internal/config"
	"NoteFlow/backend/go/internal/database/kafka"
	"NoteFlow/backend/go/internal/database/milvus"
	"NoteFlow/backend/go/internal/database/mysql"
	"NoteFlow/backend/go/internal/embedding"
	"NoteFlow/backend/go/internal/llm"
	"NoteFlow/backend/go/internal/models"
	notestore "NoteFlow/backend/go/internal/note_service/store"
	"NoteFlow/backend/go/pkg/logger"

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
	appLogger := logger.New("analysis_worker", "", "")
	appLogger.Info("Logger initialized for Analysis Worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 初始化 MySQL（worker 不做迁移，表结构由 API 进程负责）
	db, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to connect to MySQL: %v", err))
	}
	defer mysql.Close()

	// 4. 初始化 Milvus。worker 是向量的唯一写入方，集合必须就绪。
	milvusClient, err := milvus.GetClient(ctx, &cfg.Databases.Milvus)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to connect to Milvus: %v", err))
	}
	if err := milvusClient.EnsureCollection(ctx); err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to ensure Milvus collection: %v", err))
	}
	defer milvusClient.Close()

	// 5. 初始化 LLM 和 Embedding 客户端
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to create LLM client: %v", err))
	}
	appLogger.Info("LLM client initialized: " + cfg.LLM.Provider)

	embedder, err := embedding.NewEmdModel(cfg.Embedding)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to create embedding client: %v", err))
	}
	appLogger.Info("Embedding client initialized: " + cfg.Embedding.Provider)

	// 6. 组装分析流水线
	pipeline := service.NewPipeline(llmClient, embedder, milvusClient, notestore.NewStore(db), appLogger)

	// 7. 初始化 Kafka 消费者并启动 worker 池
	kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to create kafka client: %v", err))
	}
	defer kafkaClient.Close()

	reader := kafkaClient.NewReader(cfg.Analysis.Topic, cfg.Analysis.GroupID)
	taskConsumer := consumer.NewTaskConsumer(reader, cfg.Analysis.Workers, appLogger)

	taskConsumer.Start(ctx, func(ctx context.Context, task models.AnalysisTask) {
		pipeline.Process(ctx, task)
	})
	appLogger.Info(fmt.Sprintf("Analysis worker started: topic=%s group=%s workers=%d",
		cfg.Analysis.Topic, cfg.Analysis.GroupID, cfg.Analysis.Workers))

	// 8. 等待退出信号，然后优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down Analysis Worker...")

	cancel()
	taskConsumer.Wait()
	if err := taskConsumer.Close(); err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("关闭 Kafka reader 失败")
	}

	// 主 ctx 已取消，落盘用独立的超时上下文。
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer flushCancel()
	if err := milvusClient.FlushCollection(flushCtx); err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("退出前刷新 Milvus 集合失败")
	}
	appLogger.Info("Analysis Worker stopped")
}
