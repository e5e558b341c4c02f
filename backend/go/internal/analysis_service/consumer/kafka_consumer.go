package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"NoteFlow/backend/go/internal/models"
	"NoteFlow/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// TaskHandler 处理一条解码后的分析任务。
type TaskHandler func(ctx context.Context, task models.AnalysisTask)

// fetchBackoff 是拉取消息失败后的等待时长，避免 broker 故障时空转刷日志。
const fetchBackoff = time.Second

// messageSource 是消费循环依赖的最小读取契约，由 *kafka.Reader 满足。
type messageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TaskConsumer 从 Kafka 消费分析任务，并分发给一个有界的 worker 池。
// worker 数量限制了同时在跑的流水线数量；不同笔记之间没有顺序保证。
type TaskConsumer struct {
	reader  messageSource
	workers int
	logger  *logger.Logger
	wg      sync.WaitGroup
}

// NewTaskConsumer 创建一个新的 TaskConsumer。
// workers 小于 1 时按 1 处理。
func NewTaskConsumer(reader *kafka.Reader, workers int, log *logger.Logger) *TaskConsumer {
	if workers < 1 {
		workers = 1
	}
	return &TaskConsumer{
		reader:  reader,
		workers: workers,
		logger:  log,
	}
}

// Start 启动消费循环和 worker 池，直到 ctx 被取消。
// 拉取循环把消息投进有界通道，worker 解码并执行 handler 后提交位点；
// handler 自身永不返回错误——失败语义由流水线内部消化。
func (c *TaskConsumer) Start(ctx context.Context, handler TaskHandler) {
	tasks := make(chan kafka.Message, c.workers)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for msg := range tasks {
				c.handleMessage(ctx, msg, handler)
			}
		}()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(tasks)
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("停止分析任务消费...")
				return
			default:
				msg, err := c.reader.FetchMessage(ctx)
				if err != nil {
					if ctx.Err() == nil {
						c.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("拉取 Kafka 消息失败")
						// broker 故障是持续性的，立刻重试只会空转。
						select {
						case <-ctx.Done():
						case <-time.After(fetchBackoff):
						}
					}
					continue
				}
				tasks <- msg
			}
		}
	}()
}

func (c *TaskConsumer) handleMessage(ctx context.Context, msg kafka.Message, handler TaskHandler) {
	var task models.AnalysisTask
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		// 消息体损坏，提交后丢弃，否则会无限重投。
		c.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Error("解码分析任务失败，消息将被丢弃")
	} else {
		handler(ctx, task)
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("提交 Kafka 位点失败")
	}
}

// Wait 阻塞直到消费循环和所有 worker 退出。
func (c *TaskConsumer) Wait() {
	c.wg.Wait()
}

// Close 关闭底层的 Kafka reader。
func (c *TaskConsumer) Close() error {
	return c.reader.Close()
}
