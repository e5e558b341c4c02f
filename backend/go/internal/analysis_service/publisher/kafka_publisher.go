package publisher

import (
	"context"
	"encoding/json"
	"strconv"

	"NoteFlow/backend/go/internal/models"
	"NoteFlow/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// TaskPublisher 负责把笔记分析任务发布到 Kafka。
// 创建笔记的 handler 只调用 Publish 然后立即返回，不等待分析完成。
type TaskPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

// NewTaskPublisher 创建一个新的 TaskPublisher。
func NewTaskPublisher(writer *kafka.Writer, log *logger.Logger) *TaskPublisher {
	return &TaskPublisher{
		writer: writer,
		logger: log,
	}
}

// Publish 把一条分析任务写入主题。key 取笔记 ID，
// 保证同一条笔记的重试消息落在同一分区。
func (p *TaskPublisher) Publish(ctx context.Context, task models.AnalysisTask) error {
	msgBytes, err := json.Marshal(task)
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("序列化分析任务失败")
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(task.NoteID), 10)),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"topic":   p.writer.Topic,
			"note_id": task.NoteID,
		}).Error("写入 Kafka 消息失败")
		return err
	}
	return nil
}

// Close 关闭底层的 Kafka writer。
func (p *TaskPublisher) Close() error {
	return p.writer.Close()
}
