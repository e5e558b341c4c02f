package store

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"NoteFlow/backend/go/internal/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// AttachmentStore 把笔记的图片附件写进 MinIO。
// 对象按 "{userID}/{uuid}{ext}" 命名，避免不同用户之间的文件名冲突。
type AttachmentStore struct {
	client *minio.Client
	cfg    *config.MinIOConfig
}

// NewAttachmentStore 创建一个新的 AttachmentStore。
func NewAttachmentStore(client *minio.Client, cfg *config.MinIOConfig) *AttachmentStore {
	return &AttachmentStore{client: client, cfg: cfg}
}

// Upload 上传一个附件并返回它的对象 URL。
func (a *AttachmentStore) Upload(ctx context.Context, userID uint, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	objectName := fmt.Sprintf("%d/%s%s", userID, uuid.New().String(), filepath.Ext(filename))

	_, err := a.client.PutObject(ctx, a.cfg.Bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传附件 '%s' 失败: %w", objectName, err)
	}

	scheme := "http"
	if a.cfg.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, a.cfg.Endpoint, a.cfg.Bucket, objectName), nil
}
