package milvus

import (
	"context"
	"fmt"
	"log"
	"sync"

	"NoteFlow/backend/go/internal/config"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// 笔记向量集合的固定字段。每条笔记分析成功后写入一个点，
// payload 字段用于检索时按所有者过滤以及把命中映射回笔记。
const (
	FieldVectorID   = "vector_id"
	FieldEmbedding  = "embedding"
	FieldNoteID     = "note_id"
	FieldOwnerID    = "owner_id"
	FieldCategoryID = "category_id"
	FieldTags       = "tags"

	vectorIDMaxLength = 64
	tagsMaxLength     = 1024
)

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// MilvusClient 包含了 Milvus 客户端实例和相关配置。
type MilvusClient struct {
	Client client.Client        // Milvus 客户端实例。
	Config *config.MilvusConfig // Milvus 配置。
}

// VectorPayload 是随向量点一起存储的元数据。
type VectorPayload struct {
	NoteID     int64
	OwnerID    int64
	CategoryID int64 // 0 表示未分类
	Tags       string
}

// SearchHit 是一次相似度检索的单条命中结果，按相似度降序排列。
type SearchHit struct {
	VectorID string
	NoteID   int64
	Score    float32
}

// GetClient 使用单例模式创建并返回一个 Milvus 客户端实例。
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("无法连接到 Milvus: %w", err)
			return
		}
		log.Println("✅ 成功连接到 Milvus!")
		instance = &MilvusClient{Client: c, Config: cfg}
	})
	return instance, initErr
}

// Close 安全地关闭与 Milvus 的连接。
func (c *MilvusClient) Close() {
	if c.Client != nil {
		c.Client.Close()
		log.Println("ℹ️ 已安全关闭 Milvus 连接。")
	}
}

// HealthCheck 检查 Milvus 连接的健康状况。
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("Milvus client is nil")
	}
	_, err := c.Client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("Milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollection 确保笔记向量集合存在并已加载。幂等操作：
// 集合已存在时只做加载。启动阶段调用方可以把这里的错误降级为日志。
func (c *MilvusClient) EnsureCollection(ctx context.Context) error {
	collName := c.Config.Collection
	exists, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("检查集合是否存在时出错: %w", err)
	}
	if !exists {
		schema := entity.NewSchema().
			WithName(collName).
			WithDescription("NoteFlow 笔记文本向量，payload 按所有者过滤").
			WithField(entity.NewField().WithName(FieldVectorID).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(vectorIDMaxLength).
				WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(FieldEmbedding).
				WithDataType(entity.FieldTypeFloatVector).WithDim(int64(c.Config.Dim))).
			WithField(entity.NewField().WithName(FieldNoteID).
				WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldOwnerID).
				WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldCategoryID).
				WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldTags).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(tagsMaxLength))

		if err := c.Client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("创建集合失败: %w", err)
		}

		idx, err := entity.NewIndexIvfFlat(entity.MetricType(c.Config.MetricType), 128)
		if err != nil {
			return fmt.Errorf("构建索引配置失败: %w", err)
		}
		if err := c.Client.CreateIndex(ctx, collName, FieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("为字段 '%s' 创建索引失败: %w", FieldEmbedding, err)
		}
		log.Printf("✅ 成功创建集合: %s (dim=%d, metric=%s)", collName, c.Config.Dim, c.Config.MetricType)
	}

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return fmt.Errorf("加载 Milvus 集合 '%s' 失败: %w", collName, err)
	}

	return nil
}

// Upsert 以 vectorID 为主键插入或替换一个向量点。
func (c *MilvusClient) Upsert(ctx context.Context, vectorID string, vector []float32, payload VectorPayload) error {
	if len(vector) != c.Config.Dim {
		return fmt.Errorf("向量维度不匹配: 期望 %d, 实际 %d", c.Config.Dim, len(vector))
	}

	idCol := entity.NewColumnVarChar(FieldVectorID, []string{vectorID})
	vecCol := entity.NewColumnFloatVector(FieldEmbedding, c.Config.Dim, [][]float32{vector})
	noteCol := entity.NewColumnInt64(FieldNoteID, []int64{payload.NoteID})
	ownerCol := entity.NewColumnInt64(FieldOwnerID, []int64{payload.OwnerID})
	categoryCol := entity.NewColumnInt64(FieldCategoryID, []int64{payload.CategoryID})
	tagsCol := entity.NewColumnVarChar(FieldTags, []string{payload.Tags})

	_, err := c.Client.Upsert(ctx, c.Config.Collection, "", idCol, vecCol, noteCol, ownerCol, categoryCol, tagsCol)
	if err != nil {
		return fmt.Errorf("写入向量点 '%s' 失败: %w", vectorID, err)
	}
	return nil
}

// DeleteByVectorID 删除指定的向量点。重新分析和删除笔记时使用。
func (c *MilvusClient) DeleteByVectorID(ctx context.Context, vectorID string) error {
	expr := fmt.Sprintf("%s == \"%s\"", FieldVectorID, vectorID)
	if err := c.Client.Delete(ctx, c.Config.Collection, "", expr); err != nil {
		return fmt.Errorf("删除向量点 '%s' 失败: %w", vectorID, err)
	}
	return nil
}

// SearchByOwner 在集合中执行向量相似度搜索，并用 owner_id 过滤，
// 保证检索结果永远不会跨用户。结果按相似度降序排列，长度不超过 limit。
func (c *MilvusClient) SearchByOwner(ctx context.Context, vector []float32, ownerID int64, limit int) ([]SearchHit, error) {
	collName := c.Config.Collection

	sp, _ := entity.NewIndexIvfFlatSearchParam(10)
	expr := fmt.Sprintf("%s == %d", FieldOwnerID, ownerID)

	results, err := c.Client.Search(
		ctx,
		collName,
		nil,
		expr,
		[]string{FieldNoteID},
		[]entity.Vector{entity.FloatVector(vector)},
		FieldEmbedding,
		entity.MetricType(c.Config.MetricType),
		limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("在集合 '%s' 中搜索失败: %w", collName, err)
	}

	var hits []SearchHit
	for _, rs := range results {
		noteCol := rs.Fields.GetColumn(FieldNoteID)
		for i := 0; i < rs.ResultCount; i++ {
			vectorID, err := rs.IDs.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("解析检索结果主键失败: %w", err)
			}
			noteID, err := noteCol.GetAsInt64(i)
			if err != nil {
				return nil, fmt.Errorf("解析检索结果 note_id 失败: %w", err)
			}
			hits = append(hits, SearchHit{
				VectorID: vectorID,
				NoteID:   noteID,
				Score:    rs.Scores[i],
			})
		}
	}
	return hits, nil
}

// FlushCollection 手动触发一次刷新操作，将内存中的数据写入磁盘。
func (c *MilvusClient) FlushCollection(ctx context.Context) error {
	collName := c.Config.Collection
	if err := c.Client.Flush(ctx, collName, false); err != nil {
		return fmt.Errorf("刷新集合 '%s' 失败: %w", collName, err)
	}
	return nil
}
