package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"NoteFlow/backend/go/internal/database/milvus"
	"NoteFlow/backend/go/internal/models"
	"NoteFlow/backend/go/pkg/logger"

	"github.com/google/uuid"
)

// analysisInstruction 是发给 LLM 的固定指令，要求返回机器可解析的 JSON。
const analysisInstruction = `Analyze the following note content. Return a JSON object with:
- keywords: array of 5-10 relevant keywords (strings)
- categoryName: a suggested category name (string)
`

// ErrParse 表示 LLM 的响应缺失或无法解析成期望的 {keywords, categoryName} 结构。
var ErrParse = errors.New("analysis response is not parseable")

// ErrDuplicateCategory 由 Store 实现在 (owner, name) 唯一索引冲突时返回，
// 流水线收到它后会重新读取已经胜出的那一行。
var ErrDuplicateCategory = errors.New("category already exists")

// Store 是流水线消费的笔记存储契约，由 note_service/store 的 GORM 实现满足。
type Store interface {
	// GetNoteByID 按主键读取笔记，不做所有者过滤（任务消息里已携带所有者）。
	GetNoteByID(noteID uint) (*models.Note, error)
	// UpdateNoteAnalysis 把分析结果一次性写到笔记上并置为终态。
	// 笔记已被删除时按零行更新处理，不返回错误。
	UpdateNoteAnalysis(noteID uint, keywords []string, categoryID *uint, categoryName *string, vectorID string, status models.AIAnalysisStatus) error
	// MarkAnalysisStatus 只更新分析状态，用于失败路径的兜底写入。
	MarkAnalysisStatus(noteID uint, status models.AIAnalysisStatus) error
	// FindCategoryByName 按 (所有者, 名称) 精确查找分类，找不到时返回 (nil, nil)。
	FindCategoryByName(ownerID uint, name string) (*models.Category, error)
	// CreateCategory 创建分类，唯一索引冲突时返回 ErrDuplicateCategory。
	CreateCategory(ownerID uint, name string) (*models.Category, error)
}

// Embedder 生成笔记文本的嵌入向量。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer 执行一次 JSON 模式的结构化补全。
type Completer interface {
	Complete(ctx context.Context, instruction, input string) (string, error)
}

// VectorIndex 是流水线消费的向量索引契约，由 internal/database/milvus 满足。
type VectorIndex interface {
	Upsert(ctx context.Context, vectorID string, vector []float32, payload milvus.VectorPayload) error
	DeleteByVectorID(ctx context.Context, vectorID string) error
}

// Pipeline 驱动单条笔记从 pending 走到 completed 或 failed。
// 所有依赖都通过构造函数注入，生命周期由进程启动代码管理。
type Pipeline struct {
	llm      Completer
	embedder Embedder
	index    VectorIndex
	store    Store
	logger   *logger.Logger
}

// NewPipeline 创建一个新的 Pipeline 实例。
func NewPipeline(llm Completer, embedder Embedder, index VectorIndex, store Store, log *logger.Logger) *Pipeline {
	return &Pipeline{
		llm:      llm,
		embedder: embedder,
		index:    index,
		store:    store,
		logger:   log,
	}
}

// Process 执行一次完整的流水线运行并落盘终态。
// 任何错误都在这里被消化掉：失败时尽力把笔记标记为 failed 并记录日志，
// 绝不向上传播——创建笔记的 HTTP 请求早已返回。
func (p *Pipeline) Process(ctx context.Context, task models.AnalysisTask) Outcome {
	outcome := p.run(ctx, task)

	if outcome.Kind == OutcomeCompleted {
		p.logger.WithPayload(map[string]interface{}{
			"note_id": task.NoteID,
		}).Info("笔记分析完成")
		return outcome
	}

	if outcome.Kind == OutcomeSkipped {
		p.logger.WithPayload(map[string]interface{}{
			"note_id": task.NoteID,
		}).Info("笔记已删除或已处于终态，跳过重投的任务")
		return outcome
	}

	p.logger.WithError(models.ErrorInfo{
		Message: outcome.Err.Error(),
		Type:    outcome.Kind.String(),
	}).WithPayload(map[string]interface{}{
		"note_id": task.NoteID,
	}).Error("笔记分析失败")

	// 兜底写入 failed 终态。这一步本身失败时笔记会停留在 pending，
	// 只能靠手动重试恢复，属于设计上接受的缺口。
	if err := p.store.MarkAnalysisStatus(task.NoteID, models.AnalysisFailed); err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"note_id": task.NoteID,
		}).Error("写入 failed 状态失败，笔记停留在 pending")
	}

	return outcome
}

// run 按固定顺序执行流水线的四个步骤，任何一步失败都终止后续步骤。
func (p *Pipeline) run(ctx context.Context, task models.AnalysisTask) Outcome {
	// 0. Kafka 是 at-least-once 投递：worker 在 Process 之后、提交位点之前
	//    崩溃时消息会重投。非重试任务先确认笔记仍在 pending，
	//    保证终态只迁移一次；重试任务由用户显式触发，总是重新执行。
	if !task.Retry {
		note, err := p.store.GetNoteByID(task.NoteID)
		if err != nil {
			return storeFailure(fmt.Errorf("load note: %w", err))
		}
		if note == nil || note.AIAnalysisStatus != models.AnalysisPending {
			return skipped()
		}
	}

	// 1. LLM 结构化补全，提取关键词和建议分类。
	raw, err := p.llm.Complete(ctx, analysisInstruction, task.Text)
	if err != nil {
		return providerFailure(fmt.Errorf("completion failed: %w", err))
	}
	result, err := parseAnalysis(raw)
	if err != nil {
		return parseFailure(err)
	}

	// 2. 解析分类。创建时显式指定的分类永远优先，推断出的名称只做展示；
	//    没有显式分类时按 (所有者, 名称) find-or-create。
	var categoryID *uint
	if task.ExplicitCategoryID != 0 {
		id := task.ExplicitCategoryID
		categoryID = &id
	} else if result.CategoryName != "" {
		category, err := p.resolveCategory(task.UserID, result.CategoryName)
		if err != nil {
			return storeFailure(fmt.Errorf("resolve category %q: %w", result.CategoryName, err))
		}
		categoryID = &category.ID
	}

	// 3. 生成嵌入并写入向量索引。每次运行都生成全新的 vectorID；
	//    重试时先清理旧的向量点，避免孤儿点堆积。
	vector, err := p.embedder.Embed(ctx, task.Text)
	if err != nil {
		return providerFailure(fmt.Errorf("embedding failed: %w", err))
	}

	if task.Retry {
		p.cleanupStaleVector(ctx, task.NoteID)
	}

	vectorID := uuid.New().String()
	payload := milvus.VectorPayload{
		NoteID:  int64(task.NoteID),
		OwnerID: int64(task.UserID),
		Tags:    strings.Join(task.Tags, ","),
	}
	if categoryID != nil {
		payload.CategoryID = int64(*categoryID)
	}
	if err := p.index.Upsert(ctx, vectorID, vector, payload); err != nil {
		return providerFailure(fmt.Errorf("vector upsert failed: %w", err))
	}

	// 4. 把分析结果一次性写回笔记并置为 completed。
	var categoryName *string
	if result.CategoryName != "" {
		name := result.CategoryName
		categoryName = &name
	}
	if err := p.store.UpdateNoteAnalysis(task.NoteID, result.Keywords, categoryID, categoryName, vectorID, models.AnalysisCompleted); err != nil {
		return storeFailure(fmt.Errorf("persist analysis: %w", err))
	}

	return completed()
}

// resolveCategory 按 (所有者, 名称) 查找分类，不存在时创建。
// 并发的两次创建会撞到唯一索引，输掉的一方重新读取胜出的行。
func (p *Pipeline) resolveCategory(ownerID uint, name string) (*models.Category, error) {
	category, err := p.store.FindCategoryByName(ownerID, name)
	if err != nil {
		return nil, err
	}
	if category != nil {
		return category, nil
	}

	category, err = p.store.CreateCategory(ownerID, name)
	if errors.Is(err, ErrDuplicateCategory) {
		return p.store.FindCategoryByName(ownerID, name)
	}
	if err != nil {
		return nil, err
	}
	return category, nil
}

// cleanupStaleVector 在重试路径上删除笔记之前的向量点。
// 清理失败只记日志，不影响本次运行。
func (p *Pipeline) cleanupStaleVector(ctx context.Context, noteID uint) {
	note, err := p.store.GetNoteByID(noteID)
	if err != nil || note == nil || note.VectorID == nil {
		return
	}
	if err := p.index.DeleteByVectorID(ctx, *note.VectorID); err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"note_id":   noteID,
			"vector_id": *note.VectorID,
		}).Warn("清理旧向量点失败")
	}
}

// parseAnalysis 把 LLM 输出解析成 AnalysisResult 并做结构校验。
func parseAnalysis(raw string) (models.AnalysisResult, error) {
	var result models.AnalysisResult
	if strings.TrimSpace(raw) == "" {
		return result, fmt.Errorf("%w: empty response", ErrParse)
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(result.Keywords) == 0 && result.CategoryName == "" {
		return result, fmt.Errorf("%w: missing keywords and categoryName", ErrParse)
	}
	if result.Keywords == nil {
		result.Keywords = []string{}
	}
	return result, nil
}
