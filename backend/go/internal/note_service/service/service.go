package service

import (
	"context"
	"io"
	"strings"

	analysis "NoteFlow/backend/go/internal/analysis_service/service"
	"NoteFlow/backend/go/internal/database/milvus"
	"NoteFlow/backend/go/internal/models"
	"NoteFlow/backend/go/internal/note_service/store"
	"NoteFlow/backend/go/pkg/logger"

	"gorm.io/datatypes"
)

// maxTitleLength 是笔记标题的上限，超出部分截断。
const maxTitleLength = 100

// TaskPublisher 把分析任务投递到队列，由 analysis_service/publisher 满足。
type TaskPublisher interface {
	Publish(ctx context.Context, task models.AnalysisTask) error
}

// Embedder 生成查询文本的嵌入向量，语义检索用。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex 是语义检索和向量清理消费的索引契约，由 internal/database/milvus 满足。
type VectorIndex interface {
	SearchByOwner(ctx context.Context, vector []float32, ownerID int64, limit int) ([]milvus.SearchHit, error)
	DeleteByVectorID(ctx context.Context, vectorID string) error
}

// SearchResult 是一条语义检索结果：笔记本体加上相似度得分。
type SearchResult struct {
	Note  models.Note `json:"note"`
	Score float32     `json:"score"`
}

// Service 封装了笔记和分类的业务逻辑。
// 写路径只负责落库和投递分析任务，分析本身在 worker 进程里异步完成。
type Service struct {
	store       *store.Store
	attachments *store.AttachmentStore
	publisher   TaskPublisher
	embedder    Embedder
	index       VectorIndex
	logger      *logger.Logger
}

// NewService 创建一个新的 Service 实例。
func NewService(s *store.Store, attachments *store.AttachmentStore, publisher TaskPublisher, embedder Embedder, index VectorIndex, log *logger.Logger) *Service {
	return &Service{
		store:       s,
		attachments: attachments,
		publisher:   publisher,
		embedder:    embedder,
		index:       index,
		logger:      log,
	}
}

// --- Note Management ---

// CreateNoteInput 是创建笔记的参数。
type CreateNoteInput struct {
	Text       string
	Links      []string
	Images     []string
	Tags       []string
	CategoryID uint // 0 表示未显式指定分类
}

// CreateNote 创建一条 pending 状态的笔记并投递分析任务。
// 任务投递失败只记日志，不影响创建结果：笔记会停留在 pending，
// 用户可以通过重试接口再次触发分析。
func (s *Service) CreateNote(ctx context.Context, userID uint, input CreateNoteInput) (*models.Note, error) {
	note := &models.Note{
		UserID:           userID,
		Title:            deriveTitle(input.Text),
		Text:             input.Text,
		Links:            datatypes.NewJSONSlice(input.Links),
		Images:           datatypes.NewJSONSlice(input.Images),
		Tags:             datatypes.NewJSONSlice(input.Tags),
		Keywords:         datatypes.NewJSONSlice([]string{}),
		AIAnalysisStatus: models.AnalysisPending,
	}
	if input.CategoryID != 0 {
		id := input.CategoryID
		note.CategoryID = &id
	}

	if err := s.store.CreateNote(note); err != nil {
		return nil, err
	}

	task := models.AnalysisTask{
		NoteID:             note.ID,
		UserID:             userID,
		Text:               input.Text,
		ExplicitCategoryID: input.CategoryID,
		Tags:               input.Tags,
	}
	if err := s.publisher.Publish(ctx, task); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"note_id": note.ID,
		}).Error("投递分析任务失败，笔记停留在 pending")
	}

	return note, nil
}

// GetNote 读取用户的一条笔记。
func (s *Service) GetNote(noteID, userID uint) (*models.Note, error) {
	return s.store.GetNoteForUser(noteID, userID)
}

// ListNotes 分页列出用户的笔记。
func (s *Service) ListNotes(userID uint, page, limit int, categoryID uint, search string) ([]models.Note, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.store.ListNotes(userID, page, limit, categoryID, search)
}

// DeleteNote 删除用户的一条笔记，并清理它在向量索引里的点。
// 向量清理失败只记日志：数据库里的记录已经删掉，孤儿点不影响正确性。
func (s *Service) DeleteNote(ctx context.Context, noteID, userID uint) error {
	note, err := s.store.DeleteNote(noteID, userID)
	if err != nil {
		return err
	}

	if note.VectorID != nil {
		if err := s.index.DeleteByVectorID(ctx, *note.VectorID); err != nil {
			s.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
				"note_id":   noteID,
				"vector_id": *note.VectorID,
			}).Warn("删除笔记向量点失败")
		}
	}
	return nil
}

// RetryAnalysis 把一条失败的笔记重新置为 pending 并重新投递分析任务。
// 笔记当前的显式分类（如果有）会原样带进任务，避免重试覆盖用户的选择。
func (s *Service) RetryAnalysis(ctx context.Context, noteID, userID uint) (*models.Note, error) {
	note, err := s.store.GetNoteForUser(noteID, userID)
	if err != nil {
		return nil, err
	}

	if err := s.store.MarkAnalysisStatus(note.ID, models.AnalysisPending); err != nil {
		return nil, err
	}
	note.AIAnalysisStatus = models.AnalysisPending

	task := models.AnalysisTask{
		NoteID: note.ID,
		UserID: userID,
		Text:   note.Text,
		Tags:   []string(note.Tags),
		Retry:  true,
	}
	if note.CategoryID != nil {
		task.ExplicitCategoryID = *note.CategoryID
	}
	if err := s.publisher.Publish(ctx, task); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"note_id": note.ID,
		}).Error("投递重试任务失败，笔记停留在 pending")
	}

	return note, nil
}

// SemanticSearch 对查询文本做嵌入，在向量索引里按所有者检索，
// 再回表取笔记本体。结果按相似度从高到低排列。
func (s *Service) SemanticSearch(ctx context.Context, userID uint, query string, limit int) ([]SearchResult, error) {
	if limit < 1 || limit > 50 {
		limit = 10
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := s.index.SearchByOwner(ctx, vector, int64(userID), limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []SearchResult{}, nil
	}

	ids := make([]uint, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, uint(hit.NoteID))
	}
	notes, err := s.store.ListNotesByIDs(userID, ids)
	if err != nil {
		return nil, err
	}

	// 索引里的点可能对应已删除的笔记，回表找不到就跳过，保持命中顺序。
	byID := make(map[uint]models.Note, len(notes))
	for _, note := range notes {
		byID[note.ID] = note
	}
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		note, ok := byID[uint(hit.NoteID)]
		if !ok {
			continue
		}
		results = append(results, SearchResult{Note: note, Score: hit.Score})
	}
	return results, nil
}

// UploadAttachment 上传一个笔记附件并返回对象 URL。
func (s *Service) UploadAttachment(ctx context.Context, userID uint, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	return s.attachments.Upload(ctx, userID, filename, reader, size, contentType)
}

// --- Category Management ---

// ErrDuplicateCategory 在分类名冲突时返回，API 层映射为 409。
// 和流水线共用同一个 sentinel，存储层只需要一种翻译。
var ErrDuplicateCategory = analysis.ErrDuplicateCategory

// CreateCategory 为用户创建一个分类。
func (s *Service) CreateCategory(userID uint, name string) (*models.Category, error) {
	return s.store.CreateCategory(userID, name)
}

// ListCategories 列出用户的全部分类及各自的笔记数。
func (s *Service) ListCategories(userID uint) ([]store.CategoryWithCount, error) {
	return s.store.ListCategories(userID)
}

// UpdateCategory 重命名用户的一个分类。
func (s *Service) UpdateCategory(categoryID, userID uint, name string) (*models.Category, error) {
	return s.store.UpdateCategory(categoryID, userID, name)
}

// DeleteCategory 删除用户的一个分类，分类下的笔记保留但脱离分类。
func (s *Service) DeleteCategory(categoryID, userID uint) error {
	return s.store.DeleteCategory(categoryID, userID)
}

// --- Helpers ---

// deriveTitle 取正文的首行作为标题，超过上限时按字符截断。
func deriveTitle(text string) string {
	firstLine := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		firstLine = text[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)

	runes := []rune(firstLine)
	if len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength])
	}
	return firstLine
}
