package api

import (
	"errors"
	"net/http"
	"strconv"

	"NoteFlow/backend/go/internal/note_service/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler 封装了笔记和分类 API endpoint 的处理函数。
type Handler struct {
	service *service.Service
}

// NewHandler 创建一个新的 Handler 实例。
func NewHandler(s *service.Service) *Handler {
	return &Handler{service: s}
}

// RegisterRoutes 把笔记和分类路由挂到给定的路由组上，全部需要登录态。
// 语义检索和附件上传各占一个顶层路径，避免和 /notes/:id 的通配段冲突。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	notes := rg.Group("/notes")
	notes.Use(authMiddleware)
	{
		notes.POST("", h.CreateNote)
		notes.GET("", h.ListNotes)
		notes.GET("/:id", h.GetNote)
		notes.DELETE("/:id", h.DeleteNote)
		notes.POST("/:id/analyze", h.RetryAnalysis)
	}

	rg.POST("/search", authMiddleware, h.SemanticSearch)
	rg.POST("/attachments", authMiddleware, h.UploadAttachment)

	categories := rg.Group("/categories")
	categories.Use(authMiddleware)
	{
		categories.POST("", h.CreateCategory)
		categories.GET("", h.ListCategories)
		categories.PUT("/:id", h.UpdateCategory)
		categories.DELETE("/:id", h.DeleteCategory)
	}
}

// --- Note Handlers ---

// CreateNoteRequest 定义了创建笔记请求的 JSON 结构。
type CreateNoteRequest struct {
	Text       string   `json:"text" binding:"required,max=2000"`
	Links      []string `json:"links"`
	Images     []string `json:"images"`
	Tags       []string `json:"tags"`
	CategoryID uint     `json:"categoryId"`
}

// CreateNote 创建一条笔记。笔记立即以 pending 状态返回，
// 关键词、分类和向量索引由后台分析流水线异步补全。
func (h *Handler) CreateNote(c *gin.Context) {
	var req CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("userID")
	note, err := h.service.CreateNote(c.Request.Context(), userID, service.CreateNoteInput{
		Text:       req.Text,
		Links:      req.Links,
		Images:     req.Images,
		Tags:       req.Tags,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"note": note})
}

// ListNotes 分页列出当前用户的笔记。
// 支持 ?page= ?limit= ?categoryId= ?search= 查询参数。
func (h *Handler) ListNotes(c *gin.Context) {
	userID := c.GetUint("userID")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	categoryID, _ := strconv.ParseUint(c.DefaultQuery("categoryId", "0"), 10, 32)
	search := c.Query("search")

	notes, total, err := h.service.ListNotes(userID, page, limit, uint(categoryID), search)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notes": notes,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// GetNote 读取当前用户的一条笔记。
func (h *Handler) GetNote(c *gin.Context) {
	noteID, ok := parseIDParam(c)
	if !ok {
		return
	}
	userID := c.GetUint("userID")

	note, err := h.service.GetNote(noteID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "笔记不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"note": note})
}

// DeleteNote 删除当前用户的一条笔记。
func (h *Handler) DeleteNote(c *gin.Context) {
	noteID, ok := parseIDParam(c)
	if !ok {
		return
	}
	userID := c.GetUint("userID")

	if err := h.service.DeleteNote(c.Request.Context(), noteID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "笔记不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "笔记已删除"})
}

// RetryAnalysis 对一条笔记重新触发分析流水线。
func (h *Handler) RetryAnalysis(c *gin.Context) {
	noteID, ok := parseIDParam(c)
	if !ok {
		return
	}
	userID := c.GetUint("userID")

	note, err := h.service.RetryAnalysis(c.Request.Context(), noteID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "笔记不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"note": note})
}

// SemanticSearchRequest 定义了语义检索请求的 JSON 结构。
type SemanticSearchRequest struct {
	Query string `json:"query" binding:"required,max=2000"`
	Limit int    `json:"limit"`
}

// SemanticSearch 在当前用户的笔记里做向量相似度检索。
func (h *Handler) SemanticSearch(c *gin.Context) {
	var req SemanticSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("userID")
	results, err := h.service.SemanticSearch(c.Request.Context(), userID, req.Query, req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// UploadAttachment 接收 multipart 表单里的 file 字段，存入对象存储后返回 URL。
func (h *Handler) UploadAttachment(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 file 字段"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	userID := c.GetUint("userID")
	url, err := h.service.UploadAttachment(
		c.Request.Context(),
		userID,
		fileHeader.Filename,
		file,
		fileHeader.Size,
		fileHeader.Header.Get("Content-Type"),
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"url": url})
}

// --- Category Handlers ---

// CategoryRequest 定义了创建和重命名分类请求的 JSON 结构。
type CategoryRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

// CreateCategory 为当前用户创建一个分类。
func (h *Handler) CreateCategory(c *gin.Context) {
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("userID")
	category, err := h.service.CreateCategory(userID, req.Name)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateCategory) {
			c.JSON(http.StatusConflict, gin.H{"error": "同名分类已存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"category": category})
}

// ListCategories 列出当前用户的全部分类及各自的笔记数。
func (h *Handler) ListCategories(c *gin.Context) {
	userID := c.GetUint("userID")

	categories, err := h.service.ListCategories(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// UpdateCategory 重命名当前用户的一个分类。
func (h *Handler) UpdateCategory(c *gin.Context) {
	categoryID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("userID")
	category, err := h.service.UpdateCategory(categoryID, userID, req.Name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "分类不存在"})
			return
		}
		if errors.Is(err, service.ErrDuplicateCategory) {
			c.JSON(http.StatusConflict, gin.H{"error": "同名分类已存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"category": category})
}

// DeleteCategory 删除当前用户的一个分类，分类下的笔记保留。
func (h *Handler) DeleteCategory(c *gin.Context) {
	categoryID, ok := parseIDParam(c)
	if !ok {
		return
	}
	userID := c.GetUint("userID")

	if err := h.service.DeleteCategory(categoryID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "分类不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "分类已删除"})
}

// --- Helpers ---

// parseIDParam 解析路径里的 :id 参数，格式错误时直接写出 400。
func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 ID 格式"})
		return 0, false
	}
	return uint(id), true
}
