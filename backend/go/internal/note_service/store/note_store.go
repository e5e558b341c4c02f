package store

import (
	"errors"

	"NoteFlow/backend/go/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// --- Note Management ---

// CreateNote 在数据库中创建一条新笔记，初始分析状态为 pending。
func (s *Store) CreateNote(note *models.Note) error {
	return s.DB.Create(note).Error
}

// GetNoteByID 按主键读取笔记，不做所有者过滤。
// 笔记不存在时返回 (nil, nil)，供分析流水线在笔记被删除后安静退出。
func (s *Store) GetNoteByID(noteID uint) (*models.Note, error) {
	var note models.Note
	if err := s.DB.First(&note, noteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &note, nil
}

// GetNoteForUser 按主键读取笔记并校验所有者。
func (s *Store) GetNoteForUser(noteID, userID uint) (*models.Note, error) {
	var note models.Note
	if err := s.DB.Where("id = ? AND user_id = ?", noteID, userID).First(&note).Error; err != nil {
		return nil, err
	}
	return &note, nil
}

// ListNotes 分页查询用户的笔记，支持按分类过滤和简单的关键词检索。
// search 会匹配标题子串或 keywords 数组中的精确关键词。
func (s *Store) ListNotes(userID uint, page, limit int, categoryID uint, search string) ([]models.Note, int64, error) {
	query := s.DB.Model(&models.Note{}).Where("user_id = ?", userID)
	if categoryID != 0 {
		query = query.Where("category_id = ?", categoryID)
	}
	if search != "" {
		query = query.Where("title LIKE ? OR JSON_CONTAINS(keywords, JSON_QUOTE(?))", "%"+search+"%", search)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var notes []models.Note
	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&notes).Error; err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

// ListNotesByIDs 按主键集合读取用户的笔记，用于语义检索后的回表。
func (s *Store) ListNotesByIDs(userID uint, ids []uint) ([]models.Note, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var notes []models.Note
	if err := s.DB.Where("user_id = ? AND id IN ?", userID, ids).Find(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}

// DeleteNote 删除用户的一条笔记，返回删除前的记录供调用方清理向量点。
func (s *Store) DeleteNote(noteID, userID uint) (*models.Note, error) {
	note, err := s.GetNoteForUser(noteID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.DB.Delete(&models.Note{}, note.ID).Error; err != nil {
		return nil, err
	}
	return note, nil
}

// UpdateNoteAnalysis 把分析流水线的结果一次性写到笔记上。
// 按主键 UPDATE，笔记已被删除时匹配零行，不报错也不会复活记录。
func (s *Store) UpdateNoteAnalysis(noteID uint, keywords []string, categoryID *uint, categoryName *string, vectorID string, status models.AIAnalysisStatus) error {
	updates := map[string]interface{}{
		"keywords":           datatypes.NewJSONSlice(keywords),
		"category_id":        categoryID,
		"category_name":      categoryName,
		"vector_id":          vectorID,
		"ai_analysis_status": status,
	}
	return s.DB.Model(&models.Note{}).Where("id = ?", noteID).Updates(updates).Error
}

// MarkAnalysisStatus 只更新分析状态，用于失败兜底和手动重试时回到 pending。
func (s *Store) MarkAnalysisStatus(noteID uint, status models.AIAnalysisStatus) error {
	return s.DB.Model(&models.Note{}).Where("id = ?", noteID).
		Update("ai_analysis_status", status).Error
}
