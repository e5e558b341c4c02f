package store

import (
	"errors"

	"NoteFlow/backend/go/internal/analysis_service/service"
	"NoteFlow/backend/go/internal/models"

	"gorm.io/gorm"
)

// CategoryWithCount 是分类列表的投影，附带该分类下的笔记数量。
type CategoryWithCount struct {
	models.Category
	NoteCount int64 `json:"noteCount"`
}

// FindCategoryByName 按 (所有者, 名称) 精确查找分类。
// 找不到时返回 (nil, nil)，供流水线走 find-or-create。
func (s *Store) FindCategoryByName(ownerID uint, name string) (*models.Category, error) {
	var category models.Category
	err := s.DB.Where("user_id = ? AND name = ?", ownerID, name).First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// CreateCategory 为用户创建一个分类。
// 撞到 (user_id, name) 唯一索引时返回 service.ErrDuplicateCategory，
// 调用方据此重新读取已经胜出的那一行。
func (s *Store) CreateCategory(ownerID uint, name string) (*models.Category, error) {
	category := models.Category{UserID: ownerID, Name: name}
	if err := s.DB.Create(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, service.ErrDuplicateCategory
		}
		return nil, err
	}
	return &category, nil
}

// GetCategoryForUser 按主键读取分类并校验所有者。
func (s *Store) GetCategoryForUser(categoryID, userID uint) (*models.Category, error) {
	var category models.Category
	if err := s.DB.Where("id = ? AND user_id = ?", categoryID, userID).First(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

// ListCategories 返回用户的全部分类，并统计每个分类下的笔记数。
func (s *Store) ListCategories(userID uint) ([]CategoryWithCount, error) {
	var categories []CategoryWithCount
	err := s.DB.Model(&models.Category{}).
		Select("categories.*, COUNT(notes.id) AS note_count").
		Joins("LEFT JOIN notes ON notes.category_id = categories.id AND notes.deleted_at IS NULL").
		Where("categories.user_id = ?", userID).
		Group("categories.id").
		Order("categories.name ASC").
		Find(&categories).Error
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// UpdateCategory 重命名用户的一个分类，并同步笔记上冗余的分类名。
// 新名称与已有分类冲突时返回 service.ErrDuplicateCategory。
func (s *Store) UpdateCategory(categoryID, userID uint, name string) (*models.Category, error) {
	category, err := s.GetCategoryForUser(categoryID, userID)
	if err != nil {
		return nil, err
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(category).Update("name", name).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return service.ErrDuplicateCategory
			}
			return err
		}
		return tx.Model(&models.Note{}).
			Where("category_id = ?", category.ID).
			Update("category_name", name).Error
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// DeleteCategory 删除用户的一个分类。
// 同一事务里把该分类下笔记的 category_id 和 category_name 清空，笔记本身保留。
func (s *Store) DeleteCategory(categoryID, userID uint) error {
	category, err := s.GetCategoryForUser(categoryID, userID)
	if err != nil {
		return err
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Note{}).
			Where("category_id = ?", category.ID).
			Updates(map[string]interface{}{
				"category_id":   nil,
				"category_name": nil,
			}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Category{}, category.ID).Error
	})
}
