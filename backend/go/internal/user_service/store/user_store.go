package store

import (
	"errors"
	"time"

	"NoteFlow/backend/go/internal/models"

	"gorm.io/gorm"
)

// --- User Management ---

// CreateUser 在数据库中创建一个新用户。
// 用户名撞到唯一索引时返回 gorm.ErrDuplicatedKey，由 service 层翻译成业务错误。
func (s *Store) CreateUser(user *models.User) error {
	return s.DB.Create(user).Error
}

// GetUserByUsername 通过用户名查找用户。
// 找不到时返回 (nil, nil)，供注册逻辑区分 "不存在" 和 "查询失败"。
func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	err := s.DB.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID 通过 ID 查找用户。
func (s *Store) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.DB.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// TouchLastLogin 更新用户的最近登录时间。
func (s *Store) TouchLastLogin(id uint) error {
	now := time.Now()
	return s.DB.Model(&models.User{}).Where("id = ?", id).
		Update("last_login_at", &now).Error
}
