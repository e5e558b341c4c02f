package store

import "gorm.io/gorm"

// Store 封装了笔记和分类的持久化操作。
type Store struct {
	DB *gorm.DB
}

// NewStore 创建一个新的 Store 实例。
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}
