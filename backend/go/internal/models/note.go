package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AIAnalysisStatus 定义了笔记 AI 分析流水线的状态。
// 状态从 pending 出发，只会迁移一次，到达 completed 或 failed 后不再变化。
type AIAnalysisStatus string

const (
	AnalysisPending   AIAnalysisStatus = "pending"   // 笔记已创建，分析任务尚未完成
	AnalysisCompleted AIAnalysisStatus = "completed" // 关键词、分类和向量索引全部写入成功
	AnalysisFailed    AIAnalysisStatus = "failed"    // 流水线中任意一步失败
)

// Note 代表一条用户笔记。
// 笔记创建后立即可读，此时 Keywords 为空、CategoryName 和 VectorID 为 null，
// 消费方必须容忍这种 pending 状态下的空字段。
type Note struct {
	gorm.Model

	UserID uint   `gorm:"index;not null" json:"userId"` // 笔记所有者，所有查询都按它过滤
	Title  string `gorm:"size:100" json:"title"`        // 取正文首行的前 100 个字符
	Text   string `gorm:"type:text;not null" json:"text"`

	Links  datatypes.JSONSlice[string] `json:"links"`
	Images datatypes.JSONSlice[string] `json:"images"` // MinIO 附件的对象 URL

	CategoryID   *uint   `gorm:"index" json:"categoryId"`
	CategoryName *string `gorm:"size:255" json:"categoryName"` // 冗余存储的分类名，便于列表展示

	Tags     datatypes.JSONSlice[string] `json:"tags"`
	Keywords datatypes.JSONSlice[string] `json:"keywords"` // 分析完成前为空

	VectorID         *string          `gorm:"size:64" json:"vectorId"` // Milvus 中对应向量点的 ID，索引成功前为 null
	AIAnalysisStatus AIAnalysisStatus `gorm:"type:varchar(20);default:'pending';not null" json:"aiAnalysisStatus"`
}

// Category 代表用户自己的一个笔记分类。
// (user_id, name) 上有联合唯一索引，流水线必须 find-or-create 而不能盲目插入。
type Category struct {
	gorm.Model

	UserID uint   `gorm:"uniqueIndex:idx_owner_name;not null" json:"userId"`
	Name   string `gorm:"uniqueIndex:idx_owner_name;size:255;not null" json:"name"`
}

func (Note) TableName() string {
	return "notes"
}

func (Category) TableName() string {
	return "categories"
}
