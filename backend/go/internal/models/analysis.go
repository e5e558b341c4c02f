package models

// AnalysisTask 是投递到 Kafka 的笔记分析任务消息。
// 创建笔记的 HTTP handler 只负责发布这条消息并立即返回，
// 真正的分析由 analysis_worker 消费执行。
type AnalysisTask struct {
	NoteID uint   `json:"note_id"`
	UserID uint   `json:"user_id"`
	Text   string `json:"text"`

	// ExplicitCategoryID 为 0 表示创建时没有显式指定分类，
	// 此时流水线会根据 LLM 推断的分类名 find-or-create。
	ExplicitCategoryID uint     `json:"explicit_category_id,omitempty"`
	Tags               []string `json:"tags,omitempty"`

	// Retry 表示这是一次手动重试，流水线会先清理旧的向量点。
	Retry bool `json:"retry,omitempty"`
}

// AnalysisResult 是 LLM 结构化补全解析后的结果，不单独持久化。
type AnalysisResult struct {
	Keywords     []string `json:"keywords"`
	CategoryName string   `json:"categoryName"`
}
