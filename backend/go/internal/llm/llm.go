package llm

import (
	"context"
	"fmt"

	"NoteFlow/backend/go/internal/config"
)

// LLM 定义了所有大型语言模型客户端必须实现的通用接口。
// NoteFlow 只需要结构化补全：instruction 描述期望的 JSON 结构，
// input 是笔记正文，返回模型输出的原始文本（期望为 JSON）。
type LLM interface {
	Complete(ctx context.Context, instruction, input string) (string, error)
}

// NewClient 是一个工厂函数，根据提供的配置创建并返回一个实现了 LLM 接口的客户端。
func NewClient(cfg config.LLMConfig) (LLM, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey)
	case "gemini":
		return NewGemini(context.Background(), cfg.Gemini.Model, cfg.Gemini.APIKey)
	case "ollama":
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
