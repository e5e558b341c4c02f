package service

import "fmt"

// OutcomeKind 标记一次流水线运行的结果类别。
// 顶层 runner 根据它决定终态写入和日志内容，而不是吞掉一个裸 error。
type OutcomeKind int

const (
	// OutcomeCompleted 表示所有步骤成功，笔记已进入 completed 状态。
	OutcomeCompleted OutcomeKind = iota
	// OutcomeProviderFailure 表示 LLM 或向量索引服务调用失败（网络或非成功响应）。
	OutcomeProviderFailure
	// OutcomeParseFailure 表示 LLM 返回的内容无法解析成期望的结构。
	OutcomeParseFailure
	// OutcomeStoreFailure 表示笔记或分类的持久化操作失败。
	OutcomeStoreFailure
	// OutcomeSkipped 表示任务对应的笔记已删除或已处于终态，本次运行未执行任何步骤。
	// Kafka 的 at-least-once 投递会在崩溃恢复后重投已处理的消息。
	OutcomeSkipped
)

// String 返回结果类别的可读名称，用于日志。
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeProviderFailure:
		return "provider_failure"
	case OutcomeParseFailure:
		return "parse_failure"
	case OutcomeStoreFailure:
		return "store_failure"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome 是一次流水线运行的带标签结果。
// Kind 为 OutcomeCompleted 时 Err 为 nil，其余情况 Err 携带底层错误。
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

func completed() Outcome {
	return Outcome{Kind: OutcomeCompleted}
}

func providerFailure(err error) Outcome {
	return Outcome{Kind: OutcomeProviderFailure, Err: err}
}

func parseFailure(err error) Outcome {
	return Outcome{Kind: OutcomeParseFailure, Err: err}
}

func storeFailure(err error) Outcome {
	return Outcome{Kind: OutcomeStoreFailure, Err: err}
}

func skipped() Outcome {
	return Outcome{Kind: OutcomeSkipped}
}
