package service

import "context"

// UsageInput 表示一次成功生成调用的可计费与可观测数据。
// 说明：该结构位于 domain/service，作为跨层的稳定契约（port），避免基础设施层依赖应用层实现。
type UsageInput struct {
	UserID    string
	SessionID string
	Operation string

	Credits    int
	Variations int

	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	DurationMs       int
}

// UsageRecorder 负责记录生成用量（扣减额度 + 流水落库）。
// 约定：实现应尽量 best-effort，不应阻塞主业务流程。
type UsageRecorder interface {
	Record(ctx context.Context, in UsageInput) error
}

// CreditBalance 额度余额快照
type CreditBalance struct {
	Remaining int
	Unlimited bool
}

// CreditSource 读取服务端真实余额
type CreditSource interface {
	Balance(ctx context.Context, userID string) (CreditBalance, error)
}
