// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"flashflow-studio/internal/domain/entity"
)

// CreditRepository 额度账户仓储接口
type CreditRepository interface {
	// GetByUserID 获取账户，不存在返回 nil
	GetByUserID(ctx context.Context, userID string) (*entity.CreditAccount, error)

	// Upsert 创建或覆盖账户
	Upsert(ctx context.Context, account *entity.CreditAccount) error

	// Grant 增加额度，账户不存在时创建
	Grant(ctx context.Context, userID string, credits int) error

	// Deduct 扣减额度（不低于 0，无限额度账户不扣减）
	Deduct(ctx context.Context, userID string, credits int) error
}

// UsageEventRepository 生成流水仓储接口
type UsageEventRepository interface {
	Create(ctx context.Context, event *entity.GenerationUsageEvent) error
	CountCredits(ctx context.Context, userID string, startInclusive, endExclusive time.Time) (int64, error)
}
