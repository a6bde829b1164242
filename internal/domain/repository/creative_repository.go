// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"flashflow-studio/internal/domain/entity"
)

// CreativeFilter 成品过滤条件
type CreativeFilter struct {
	Status        entity.CreativeStatus
	ContentFormat entity.ContentFormat
}

// CreativeRepository 成品仓储接口
type CreativeRepository interface {
	// Create 创建成品
	Create(ctx context.Context, creative *entity.SavedCreative) error

	// GetByID 根据 ID 获取成品，不存在返回 nil
	GetByID(ctx context.Context, id string) (*entity.SavedCreative, error)

	// Upsert 按 ID 插入或整体更新
	Upsert(ctx context.Context, creative *entity.SavedCreative) error

	// Delete 删除成品
	Delete(ctx context.Context, id string) error

	// ListByOwner 获取用户的成品列表
	ListByOwner(ctx context.Context, ownerID string, filter *CreativeFilter, pagination Pagination) (*PagedResult[*entity.SavedCreative], error)

	// SetProductionJob 仅在尚未关联时写入制作任务 ID，返回是否写入成功
	SetProductionJob(ctx context.Context, creativeID, jobID string) (bool, error)
}
