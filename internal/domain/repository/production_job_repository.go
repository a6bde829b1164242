// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"flashflow-studio/internal/domain/entity"
)

// ProductionJobRepository 制作任务仓储接口
type ProductionJobRepository interface {
	// Create 创建任务
	Create(ctx context.Context, job *entity.ProductionJob) error

	// GetByID 根据 ID 获取任务
	GetByID(ctx context.Context, id string) (*entity.ProductionJob, error)

	// GetByCreativeID 根据成品 ID 获取任务
	GetByCreativeID(ctx context.Context, creativeID string) (*entity.ProductionJob, error)

	// Update 更新任务
	Update(ctx context.Context, job *entity.ProductionJob) error

	// ListByStatus 按状态获取任务
	ListByStatus(ctx context.Context, status entity.ProductionJobStatus, limit int) ([]*entity.ProductionJob, error)

	// ListOpen 获取未交付也未取消的任务，截止时间早的在前
	ListOpen(ctx context.Context, limit int) ([]*entity.ProductionJob, error)
}
