// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"flashflow-studio/internal/domain/entity"
)

// ProductionJobRepository 制作任务仓储实现
type ProductionJobRepository struct {
	client *Client
}

// NewProductionJobRepository 创建制作任务仓储
func NewProductionJobRepository(client *Client) *ProductionJobRepository {
	return &ProductionJobRepository{client: client}
}

// Create 创建任务
func (r *ProductionJobRepository) Create(ctx context.Context, job *entity.ProductionJob) error {
	ctx, span := tracer.Start(ctx, "postgres.ProductionJobRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(job).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create production job: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取任务
func (r *ProductionJobRepository) GetByID(ctx context.Context, id string) (*entity.ProductionJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProductionJobRepository.GetByID")
	defer span.End()

	return r.first(ctx, "id = ?", id)
}

// GetByCreativeID 根据成品 ID 获取任务
func (r *ProductionJobRepository) GetByCreativeID(ctx context.Context, creativeID string) (*entity.ProductionJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProductionJobRepository.GetByCreativeID")
	defer span.End()

	return r.first(ctx, "creative_id = ?", creativeID)
}

func (r *ProductionJobRepository) first(ctx context.Context, cond string, arg any) (*entity.ProductionJob, error) {
	db := getDB(ctx, r.client.db)
	var job entity.ProductionJob
	if err := db.First(&job, cond, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get production job: %w", err)
	}
	return &job, nil
}

// Update 更新任务
func (r *ProductionJobRepository) Update(ctx context.Context, job *entity.ProductionJob) error {
	ctx, span := tracer.Start(ctx, "postgres.ProductionJobRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(job).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update production job: %w", err)
	}
	return nil
}

// ListByStatus 按状态获取任务，最早创建的在前
func (r *ProductionJobRepository) ListByStatus(ctx context.Context, status entity.ProductionJobStatus, limit int) ([]*entity.ProductionJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProductionJobRepository.ListByStatus")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var jobs []*entity.ProductionJob
	if err := db.Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list production jobs: %w", err)
	}
	return jobs, nil
}

// ListOpen 获取仍在制作中的任务，截止时间早的在前
func (r *ProductionJobRepository) ListOpen(ctx context.Context, limit int) ([]*entity.ProductionJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProductionJobRepository.ListOpen")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var jobs []*entity.ProductionJob
	if err := db.Where("status IN ?", entity.OpenProductionJobStatuses).
		Order("due_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list open production jobs: %w", err)
	}
	return jobs, nil
}
