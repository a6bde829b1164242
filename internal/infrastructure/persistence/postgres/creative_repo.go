// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/repository"
)

// CreativeRepository 成品仓储实现
type CreativeRepository struct {
	client *Client
}

// NewCreativeRepository 创建成品仓储
func NewCreativeRepository(client *Client) *CreativeRepository {
	return &CreativeRepository{client: client}
}

// Create 创建成品
func (r *CreativeRepository) Create(ctx context.Context, creative *entity.SavedCreative) error {
	ctx, span := tracer.Start(ctx, "postgres.CreativeRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(creative).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create creative: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取成品
func (r *CreativeRepository) GetByID(ctx context.Context, id string) (*entity.SavedCreative, error) {
	ctx, span := tracer.Start(ctx, "postgres.CreativeRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var creative entity.SavedCreative
	if err := db.First(&creative, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get creative: %w", err)
	}
	return &creative, nil
}

// Upsert 按 ID 插入或整体更新。production_job_id 一旦写入不会被覆盖为空。
func (r *CreativeRepository) Upsert(ctx context.Context, creative *entity.SavedCreative) error {
	ctx, span := tracer.Start(ctx, "postgres.CreativeRepository.Upsert")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"title":             creative.Title,
			"status":            creative.Status,
			"candidate":         creative.Candidate,
			"config":            creative.Config,
			"edit_patch":        creative.EditPatch,
			"overall_score":     creative.OverallScore,
			"risk_flags":        creative.RiskFlags,
			"rating":            creative.Rating,
			"feedback":          creative.Feedback,
			"production_job_id": gorm.Expr("COALESCE(saved_creatives.production_job_id, ?)", creative.ProductionJobID),
			"updated_at":        gorm.Expr("NOW()"),
		}),
	}).Create(creative).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert creative: %w", err)
	}
	return nil
}

// Delete 删除成品
func (r *CreativeRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.CreativeRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.SavedCreative{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete creative: %w", err)
	}
	return nil
}

// ListByOwner 获取用户的成品列表
func (r *CreativeRepository) ListByOwner(ctx context.Context, ownerID string, filter *repository.CreativeFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.SavedCreative], error) {
	ctx, span := tracer.Start(ctx, "postgres.CreativeRepository.ListByOwner")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.SavedCreative{})
	if ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}
	if filter != nil {
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.ContentFormat != "" {
			query = query.Where("content_format = ?", filter.ContentFormat)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count creatives: %w", err)
	}

	var creatives []*entity.SavedCreative
	if err := query.Order("updated_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&creatives).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list creatives: %w", err)
	}

	return repository.NewPagedResult(creatives, total, pagination), nil
}

// SetProductionJob 仅在尚未关联时写入制作任务 ID
func (r *CreativeRepository) SetProductionJob(ctx context.Context, creativeID, jobID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.CreativeRepository.SetProductionJob")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.SavedCreative{}).
		Where("id = ? AND production_job_id IS NULL", creativeID).
		Updates(map[string]any{
			"production_job_id": jobID,
			"updated_at":        gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to set production job: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
