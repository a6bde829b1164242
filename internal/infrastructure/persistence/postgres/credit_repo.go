// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"flashflow-studio/internal/domain/entity"
)

// CreditRepository 额度账户仓储实现
type CreditRepository struct {
	client *Client
}

// NewCreditRepository 创建额度账户仓储
func NewCreditRepository(client *Client) *CreditRepository {
	return &CreditRepository{client: client}
}

// GetByUserID 获取账户
func (r *CreditRepository) GetByUserID(ctx context.Context, userID string) (*entity.CreditAccount, error) {
	ctx, span := tracer.Start(ctx, "postgres.CreditRepository.GetByUserID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var account entity.CreditAccount
	if err := db.First(&account, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get credit account: %w", err)
	}
	return &account, nil
}

// Upsert 创建或覆盖账户
func (r *CreditRepository) Upsert(ctx context.Context, account *entity.CreditAccount) error {
	ctx, span := tracer.Start(ctx, "postgres.CreditRepository.Upsert")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"plan", "remaining", "unlimited", "updated_at"}),
	}).Create(account).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert credit account: %w", err)
	}
	return nil
}

// Grant 增加额度
func (r *CreditRepository) Grant(ctx context.Context, userID string, credits int) error {
	ctx, span := tracer.Start(ctx, "postgres.CreditRepository.Grant")
	defer span.End()

	db := getDB(ctx, r.client.db)
	account := &entity.CreditAccount{UserID: userID, Plan: "free", Remaining: credits}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"remaining":  gorm.Expr("credit_accounts.remaining + ?", credits),
			"updated_at": gorm.Expr("NOW()"),
		}),
	}).Create(account).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to grant credits: %w", err)
	}
	return nil
}

// Deduct 扣减额度
func (r *CreditRepository) Deduct(ctx context.Context, userID string, credits int) error {
	ctx, span := tracer.Start(ctx, "postgres.CreditRepository.Deduct")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Model(&entity.CreditAccount{}).
		Where("user_id = ? AND unlimited = FALSE", userID).
		Updates(map[string]any{
			"remaining":  gorm.Expr("GREATEST(0, remaining - ?)", credits),
			"updated_at": gorm.Expr("NOW()"),
		}).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to deduct credits: %w", err)
	}
	return nil
}
