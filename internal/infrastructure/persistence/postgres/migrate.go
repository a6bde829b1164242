package postgres

import (
	"context"
	"fmt"

	"flashflow-studio/internal/domain/entity"
)

// Models 需要建表的模型
func Models() []any {
	return []any{
		&entity.SavedCreative{},
		&entity.ProductionJob{},
		&entity.CreditAccount{},
		&entity.GenerationUsageEvent{},
	}
}

// AutoMigrate 同步表结构
func (c *Client) AutoMigrate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.AutoMigrate")
	defer span.End()

	if err := c.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
