package quota

import (
	"context"
	"fmt"
	"strings"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/repository"
	"flashflow-studio/internal/domain/service"
	"flashflow-studio/pkg/logger"
)

// UsageRecorder 在同一事务内扣减额度并写入生成流水
type UsageRecorder struct {
	accounts repository.CreditRepository
	events   repository.UsageEventRepository
	txMgr    repository.Transactor
	checker  *CreditChecker
}

// NewUsageRecorder 创建用量记录器
func NewUsageRecorder(
	accounts repository.CreditRepository,
	events repository.UsageEventRepository,
	txMgr repository.Transactor,
	checker *CreditChecker,
) *UsageRecorder {
	return &UsageRecorder{
		accounts: accounts,
		events:   events,
		txMgr:    txMgr,
		checker:  checker,
	}
}

// Record 扣减与流水要么都落库要么都不落库；提交后才失效余额缓存
func (r *UsageRecorder) Record(ctx context.Context, in service.UsageInput) error {
	if r == nil || r.accounts == nil || r.events == nil {
		return nil
	}

	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil
	}
	if in.Credits < 0 || in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return fmt.Errorf("invalid usage input")
	}

	evt := &entity.GenerationUsageEvent{
		UserID:           userID,
		SessionID:        strings.TrimSpace(in.SessionID),
		Operation:        strings.TrimSpace(in.Operation),
		Credits:          in.Credits,
		Variations:       in.Variations,
		Provider:         strings.TrimSpace(in.Provider),
		Model:            strings.TrimSpace(in.Model),
		TokensPrompt:     in.PromptTokens,
		TokensCompletion: in.CompletionTokens,
		DurationMs:       in.DurationMs,
	}
	write := func(ctx context.Context) error {
		if in.Credits > 0 {
			if err := r.accounts.Deduct(ctx, userID, in.Credits); err != nil {
				return err
			}
		}
		if err := r.events.Create(ctx, evt); err != nil {
			return fmt.Errorf("failed to record usage event: %w", err)
		}
		return nil
	}

	var err error
	if r.txMgr != nil {
		err = r.txMgr.WithTransaction(ctx, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return err
	}

	if r.checker != nil {
		if err := r.checker.Invalidate(ctx, userID); err != nil {
			logger.Warn(ctx, "failed to invalidate credit cache", "user_id", userID, "error", err.Error())
		}
	}
	return nil
}
