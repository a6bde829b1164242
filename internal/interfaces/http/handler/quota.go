package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"flashflow-studio/internal/domain/service"
	"flashflow-studio/internal/interfaces/http/dto"
	"flashflow-studio/pkg/logger"
)

// QuotaReader 读取用户额度
type QuotaReader interface {
	Balance(ctx context.Context, userID string) (service.CreditBalance, error)
	UsedToday(ctx context.Context, userID string) (int64, error)
}

// QuotaHandler 额度处理器
type QuotaHandler struct {
	reader QuotaReader
}

// NewQuotaHandler 创建额度处理器
func NewQuotaHandler(reader QuotaReader) *QuotaHandler {
	return &QuotaHandler{reader: reader}
}

// GetQuota 当前用户的剩余额度与今日用量
// @Router /v1/studio/quota [get]
func (h *QuotaHandler) GetQuota(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUser(c)

	balance, err := h.reader.Balance(ctx, userID)
	if err != nil {
		respondError(c, "get quota", err)
		return
	}
	used, err := h.reader.UsedToday(ctx, userID)
	if err != nil {
		// 用量只是展示信息
		logger.Warn(ctx, "failed to count today's usage", "error", err.Error())
	}
	dto.Success(c, &dto.QuotaResponse{
		Remaining: balance.Remaining,
		Unlimited: balance.Unlimited,
		UsedToday: used,
	})
}
