// Package production 成品审核通过后的制作交接与剪辑简报
package production

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/repository"
	"flashflow-studio/internal/infrastructure/messaging"
	"flashflow-studio/pkg/logger"
	"flashflow-studio/pkg/metrics"
)

// Publisher 交接事件发布
type Publisher interface {
	PublishCreativeApproved(ctx context.Context, evt *messaging.CreativeApprovedMessage) (string, error)
}

// Handoff 为审核通过的成品创建制作任务
type Handoff struct {
	creativeRepo repository.CreativeRepository
	jobRepo      repository.ProductionJobRepository
	txMgr        repository.Transactor
	publisher    Publisher

	newID func() string
	now   func() time.Time
}

// NewHandoff 创建交接服务
func NewHandoff(
	creativeRepo repository.CreativeRepository,
	jobRepo repository.ProductionJobRepository,
	txMgr repository.Transactor,
	publisher Publisher,
) *Handoff {
	return &Handoff{
		creativeRepo: creativeRepo,
		jobRepo:      jobRepo,
		txMgr:        txMgr,
		publisher:    publisher,
		newID:        uuid.NewString,
		now:          time.Now,
	}
}

// CreateFromEntity 为成品创建制作任务并返回任务 ID。
// 同一成品只会有一个任务，重复调用返回已有任务。
func (h *Handoff) CreateFromEntity(ctx context.Context, creativeID string) (string, error) {
	creative, err := h.creativeRepo.GetByID(ctx, creativeID)
	if err != nil {
		return "", fmt.Errorf("failed to load creative: %w", err)
	}
	if creative == nil {
		return "", fmt.Errorf("creative %s not found", creativeID)
	}

	existing, err := h.jobRepo.GetByCreativeID(ctx, creativeID)
	if err != nil {
		return "", fmt.Errorf("failed to look up production job: %w", err)
	}
	if existing != nil {
		logger.Info(ctx, "production job already exists", "creative_id", creativeID, "job_id", existing.ID)
		return existing.ID, nil
	}

	job := entity.NewProductionJob(h.newID(), creative.ID, creative.OwnerID, h.now())
	err = h.txMgr.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := h.jobRepo.Create(txCtx, job); err != nil {
			return err
		}
		if _, err := h.creativeRepo.SetProductionJob(txCtx, creative.ID, job.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		// 并发审核时唯一索引冲突，以先写入的任务为准
		if winner, lookupErr := h.jobRepo.GetByCreativeID(ctx, creativeID); lookupErr == nil && winner != nil {
			return winner.ID, nil
		}
		return "", fmt.Errorf("failed to create production job: %w", err)
	}

	logger.Info(ctx, "production job created", "creative_id", creativeID, "job_id", job.ID)

	if h.publisher != nil {
		evt := &messaging.CreativeApprovedMessage{JobID: job.ID, CreativeID: creative.ID, OwnerID: creative.OwnerID}
		if _, err := h.publisher.PublishCreativeApproved(ctx, evt); err != nil {
			// 任务已落库，worker 的定时扫描会补出简报
			logger.Warn(ctx, "failed to publish creative approved event", "job_id", job.ID, "error", err.Error())
		}
	}
	return job.ID, nil
}

// Settle 随成品状态结束制作任务，outcome 只能是 delivered 或 cancelled。
// 已交付的任务不再变化，已取消的任务在成品重新产出时改为交付。
func (h *Handoff) Settle(ctx context.Context, jobID string, outcome entity.ProductionJobStatus) error {
	job, err := h.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load production job: %w", err)
	}
	if job == nil {
		logger.Warn(ctx, "production job not found", "job_id", jobID)
		return nil
	}
	if job.Status == outcome || job.Status == entity.ProductionJobDelivered {
		return nil
	}

	switch outcome {
	case entity.ProductionJobDelivered:
		job.MarkDelivered(h.now())
	case entity.ProductionJobCancelled:
		job.Cancel()
	default:
		return fmt.Errorf("cannot settle production job as %s", outcome)
	}
	if err := h.jobRepo.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to settle production job: %w", err)
	}
	metrics.ProductionJobsClosedTotal.WithLabelValues(string(outcome)).Inc()
	logger.Info(ctx, "production job settled", "job_id", job.ID, "creative_id", job.CreativeID, "status", string(outcome))
	return nil
}
