package production

import (
	"context"
	"fmt"
	"time"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/repository"
	"flashflow-studio/internal/infrastructure/messaging"
	"flashflow-studio/pkg/logger"
	"flashflow-studio/pkg/metrics"
)

// DefaultMaxRetries 简报失败后扫描重试的上限
const DefaultMaxRetries = 3

// BriefService 为制作任务生成剪辑简报
type BriefService struct {
	creativeRepo repository.CreativeRepository
	jobRepo      repository.ProductionJobRepository
	maxRetries   int
	now          func() time.Time
}

// NewBriefService 创建简报服务
func NewBriefService(creativeRepo repository.CreativeRepository, jobRepo repository.ProductionJobRepository) *BriefService {
	return &BriefService{
		creativeRepo: creativeRepo,
		jobRepo:      jobRepo,
		maxRetries:   DefaultMaxRetries,
		now:          time.Now,
	}
}

// HandleCreativeApproved 消费 creative_approved 事件
func (s *BriefService) HandleCreativeApproved(ctx context.Context, msg *messaging.Message) error {
	var evt messaging.CreativeApprovedMessage
	if err := msg.UnmarshalPayload(&evt); err != nil {
		return fmt.Errorf("failed to decode creative approved payload: %w", err)
	}
	return s.Process(ctx, evt.JobID)
}

// Process 为单个任务生成简报。非 pending 任务直接跳过，重复投递无副作用。
// 内容本身的问题记为任务失败并返回 nil，只有存储错误才返回 error 让消息重投。
func (s *BriefService) Process(ctx context.Context, jobID string) error {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load production job: %w", err)
	}
	if job == nil {
		logger.Warn(ctx, "production job not found", "job_id", jobID)
		return nil
	}
	if job.Status != entity.ProductionJobPending {
		metrics.ProductionBriefsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	creative, err := s.creativeRepo.GetByID(ctx, job.CreativeID)
	if err != nil {
		return fmt.Errorf("failed to load creative: %w", err)
	}
	if creative == nil {
		return s.fail(ctx, job, fmt.Errorf("creative %s not found", job.CreativeID))
	}

	brief, err := RenderBrief(creative, job)
	if err != nil {
		return s.fail(ctx, job, err)
	}

	job.MarkBriefed(brief, s.now())
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to save brief: %w", err)
	}
	metrics.ProductionBriefsTotal.WithLabelValues("briefed").Inc()
	logger.Info(ctx, "production brief ready", "job_id", job.ID, "creative_id", job.CreativeID)
	return nil
}

func (s *BriefService) fail(ctx context.Context, job *entity.ProductionJob, cause error) error {
	job.Fail(cause.Error())
	metrics.ProductionBriefsTotal.WithLabelValues("failed").Inc()
	logger.Error(ctx, "failed to render production brief", cause, "job_id", job.ID, "retry_count", job.RetryCount)
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// Sweep 补处理遗漏事件的 pending 任务，并重试未超过上限的失败任务
func (s *BriefService) Sweep(ctx context.Context, limit int) (int, error) {
	pending, err := s.jobRepo.ListByStatus(ctx, entity.ProductionJobPending, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	failed, err := s.jobRepo.ListByStatus(ctx, entity.ProductionJobFailed, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed jobs: %w", err)
	}
	for _, job := range failed {
		if !job.CanRetry(s.maxRetries) {
			continue
		}
		job.Retry()
		if err := s.jobRepo.Update(ctx, job); err != nil {
			return 0, fmt.Errorf("failed to requeue job: %w", err)
		}
		pending = append(pending, job)
	}

	processed := 0
	for _, job := range pending {
		if err := s.Process(ctx, job.ID); err != nil {
			logger.Error(ctx, "brief sweep failed", err, "job_id", job.ID)
			continue
		}
		processed++
	}
	return processed, nil
}

// OverdueJob 违反时限的制作任务
type OverdueJob struct {
	Job    *entity.ProductionJob
	Breach string
	// Late 超过截止时间多久，未到截止时间为 0
	Late time.Duration
}

// Overdue 列出违反时限的在制任务，截止时间早的在前
func (s *BriefService) Overdue(ctx context.Context, limit int) ([]OverdueJob, error) {
	jobs, err := s.jobRepo.ListOpen(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open jobs: %w", err)
	}
	now := s.now()
	var out []OverdueJob
	for _, job := range jobs {
		breach := job.SLABreach(now)
		if breach == "" {
			continue
		}
		late := now.Sub(job.DueAt)
		if late < 0 {
			late = 0
		}
		out = append(out, OverdueJob{Job: job, Breach: breach, Late: late})
	}
	metrics.ProductionJobsOverdue.Set(float64(len(out)))
	return out, nil
}

// SweepOverdue 记录超时任务，返回超时数量
func (s *BriefService) SweepOverdue(ctx context.Context, limit int) (int, error) {
	overdue, err := s.Overdue(ctx, limit)
	if err != nil {
		return 0, err
	}
	for _, o := range overdue {
		logger.Warn(ctx, "production job breaching SLA",
			"job_id", o.Job.ID,
			"creative_id", o.Job.CreativeID,
			"status", string(o.Job.Status),
			"breach", o.Breach,
			"due_at", o.Job.DueAt.Format(time.RFC3339),
		)
	}
	return len(overdue), nil
}

// Preview 渲染成品的简报但不落库，已有任务时带上任务信息
func (s *BriefService) Preview(ctx context.Context, creativeID string) (string, error) {
	creative, err := s.creativeRepo.GetByID(ctx, creativeID)
	if err != nil {
		return "", fmt.Errorf("failed to load creative: %w", err)
	}
	if creative == nil {
		return "", fmt.Errorf("creative %s not found", creativeID)
	}
	job, err := s.jobRepo.GetByCreativeID(ctx, creativeID)
	if err != nil {
		return "", fmt.Errorf("failed to look up production job: %w", err)
	}
	return RenderBrief(creative, job)
}
